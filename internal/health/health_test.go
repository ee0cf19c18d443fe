package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"nura/internal/logs"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func get(r *mux.Router, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthRoutes(t *testing.T) {
	logs.Discard()

	ok := mux.NewRouter()
	RegisterRoutes(ok, pingFunc(func(context.Context) error { return nil }))
	assert.Equal(t, http.StatusOK, get(ok, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(ok, "/readyz").Code)

	down := mux.NewRouter()
	RegisterRoutes(down, pingFunc(func(context.Context) error { return errors.New("conn refused") }))
	assert.Equal(t, http.StatusOK, get(down, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(down, "/readyz").Code)
}
