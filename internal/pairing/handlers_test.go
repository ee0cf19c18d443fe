package pairing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nura/internal/logs"
	"nura/internal/middleware"
	"nura/internal/models"
	"nura/internal/registry"
)

const (
	livenessSecret = "liveness-secret"
	adminRole      = "admin"
)

var jwtSecret = []byte("pairing-test-secret")

func TestMain(m *testing.M) {
	logs.Discard()
	os.Exit(m.Run())
}

type env struct {
	t      *testing.T
	router *mux.Router
	reg    *registry.Registry
}

func newEnv(t *testing.T) *env {
	reg := registry.New(registry.NewMemoryStore())
	return &env{t: t, router: newRouter(reg), reg: reg}
}

func newRouter(reg Registry) *mux.Router {
	r := mux.NewRouter().StrictSlash(true)
	r.Use(middleware.RequestID, middleware.Recoverer)
	RegisterRoutes(r, NewHandler(reg), RouteOptions{
		JWTSecret:      jwtSecret,
		AdminRole:      adminRole,
		LivenessSecret: livenessSecret,
	})
	return r
}

func token(t *testing.T, user, role string) string {
	t.Helper()
	tok, err := middleware.SignToken(jwtSecret, user, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func serve(r http.Handler, method, path, auth string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func (e *env) claim(user, deviceID, code string) *httptest.ResponseRecorder {
	return serve(e.router, http.MethodPost, "/api/device/connect/", token(e.t, user, ""),
		ClaimRequest{DeviceID: deviceID, ActivationCode: code})
}

func (e *env) status(user string) StatusResponse {
	rec := serve(e.router, http.MethodGet, "/api/device/status/", token(e.t, user, ""), nil)
	require.Equal(e.t, http.StatusOK, rec.Code)
	var out StatusResponse
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *env) provision(code string) ProvisionResponse {
	rec := serve(e.router, http.MethodPost, "/api/device/create_test_device/", token(e.t, "root", adminRole),
		ProvisionRequest{ActivationCode: code})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out ProvisionResponse
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *env) liveness(deviceID, status string) *httptest.ResponseRecorder {
	return serve(e.router, http.MethodPut, "/api/device/"+deviceID+"/liveness/", "Bearer "+livenessSecret,
		LivenessRequest{Status: status})
}

func problem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestClaimFlow(t *testing.T) {
	e := newEnv(t)
	x := e.provision("ABC123")
	assert.Equal(t, "ABC123", x.ActivationCode)
	assert.Equal(t, models.StatusDisconnected, x.Status)

	rec := e.claim("alice", x.DeviceID, "ABC123")
	require.Equal(t, http.StatusOK, rec.Code)
	var ok ClaimResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.Equal(t, ClaimResponse{Detail: "connected", DeviceID: x.DeviceID}, ok)

	assert.Equal(t, StatusResponse{Status: models.StatusConnected, DeviceID: x.DeviceID}, e.status("alice"))

	// повтор тем же пользователем
	assert.Equal(t, http.StatusOK, e.claim("alice", x.DeviceID, "ABC123").Code)

	rec = e.claim("bob", x.DeviceID, "ABC123")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, registry.ErrOwnershipConflict.Error(), problem(t, rec).Detail)

	rec = e.liveness(x.DeviceID, "offline")
	require.Equal(t, http.StatusOK, rec.Code)
	var live LivenessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &live))
	assert.Equal(t, models.StatusDisconnected, live.Status)

	assert.Equal(t, models.StatusDisconnected, e.status("alice").Status)

	assert.Equal(t, http.StatusOK, e.claim("bob", x.DeviceID, "ABC123").Code)
	assert.Equal(t, x.DeviceID, e.status("bob").DeviceID)
	assert.Equal(t, models.StatusDisconnected, e.status("alice").Status)
}

func TestClaimWrongCodeIndistinguishable(t *testing.T) {
	e := newEnv(t)
	x := e.provision("ABC123")

	wrongCode := e.claim("alice", x.DeviceID, "NOPE42")
	unknownID := e.claim("alice", "does-not-exist", "ABC123")

	assert.Equal(t, http.StatusBadRequest, wrongCode.Code)
	assert.Equal(t, wrongCode.Code, unknownID.Code)
	assert.Equal(t, wrongCode.Body.String(), unknownID.Body.String())
	assert.Equal(t, registry.ErrNotFound.Error(), problem(t, wrongCode).Detail)
}

func TestClaimInvalidInput(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name   string
		body   any
		fields []string
	}{
		{"empty", ClaimRequest{}, []string{"device_id", "activation_code"}},
		{"blank code", ClaimRequest{DeviceID: "dev", ActivationCode: "   "}, []string{"activation_code"}},
		{"code too long", ClaimRequest{DeviceID: "dev", ActivationCode: "ABCDEFGHIJK"}, []string{"activation_code"}},
		{"id too long", ClaimRequest{DeviceID: strings.Repeat("x", 101), ActivationCode: "ABC"}, []string{"device_id"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(e.router, http.MethodPost, "/api/device/connect/", token(t, "alice", ""), tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			p := problem(t, rec)
			fields, ok := p.Extra.(map[string]any)
			require.True(t, ok)
			for _, f := range tc.fields {
				assert.Contains(t, fields, f)
			}
		})
	}

	rec := serve(e.router, http.MethodPost, "/api/device/connect/", token(t, "alice", ""), "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusUnauthorized,
		serve(e.router, http.MethodPost, "/api/device/connect/", "", ClaimRequest{DeviceID: "a", ActivationCode: "b"}).Code)
	assert.Equal(t, http.StatusUnauthorized,
		serve(e.router, http.MethodGet, "/api/device/status/", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		serve(e.router, http.MethodPost, "/api/device/create_test_device/", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		serve(e.router, http.MethodPut, "/api/device/x/liveness/", token(t, "root", adminRole), LivenessRequest{Status: "online"}).Code)
}

func TestStatusWithoutDevice(t *testing.T) {
	e := newEnv(t)
	rec := serve(e.router, http.MethodGet, "/api/device/status/", token(t, "carol", ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "disconnected", body["status"])
	assert.NotContains(t, body, "device_id")
	assert.Equal(t, noDeviceDetail, body["detail"])
}

func TestProvision(t *testing.T) {
	e := newEnv(t)

	rec := serve(e.router, http.MethodPost, "/api/device/create_test_device/", token(t, "alice", ""),
		ProvisionRequest{ActivationCode: "ABC123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	x := e.provision("ABC123")
	assert.NotEmpty(t, x.DeviceID)

	rec = serve(e.router, http.MethodPost, "/api/device/create_test_device/", token(t, "root", adminRole),
		ProvisionRequest{ActivationCode: "ABC123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, problem(t, rec).Extra, "activation_code")

	rec = serve(e.router, http.MethodPost, "/api/device/create_test_device/", token(t, "root", adminRole),
		ProvisionRequest{ActivationCode: "BAD CODE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// пустое тело — код генерируется
	rec = serve(e.router, http.MethodPost, "/api/device/create_test_device/", token(t, "root", adminRole), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var gen ProvisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gen))
	assert.NotEmpty(t, gen.ActivationCode)
	assert.Equal(t, http.StatusOK, e.claim("alice", gen.DeviceID, gen.ActivationCode).Code)
}

func TestLiveness(t *testing.T) {
	e := newEnv(t)
	x := e.provision("ABC123")

	assert.Equal(t, http.StatusConflict, e.liveness(x.DeviceID, "online").Code)
	assert.Equal(t, http.StatusNotFound, e.liveness("missing", "offline").Code)
	assert.Equal(t, http.StatusBadRequest, e.liveness(x.DeviceID, "sleeping").Code)

	require.Equal(t, http.StatusOK, e.claim("alice", x.DeviceID, "ABC123").Code)
	require.Equal(t, http.StatusOK, e.liveness(x.DeviceID, "offline").Code)
	require.Equal(t, http.StatusOK, e.liveness(x.DeviceID, "online").Code)
	assert.Equal(t, x.DeviceID, e.status("alice").DeviceID)
}

// stubRegistry — реестр, который всегда отвечает заданной ошибкой.
type stubRegistry struct{ err error }

func (s stubRegistry) Claim(context.Context, string, string, string) (models.ClaimOutcome, error) {
	return models.ClaimOutcome{}, s.err
}
func (s stubRegistry) StatusForUser(context.Context, string) (models.StatusView, error) {
	return models.StatusView{Status: models.StatusDisconnected}, s.err
}
func (s stubRegistry) Provision(context.Context, string) (*models.Device, error) { return nil, s.err }
func (s stubRegistry) SetStatus(context.Context, string, models.Status) (*models.Device, error) {
	return nil, s.err
}

func TestStoreFailures(t *testing.T) {
	r := newRouter(stubRegistry{err: errors.New("db down")})

	rec := serve(r, http.MethodGet, "/api/device/status/", token(t, "alice", ""), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")

	rec = serve(r, http.MethodPost, "/api/device/connect/", token(t, "alice", ""),
		ClaimRequest{DeviceID: "dev", ActivationCode: "ABC"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	busy := newRouter(stubRegistry{err: registry.ErrContention})
	rec = serve(busy, http.MethodPost, "/api/device/connect/", token(t, "alice", ""),
		ClaimRequest{DeviceID: "dev", ActivationCode: "ABC"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
