package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"nura/internal/logs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "reqid"
	identityKey  ctxKey = "identity"
)

const maxRequestIDLen = 128

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(r *http.Request) string {
	v := r.Context().Value(requestIDKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Log — entry с reqid и (если есть) пользователем запроса.
func Log(r *http.Request) *logrus.Entry {
	e := logs.Logger.WithField("reqid", GetRequestID(r))
	if id, ok := IdentityFrom(r.Context()); ok {
		e = e.WithField("user", id.UserID)
	}
	return e
}
