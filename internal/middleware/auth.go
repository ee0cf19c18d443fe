package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"nura/internal/models"
)

// Identity — уже аутентифицированный вызывающий. Ядро работает только с ним,
// сырой токен дальше middleware не уходит.
type Identity struct {
	UserID string
	Role   string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

// Claims — полезная нагрузка bearer-токена (HS256).
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="nura"`)
	models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", detail, nil)
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// Authenticate проверяет Authorization: Bearer <jwt>, subject токена — id пользователя.
func Authenticate(secret []byte) mux.MiddlewareFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "authorization header required")
				return
			}

			var claims Claims
			_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return secret, nil
			})
			if err != nil {
				Log(r).WithError(err).Debug("token rejected")
				unauthorized(w, "invalid token")
				return
			}
			if strings.TrimSpace(claims.Subject) == "" {
				unauthorized(w, "token has no subject")
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: claims.Subject, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole — только для идентичностей с указанной ролью (ставится после Authenticate).
func RequireRole(role string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}
			if id.Role != role {
				models.WriteProblem(w, http.StatusForbidden, "Forbidden",
					"insufficient privileges", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SharedSecretAuth: Authorization: Bearer <sharedSecret>. Для сервисных вызовов
// (репортёр живости устройств), у которых нет пользовательской идентичности.
func SharedSecretAuth(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearerToken(r)
			if secret == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				unauthorized(w, "invalid service credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
