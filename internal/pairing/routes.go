package pairing

import (
	"net/http"

	"github.com/gorilla/mux"

	"nura/internal/middleware"
)

type RouteOptions struct {
	JWTSecret      []byte
	AdminRole      string
	LivenessSecret string
}

func RegisterRoutes(r *mux.Router, h *Handler, opt RouteOptions) {
	// 1) Пользовательские — bearer JWT
	user := r.PathPrefix("/api/device").Subrouter()
	user.Use(middleware.Authenticate(opt.JWTSecret))
	user.HandleFunc("/connect/", h.HandleClaim).Methods(http.MethodPost)
	user.HandleFunc("/status/", h.HandleStatus).Methods(http.MethodGet)

	// 2) Заведение устройств — JWT с ролью admin
	admin := r.PathPrefix("/api/device").Subrouter()
	admin.Use(middleware.Authenticate(opt.JWTSecret), middleware.RequireRole(opt.AdminRole))
	admin.HandleFunc("/create_test_device/", h.HandleProvision).Methods(http.MethodPost)

	// 3) Репортёр живости — общий сервисный секрет
	live := r.PathPrefix("/api/device").Subrouter()
	live.Use(middleware.SharedSecretAuth(opt.LivenessSecret))
	live.HandleFunc("/{device_id:[^/]{1,100}}/liveness/", h.HandleLiveness).Methods(http.MethodPut)
}
