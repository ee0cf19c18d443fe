package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"nura/internal/logs"
)

// Pinger — всё, чью готовность можно проверить (хранилище реестра).
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes — liveness (/healthz) + readiness (/readyz, пинг хранилища).
func RegisterRoutes(r *mux.Router, p Pinger) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			logs.Logger.WithError(err).Warn("readiness check failed")
			http.Error(w, "store unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
