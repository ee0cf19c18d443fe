package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"nura/config"
	"nura/internal/health"
	"nura/internal/logs"
	"nura/internal/middleware"
	"nura/internal/pairing"
	"nura/internal/registry"
)

type App struct {
	cfg        *config.Config
	Registry   *registry.Registry
	Router     *mux.Router
	httpServer *http.Server
	closeStore func() error

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	/* 1) Логи */
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	/* 2) Хранилище реестра */
	store, closer, err := openStore(a.cfg)
	if err != nil {
		return err
	}
	a.closeStore = closer
	a.Registry = registry.New(store)

	/* 3) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)

	/* 4) Health */
	health.RegisterRoutes(a.Router, a.Registry) // /healthz, /readyz

	/* 5) Pairing API */
	pairing.RegisterRoutes(a.Router, pairing.NewHandler(a.Registry), pairing.RouteOptions{
		JWTSecret:      []byte(a.cfg.Auth.JWTSecret),
		AdminRole:      a.cfg.Auth.AdminRole,
		LivenessSecret: a.cfg.Liveness.SharedSecret,
	})

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := rt.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		logs.Logger.Debugf("route: %-6v %s", methods, path)
		return nil
	})
	return nil
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}
	defer func() {
		if a.closeStore != nil {
			if err := a.closeStore(); err != nil {
				logs.Logger.Errorf("store close: %v", err)
			}
		}
	}()

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	defer a.cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case s := <-sigs:
			logs.Logger.Infof("shutdown signal: %s", s)
			a.cancel()
		case <-a.ctx.Done():
		}
	}()

	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-a.ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	return nil
}
