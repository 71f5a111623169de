package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"presenced/internal/auth"
	"presenced/internal/config"
	"presenced/internal/handlers"
	"presenced/internal/metrics"
	"presenced/internal/presence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger setup: %v", err)
	}
	defer logger.Sync()

	// Build service
	builder := presence.NewServiceBuilder(cfg, logger)
	svc, err := builder.Build()
	if err != nil {
		logger.Fatal("service build failed", zap.Error(err))
	}
	defer svc.Close()

	svc.Manager.Subscribe(func(e presence.Event) {
		logger.Info("presence changed",
			zap.String("username", e.Username),
			zap.String("kind", string(e.Kind)))
	})

	// Router
	r := mux.NewRouter()
	ph := handlers.NewPresenceHandler(svc.Manager)
	r.HandleFunc("/api/v1/presence/probe", ph.Probe).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/v1/presence/{username}", ph.GetPresence).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/v1/presence/{username}/sessions", ph.GetSessions).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/v1/presence/{username}/last", ph.GetLastPresence).Methods(http.MethodGet, http.MethodOptions)

	hh := handlers.NewHealthHandler(svc)
	r.HandleFunc("/healthz", hh.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", hh.Readiness).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Middlewares: metrics -> CORS -> optional auth
	var handler http.Handler = r
	handler = metrics.Middleware("api", handler, svc.Cache)
	handler = handlers.CORSMiddleware(handler)
	jwtmw := auth.NewJWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	handler = jwtmw.OptionalAuthenticate(handler)

	addr := fmt.Sprintf(":%d", cfg.Service.Port)
	logger.Info("starting presenced",
		zap.String("addr", addr),
		zap.String("domain", cfg.Service.Domain),
		zap.String("store", cfg.Store.Backend))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("listen failed", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}
