package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/app"
	"github.com/muso/admin-backend/internal/config"
	"github.com/muso/admin-backend/internal/handlers"
	appMiddleware "github.com/muso/admin-backend/internal/middleware"
)

func main() {
	cfg := config.Load()
	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, app.Options{WithAuth: true})
	if err != nil {
		zap.S().Fatalw("failed to initialise services", "error", err)
	}
	defer a.Close()

	// Firebase ID tokens for the console; signed service tokens when Firebase is unavailable.
	var authenticate func(http.Handler) http.Handler
	switch {
	case a.AuthClient != nil:
		authenticate = appMiddleware.FirebaseAuth(a.AuthClient)
	case cfg.JWTSecret != "":
		zap.S().Warnw("firebase auth not configured; accepting service tokens only")
		authenticate = appMiddleware.JWTAuth(cfg.JWTSecret)
	default:
		zap.S().Fatalw("no authentication configured: set FIREBASE_PROJECT_ID or JWT_SECRET")
	}
	if len(cfg.AdminEmails) == 0 {
		zap.S().Warnw("ADMIN_EMAILS is empty; every admin request will be refused")
	}

	api := handlers.NewAPI(a.Actions)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			api.Mount(r)
		})
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.S().Infow("admin API server starting", "addr", cfg.ServerAddress, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalw("server failed to start", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorw("graceful shutdown failed", "error", err)
	}
	zap.S().Infow("admin API server stopped")
}
