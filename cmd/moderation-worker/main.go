package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/app"
	"github.com/muso/admin-backend/internal/config"
	"github.com/muso/admin-backend/internal/services"
)

func main() {
	cfg := config.Load()
	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, app.Options{WithMedia: true})
	if err != nil {
		zap.S().Fatalw("failed to initialise services", "error", err)
	}
	defer a.Close()

	scheduler, err := startScoring(cfg.ScoringSchedule, a.Suspicion)
	if err != nil {
		zap.S().Fatalw("invalid SCORING_SCHEDULE", "schedule", cfg.ScoringSchedule, "error", err)
	}
	defer func() { <-scheduler.Stop().Done() }()

	wk := &worker{moderation: a.Moderation, bucket: cfg.MediaBucket, prefix: reportedPrefix}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/events", wk.handleFinalize)

	addr := ":" + getEnv("PORT", "8080")
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		zap.S().Infow("moderation-worker listening", "addr", addr, "schedule", cfg.ScoringSchedule)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalw("worker failed to start", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// startScoring runs one suspicion scoring pass per tick of schedule. Overlapping runs are
// skipped.
func startScoring(schedule string, suspicion *services.SuspicionService) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := suspicion.Rescore(ctx); err != nil {
			zap.S().Errorw("scheduled scoring run failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
