// Command sessiond runs the session coordinator daemon: it spawns and
// resumes agent child processes, tails terminal sessions' on-disk logs,
// answers permission prompts across all three sources, and serves the
// resulting event stream to subscribed clients over SSE.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kdlbs/sessiond/internal/authtoken"
	"github.com/kdlbs/sessiond/internal/config"
	"github.com/kdlbs/sessiond/internal/coordinator"
	"github.com/kdlbs/sessiond/internal/httpapi"
	"github.com/kdlbs/sessiond/internal/logger"
	"github.com/kdlbs/sessiond/internal/pushsvc"
	"github.com/kdlbs/sessiond/internal/sessionlog"
	"github.com/kdlbs/sessiond/internal/spawner"
	"github.com/kdlbs/sessiond/internal/subscribers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputPath: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting sessiond", zap.Int("port", cfg.Port))

	token, err := authtoken.EnsureToken(cfg.TokenFile)
	if err != nil {
		log.Fatal("failed to establish bearer token", zap.Error(err))
	}

	sp, err := spawner.NewSpawner(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize spawner", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sp.SweepOrphans(ctx); err != nil {
		log.Warn("orphan sweep reported errors", zap.Error(err))
	}

	reader := sessionlog.NewReader(cfg.SessionLogDir)
	coord := coordinator.New(cfg, log, sp, reader)

	hub := subscribers.NewHub(log, cfg.HeartbeatInterval)
	hub.SetOpenPromptsProvider(coord.OpenPrompts)
	coord.SetSink(hub)

	push, err := pushsvc.NewService(cfg.PushDBPath, cfg.Push, log)
	if err != nil {
		log.Fatal("failed to initialize push subscription store", zap.Error(err))
	}
	defer push.Close()

	coord.Start(ctx)

	server := httpapi.NewServer(coord, reader, hub, push, log, token)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.NewRouter(),
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Port), zap.String("token_file", cfg.TokenFile))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down sessiond")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	cancel()
	coord.Shutdown()

	log.Info("sessiond stopped", zap.String("state_dir", filepath.Dir(cfg.TokenFile)))
}
