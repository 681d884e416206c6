package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cascadehq/docagent/internal/config"
	"github.com/cascadehq/docagent/internal/devserver"
	"github.com/cascadehq/docagent/internal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlog := logger.New(strings.TrimSpace(os.Getenv("LOG_FILE")), false)
	defer func() { _ = zlog.Sync() }()

	var answerer devserver.Answerer
	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			zlog.Warn("model init failed, falling back to static answers", zap.Error(err))
		} else {
			answerer = devserver.NewModelAnswerer(chatModel)
			zlog.Info("ai answerer enabled", zap.String("model", cfg.AI.Model))
		}
	} else {
		zlog.Info("no ark credentials, serving static answers")
	}

	server := devserver.New(answerer, devserver.Config{
		AllowAnonymousIngest: cfg.Client.AllowAnonymousIngest,
	}, zlog)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zlog.Info("dev agent server listening", zap.String("addr", cfg.Server.Addr))
	if err := runServer(ctx, srv); err != nil {
		zlog.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
