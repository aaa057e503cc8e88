package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CedricFinance/paulpoll/application"
	"github.com/CedricFinance/paulpoll/config"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("cannot read .env file", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("cannot load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := application.Build(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("cannot start paul", "error", err)
		os.Exit(1)
	}

	if err := app.OpenDiscord(); err != nil {
		slog.Error("cannot connect to discord", "error", err)
		app.Close()
		os.Exit(1)
	}

	waitWorker := app.Worker.Start(ctx)

	server := &http.Server{
		Addr:         cfg.GetHTTPAddr(),
		Handler:      app.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShut()
		_ = server.Shutdown(shutCtx)
	}()

	slog.Info("Listening", "addr", server.Addr, "transport", cfg.GetTransport())
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed")
	}

	// The store must outlive the job the worker is running.
	cancel()
	waitWorker()
	if err := app.Close(); err != nil {
		slog.Error("cannot close paul", "error", err)
	}
}
