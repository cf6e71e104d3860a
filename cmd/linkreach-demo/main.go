package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/linkreach/linkreach/internal/demo/connections"
)

func main() {
	cfg, err := connections.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	service, err := connections.NewService(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to initialize demo", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(
		"demo started",
		slog.String("output", cfg.OutputPath),
		slog.Int("rows", cfg.Rows),
		slog.Bool("drive", cfg.Drive),
		slog.String("api_url", cfg.APIBaseURL),
	)

	err = service.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("demo stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo finished")
}
