package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/oakroles/discord-bot/internal/bot"
	"github.com/oakroles/discord-bot/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bot.New(cfg)
	if err != nil {
		return err
	}

	// Startup validates the API key against the upstream; a dead key is fatal
	if err := b.Start(ctx); err != nil {
		return err
	}

	slog.Info("Bot is running", "guild", cfg.GuildID, "syncInterval", cfg.SyncInterval)
	<-ctx.Done()
	stop()

	slog.Info("Shutting down")
	if err := b.Stop(); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
	slog.Info("Bot stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
