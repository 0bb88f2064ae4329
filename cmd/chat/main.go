// Package main answers one chat message read from the environment and prints
// {"response": ..., "error": ...} on stdout. Logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pantrynav/pantrynav/internal/chat"
	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/i18n"
	"github.com/pantrynav/pantrynav/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		return emit(chat.Reply{Error: ptr("failed to load .env: " + err.Error())})
	}

	cfg, err := config.LoadChat()
	if err != nil {
		return emit(chat.Reply{Error: ptr(err.Error())})
	}

	logger := logging.NewWithWriter(cfg.LogConfig, os.Stderr)

	catalog, err := i18n.New()
	if err != nil {
		logger.Error("failed to load translations", "error", err)
		return emit(chat.Reply{Error: ptr(err.Error())})
	}

	client := chat.NewOllamaClient(cfg.OllamaURL, cfg.Model, cfg.Timeout, logger)
	assistant := chat.NewAssistant(client, catalog, cfg.RateLimit, logger)

	logger.Info("chat request", "language", cfg.Language(), "model", cfg.Model)
	return emit(assistant.Ask(ctx, cfg.Message, cfg.Language()))
}

func emit(reply chat.Reply) int {
	if err := json.NewEncoder(os.Stdout).Encode(reply); err != nil {
		slog.Error("failed to write reply", "error", err)
		return 1
	}
	if reply.Failed() {
		return 1
	}
	return 0
}

func ptr(s string) *string { return &s }
