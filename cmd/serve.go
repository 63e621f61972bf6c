/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"qualichat/pkg/channel"
	"qualichat/pkg/channel/telegram"
	"qualichat/pkg/config"
	"qualichat/pkg/gateway"
	"qualichat/pkg/logger"
)

const telegramChannelName = "telegram"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant as an HTTP service",
	Long:  "Serves the chat API with health reporting, and runs any enabled channel adapters alongside it.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		adapters := enabledAdapters(cfg, log)

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(runCtx, cfg, adapters, log)
		if err != nil {
			log.Error("Failed to initialize service", "error", err)
			return
		}

		log.Info("Service started", "channels", channelNames(adapters), "port", cfg.Server.Port)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Service runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// enabledAdapters assembles channel adapters from config. The HTTP API is
// always served, so no enabled channel is a valid setup.
func enabledAdapters(cfg *config.Config, log *slog.Logger) []channel.Adapter {
	if log == nil {
		log = slog.Default()
	}

	adapters := make([]channel.Adapter, 0, 1)

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			log.Warn("Skipping misconfigured channel", "channel", telegramChannelName, "error", err)
		} else {
			adapters = append(adapters, adapter)
		}
	}

	return adapters
}

func channelNames(adapters []channel.Adapter) string {
	if len(adapters) == 0 {
		return "none"
	}

	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
