package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gembot/pkg/channel"
	"gembot/pkg/channel/telegram"
	"gembot/pkg/config"
	"gembot/pkg/gateway"
	"gembot/pkg/logger"
	"gembot/pkg/provider"
	"gembot/pkg/relay"

	"github.com/spf13/cobra"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the message relay",
	Long:  "Starts the Telegram intake (long polling or webhook per config) and relays every message through the configured completion backend.",
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
		log := slog.Default().With("component", "cmd.relay")

		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, appLogger)
		if err != nil {
			log.Error("Telegram configuration invalid", "error", err)
			return
		}

		completer, err := provider.New(cfg)
		if err != nil {
			log.Error("Failed to initialize completion backend", "error", err)
			return
		}

		orchestrator := relay.New(adapter, completer, cfg.Relay, appLogger)

		intake, err := resolveIntake(cfg, adapter, appLogger)
		if err != nil {
			log.Error("Intake configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("Relay started", "intake", intake.Name(), "provider", providerName(cfg))
		if err := intake.Run(runCtx, orchestrator.HandleEvent); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Relay runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
}

// resolveIntake selects the event source: the polling telegram adapter
// itself, or the webhook gateway in push mode.
func resolveIntake(cfg *config.Config, adapter *telegram.Adapter, log *slog.Logger) (channel.Adapter, error) {
	switch mode := cfg.IntakeMode(); mode {
	case config.IntakeModePoll:
		return adapter, nil
	case config.IntakeModeWebhook:
		return gateway.NewService(cfg.Gateway, adapter.SenderAllowed, log), nil
	default:
		return nil, fmt.Errorf("unsupported intake mode: %s", mode)
	}
}

func providerName(cfg *config.Config) string {
	if cfg.Providers.Default != "" {
		return cfg.Providers.Default
	}

	return "gemini"
}
