package provider

import (
	"context"
	"fmt"
	"log/slog"

	"qualichat/pkg/config"
	"qualichat/pkg/provider/gemini"
	"qualichat/pkg/provider/openai"
	providertypes "qualichat/pkg/provider/types"
)

// Re-exported aliases so most callers only import this package.
type (
	Message      = providertypes.Message
	Request      = providertypes.Request
	Decision     = providertypes.Decision
	DecisionKind = providertypes.DecisionKind
)

const (
	RoleUser         = providertypes.RoleUser
	RoleAssistant    = providertypes.RoleAssistant
	DecisionToolCall = providertypes.DecisionToolCall
	DecisionFinal    = providertypes.DecisionFinal
)

// Client is one language-model backend.
type Client interface {
	Name() string
	Health(ctx context.Context) error
	Decide(ctx context.Context, req Request) (Decision, error)
}

// NewClients builds the configured backends in priority order: Gemini first,
// OpenAI as fallback, mirroring the provider chain the product launched with.
func NewClients(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]Client, error) {
	if log == nil {
		log = slog.Default()
	}
	factoryLog := log.With("component", "provider.factory")

	clients := make([]Client, 0, 2)

	if cfg.Providers.Gemini.Enabled && cfg.Providers.Gemini.APIKey != "" {
		client, err := gemini.New(ctx, cfg.Providers.Gemini, cfg.Agent)
		if err != nil {
			return nil, fmt.Errorf("initialize gemini provider: %w", err)
		}
		factoryLog.Debug("Provider configured", "provider", client.Name(), "model", cfg.Providers.Gemini.Model)
		clients = append(clients, client)
	}

	if cfg.Providers.OpenAI.Enabled && cfg.Providers.OpenAI.APIKey != "" {
		client, err := openai.New(cfg.Providers.OpenAI, cfg.Agent)
		if err != nil {
			return nil, fmt.Errorf("initialize openai provider: %w", err)
		}
		factoryLog.Debug("Provider configured", "provider", client.Name(), "model", cfg.Providers.OpenAI.Model)
		clients = append(clients, client)
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no language model provider is configured: set GEMINI_API_KEY or OPENAI_API_KEY")
	}

	return clients, nil
}
