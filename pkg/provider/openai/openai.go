package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"qualichat/pkg/config"
	providertypes "qualichat/pkg/provider/types"
)

// Client drives OpenAI chat completions with tool calling enabled.
type Client struct {
	client      osdk.Client
	model       string
	maxTokens   int64
	temperature float64
}

// New validates configuration and constructs an OpenAI client.
func New(cfg config.OpenAIProviderConfig, agentCfg config.AgentConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key is required or OPENAI_API_KEY must be set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second; timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	return &Client{
		client:      osdk.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(agentCfg.MaxTokens),
		temperature: agentCfg.Temperature,
	}, nil
}

func (c *Client) Name() string {
	return "openai"
}

func (c *Client) Health(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (c *Client) Decide(ctx context.Context, req providertypes.Request) (providertypes.Decision, error) {
	log := slog.Default().With("component", "provider.openai")
	startedAt := time.Now()

	messages := make([]osdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, osdk.SystemMessage(system))
	}
	for _, message := range req.Messages {
		if message.Role == providertypes.RoleAssistant {
			messages = append(messages, osdk.AssistantMessage(message.Content))
			continue
		}
		messages = append(messages, osdk.UserMessage(message.Content))
	}

	params := osdk.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: osdk.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = osdk.Int(c.maxTokens)
	}
	if len(req.Tools) > 0 {
		tools := make([]osdk.ChatCompletionToolUnionParam, 0, len(req.Tools))
		for _, spec := range req.Tools {
			tools = append(tools, osdk.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: osdk.String(spec.Description),
				Parameters:  shared.FunctionParameters(schemaAsMap(spec.Schema)),
			}))
		}
		params.Tools = tools
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Decision{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return providertypes.Decision{}, errors.New("chat completion returned no choices")
	}

	message := completion.Choices[0].Message
	if len(message.ToolCalls) > 0 {
		call := message.ToolCalls[0]
		log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "decision", "tool_call", "tool", call.Function.Name)
		return providertypes.Decision{
			Kind:      providertypes.DecisionToolCall,
			ToolName:  call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		}, nil
	}

	text := strings.TrimSpace(message.Content)
	if text == "" {
		return providertypes.Decision{}, errors.New("model returned neither text nor a tool call")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "decision", "final", "response_length", len(text))

	return providertypes.Decision{Kind: providertypes.DecisionFinal, Text: text}, nil
}

// schemaAsMap converts a derived JSON schema into the loose map shape the
// OpenAI SDK expects for function parameters.
func schemaAsMap(schema *jsonschema.Schema) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return map[string]any{"type": "object"}
	}
	return result
}
