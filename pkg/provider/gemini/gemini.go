package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"qualichat/pkg/config"
	providertypes "qualichat/pkg/provider/types"
)

// Client drives Gemini through the Google Gen AI SDK.
type Client struct {
	client         *genai.Client
	model          string
	requestTimeout time.Duration
	maxTokens      int32
	temperature    float32
}

// New validates configuration and constructs a Gemini client.
func New(ctx context.Context, cfg config.GeminiProviderConfig, agentCfg config.AgentConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("providers.gemini.api_key is required or GEMINI_API_KEY must be set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize genai client: %w", err)
	}

	return &Client{
		client:         client,
		model:          cfg.Model,
		requestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		maxTokens:      int32(agentCfg.MaxTokens),
		temperature:    float32(agentCfg.Temperature),
	}, nil
}

func (c *Client) Name() string {
	return "gemini"
}

// Health issues a trivial token count so auth and quota problems surface
// before the provider is trusted with a real turn.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText("ping", genai.RoleUser)}
	if _, err := c.client.Models.CountTokens(ctx, c.model, contents, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (c *Client) Decide(ctx context.Context, req providertypes.Request) (providertypes.Decision, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	log := slog.Default().With("component", "provider.gemini")
	startedAt := time.Now()

	contents := toGenaiContents(req.Messages)

	generateConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		generateConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if len(req.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  toGenaiSchema(spec.Schema),
			})
		}
		generateConfig.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	response, err := c.client.Models.GenerateContent(ctx, c.model, contents, generateConfig)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return providertypes.Decision{}, fmt.Errorf("generate content: %w", err)
	}

	if call := firstFunctionCall(response); call != nil {
		arguments, err := json.Marshal(call.Args)
		if err != nil {
			return providertypes.Decision{}, fmt.Errorf("encode tool arguments: %w", err)
		}
		log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "decision", "tool_call", "tool", call.Name)
		return providertypes.Decision{
			Kind:      providertypes.DecisionToolCall,
			ToolName:  call.Name,
			Arguments: arguments,
		}, nil
	}

	text := strings.TrimSpace(response.Text())
	if text == "" {
		return providertypes.Decision{}, errors.New("model returned neither text nor a tool call")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "decision", "final", "response_length", len(text))

	return providertypes.Decision{Kind: providertypes.DecisionFinal, Text: text}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func toGenaiContents(messages []providertypes.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, message := range messages {
		role := genai.Role(genai.RoleUser)
		if message.Role == providertypes.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(message.Content, role))
	}
	return contents
}

func firstFunctionCall(response *genai.GenerateContentResponse) *genai.FunctionCall {
	for _, candidate := range response.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil {
				return part.FunctionCall
			}
		}
	}
	return nil
}

// toGenaiSchema converts a flat tool input schema into the SDK's native
// schema type. Tool inputs are objects of scalar fields, so only that subset
// is mapped.
func toGenaiSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	converted := &genai.Schema{
		Type:        toGenaiType(schema.Type),
		Description: schema.Description,
		Required:    schema.Required,
	}
	if len(schema.Properties) > 0 {
		converted.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for name, property := range schema.Properties {
			converted.Properties[name] = toGenaiSchema(property)
		}
	}
	return converted
}

func toGenaiType(jsonType string) genai.Type {
	switch jsonType {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}
