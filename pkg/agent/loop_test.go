package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"qualichat/pkg/config"
	"qualichat/pkg/provider"
	"qualichat/pkg/session"
	"qualichat/pkg/tool"
)

// scriptedModel replays a fixed sequence of decisions and records every
// request it is asked to decide on.
type scriptedModel struct {
	decisions []provider.Decision
	requests  []provider.Request
}

func (m *scriptedModel) Name() string                     { return "scripted" }
func (m *scriptedModel) Health(context.Context) error     { return nil }
func (m *scriptedModel) Decide(_ context.Context, req provider.Request) (provider.Decision, error) {
	m.requests = append(m.requests, req)
	if len(m.decisions) == 0 {
		return provider.Decision{Kind: provider.DecisionFinal, Text: "done"}, nil
	}
	next := m.decisions[0]
	m.decisions = m.decisions[1:]
	return next, nil
}

func testConfig() config.AgentConfig {
	return config.AgentConfig{MaxIterations: 6, MaxTokens: 256, Temperature: 0.2}
}

func testRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	t.Helper()
	registry := tool.NewRegistry(time.Second, slog.Default())
	for _, item := range tools {
		registry.Register(item)
	}
	return registry
}

func echoTool(name, summary string) tool.Tool {
	return tool.Tool{
		Name:        name,
		Description: "test tool",
		Run: func(context.Context, *session.Session, json.RawMessage) tool.Outcome {
			return tool.Outcome{Tool: name, Summary: summary}
		},
	}
}

func newLoop(t *testing.T, model *scriptedModel, registry *tool.Registry) *Loop {
	t.Helper()
	selector, err := provider.NewSelector([]provider.Client{model}, nil)
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}
	return New(selector, registry, nil, testConfig(), slog.Default())
}

func TestRunFinalWithoutTools(t *testing.T) {
	model := &scriptedModel{decisions: []provider.Decision{
		{Kind: provider.DecisionFinal, Text: "Hello! How can I help?"},
	}}
	loop := newLoop(t, model, testRegistry(t))

	result, err := loop.Run(context.Background(), &session.Session{ID: "s-1"}, "hi there")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Text != "Hello! How can I help?" {
		t.Errorf("text = %q", result.Text)
	}
	if len(result.Outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0", len(result.Outcomes))
	}
	if result.Exhausted {
		t.Error("turn should not be exhausted")
	}
}

func TestRunFeedsObservationBackToModel(t *testing.T) {
	model := &scriptedModel{decisions: []provider.Decision{
		{Kind: provider.DecisionToolCall, ToolName: "product_search", Arguments: json.RawMessage(`{"query":"vases"}`)},
		{Kind: provider.DecisionFinal, Text: "Here are some vases."},
	}}
	registry := testRegistry(t, echoTool("product_search", "Found 2 products for \"vases\""))
	loop := newLoop(t, model, registry)

	sess := &session.Session{ID: "s-1"}
	result, err := loop.Run(context.Background(), sess, "show me vases")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(result.Outcomes))
	}

	if len(model.requests) != 2 {
		t.Fatalf("model requests = %d, want 2", len(model.requests))
	}
	second := model.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != provider.RoleUser || !strings.HasPrefix(last.Content, "Observation:") {
		t.Errorf("last in-turn message = %+v, want an observation", last)
	}
	if !strings.Contains(last.Content, "Found 2 products") {
		t.Errorf("observation missing tool summary: %q", last.Content)
	}

	// Observations are in-turn only.
	if len(sess.Messages) != 0 {
		t.Error("loop must not write to the transcript")
	}
}

func TestRunToolFailureIsRecoverable(t *testing.T) {
	model := &scriptedModel{decisions: []provider.Decision{
		{Kind: provider.DecisionToolCall, ToolName: "process_payment", Arguments: json.RawMessage(`{}`)},
		{Kind: provider.DecisionFinal, Text: "I still need your phone number."},
	}}
	failing := tool.Tool{
		Name: "process_payment",
		Run: func(context.Context, *session.Session, json.RawMessage) tool.Outcome {
			return tool.Outcome{
				Tool:    "process_payment",
				Failure: tool.MissingField("phone", "phone number is required"),
				Summary: "Tool process_payment failed: phone number is required",
			}
		},
	}
	loop := newLoop(t, model, testRegistry(t, failing))

	result, err := loop.Run(context.Background(), &session.Session{ID: "s-1"}, "pay now")
	if err != nil {
		t.Fatalf("tool failure must not fail the turn: %v", err)
	}
	if result.Text != "I still need your phone number." {
		t.Errorf("text = %q", result.Text)
	}
	if result.Outcomes[0].Failure == nil {
		t.Error("outcome should carry the failure")
	}
}

func TestRunExhaustsIterationCap(t *testing.T) {
	decisions := make([]provider.Decision, 0, 10)
	for i := 0; i < 10; i++ {
		decisions = append(decisions, provider.Decision{
			Kind: provider.DecisionToolCall, ToolName: "show_cart", Arguments: json.RawMessage(`{}`),
		})
	}
	model := &scriptedModel{decisions: decisions}
	loop := newLoop(t, model, testRegistry(t, echoTool("show_cart", "cart is empty")))

	result, err := loop.Run(context.Background(), &session.Session{ID: "s-1"}, "show my cart please")
	if err != nil {
		t.Fatalf("exhaustion must not be an error: %v", err)
	}
	if !result.Exhausted {
		t.Fatal("expected exhausted result")
	}
	if len(result.Outcomes) != testConfig().MaxIterations {
		t.Errorf("outcomes = %d, want %d", len(result.Outcomes), testConfig().MaxIterations)
	}
	if result.Text == "" {
		t.Error("exhausted turn still needs a fallback message")
	}
}

func TestRunClarificationIsTerminal(t *testing.T) {
	model := &scriptedModel{decisions: []provider.Decision{
		{Kind: provider.DecisionToolCall, ToolName: "clarify_intent", Arguments: json.RawMessage(`{}`)},
		{Kind: provider.DecisionFinal, Text: "should never be reached"},
	}}
	clarify := tool.Tool{
		Name: "clarify_intent",
		Run: func(context.Context, *session.Session, json.RawMessage) tool.Outcome {
			return tool.Outcome{
				Tool:          "clarify_intent",
				Clarification: "What type of clothing are you interested in?",
				Summary:       "asked for clarification",
			}
		},
	}
	loop := newLoop(t, model, testRegistry(t, clarify))

	result, err := loop.Run(context.Background(), &session.Session{ID: "s-1"}, "clothes")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Text != "What type of clothing are you interested in?" {
		t.Errorf("text = %q", result.Text)
	}
	if len(model.requests) != 1 {
		t.Errorf("model requests = %d, want 1 (clarification ends the turn)", len(model.requests))
	}
}

func TestRunHookErrorCancelsTurn(t *testing.T) {
	model := &scriptedModel{decisions: []provider.Decision{
		{Kind: provider.DecisionToolCall, ToolName: "show_cart", Arguments: json.RawMessage(`{}`)},
	}}
	loop := newLoop(t, model, testRegistry(t, echoTool("show_cart", "ok")))

	disconnect := errors.New("client gone")
	_, err := loop.RunWithHooks(context.Background(), &session.Session{ID: "s-1"}, "cart", Hooks{
		ToolStart: func(string) error { return disconnect },
	})
	if !errors.Is(err, disconnect) {
		t.Fatalf("err = %v, want hook error", err)
	}
}

func TestRunModelUnavailable(t *testing.T) {
	selector, err := provider.NewSelector([]provider.Client{failingClient{}}, nil)
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}
	loop := New(selector, testRegistry(t), nil, testConfig(), slog.Default())

	_, err = loop.Run(context.Background(), &session.Session{ID: "s-1"}, "hi")
	if !errors.Is(err, provider.ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

type failingClient struct{}

func (failingClient) Name() string                 { return "failing" }
func (failingClient) Health(context.Context) error { return errors.New("down") }
func (failingClient) Decide(context.Context, provider.Request) (provider.Decision, error) {
	return provider.Decision{}, errors.New("down")
}
