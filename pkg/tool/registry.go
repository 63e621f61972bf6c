package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"qualichat/pkg/session"
	"qualichat/pkg/shop"
)

// InfoEcho is a collected user-info field echoed back for confirmation.
type InfoEcho struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Outcome is the result of one tool invocation. Exactly one payload field is
// set on success; Failure is set instead when the tool could not complete.
// Summary always carries the text fed back to the model during OBSERVE.
type Outcome struct {
	Tool          string
	Products      []shop.Product
	Cart          *shop.CartView
	Payment       *shop.PaymentResult
	Info          *InfoEcho
	Clarification string
	Failure       *Failure
	Summary       string
}

// Spec is the provider-facing declaration of one tool.
type Spec struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// Tool binds a spec to its typed handler. Handlers receive the locked session
// of the current turn and pre-validated raw arguments.
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Run         func(ctx context.Context, sess *session.Session, args json.RawMessage) Outcome
}

// Registry dispatches tool calls by name with a bounded invocation duration.
type Registry struct {
	tools   map[string]Tool
	order   []string
	timeout time.Duration
	log     *slog.Logger
}

// NewRegistry builds an empty registry. Timeout bounds each invocation;
// overruns become a timeout failure, never an unbounded hang.
func NewRegistry(timeout time.Duration, log *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: timeout,
		log:     log.With("component", "tool.registry"),
	}
}

// Register adds a tool. Re-registering a name replaces the previous entry.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Specs returns provider-facing tool declarations in registration order.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, Spec{Name: t.Name, Description: t.Description, Schema: t.Schema})
	}
	return specs
}

// Invoke runs the named tool. An unknown name is a not_found failure, not a
// crash; a slow tool is cut off at the registry timeout.
func (r *Registry) Invoke(ctx context.Context, name string, sess *session.Session, args json.RawMessage) Outcome {
	t, ok := r.tools[name]
	if !ok {
		return Outcome{
			Tool:    name,
			Failure: NewFailure(FailureNotFound, fmt.Sprintf("unknown tool %q", name)),
			Summary: fmt.Sprintf("Tool %q does not exist.", name),
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// The handler runs against a shadow of the session. Its scratch writes
	// land only when it finishes in time; a goroutine abandoned on timeout
	// keeps mutating the shadow, never the session the caller holds locked.
	shadow := *sess

	startedAt := time.Now()
	done := make(chan Outcome, 1)
	go func() {
		done <- t.Run(runCtx, &shadow, args)
	}()

	select {
	case outcome := <-done:
		sess.Scratch = shadow.Scratch
		r.log.Debug("tool invocation completed",
			"tool", name,
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"failed", outcome.Failure != nil,
		)
		return outcome
	case <-runCtx.Done():
		r.log.Debug("tool invocation timed out", "tool", name, "duration_ms", time.Since(startedAt).Milliseconds())
		return Outcome{
			Tool:    name,
			Failure: NewFailure(FailureTimeout, fmt.Sprintf("tool %q exceeded %s", name, r.timeout)),
			Summary: fmt.Sprintf("Tool %q did not answer in time.", name),
		}
	}
}

// decodeArgs parses raw model-provided arguments into a typed input struct.
func decodeArgs[T any](args json.RawMessage) (T, *Failure) {
	var input T
	if len(args) == 0 {
		return input, nil
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return input, NewFailure(FailureUpstream, fmt.Sprintf("invalid arguments: %v", err))
	}
	return input, nil
}

// mustSchema derives a JSON schema for a tool input type at registration time.
func mustSchema[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("derive tool schema: %v", err))
	}
	return schema
}
