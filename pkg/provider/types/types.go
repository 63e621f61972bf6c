package types

import (
	"encoding/json"

	"qualichat/pkg/tool"
)

// Message is one conversational entry sent to a model backend.
type Message struct {
	Role    string
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is the full model input for one THINK step: system prompt,
// conversation so far (including in-turn observations), and tool specs.
type Request struct {
	System      string
	Messages    []Message
	Tools       []tool.Spec
	Temperature float64
	MaxTokens   int
}

// DecisionKind discriminates the two possible model decisions.
type DecisionKind string

const (
	DecisionToolCall DecisionKind = "tool_call"
	DecisionFinal    DecisionKind = "final"
)

// Decision is what one provider produced for one THINK step. A single
// provider produces the whole decision; partial outputs are never mixed
// across providers.
type Decision struct {
	Kind      DecisionKind
	ToolName  string
	Arguments json.RawMessage
	Text      string
}
