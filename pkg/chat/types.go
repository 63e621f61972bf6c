// Package chat exposes the conversational contract: one inbound request, one
// normalized envelope out, or the same turn surfaced as a stream of events.
package chat

import "qualichat/pkg/shop"

// UIActionType selects how the client renders the assistant's reply.
type UIActionType string

const (
	ActionNone           UIActionType = "NONE"
	ActionRenderProducts UIActionType = "RENDER_PRODUCTS"
	ActionRenderCart     UIActionType = "RENDER_CART"
	ActionRequestInfo    UIActionType = "REQUEST_INFO"
	ActionRenderPayment  UIActionType = "RENDER_PAYMENT"
)

// UIAction is the render instruction attached to every envelope. Exactly one
// type is set; Data is the type-specific payload.
type UIAction struct {
	Type UIActionType `json:"type"`
	Data any          `json:"data,omitempty"`
}

// ProductsData backs RENDER_PRODUCTS. Products may be empty; the client owns
// the empty-state display.
type ProductsData struct {
	Products            []shop.Product `json:"products"`
	RecommendationIndex int            `json:"recommendation_index"`
}

// RequestInfoData backs REQUEST_INFO. Value is set when a collected field is
// echoed back for confirmation, empty when the field is still missing.
type RequestInfoData struct {
	Field        string   `json:"field"`
	Value        string   `json:"value,omitempty"`
	FieldsNeeded []string `json:"fields_needed,omitempty"`
}

// Envelope is the non-streaming response shape.
type Envelope struct {
	Message   string   `json:"message"`
	SessionID string   `json:"session_id"`
	UIAction  UIAction `json:"ui_action"`
}

// HistoryMessage is one entry of caller-supplied conversation history.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the inbound chat payload. SessionID is optional; a missing one
// creates a new session whose id is returned in the envelope.
type Request struct {
	Message             string           `json:"message"`
	SessionID           string           `json:"session_id,omitempty"`
	ConversationHistory []HistoryMessage `json:"conversation_history,omitempty"`
}
