package channel

import (
	"context"

	"qualichat/pkg/chat"
)

// Handler processes one inbound message and returns the reply envelope.
type Handler func(context.Context, chat.Request) (chat.Envelope, error)

// Adapter bridges one external transport (for example Telegram) into the
// assistant.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
