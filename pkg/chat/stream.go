package chat

import (
	"context"
	"strings"
	"time"

	"qualichat/pkg/agent"
	"qualichat/pkg/session"
)

// Stream event types. The end sentinel closes every stream, including those
// that carried an error event.
const (
	EventToolStart = "tool_start"
	EventContent   = "content"
	EventError     = "error"
	EventEnd       = "end"
)

// streamChunkSize is the fragment length in runes for final-text chunking.
const streamChunkSize = 48

// Event is one streamed record. Fields other than Type are populated per
// event type.
type Event struct {
	Type      string `json:"type"`
	Tool      string `json:"tool,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatStream runs the same turn as Chat but surfaces intermediate events
// through emit. Events arrive in production order; the concatenated content
// fragments equal the non-streaming message for the same input. When emit
// fails the loop is cancelled rather than left computing unread output. The
// end sentinel is always the last event attempted, even after an error.
func (s *Service) ChatStream(ctx context.Context, req Request, emit func(Event) error) error {
	userText := strings.TrimSpace(req.Message)
	if userText == "" {
		return ErrEmptyMessage
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = session.NewID()
	}

	sess, release := s.store.Acquire(sessionID)
	defer release()
	s.seed(sess, req.ConversationHistory)

	// The sentinel goes out no matter how the turn ends. An emit failure
	// here means the client is gone; nothing is left to do about it.
	defer func() {
		_ = emit(Event{Type: EventEnd, SessionID: sessionID})
	}()

	startedAt := time.Now()
	var emitErr error
	result, err := s.loop.RunWithHooks(ctx, sess, userText, agent.Hooks{
		ToolStart: func(name string) error {
			if emitErr == nil {
				emitErr = emit(Event{Type: EventToolStart, Tool: name})
			}
			return emitErr
		},
	})
	if err != nil {
		if emitErr != nil {
			// The client stopped reading; cancel quietly.
			return emitErr
		}
		envelope, degradeErr := s.degrade(sess, userText, err)
		if degradeErr != nil {
			_ = emit(Event{Type: EventError, Error: degradeErr.Error()})
			return degradeErr
		}
		// Degraded turns still stream the apology so streaming and
		// non-streaming callers read the same message.
		return s.emitContent(emit, envelope.Message)
	}

	s.store.AppendTurn(sess, userText, result.Text)
	s.log.Debug("chat stream served",
		"session_id", sessionID,
		"tool_calls", len(result.Outcomes),
		"exhausted", result.Exhausted,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	return s.emitContent(emit, result.Text)
}

func (s *Service) emitContent(emit func(Event) error, text string) error {
	for _, fragment := range chunkText(text, streamChunkSize) {
		if err := emit(Event{Type: EventContent, Content: fragment}); err != nil {
			return err
		}
	}
	return nil
}

// chunkText splits text into order-preserving fragments of at most size
// runes. Splitting on runes keeps multi-byte characters intact.
func chunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	fragments := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		fragments = append(fragments, string(runes[start:end]))
	}
	return fragments
}
