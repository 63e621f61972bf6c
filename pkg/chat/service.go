package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"qualichat/pkg/agent"
	"qualichat/pkg/provider"
	"qualichat/pkg/session"
)

// ErrEmptyMessage is returned for requests with no message text; transports
// map it to a client error.
var ErrEmptyMessage = errors.New("message cannot be empty")

// Service runs chat turns: it owns session acquisition around the reasoning
// loop and shapes every result into a well-formed envelope. Provider outages
// degrade to an apology envelope, never to a broken response.
type Service struct {
	store *session.Store
	loop  *agent.Loop
	log   *slog.Logger
}

func NewService(store *session.Store, loop *agent.Loop, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, loop: loop, log: log}
}

// Chat executes one non-streaming turn.
func (s *Service) Chat(ctx context.Context, req Request) (Envelope, error) {
	userText := strings.TrimSpace(req.Message)
	if userText == "" {
		return Envelope{}, ErrEmptyMessage
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = session.NewID()
	}

	sess, release := s.store.Acquire(sessionID)
	defer release()
	s.seed(sess, req.ConversationHistory)

	startedAt := time.Now()
	result, err := s.loop.Run(ctx, sess, userText)
	if err != nil {
		return s.degrade(sess, userText, err)
	}

	s.store.AppendTurn(sess, userText, result.Text)
	s.log.Debug("chat turn served",
		"session_id", sessionID,
		"tool_calls", len(result.Outcomes),
		"exhausted", result.Exhausted,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	return Normalize(result, sessionID), nil
}

// seed applies caller-supplied history to sessions with no record of their
// own. Session-resident history always wins.
func (s *Service) seed(sess *session.Session, history []HistoryMessage) {
	if len(history) == 0 {
		return
	}
	messages := make([]session.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, session.Message{Role: m.Role, Content: m.Content})
	}
	s.store.Seed(sess, messages)
}

// degrade absorbs a fatal turn error into an apologetic envelope. Context
// cancellation is the one error passed through: the caller is gone and no
// reply shape matters anymore.
func (s *Service) degrade(sess *session.Session, userText string, err error) (Envelope, error) {
	if ctxErr := contextError(err); ctxErr != nil {
		return Envelope{}, ctxErr
	}

	if errors.Is(err, provider.ErrModelUnavailable) {
		s.log.Error("all model providers unavailable", "session_id", sess.ID)
	} else {
		s.log.Error("chat turn failed", "session_id", sess.ID, "error", err)
	}

	return Envelope{
		Message:   apologyMessage(agent.DetectLanguage(userText)),
		SessionID: sess.ID,
		UIAction:  UIAction{Type: ActionNone},
	}, nil
}

func contextError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func apologyMessage(lang agent.Language) string {
	if lang == agent.LanguageFrench {
		return "Désolé, je rencontre un problème technique en ce moment. Merci de réessayer dans quelques instants."
	}
	return "Sorry, I am having technical difficulties right now. Please try again in a moment."
}
