package session

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"qualichat/pkg/shop"
)

// Message is one transcript entry. Immutable once appended.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Scratch is per-session working state outside the transcript: the field the
// assistant is waiting on, the last search, and its results so follow-up turns
// ("add the second one") can resolve product ids without a new search.
type Scratch struct {
	PendingField string         `json:"pending_field,omitempty"`
	LastQuery    string         `json:"last_query,omitempty"`
	LastResults  []shop.Product `json:"last_results,omitempty"`
}

// Session is one conversation: transcript plus scratch state. Callers must
// hold the store's per-session lock while reading or mutating it.
type Session struct {
	ID       string
	Messages []Message
	Scratch  Scratch
}

// Store is the process-resident session map. Sessions live for the process
// lifetime; durability is explicitly out of scope.
type Store struct {
	cache *gocache.Cache
	log   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore builds an empty session store.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		cache: gocache.New(gocache.NoExpiration, 0),
		log:   log.With("component", "session.store"),
		locks: make(map[string]*sync.Mutex),
	}
}

// NewID returns a fresh opaque session identifier.
func NewID() string {
	return uuid.NewString()
}

// Acquire locks the session identified by id, creating it if absent, and
// returns the session together with a release function. Turns against the
// same session serialize on this lock; different sessions run in parallel.
// A corrupt stored entry is replaced with a fresh transcript, never surfaced.
func (s *Store) Acquire(id string) (*Session, func()) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = NewID()
	}

	lock := s.sessionLock(id)
	lock.Lock()

	stored, found := s.cache.Get(id)
	if found {
		if sess, ok := stored.(*Session); ok {
			return sess, lock.Unlock
		}
		s.log.Warn("Corrupt session entry replaced with fresh transcript", "session_id", id)
	}

	sess := &Session{ID: id, Messages: []Message{}}
	s.cache.Set(id, sess, gocache.NoExpiration)
	return sess, lock.Unlock
}

// Seed stores explicit history for a session that has no record yet. A
// session that already exists keeps its resident transcript.
func (s *Store) Seed(sess *Session, history []Message) {
	if len(sess.Messages) > 0 || len(history) == 0 {
		return
	}
	sess.Messages = append(sess.Messages, history...)
}

// AppendTurn appends the user and assistant messages of one completed turn.
func (s *Store) AppendTurn(sess *Session, userText, assistantText string) {
	sess.Messages = append(sess.Messages,
		Message{Role: RoleUser, Content: userText},
		Message{Role: RoleAssistant, Content: assistantText},
	)
}

// Transcript returns a copy of the session transcript.
func (s *Store) Transcript(id string) []Message {
	sess, release := s.Acquire(id)
	defer release()

	messages := make([]Message, len(sess.Messages))
	copy(messages, sess.Messages)
	return messages
}

func (s *Store) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}
