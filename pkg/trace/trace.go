// Package trace broadcasts reasoning loop transitions to in-process
// subscribers. Publishing never blocks: slow subscribers miss records
// instead of stalling the loop.
package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultBufferSize = 100

// Phase identifies a reasoning loop transition.
type Phase string

const (
	PhaseThink   Phase = "think"
	PhaseAct     Phase = "act"
	PhaseObserve Phase = "observe"
	PhaseFinish  Phase = "finish"
)

// Record captures one loop transition.
type Record struct {
	Phase     Phase     `json:"phase"`
	At        time.Time `json:"at"`
	SessionID string    `json:"session_id"`
	Iteration int       `json:"iteration"`
	Provider  string    `json:"provider,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Bus fans trace records out to registered subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Record
	nextID      uint64

	done      chan struct{}
	closeOnce sync.Once
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[uint64]chan Record),
		done:        make(chan struct{}),
	}
}

// Publish delivers the record to every subscriber that has buffer room.
// Returns false when the bus is closed.
func (b *Bus) Publish(record Record) bool {
	if record.At.IsZero() {
		record.At = time.Now().UTC()
	}

	select {
	case <-b.done:
		return false
	default:
	}

	b.mu.RLock()
	subs := make([]chan Record, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- record:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

// Subscribe registers a buffered subscriber. The returned cancel func is
// idempotent; the channel is also closed when ctx ends or the bus closes.
func (b *Bus) Subscribe(ctx context.Context, buffer int) (<-chan Record, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Record, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}

func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.subscribers {
			close(ch)
			delete(b.subscribers, id)
		}
		b.mu.Unlock()
	})
}

// LogRecords drains the bus into the logger until ctx ends. Intended to run
// as a goroutine next to the gateway.
func LogRecords(ctx context.Context, bus *Bus, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}

	records, cancel := bus.Subscribe(ctx, defaultBufferSize)
	defer cancel()

	for record := range records {
		attrs := []any{
			"phase", string(record.Phase),
			"session_id", record.SessionID,
			"iteration", record.Iteration,
		}
		if record.Provider != "" {
			attrs = append(attrs, "provider", record.Provider)
		}
		if record.Tool != "" {
			attrs = append(attrs, "tool", record.Tool)
		}
		if record.Detail != "" {
			attrs = append(attrs, "detail", record.Detail)
		}
		if record.Error != "" {
			attrs = append(attrs, "error", record.Error)
			log.Warn("loop transition", attrs...)
			continue
		}
		log.Debug("loop transition", attrs...)
	}
}
