package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrModelUnavailable reports that every configured provider has been demoted.
var ErrModelUnavailable = errors.New("all language model providers are unavailable")

// Selector routes model calls to the highest-priority healthy provider.
// Demotion is process-wide and monotonic: once a provider fails it is never
// retried for the remaining process lifetime.
type Selector struct {
	log *slog.Logger

	mu      sync.Mutex
	clients []Client
	demoted []bool
}

// NewSelector builds a selector over a priority-ordered provider list.
func NewSelector(clients []Client, log *slog.Logger) (*Selector, error) {
	if len(clients) == 0 {
		return nil, errors.New("at least one provider client is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Selector{
		log:     log.With("component", "provider.selector"),
		clients: clients,
		demoted: make([]bool, len(clients)),
	}, nil
}

// Probe health-checks providers in priority order at process start, demoting
// every failing one until a healthy provider is found.
func (s *Selector) Probe(ctx context.Context) error {
	for {
		index, client, ok := s.active()
		if !ok {
			return ErrModelUnavailable
		}

		startedAt := time.Now()
		err := client.Health(ctx)
		if err == nil {
			s.log.Info("Provider healthy", "provider", client.Name(), "duration_ms", time.Since(startedAt).Milliseconds())
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.demote(index, err)
	}
}

// Decide routes one decision call. A provider failure demotes it and retries
// the same call on the next provider; exhaustion returns ErrModelUnavailable.
// One provider produces the entire decision.
func (s *Selector) Decide(ctx context.Context, req Request) (Decision, string, error) {
	for {
		index, client, ok := s.active()
		if !ok {
			return Decision{}, "", ErrModelUnavailable
		}

		decision, err := client.Decide(ctx, req)
		if err == nil {
			return decision, client.Name(), nil
		}
		if ctx.Err() != nil {
			// The caller went away; that is not the provider's fault.
			return Decision{}, "", ctx.Err()
		}

		s.demote(index, err)
	}
}

// Healthy reports whether at least one provider is still active.
func (s *Selector) Healthy() bool {
	_, _, ok := s.active()
	return ok
}

// ActiveProvider names the provider currently first in line, empty when all
// are demoted.
func (s *Selector) ActiveProvider() string {
	_, client, ok := s.active()
	if !ok {
		return ""
	}
	return client.Name()
}

func (s *Selector) active() (int, Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, client := range s.clients {
		if !s.demoted[i] {
			return i, client, true
		}
	}
	return 0, nil, false
}

// demote is the single mutation point for demotion state. The transition is
// one-way and logged exactly once per provider.
func (s *Selector) demote(index int, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.demoted[index] {
		return
	}
	s.demoted[index] = true
	s.log.Warn("Provider demoted for process lifetime",
		"provider", s.clients[index].Name(),
		"error", cause,
	)
}
