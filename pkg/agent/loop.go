// Package agent runs the bounded reasoning loop that turns one user message
// into a final reply plus the tool outcomes produced along the way.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"qualichat/pkg/config"
	"qualichat/pkg/provider"
	"qualichat/pkg/session"
	"qualichat/pkg/tool"
	"qualichat/pkg/trace"
)

// Result is the terminal state of one turn.
type Result struct {
	Text      string
	Outcomes  []tool.Outcome
	Exhausted bool
}

// Hooks lets a caller observe the loop while it runs. A non-nil hook that
// returns an error cancels the turn; this is how a gone streaming client
// stops the loop instead of letting it compute unread output.
type Hooks struct {
	ToolStart func(name string) error
}

// Loop drives think/act/observe iterations against the provider selector and
// tool registry. One Loop serves all turns; per-turn state lives on the stack.
type Loop struct {
	selector *provider.Selector
	registry *tool.Registry
	bus      *trace.Bus
	cfg      config.AgentConfig
	log      *slog.Logger
}

func New(selector *provider.Selector, registry *tool.Registry, bus *trace.Bus, cfg config.AgentConfig, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		selector: selector,
		registry: registry,
		bus:      bus,
		cfg:      cfg,
		log:      log,
	}
}

// Run executes one turn. The caller must hold the session lock; the loop
// reads the transcript and lets tools mutate scratch state, but the final
// user/assistant pair is appended by the caller.
func (l *Loop) Run(ctx context.Context, sess *session.Session, userText string) (Result, error) {
	return l.RunWithHooks(ctx, sess, userText, Hooks{})
}

func (l *Loop) RunWithHooks(ctx context.Context, sess *session.Session, userText string, hooks Hooks) (Result, error) {
	lang := DetectLanguage(userText)
	system := systemPrompt + "\n\n" + languageInstruction(lang)

	// In-turn context: persisted transcript, the new message, then synthetic
	// tool-call and observation records. Observations never reach the store.
	messages := make([]provider.Message, 0, len(sess.Messages)+1+2*l.cfg.MaxIterations)
	for _, m := range sess.Messages {
		messages = append(messages, provider.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: userText})

	var outcomes []tool.Outcome
	startedAt := time.Now()

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		decision, providerName, err := l.selector.Decide(ctx, provider.Request{
			System:      system,
			Messages:    messages,
			Tools:       l.registry.Specs(),
			Temperature: l.cfg.Temperature,
			MaxTokens:   l.cfg.MaxTokens,
		})
		if err != nil {
			return Result{Outcomes: outcomes}, err
		}

		l.publish(trace.Record{
			Phase:     trace.PhaseThink,
			SessionID: sess.ID,
			Iteration: iteration,
			Provider:  providerName,
			Detail:    string(decision.Kind),
		})

		if decision.Kind == provider.DecisionFinal {
			l.publish(trace.Record{
				Phase:     trace.PhaseFinish,
				SessionID: sess.ID,
				Iteration: iteration,
				Provider:  providerName,
			})
			l.log.Debug("turn completed",
				"session_id", sess.ID,
				"iterations", iteration,
				"tool_calls", len(outcomes),
				"duration_ms", time.Since(startedAt).Milliseconds(),
			)
			return Result{Text: decision.Text, Outcomes: outcomes}, nil
		}

		if hooks.ToolStart != nil {
			if err := hooks.ToolStart(decision.ToolName); err != nil {
				return Result{Outcomes: outcomes}, err
			}
		}

		l.publish(trace.Record{
			Phase:     trace.PhaseAct,
			SessionID: sess.ID,
			Iteration: iteration,
			Tool:      decision.ToolName,
		})

		outcome := l.registry.Invoke(ctx, decision.ToolName, sess, decision.Arguments)
		outcomes = append(outcomes, outcome)

		observeRecord := trace.Record{
			Phase:     trace.PhaseObserve,
			SessionID: sess.ID,
			Iteration: iteration,
			Tool:      decision.ToolName,
		}
		if outcome.Failure != nil {
			observeRecord.Error = outcome.Failure.Error()
		}
		l.publish(observeRecord)

		// Clarification questions are terminal: the assistant's reply IS the
		// question, another think step would only paraphrase it.
		if outcome.Clarification != "" {
			l.publish(trace.Record{
				Phase:     trace.PhaseFinish,
				SessionID: sess.ID,
				Iteration: iteration,
			})
			return Result{Text: outcome.Clarification, Outcomes: outcomes}, nil
		}

		messages = append(messages,
			provider.Message{
				Role:    provider.RoleAssistant,
				Content: fmt.Sprintf("Calling tool %s with arguments %s", decision.ToolName, string(decision.Arguments)),
			},
			provider.Message{
				Role:    provider.RoleUser,
				Content: "Observation: " + outcome.Summary,
			},
		)
	}

	l.log.Warn("reasoning loop exhausted",
		"session_id", sess.ID,
		"max_iterations", l.cfg.MaxIterations,
		"tool_calls", len(outcomes),
	)
	l.publish(trace.Record{
		Phase:     trace.PhaseFinish,
		SessionID: sess.ID,
		Iteration: l.cfg.MaxIterations,
		Detail:    "exhausted",
	})

	return Result{Text: fallbackMessage(lang), Outcomes: outcomes, Exhausted: true}, nil
}

func (l *Loop) publish(record trace.Record) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(record)
}
