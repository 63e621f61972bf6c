package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"qualichat/pkg/provider"
	"qualichat/pkg/session"
	"qualichat/pkg/tool"
)

func collectEvents(t *testing.T, service *Service, req Request) []Event {
	t.Helper()
	var events []Event
	err := service.ChatStream(context.Background(), req, func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	return events
}

func concatContent(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == EventContent {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

func TestStreamMatchesNonStreamingMessage(t *testing.T) {
	longReply := strings.Repeat("Voici des vases élégants pour votre salon. ", 8)
	decisions := []provider.Decision{{Kind: provider.DecisionFinal, Text: longReply}}

	service, _ := newTestService(t, &scriptedModel{decisions: append([]provider.Decision{}, decisions...)})
	envelope, err := service.Chat(context.Background(), Request{Message: "des vases"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	streamService, _ := newTestService(t, &scriptedModel{decisions: append([]provider.Decision{}, decisions...)})
	events := collectEvents(t, streamService, Request{Message: "des vases"})

	if got := concatContent(events); got != envelope.Message {
		t.Errorf("fragment concatenation does not equal the envelope message:\n%q\n%q", got, envelope.Message)
	}
	if len(events) < 2 {
		t.Fatalf("expected multiple fragments for a long reply, got %d events", len(events))
	}
	if last := events[len(events)-1]; last.Type != EventEnd {
		t.Errorf("last event = %q, want end sentinel", last.Type)
	}
}

func TestStreamToolStartPrecedesContent(t *testing.T) {
	searchTool := tool.Tool{
		Name: "product_search",
		Run: func(context.Context, *session.Session, json.RawMessage) tool.Outcome {
			return tool.Outcome{Tool: "product_search", Summary: "found nothing"}
		},
	}
	service, _ := newTestService(t, &scriptedModel{decisions: []provider.Decision{
		{Kind: provider.DecisionToolCall, ToolName: "product_search", Arguments: json.RawMessage(`{"query":"vases"}`)},
		{Kind: provider.DecisionFinal, Text: "No vases today."},
	}}, searchTool)

	events := collectEvents(t, service, Request{Message: "vases"})

	toolIndex, contentIndex := -1, -1
	for i, ev := range events {
		switch ev.Type {
		case EventToolStart:
			if toolIndex == -1 {
				toolIndex = i
			}
			if ev.Tool != "product_search" {
				t.Errorf("tool_start tool = %q", ev.Tool)
			}
		case EventContent:
			if contentIndex == -1 {
				contentIndex = i
			}
		}
	}
	if toolIndex == -1 || contentIndex == -1 {
		t.Fatalf("missing events: %+v", events)
	}
	if toolIndex > contentIndex {
		t.Error("tool_start must precede content fragments")
	}
}

func TestStreamAlwaysEndsOnDegradedTurn(t *testing.T) {
	service, _ := newTestService(t, downModel{})

	events := collectEvents(t, service, Request{Message: "hello"})

	if last := events[len(events)-1]; last.Type != EventEnd {
		t.Fatalf("last event = %q, want end sentinel", last.Type)
	}
	if concatContent(events) == "" {
		t.Error("degraded stream should carry the apology as content")
	}
}

func TestStreamEmitFailureCancelsLoop(t *testing.T) {
	invoked := 0
	slowTool := tool.Tool{
		Name: "product_search",
		Run: func(context.Context, *session.Session, json.RawMessage) tool.Outcome {
			invoked++
			return tool.Outcome{Tool: "product_search", Summary: "ok"}
		},
	}
	service, _ := newTestService(t, &scriptedModel{decisions: []provider.Decision{
		{Kind: provider.DecisionToolCall, ToolName: "product_search", Arguments: json.RawMessage(`{}`)},
		{Kind: provider.DecisionToolCall, ToolName: "product_search", Arguments: json.RawMessage(`{}`)},
		{Kind: provider.DecisionFinal, Text: "done"},
	}}, slowTool)

	disconnect := errors.New("client disconnected")
	err := service.ChatStream(context.Background(), Request{Message: "vases"}, func(ev Event) error {
		if ev.Type == EventToolStart {
			return disconnect
		}
		return nil
	})
	if !errors.Is(err, disconnect) {
		t.Fatalf("err = %v, want the emit failure", err)
	}
	if invoked != 0 {
		t.Errorf("tool invoked %d times after the client left, want 0", invoked)
	}
}

func TestStreamEmptyMessageRejected(t *testing.T) {
	service, _ := newTestService(t, &scriptedModel{})

	err := service.ChatStream(context.Background(), Request{Message: ""}, func(Event) error { return nil })
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
}
