package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"qualichat/pkg/agent"
	"qualichat/pkg/auth"
	"qualichat/pkg/chat"
	"qualichat/pkg/config"
	"qualichat/pkg/provider"
	"qualichat/pkg/session"
	"qualichat/pkg/tool"
)

type scriptedModel struct {
	text string
	down bool
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Health(context.Context) error {
	if m.down {
		return errors.New("down")
	}
	return nil
}

func (m *scriptedModel) Decide(context.Context, provider.Request) (provider.Decision, error) {
	if m.down {
		return provider.Decision{}, errors.New("down")
	}
	return provider.Decision{Kind: provider.DecisionFinal, Text: m.text}, nil
}

func newTestGateway(t *testing.T, model provider.Client, verifier *auth.Verifier) *Service {
	t.Helper()

	selector, err := provider.NewSelector([]provider.Client{model}, nil)
	require.NoError(t, err)

	cfg := config.Default()
	registry := tool.NewRegistry(time.Second, slog.Default())
	loop := agent.New(selector, registry, nil, cfg.Agent, slog.Default())
	chats := chat.NewService(session.NewStore(slog.Default()), loop, slog.Default())

	return &Service{
		cfg:           cfg,
		log:           slog.Default(),
		selector:      selector,
		chats:         chats,
		verifier:      verifier,
		channelStates: map[string]channelState{},
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, value := range values {
			request.Header.Add(key, value)
		}
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestRootEndpoint(t *testing.T) {
	service := newTestGateway(t, &scriptedModel{text: "hi"}, nil)

	recorder := httptest.NewRecorder()
	service.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, recorder.Code)

	var payload rootResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Equal(t, "operational", payload.Status)
}

func TestHealthEndpointReportsProviderStatus(t *testing.T) {
	service := newTestGateway(t, &scriptedModel{text: "hi"}, nil)

	recorder := httptest.NewRecorder()
	service.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, recorder.Code)

	var payload healthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Equal(t, "healthy", payload.Status)
	require.True(t, payload.AgentLoaded)
	require.Equal(t, "scripted", payload.ActiveProvider)
}

func TestHealthEndpointDegradedWhenProvidersDark(t *testing.T) {
	service := newTestGateway(t, &scriptedModel{down: true}, nil)
	require.Error(t, service.selector.Probe(context.Background()))

	recorder := httptest.NewRecorder()
	service.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, recorder.Code)

	var payload healthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	require.Equal(t, "degraded", payload.Status)
	require.False(t, payload.AgentLoaded)
}

func TestChatEndpoint(t *testing.T) {
	service := newTestGateway(t, &scriptedModel{text: "Hello!"}, nil)

	recorder := postJSON(t, service.Handler(), "/chat", chat.Request{Message: "hi"}, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope chat.Envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.Equal(t, "Hello!", envelope.Message)
	require.NotEmpty(t, envelope.SessionID)
	require.Equal(t, chat.ActionNone, envelope.UIAction.Type)
}

func TestChatEndpointRejectsEmptyMessage(t *testing.T) {
	service := newTestGateway(t, &scriptedModel{text: "hi"}, nil)

	recorder := postJSON(t, service.Handler(), "/chat", chat.Request{Message: "   "}, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = postJSON(t, service.Handler(), "/chat", map[string]any{}, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestChatEndpointProviderOutageIsStill200(t *testing.T) {
	service := newTestGateway(t, &scriptedModel{down: true}, nil)

	recorder := postJSON(t, service.Handler(), "/chat", chat.Request{Message: "hi"}, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope chat.Envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Message)
	require.Equal(t, chat.ActionNone, envelope.UIAction.Type)
}

func TestChatStreamEndpoint(t *testing.T) {
	service := newTestGateway(t, &scriptedModel{text: "Streaming reply for you."}, nil)

	recorder := postJSON(t, service.Handler(), "/chat/stream", chat.Request{Message: "hi"}, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "application/x-ndjson", recorder.Header().Get("Content-Type"))

	var events []chat.Event
	scanner := bufio.NewScanner(recorder.Body)
	for scanner.Scan() {
		var ev chat.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, events)
	require.Equal(t, chat.EventEnd, events[len(events)-1].Type)

	var content strings.Builder
	for _, ev := range events {
		if ev.Type == chat.EventContent {
			content.WriteString(ev.Content)
		}
	}
	require.Equal(t, "Streaming reply for you.", content.String())
}

func TestChatEndpointAuthScopesSessions(t *testing.T) {
	const secret = "gateway-secret"
	service := newTestGateway(t, &scriptedModel{text: "hi"}, auth.NewVerifier(secret))

	recorder := postJSON(t, service.Handler(), "/chat", chat.Request{Message: "hi"}, nil)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u-9"})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+signed)
	recorder = postJSON(t, service.Handler(), "/chat", chat.Request{Message: "hi"}, header)
	require.Equal(t, http.StatusOK, recorder.Code)

	var envelope chat.Envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.Equal(t, "user:u-9", envelope.SessionID)
}
