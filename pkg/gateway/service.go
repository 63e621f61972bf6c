// Package gateway serves the HTTP API and supervises channel adapters. It is
// the process composition root: it wires providers, tools, sessions, and the
// reasoning loop into one running service.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"qualichat/pkg/agent"
	"qualichat/pkg/auth"
	"qualichat/pkg/channel"
	"qualichat/pkg/chat"
	"qualichat/pkg/config"
	"qualichat/pkg/provider"
	"qualichat/pkg/session"
	"qualichat/pkg/shop"
	"qualichat/pkg/tool"
	"qualichat/pkg/trace"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 8000

	serviceName    = "QualiChat"
	serviceVersion = "1.0.0"
)

// Service owns the HTTP server, the chat service, and any channel adapters.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	selector *provider.Selector
	chats    *chat.Service
	carts    *shop.CartService
	verifier *auth.Verifier
	bus      *trace.Bus
	channels []channel.Adapter

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type rootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

type healthResponse struct {
	Status         string                  `json:"status"`
	Service        string                  `json:"service"`
	AgentLoaded    bool                    `json:"agent_loaded"`
	ActiveProvider string                  `json:"active_provider,omitempty"`
	UptimeSeconds  int64                   `json:"uptime_seconds"`
	Channels       map[string]channelState `json:"channels,omitempty"`
}

type errorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
}

// NewService builds the full dependency graph from configuration and probes
// the primary provider once at startup.
func NewService(ctx context.Context, cfg *config.Config, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = slog.Default()
	}

	clients, err := provider.NewClients(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize providers: %w", err)
	}
	selector, err := provider.NewSelector(clients, log)
	if err != nil {
		return nil, err
	}
	if err := selector.Probe(ctx); err != nil {
		// A fully dark provider set still serves apology envelopes; log and
		// keep going rather than refuse to start.
		log.Warn("no provider passed the startup probe", "error", err)
	}

	search := shop.NewSearchClient(cfg.Shop, log)
	carts := shop.NewCartService(ctx, cfg.Shop, log)
	users := shop.NewUserService(carts, log)
	payments := shop.NewPaymentProcessor(carts, users, log)

	registry := tool.NewRegistry(time.Duration(cfg.Agent.ToolTimeoutSeconds)*time.Second, log)
	tool.RegisterShopTools(registry, search, carts, users, payments)

	bus := trace.NewBus()
	loop := agent.New(selector, registry, bus, cfg.Agent, log)
	store := session.NewStore(log)
	chats := chat.NewService(store, loop, log)

	var verifier *auth.Verifier
	if cfg.Auth.Enabled {
		if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
			return nil, errors.New("auth.jwt_secret is required when auth is enabled")
		}
		verifier = auth.NewVerifier(cfg.Auth.JWTSecret)
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		selector:      selector,
		chats:         chats,
		carts:         carts,
		verifier:      verifier,
		bus:           bus,
		channels:      adapters,
		channelStates: channelStates,
	}, nil
}

// Run serves HTTP and channel adapters until ctx ends or a component fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	go trace.LogRecords(ctx, s.bus, s.log)

	serverErrors := make(chan error, 1)
	go s.runHTTPServer(ctx, serverErrors)

	errCh := make(chan error, len(s.channels)+1)
	for _, adapter := range s.channels {
		adapter := adapter
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.handleChannelMessage)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		s.shutdown()
		return nil
	case err := <-serverErrors:
		s.shutdown()
		return err
	case err := <-errCh:
		s.shutdown()
		return err
	}
}

func (s *Service) shutdown() {
	s.bus.Close()
	if s.carts != nil {
		if err := s.carts.Close(); err != nil {
			s.log.Debug("cart service close failed", "error", err)
		}
	}
}

func (s *Service) handleChannelMessage(ctx context.Context, req chat.Request) (chat.Envelope, error) {
	return s.chats.Chat(ctx, req)
}

func (s *Service) runHTTPServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Server.Host)
	if host == "" {
		host = defaultHost
	}
	port := s.cfg.Server.Port
	if port <= 0 {
		port = defaultPort
	}

	addr := host + ":" + strconv.Itoa(port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("HTTP server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start http server: %w", err)
	}
}

// Handler builds the HTTP route table. Exposed for tests.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /chat", s.protect(http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /chat/stream", s.protect(http.HandlerFunc(s.handleChatStream)))
	return mux
}

// protect wraps chat endpoints in bearer auth when it is enabled.
func (s *Service) protect(next http.Handler) http.Handler {
	if s.verifier == nil {
		return next
	}
	return s.verifier.Middleware(next)
}

func (s *Service) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.log, w, http.StatusOK, rootResponse{
		Message: "Welcome to QualiChat - Qualiwo Shopping Assistant",
		Version: serviceVersion,
		Status:  "operational",
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}
	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}
	s.mu.RUnlock()

	status := "healthy"
	if !s.selector.Healthy() {
		status = "degraded"
	}

	writeJSON(s.log, w, http.StatusOK, healthResponse{
		Status:         status,
		Service:        serviceName,
		AgentLoaded:    s.selector.Healthy(),
		ActiveProvider: s.selector.ActiveProvider(),
		UptimeSeconds:  uptime,
		Channels:       channels,
	})
}

func (s *Service) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	envelope, err := s.chats.Chat(r.Context(), req)
	if err != nil {
		s.writeChatError(w, err)
		return
	}

	writeJSON(s.log, w, http.StatusOK, envelope)
}

func (s *Service) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")

	encoder := json.NewEncoder(w)
	err := s.chats.ChatStream(r.Context(), req, func(ev chat.Event) error {
		if err := encoder.Encode(ev); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug("chat stream ended with error", "error", err)
	}
}

func (s *Service) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chat.Request, bool) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(s.log, w, http.StatusBadRequest, errorResponse{Error: "invalid request body", StatusCode: http.StatusBadRequest})
		return chat.Request{}, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(s.log, w, http.StatusBadRequest, errorResponse{Error: "message cannot be empty", StatusCode: http.StatusBadRequest})
		return chat.Request{}, false
	}

	// Authenticated callers get sessions scoped to their identity.
	if identity, ok := auth.IdentityFrom(r.Context()); ok {
		if req.SessionID == "" {
			req.SessionID = identity.SessionScope()
		} else if !strings.HasPrefix(req.SessionID, identity.SessionScope()) {
			req.SessionID = identity.SessionScope() + ":" + req.SessionID
		}
	}

	return req, true
}

func (s *Service) writeChatError(w http.ResponseWriter, err error) {
	if errors.Is(err, chat.ErrEmptyMessage) {
		writeJSON(s.log, w, http.StatusBadRequest, errorResponse{Error: "message cannot be empty", StatusCode: http.StatusBadRequest})
		return
	}
	writeJSON(s.log, w, http.StatusInternalServerError, errorResponse{Error: "internal server error", StatusCode: http.StatusInternalServerError})
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("Failed to write response", "error", err)
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
