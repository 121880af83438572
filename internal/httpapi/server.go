// Package httpapi serves the webhook endpoint, health checks, and
// operational stats.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jortega-dev/warelay/internal/domain"
	"github.com/jortega-dev/warelay/internal/logging"
	"github.com/jortega-dev/warelay/internal/observability"
	"github.com/jortega-dev/warelay/internal/session"
	"github.com/jortega-dev/warelay/internal/version"
	"github.com/jortega-dev/warelay/internal/whatsapp"
)

// replyTextOnly is the canned reply for non-text message types.
const replyTextOnly = "Lo siento, actualmente solo puedo procesar mensajes de texto."

// MessageHandler processes a parsed inbound message. Implemented by the
// router; invoked on its own goroutine so the webhook can acknowledge
// immediately.
type MessageHandler interface {
	Handle(ctx context.Context, msg domain.InboundMessage)
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port         int
	Bind         string
	VerifyToken  string
	HistoryLimit int
}

// Server is the relay's HTTP front. Webhook processing failures never
// surface as non-200 responses: only signature mismatches (401) and rate
// limiting (429) reject a request, both before any parsing.
type Server struct {
	cfg        ServerConfig
	verifier   *whatsapp.Verifier
	handler    MessageHandler
	notifier   session.Notifier
	store      *session.Store
	log        *logging.Logger
	limiter    *rateLimiter
	httpServer *http.Server
}

// New creates the HTTP server.
func New(
	cfg ServerConfig,
	verifier *whatsapp.Verifier,
	handler MessageHandler,
	notifier session.Notifier,
	store *session.Store,
	log *logging.Logger,
) *Server {
	return &Server{
		cfg:      cfg,
		verifier: verifier,
		handler:  handler,
		notifier: notifier,
		store:    store,
		log:      log.Sub("httpapi"),
		limiter:  newRateLimiter(),
	}
}

// Routes builds the router. Exposed for handler tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/webhook", s.handleVerify)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/health", s.handleHealth)
	r.Get("/admin/stats", s.handleStats)
	r.Get("/admin/sessions/{userID}/history", s.handleHistory)
	r.Handle("/metrics", observability.Handler())
	return withMiddleware(r, s.log)
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("webhook server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down webhook server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleVerify answers the platform's subscription handshake.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "" || token == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || token != s.cfg.VerifyToken {
		s.log.Warn().Msg("webhook verification failed")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	s.log.Info().Msg("webhook verified")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// handleWebhook processes inbound notifications. Malformed or irrelevant
// payloads are still acknowledged with 200 to avoid retry storms.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read webhook body")
		s.ok(w)
		return
	}

	if !s.verifier.Verify(body, r.Header.Get("X-Hub-Signature-256")) {
		s.log.Warn().Msg("invalid webhook signature")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limit exceeded")
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	payload, err := whatsapp.ParsePayload(body)
	if err != nil {
		s.log.Error().Err(err).Msg("malformed webhook payload")
		s.ok(w)
		return
	}
	if !payload.IsMessageNotification() {
		s.ok(w)
		return
	}

	userID, name, msg := payload.FirstMessage()

	if !whatsapp.IsValidPhoneNumber(userID) {
		// Acknowledge without revealing validation.
		s.log.Warn().Str("user", userID).Msg("invalid phone number")
		s.ok(w)
		return
	}

	if msg.Type != "text" || msg.Text == nil {
		s.log.Info().Str("user", userID).Str("type", msg.Type).Msg("non-text message")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.notifier.Notify(ctx, userID, replyTextOnly); err != nil {
				s.log.Error().Err(err).Str("user", userID).Msg("failed to send text-only notice")
			}
		}()
		s.ok(w)
		return
	}

	// The body stays raw here so commands and intent keywords match;
	// escaping happens where text leaves for external collaborators.
	inbound := domain.InboundMessage{
		UserID:    userID,
		Name:      name,
		Body:      msg.Text.Body,
		Timestamp: time.Now(),
	}

	// Acknowledge immediately; assistant calls can take tens of seconds
	// and the platform retries unacknowledged deliveries.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Str("panic", fmt.Sprint(r)).Str("user", userID).Msg("recovered in message handler")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		s.handler.Handle(ctx, inbound)
	}()

	s.ok(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	sessions, messages := s.store.Stats()
	respondJSON(w, http.StatusOK, map[string]any{
		"active_sessions": sessions,
		"total_messages":  messages,
	})
}

// handleHistory returns a user's recent conversation turns, capped at the
// configured history limit.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := s.cfg.HistoryLimit
	if limit <= 0 {
		limit = 10
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user":    userID,
		"history": s.store.RecentHistory(userID, limit),
	})
}

func (s *Server) ok(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
