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
	"time"

	"github.com/mymmrac/telego"

	"gembot/pkg/channel"
	"gembot/pkg/channel/telegram"
	"gembot/pkg/config"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 8080

	adapterName = "webhook"
)

// Service is the push intake: an HTTP server that accepts one update
// envelope per call and acknowledges immediately, with relay work detached
// from the request lifetime.
type Service struct {
	cfg   config.GatewayConfig
	allow func(*telego.Message) bool
	log   *slog.Logger
}

// NewService constructs the webhook intake service. The allow predicate
// enforces the same sender allow list as the polling intake; nil accepts
// every sender.
func NewService(cfg config.GatewayConfig, allow func(*telego.Message) bool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		cfg:   cfg,
		allow: allow,
		log:   log.With("component", "gateway"),
	}
}

// Name returns the intake identifier used in logs.
func (s *Service) Name() string {
	return adapterName
}

// Run serves the webhook endpoint until the context ends.
func (s *Service) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = defaultHost
	}
	port := s.cfg.Port
	if port <= 0 {
		port = defaultPort
	}

	server := &http.Server{
		Addr:              host + ":" + strconv.Itoa(port),
		Handler:           s.routes(ctx, handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Webhook server started", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start webhook server: %w", err)
	}

	return nil
}

// routes builds the HTTP mux. Relay work spawned from a request is bound to
// the server's run context, not the request context, so the acknowledgement
// never waits on backend latency.
func (s *Service) routes(runCtx context.Context, handler channel.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(s.log, w, http.StatusOK, map[string]any{
			"status":  "ok",
			"message": "Gemini AI Bot is running!",
		})
	})

	mux.HandleFunc("POST /webhook", func(w http.ResponseWriter, r *http.Request) {
		var update telego.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			// Malformed envelopes are acknowledged and dropped; the
			// platform would otherwise redeliver them forever.
			s.log.Warn("Discarding malformed update envelope", "error", err)
			writeJSON(s.log, w, http.StatusOK, map[string]any{"ok": true})
			return
		}

		if event, ok := telegram.MapMessage(update.Message); ok {
			if s.allow != nil && !s.allow(update.Message) {
				s.log.Debug("Ignoring message from unauthorized sender", "chat_id", event.ChatID)
				writeJSON(s.log, w, http.StatusOK, map[string]any{"ok": true})
				return
			}

			s.log.Info("Received update", "update_id", update.UpdateID, "chat_id", event.ChatID)
			go handler(runCtx, event)
		}

		writeJSON(s.log, w, http.StatusOK, map[string]any{"ok": true})
	})

	return mux
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("Failed to write response", "error", err)
	}
}
