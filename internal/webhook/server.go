// Package webhook serves the bot's HTTP surface: Telegram update delivery,
// health, metrics and the optional static player.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	xlog "github.com/user/playrelay/internal/log"
)

// SecretHeader carries the secret Telegram was given at webhook
// registration.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler accepts decoded Telegram updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// Stats reports the counters exposed on the health endpoint.
type Stats interface {
	ActiveSessions() int
	Destinations() int
}

// Config tunes the server.
type Config struct {
	// Secret, when set, must match SecretHeader on every update delivery.
	Secret string
	// StaticDir is served under /player/ when non-empty.
	StaticDir string
	// RateLimit caps update deliveries per client IP per minute; zero
	// disables the limiter.
	RateLimit int
	// Metrics replaces the default Prometheus handler.
	Metrics http.Handler
	Now     func() time.Time
}

// Server routes HTTP requests.
type Server struct {
	updates UpdateHandler
	stats   Stats
	cfg     Config
	router  chi.Router
	log     zerolog.Logger
}

// NewServer creates a Server.
func NewServer(updates UpdateHandler, stats Stats, cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	s := &Server{
		updates: updates,
		stats:   stats,
		cfg:     cfg,
		log:     xlog.WithComponent("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", cfg.Metrics)
	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
		}
		r.Post("/webhook", s.handleUpdate)
	})
	if cfg.StaticDir != "" {
		r.Handle("/player/*", http.StripPrefix("/player/", http.FileServer(http.Dir(cfg.StaticDir))))
	}
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", addr).Msg("http server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	ActiveSessions int    `json:"active_sessions"`
	Destinations   int    `json:"destinations"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: s.cfg.Now().UTC().Format(time.RFC3339),
	}
	if s.stats != nil {
		resp.ActiveSessions = s.stats.ActiveSessions()
		resp.Destinations = s.stats.Destinations()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid secret"})
			return
		}
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := s.updates.HandleUpdate(r.Context(), update); err != nil {
		// A non-2xx makes Telegram redeliver the update later.
		s.log.Error().Err(err).Int("update_id", update.UpdateID).Msg("update rejected")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
