package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gobwas/ws"

	"github.com/dgnsrekt/candleview/internal/chart"
	"github.com/dgnsrekt/candleview/internal/timeframe"
	"github.com/dgnsrekt/candleview/internal/types"
)

// Resolver looks up the live configuration for a property id or symbol.
type Resolver func(ctx context.Context, property string) (Config, error)

// Hub upgrades HTTP requests to live sessions and tracks them for shutdown.
type Hub struct {
	resolve Resolver
	opts    []Option

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewHub serves sessions configured by resolve.
func NewHub(resolve Resolver, opts ...Option) *Hub {
	return &Hub{resolve: resolve, opts: opts, sessions: make(map[string]*Session)}
}

// ServeHTTP handles GET /live?property=<id>&timeframe=1W&format=svg.
// Lookup errors are answered with plain HTTP statuses before the upgrade.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := chart.ParseFormat(q.Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := h.resolve(r.Context(), q.Get("property"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if raw := q.Get("timeframe"); raw != "" {
		tf, err := timeframe.Parse(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cfg.Timeframe = tf
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Warn("live upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := New(conn, cfg, format, h.opts...)
	if !h.add(s) {
		s.Close()
		return
	}
	defer h.remove(s)

	slog.Info("live session opened", "session", s.ID(), "property_id", cfg.Property.ID, "remote", r.RemoteAddr)
	// The request context is not cancelled when a hijacked connection drops;
	// Run returns on read failure instead.
	if err := s.Run(context.WithoutCancel(r.Context())); err != nil {
		slog.Warn("live session ended with error", "session", s.ID(), "error", err)
		return
	}
	slog.Info("live session closed", "session", s.ID())
}

func statusFor(err error) int {
	switch types.Code(err) {
	case types.CodeValidation:
		return http.StatusBadRequest
	case types.CodePropertyNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Hub) add(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s.ID()] = s
	return true
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID())
	h.mu.Unlock()
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close ends every session and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	open := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
	if len(open) > 0 {
		slog.Info("live sessions closed", "count", len(open))
	}
}
