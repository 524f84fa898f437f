// Package session serves live charts over WebSocket. Each connection owns a
// renderer, a timeframe controller and a viewport host; all three are torn
// down when the connection ends.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/dgnsrekt/candleview/internal/chart"
	"github.com/dgnsrekt/candleview/internal/market"
	"github.com/dgnsrekt/candleview/internal/series"
	"github.com/dgnsrekt/candleview/internal/timeframe"
	"github.com/dgnsrekt/candleview/internal/viewport"
)

// Client message types.
const (
	MsgTimeframe = "timeframe"
	MsgResize    = "resize"
	MsgPointer   = "pointer"
	MsgLeave     = "leave"
	MsgZoom      = "zoom"
	MsgResetZoom = "reset_zoom"
)

// Server message types.
const (
	MsgHello = "hello"
	MsgFrame = "frame"
	MsgError = "error"
)

// Config is what a session needs to chart one property.
type Config struct {
	Property  market.Property
	Deriver   timeframe.Deriver
	Theme     chart.Theme
	Viewport  chart.Viewport
	Timeframe timeframe.Timeframe
}

// ClientMessage is one instruction from the browser.
type ClientMessage struct {
	Type      string    `json:"type"`
	Timeframe string    `json:"timeframe,omitempty"`
	Width     float64   `json:"width,omitempty"`
	X         float64   `json:"x,omitempty"`
	Y         float64   `json:"y,omitempty"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
}

// ServerMessage is one update sent to the browser. Image is base64 in JSON.
type ServerMessage struct {
	Type       string              `json:"type"`
	Session    string              `json:"session,omitempty"`
	PropertyID string              `json:"property_id,omitempty"`
	Timeframe  timeframe.Timeframe `json:"timeframe,omitempty"`
	Frame      *chart.Frame        `json:"frame,omitempty"`
	Image      []byte              `json:"image,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithHostOptions passes options to the session's viewport host.
func WithHostOptions(opts ...viewport.Option) Option {
	return func(s *Session) { s.hostOpts = append(s.hostOpts, opts...) }
}

// Session is one live chart bound to one connection.
type Session struct {
	id     string
	cfg    Config
	format chart.Format
	conn   net.Conn

	writeMu sync.Mutex

	renderer *chart.Renderer
	tf       *timeframe.Controller
	host     *viewport.Host
	hostOpts []viewport.Option

	mu      sync.Mutex
	current timeframe.Timeframe

	closeOnce sync.Once
	log       *slog.Logger
}

// New wires a session to conn. Nothing is sent until Run.
func New(conn net.Conn, cfg Config, format chart.Format, opts ...Option) *Session {
	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		format: format,
		conn:   conn,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = slog.With("session", s.id, "property_id", cfg.Property.ID)
	s.renderer = chart.NewRenderer(cfg.Viewport, chart.WithTheme(cfg.Theme))
	s.tf = timeframe.NewController(cfg.Deriver,
		timeframe.PublisherFunc(s.publish),
		timeframe.WithErrorHandler(s.deriveFailed),
		timeframe.WithLogger(s.log),
	)
	hostOpts := append([]viewport.Option{viewport.OnRender(func(chart.Viewport) { s.sendFrame() })}, s.hostOpts...)
	s.host = viewport.NewHost(s.renderer, hostOpts...)
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Run sends a hello, selects the initial timeframe, and processes client
// messages until the connection closes or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	if err := s.write(ServerMessage{Type: MsgHello, Session: s.id, PropertyID: s.cfg.Property.ID, Timeframe: s.cfg.Timeframe}); err != nil {
		return err
	}
	if err := s.selectTimeframe(s.cfg.Timeframe); err != nil {
		return err
	}

	for {
		data, op, err := wsutil.ReadClientData(s.conn)
		if err != nil {
			if isClosed(err) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("session: read: %w", err)
		}
		if op != ws.OpText {
			continue
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError("malformed message: " + err.Error())
			continue
		}
		s.handle(msg)
	}
}

func isClosed(err error) bool {
	var closed wsutil.ClosedError
	return errors.As(err, &closed) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

func (s *Session) handle(msg ClientMessage) {
	switch msg.Type {
	case MsgTimeframe:
		tf, err := timeframe.Parse(msg.Timeframe)
		if err != nil {
			s.sendError(err.Error())
			return
		}
		if err := s.selectTimeframe(tf); err != nil {
			s.sendError(err.Error())
		}
	case MsgResize:
		s.host.Observe(msg.Width)
	case MsgPointer:
		if _, err := s.renderer.PointerMove(msg.X, msg.Y); err != nil {
			return
		}
		s.sendFrame()
	case MsgLeave:
		s.renderer.PointerLeave()
		s.sendFrame()
	case MsgZoom:
		if err := s.renderer.Zoom(msg.From, msg.To); err != nil {
			s.sendError(err.Error())
			return
		}
		s.sendFrame()
	case MsgResetZoom:
		s.renderer.ResetZoom()
		s.sendFrame()
	default:
		s.sendError(fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (s *Session) selectTimeframe(tf timeframe.Timeframe) error {
	req, err := s.tf.Select(tf)
	if err != nil {
		return err
	}
	s.log.Debug("timeframe selected", "timeframe", tf, "request", req.ID)
	return nil
}

// publish runs on the controller's goroutine for the current request only.
func (s *Session) publish(tf timeframe.Timeframe, ser *series.Series) {
	s.mu.Lock()
	s.current = tf
	s.mu.Unlock()
	s.renderer.SetSeries(ser)
	s.sendFrame()
}

func (s *Session) deriveFailed(req timeframe.Request, err error) {
	s.log.Warn("series derivation failed", "timeframe", req.Timeframe, "error", err)
	s.sendError(fmt.Sprintf("load %s: %v", req.Timeframe, err))
}

// Timeframe returns the timeframe of the series on screen.
func (s *Session) Timeframe() timeframe.Timeframe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) sendFrame() {
	frame := s.renderer.Render(s.format)
	if err := s.write(ServerMessage{Type: MsgFrame, PropertyID: s.cfg.Property.ID, Timeframe: s.Timeframe(), Frame: &frame, Image: frame.Image}); err != nil {
		s.log.Debug("frame write failed", "error", err)
	}
}

func (s *Session) sendError(msg string) {
	if err := s.write(ServerMessage{Type: MsgError, Error: msg}); err != nil {
		s.log.Debug("error write failed", "error", err)
	}
}

func (s *Session) write(msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wsutil.WriteServerText(s.conn, data)
}

// Close drops the connection, then stops the viewport host and the timeframe
// controller. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
		s.host.Close()
		s.tf.Close()
		s.log.Debug("session closed", "renders", s.renderer.Renders())
	})
}
