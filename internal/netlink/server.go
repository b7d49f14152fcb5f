package netlink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcrelay/rcrelay/internal/control"
)

// DefaultPath is the websocket path relays dial.
const DefaultPath = "/drone"

// Source yields commands until it is closed. relay.Dispatcher satisfies it.
type Source interface {
	Next(ctx context.Context) (control.Command, error)
}

// ServerOption configures a Server.
type ServerOption func(s *Server)

func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(slog.String("component", "operator"))
	}
}

func WithServerKeepalive(pingEvery, pongWait time.Duration) ServerOption {
	return func(s *Server) {
		s.pingEvery = pingEvery
		s.pongWait = pongWait
	}
}

// WithOnMessage is called for every text message a relay sends back.
func WithOnMessage(fn func(remote, msg string)) ServerOption {
	return func(s *Server) {
		s.onMessage = fn
	}
}

// Server is the operator endpoint: relays connect to it and receive every
// command drained from a Source.
type Server struct {
	path      string
	upgrader  websocket.Upgrader
	pingEvery time.Duration
	pongWait  time.Duration
	onMessage func(remote, msg string)

	mu      sync.Mutex
	clients map[*Conn]struct{}
	joined  chan struct{}

	logger *slog.Logger
}

func NewServer(path string, options ...ServerOption) *Server {
	if path == "" {
		path = DefaultPath
	}
	s := &Server{
		path:      path,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		pingEvery: DefaultPingInterval,
		pongWait:  DefaultPongTimeout,
		clients:   map[*Conn]struct{}{},
		joined:    make(chan struct{}, 1),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Handler serves the websocket on the configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, s)
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", slog.String("remote", r.RemoteAddr), slog.String("error", err.Error()))
		return
	}
	c := newConn(ws, s.pingEvery, s.pongWait)
	s.add(c)
	s.logger.Info("client connected", slog.String("remote", c.RemoteAddr()))

	defer func() {
		s.remove(c)
		_ = c.Close()
		s.logger.Info("client disconnected", slog.String("remote", c.RemoteAddr()))
	}()

	for {
		select {
		case <-c.Done():
			return
		case err := <-c.Err():
			for drained := false; !drained; {
				select {
				case msg := <-c.Messages():
					s.handle(c, msg)
				default:
					drained = true
				}
			}
			s.logger.Debug("client read ended", slog.String("remote", c.RemoteAddr()), slog.String("error", err.Error()))
			return
		case msg := <-c.Messages():
			s.handle(c, msg)
		}
	}
}

func (s *Server) handle(c *Conn, msg string) {
	s.logger.Info("received from client", slog.String("remote", c.RemoteAddr()), slog.String("message", msg))
	if s.onMessage != nil {
		s.onMessage(c.RemoteAddr(), msg)
	}
}

func (s *Server) add(c *Conn) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	select {
	case s.joined <- struct{}{}:
	default:
	}
}

func (s *Server) remove(c *Conn) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// Clients is the number of connected relays.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Joined is signalled (coalesced) whenever a client connects.
func (s *Server) Joined() <-chan struct{} { return s.joined }

// Broadcast writes msg to every client and returns how many accepted it.
// Clients whose write fails are dropped.
func (s *Server) Broadcast(msg string) int {
	s.mu.Lock()
	clients := make([]*Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	n := 0
	for _, c := range clients {
		if err := c.WriteText(msg); err != nil {
			s.logger.Warn("send failed", slog.String("remote", c.RemoteAddr()), slog.String("error", err.Error()))
			s.remove(c)
			_ = c.Close()
			continue
		}
		n++
	}
	return n
}

// Pump drains src into Broadcast until src is closed or ctx ends, then
// closes every client connection.
func (s *Server) Pump(ctx context.Context, src Source) error {
	defer s.CloseAll()
	for {
		cmd, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			s.logger.Info("command queue closed")
			return nil
		}
		msg := Text(cmd)
		if n := s.Broadcast(msg); n == 0 {
			s.logger.Debug("no clients, dropped", slog.String("message", msg))
		}
	}
}

// CloseAll disconnects every client.
func (s *Server) CloseAll() {
	s.mu.Lock()
	clients := make([]*Conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = map[*Conn]struct{}{}
	s.mu.Unlock()
	for _, c := range clients {
		_ = c.Close()
	}
}

// Text renders a command in the wire grammar: keywords verbatim, vectors as
// moveDrone messages.
func Text(c control.Command) string {
	if c.IsKeyword() {
		return c.Keyword
	}
	return control.FormatMessage(c.Vector)
}
