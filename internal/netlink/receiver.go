// Package netlink carries control text over websockets: the Receiver on the
// relay side and the Server on the operator side.
package netlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcrelay/rcrelay/internal/control"
)

// ReadyMessage is sent by the relay right after it connects.
const ReadyMessage = "relay:ready"

// Sink accepts parsed commands. relay.Dispatcher satisfies it.
type Sink interface {
	Post(control.Command) error
}

// WithLogger sets the logger for the receiver
func WithLogger(logger *slog.Logger) func(r *Receiver) {
	return func(r *Receiver) {
		r.logger = logger.With(slog.String("component", "receiver"), slog.String("url", r.url))
	}
}

// WithKeepalive overrides the ping interval and pong timeout.
func WithKeepalive(pingEvery, pongWait time.Duration) func(r *Receiver) {
	return func(r *Receiver) {
		r.pingEvery = pingEvery
		r.pongWait = pongWait
	}
}

// Receiver is the network side of the relay: a websocket client whose read
// loop parses control messages and posts them to a Sink. It implements
// supervisor.Link.
type Receiver struct {
	url  string
	sink Sink

	pingEvery time.Duration
	pongWait  time.Duration

	mu   sync.Mutex
	conn *Conn

	received  atomic.Uint64
	malformed atomic.Uint64

	logger *slog.Logger
}

func NewReceiver(url string, sink Sink, options ...func(r *Receiver)) *Receiver {
	r := &Receiver{
		url:       url,
		sink:      sink,
		pingEvery: DefaultPingInterval,
		pongWait:  DefaultPongTimeout,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *Receiver) Name() string { return "ws:" + r.url }

func (r *Receiver) Connect(ctx context.Context) error {
	conn, err := Dial(ctx, r.url, r.pingEvery, r.pongWait)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	if err := conn.WriteText(ReadyMessage); err != nil {
		r.logger.Warn("ready message not sent", slog.String("error", err.Error()))
	}
	return nil
}

// Run reads until the socket fails or ctx ends. Malformed messages are
// dropped; they never end the loop.
func (r *Receiver) Run(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-conn.Err():
			r.drain(conn)
			return fmt.Errorf("read: %w", err)
		case msg := <-conn.Messages():
			r.handle(msg)
		}
	}
}

// drain handles what the reader queued before it failed.
func (r *Receiver) drain(conn *Conn) {
	for {
		select {
		case msg := <-conn.Messages():
			r.handle(msg)
		default:
			return
		}
	}
}

func (r *Receiver) handle(msg string) {
	r.received.Add(1)
	cmd, err := control.ParseMessage(msg)
	if err != nil {
		r.malformed.Add(1)
		r.logger.Warn("dropping message", slog.String("error", err.Error()))
		return
	}
	r.logger.Debug("received", slog.String("command", cmd.String()))
	if err := r.sink.Post(cmd); err != nil {
		r.logger.Debug("command not queued", slog.String("error", err.Error()))
	}
}

func (r *Receiver) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Received counts inbound messages, Malformed those that failed to parse.
func (r *Receiver) Received() uint64  { return r.received.Load() }
func (r *Receiver) Malformed() uint64 { return r.malformed.Load() }
