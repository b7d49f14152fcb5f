package netlink

// WebSocket connection wrapper used on both sides of the control channel:
// - TCP keepalive on the dialer
// - aggressive ping ticker
// - pong watchdog (read deadline)
// - background reader that delivers text messages and surfaces errors
//
// Writes are serialized; gorilla allows one concurrent writer.

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultPingInterval = 2 * time.Second
	DefaultPongTimeout  = 8 * time.Second

	writeWait    = 5 * time.Second
	maxReadBytes = 1 << 20
)

// Conn is a websocket with keepalive and a message channel.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex

	once sync.Once
	done chan struct{}
	errC chan error
	msgC chan string
}

// Dial opens a client connection to wsURL.
func Dial(ctx context.Context, wsURL string, pingEvery, pongWait time.Duration) (*Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}

	d := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		NetDialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
	}

	ws, _, err := d.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return newConn(ws, pingEvery, pongWait), nil
}

func newConn(ws *websocket.Conn, pingEvery, pongWait time.Duration) *Conn {
	if pingEvery <= 0 {
		pingEvery = DefaultPingInterval
	}
	if pongWait <= 0 {
		pongWait = DefaultPongTimeout
	}

	c := &Conn{
		ws:   ws,
		done: make(chan struct{}),
		errC: make(chan error, 1),
		msgC: make(chan string, 16),
	}

	// Keepalive needs READ to process PONG/close frames.
	ws.SetReadLimit(maxReadBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(_ string) error {
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop(pongWait)
	go c.pingLoop(pingEvery)
	return c
}

// RemoteAddr is the peer address.
func (c *Conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

// Close stops the background loops and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Err yields the first read or ping failure.
func (c *Conn) Err() <-chan error { return c.errC }

// Messages yields inbound text messages in arrival order.
func (c *Conn) Messages() <-chan string { return c.msgC }

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) sendErr(err error) {
	select {
	case c.errC <- err:
	default:
	}
}

func (c *Conn) readLoop(pongWait time.Duration) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.sendErr(err)
			return
		}
		// Any inbound traffic proves the peer is alive.
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		select {
		case c.msgC <- string(data):
		case <-c.done:
			return
		}
	}
}

func (c *Conn) pingLoop(pingEvery time.Duration) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.mu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.PingMessage, []byte("ping"))
			c.mu.Unlock()
			if err != nil {
				c.sendErr(err)
				return
			}
		}
	}
}

// WriteText sends one text message.
func (c *Conn) WriteText(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}
