package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/protocol"
	"github.com/arcadelink/relay/internal/registry"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from a peer
	maxFrameSize = 8192

	// Outbound queue depth per connection
	sendQueueSize = 256
)

// Conn is one live relay connection. The socket handle is exclusively
// owned here: handlers and the registry only ever see the Session
// interface, and the handle is nulled on close.
type Conn struct {
	user   *model.ConnectedUser
	token  protocol.Token
	logger *slog.Logger

	send    chan []byte
	closeCh chan string
	done    chan struct{}

	mu     sync.Mutex
	socket *websocket.Conn
	closed bool
}

var _ registry.Session = (*Conn)(nil)

// newConn wraps an upgraded socket. A nil socket is permitted for
// tests; sends then park in the queue.
func newConn(user *model.ConnectedUser, token protocol.Token, socket *websocket.Conn, logger *slog.Logger) *Conn {
	return &Conn{
		user:   user,
		token:  token,
		socket: socket,
		logger: logger.With(
			slog.String("user_id", string(user.ID)),
			slog.String("token", user.RoutingToken)),
		send:    make(chan []byte, sendQueueSize),
		closeCh: make(chan string, 1),
		done:    make(chan struct{}),
	}
}

// UserID implements registry.Session.
func (c *Conn) UserID() model.PlayerID {
	return c.user.ID
}

// Token implements registry.Session.
func (c *Conn) Token() protocol.Token {
	return c.token
}

// User returns the connection's user record. Only the connection's own
// read loop may mutate it.
func (c *Conn) User() *model.ConnectedUser {
	return c.user
}

// Send queues a frame for delivery. Best-effort: a closed connection or
// a full queue drops the frame silently, the relay never blocks or
// retries a send.
func (c *Conn) Send(frame []byte) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.logger.Warn("send queue full, frame dropped")
	}
}

// ForceClose asks the write pump to deliver reason as a notification,
// send a close frame and shut the socket. The pump owns the write side
// of the socket, so the caller never writes directly; the read loop
// observes the closure and runs the normal teardown.
func (c *Conn) ForceClose(reason string) {
	c.mu.Lock()
	socket := c.socket
	c.mu.Unlock()
	if socket == nil {
		return
	}

	select {
	case c.closeCh <- reason:
	default:
		// A close is already pending.
	}
}

// clearSocket drops the handle without touching the registry. This is
// the fail-safe path taken when the durable marker could not be
// cleared on close.
func (c *Conn) clearSocket() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.socket = nil
}

// markClosed flags the connection and drops the handle after the read
// loop has finished.
func (c *Conn) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.socket = nil
	close(c.done)
}

// readPump reads frames until the socket closes and hands each one to
// dispatch, in receipt order. It blocks the caller.
func (c *Conn) readPump(dispatch func(frame []byte)) {
	c.mu.Lock()
	socket := c.socket
	c.mu.Unlock()
	if socket == nil {
		return
	}

	defer func() { _ = socket.Close() }()

	socket.SetReadLimit(maxFrameSize)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		_ = socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("connection closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
		dispatch(frame)
	}
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings. Write failures end the connection; they
// are never surfaced to the code that queued the frame.
func (c *Conn) writePump() {
	c.mu.Lock()
	socket := c.socket
	c.mu.Unlock()
	if socket == nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = socket.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.logger.Debug("write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case reason := <-c.closeCh:
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if reason != "" {
				note := protocol.Notification{Text: reason}
				_ = socket.WriteMessage(websocket.BinaryMessage, note.Encode())
			}
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
			_ = socket.WriteMessage(websocket.CloseMessage, msg)
			return
		case <-c.done:
			return
		}
	}
}

// tryRecv pops one queued outbound frame, for tests.
func (c *Conn) tryRecv() ([]byte, bool) {
	select {
	case frame := <-c.send:
		return frame, true
	default:
		return nil, false
	}
}
