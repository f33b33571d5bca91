package relay

import (
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/protocol"
)

// HandlerFunc processes one decoded inbound frame for a connection.
// The payload excludes the tag byte. Returned errors are logged and
// never close the connection.
type HandlerFunc func(c *Conn, payload []byte) error

// Dispatcher maps message-type tags to handlers. The table is owned by
// the dispatcher instance and populated once at startup; there is no
// registration after that, and no global state.
type Dispatcher struct {
	logger   *slog.Logger
	handlers map[protocol.MessageType]HandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.With(slog.String("component", "dispatcher")),
		handlers: make(map[protocol.MessageType]HandlerFunc),
	}
}

// Handle registers the handler for a tag, replacing any previous one.
func (d *Dispatcher) Handle(t protocol.MessageType, fn HandlerFunc) {
	d.handlers[t] = fn
}

// Dispatch decodes the frame tag and invokes the registered handler.
// Malformed and unknown frames are dropped and logged; handler panics
// are recovered. Nothing here ever propagates to the peer.
func (d *Dispatcher) Dispatch(c *Conn, frame []byte) {
	tag, payload, err := protocol.SplitFrame(frame)
	if err != nil {
		if errors.Is(err, model.ErrUnknownMessageType) {
			d.logger.Warn("dropping frame with unknown tag",
				slog.Int("tag", int(frame[0])),
				slog.String("user_id", string(c.UserID())))
		} else {
			d.logger.Warn("dropping malformed frame",
				slog.String("user_id", string(c.UserID())))
		}
		return
	}

	fn, ok := d.handlers[tag]
	if !ok {
		d.logger.Warn("no handler registered for tag",
			slog.String("type", tag.String()))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic recovered",
				slog.String("type", tag.String()),
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := fn(c, payload); err != nil {
		d.logger.Warn("handler failed, frame dropped",
			slog.String("type", tag.String()),
			slog.String("user_id", string(c.UserID())),
			slog.String("error", err.Error()))
	}
}
