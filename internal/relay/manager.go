package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arcadelink/relay/internal/bus"
	"github.com/arcadelink/relay/internal/dependencies/clock"
	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/protocol"
	"github.com/arcadelink/relay/internal/registry"
	"github.com/arcadelink/relay/internal/services/moderation"
	"github.com/arcadelink/relay/internal/storage"
)

// Config holds the connection manager's tunables.
type Config struct {
	// InstanceID distinguishes this process on the online-count channel.
	InstanceID string
	// ChatLimit and ChatWindow bound how many chat messages a user may
	// send within the window.
	ChatLimit  int
	ChatWindow time.Duration
	// OnlineCountInterval is how often the local count is broadcast.
	OnlineCountInterval time.Duration
	// StaleCountAfter is how long a peer instance's count is trusted
	// after its SentAt before it drops out of the aggregate.
	StaleCountAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChatLimit <= 0 {
		c.ChatLimit = 5
	}
	if c.ChatWindow <= 0 {
		c.ChatWindow = 10 * time.Second
	}
	if c.OnlineCountInterval <= 0 {
		c.OnlineCountInterval = 15 * time.Second
	}
	if c.StaleCountAfter <= 0 {
		c.StaleCountAfter = 3 * c.OnlineCountInterval
	}
	return c
}

// Manager owns the lifecycle of every websocket connection on this
// instance: registration, frame dispatch, durable session markers,
// cross-instance forwarding, and the periodic online-count broadcast.
type Manager struct {
	cfg        Config
	registry   *registry.Registry
	storage    storage.Storage
	bus        bus.Bus
	moderator  *moderation.Service
	clock      clock.Clock
	logger     *slog.Logger
	dispatcher *Dispatcher

	mu     sync.Mutex
	counts map[string]bus.OnlineCount
	ctx    context.Context
}

// NewManager wires the manager and registers its frame handlers.
func NewManager(
	cfg Config,
	reg *registry.Registry,
	store storage.Storage,
	b bus.Bus,
	moderator *moderation.Service,
	clk clock.Clock,
	logger *slog.Logger,
) *Manager {
	m := &Manager{
		cfg:        cfg.withDefaults(),
		registry:   reg,
		storage:    store,
		bus:        b,
		moderator:  moderator,
		clock:      clk,
		logger:     logger.With(slog.String("component", "relay")),
		dispatcher: NewDispatcher(logger),
		counts:     make(map[string]bus.OnlineCount),
		ctx:        context.Background(),
	}
	m.registerHandlers()
	return m
}

// Start subscribes the manager to every bus channel it serves and
// begins the periodic online-count broadcast. It returns once the
// subscriptions are live; the broadcast loop runs until ctx ends.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	subs := []struct {
		channel bus.Channel
		handler bus.Handler
	}{
		{bus.ChannelTunnelForward, m.onTunnelForward},
		{bus.ChannelOnlineCount, m.onOnlineCount},
		{bus.ChannelKick, m.onKick},
		{bus.ChannelBanNotify, m.onBanNotify},
		{bus.ChannelWordlistRefresh, m.onWordlistRefresh},
	}
	for _, s := range subs {
		if err := m.bus.Subscribe(ctx, s.channel, s.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.channel, err)
		}
	}

	go m.broadcastLoop(ctx)
	return nil
}

func (m *Manager) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// HandleConnection runs the full lifecycle of one upgraded socket and
// blocks until it closes. The identity has already been verified by
// the caller. If the durable session marker cannot be written the
// connection is refused before any frame is exchanged.
func (m *Manager) HandleConnection(ctx context.Context, identity model.Identity, socket *websocket.Conn) error {
	token, err := protocol.NewToken()
	if err != nil {
		return fmt.Errorf("generating routing token: %w", err)
	}

	now := m.clock.Now()
	user := model.NewConnectedUser(identity, token.String(), now)
	marker := &model.SessionMarker{Token: token.String(), CreatedAt: now}
	if err := m.storage.SaveSessionMarker(ctx, user.ID, marker); err != nil {
		return fmt.Errorf("writing session marker: %w", err)
	}

	logger := m.logger.With(slog.String("user_id", string(user.ID)))
	c := newConn(user, token, socket, logger)

	prev, hadPrev := m.registry.FindByID(user.ID)
	m.registry.Register(c)
	if hadPrev {
		prev.ForceClose("signed in from another connection")
	}

	go c.writePump()

	ack := protocol.Authenticated{Token: token}
	c.Send(ack.Encode())

	logger.Info("connection open", slog.Int("online", m.registry.Count()))
	m.publishOnlineCount(ctx)

	c.readPump(func(frame []byte) {
		m.dispatcher.Dispatch(c, frame)
	})
	c.markClosed()

	m.handleClose(ctx, c)
	logger.Info("connection closed", slog.Int("online", m.registry.Count()))
	return nil
}

// handleClose clears the durable marker and the registry entries for a
// finished connection. The marker is only deleted when this connection
// still owns it; a marker written by a newer login is left alone. If
// the delete fails the registry entries are deliberately kept and only
// the socket handle is dropped, so a half-cleared session can never
// let a duplicate login through.
func (m *Manager) handleClose(ctx context.Context, c *Conn) {
	marker, err := m.storage.GetSessionMarker(ctx, c.UserID())
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		m.registry.Unregister(c)
	case err != nil:
		c.clearSocket()
		m.logger.Error("session marker unreadable on close, keeping registry entries",
			slog.String("user_id", string(c.UserID())),
			slog.String("error", err.Error()))
		return
	case marker.Token != c.Token().String():
		// A newer connection owns the marker now.
		m.registry.Unregister(c)
	default:
		if err := m.storage.DeleteSessionMarker(ctx, c.UserID()); err != nil {
			c.clearSocket()
			m.logger.Error("session marker not cleared, keeping registry entries",
				slog.String("user_id", string(c.UserID())),
				slog.String("error", err.Error()))
			return
		}
		m.registry.Unregister(c)
	}

	m.publishOnlineCount(ctx)
}

// deliver routes an outbound frame to its destination token: directly
// when the token resolves locally, otherwise with a single publish on
// the forwarding channel for whichever instance holds the socket.
func (m *Manager) deliver(ctx context.Context, dest protocol.Token, frame []byte) error {
	if s, ok := m.registry.FindByToken(dest); ok {
		s.Send(frame)
		return nil
	}

	payload, err := bus.Encode(bus.TunnelForward{
		DestinationToken: dest.String(),
		Frame:            frame,
	})
	if err != nil {
		return fmt.Errorf("encoding forward envelope: %w", err)
	}
	if err := m.bus.Publish(ctx, bus.ChannelTunnelForward, payload); err != nil {
		return fmt.Errorf("publishing forward: %w", err)
	}
	return nil
}

// TotalOnline aggregates this instance's live count with the most
// recent broadcast of every other instance that is not stale.
func (m *Manager) TotalOnline() int {
	total := m.registry.Count()
	cutoff := m.clock.Now().Add(-m.cfg.StaleCountAfter)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.counts {
		if id == m.cfg.InstanceID {
			continue
		}
		if c.SentAt.Before(cutoff) {
			continue
		}
		total += c.Count
	}
	return total
}

func (m *Manager) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.OnlineCountInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.publishOnlineCount(ctx)
		}
	}
}

func (m *Manager) publishOnlineCount(ctx context.Context) {
	payload, err := bus.Encode(bus.OnlineCount{
		InstanceID: m.cfg.InstanceID,
		Count:      m.registry.Count(),
		SentAt:     m.clock.Now(),
	})
	if err != nil {
		m.logger.Error("encoding online count", slog.String("error", err.Error()))
		return
	}
	if err := m.bus.Publish(ctx, bus.ChannelOnlineCount, payload); err != nil {
		m.logger.Warn("publishing online count", slog.String("error", err.Error()))
	}
}

// Bus subscription handlers. Each one acts only when the local
// registry resolves the target; otherwise the message is for another
// instance and is ignored.

func (m *Manager) onTunnelForward(payload []byte) {
	var env bus.TunnelForward
	if err := bus.Decode(payload, &env); err != nil {
		m.logger.Warn("bad forward envelope", slog.String("error", err.Error()))
		return
	}
	token, err := protocol.TokenFromString(env.DestinationToken)
	if err != nil {
		m.logger.Warn("bad forward token", slog.String("error", err.Error()))
		return
	}
	if s, ok := m.registry.FindByToken(token); ok {
		s.Send(env.Frame)
	}
}

func (m *Manager) onOnlineCount(payload []byte) {
	var env bus.OnlineCount
	if err := bus.Decode(payload, &env); err != nil {
		m.logger.Warn("bad count envelope", slog.String("error", err.Error()))
		return
	}
	m.mu.Lock()
	m.counts[env.InstanceID] = env
	m.mu.Unlock()
}

func (m *Manager) onKick(payload []byte) {
	var env bus.Kick
	if err := bus.Decode(payload, &env); err != nil {
		m.logger.Warn("bad kick envelope", slog.String("error", err.Error()))
		return
	}
	if s, ok := m.registry.FindByID(env.UserID); ok {
		m.logger.Info("kicking user", slog.String("user_id", string(env.UserID)))
		s.ForceClose(env.Reason)
	}
}

func (m *Manager) onBanNotify(payload []byte) {
	var env bus.BanNotify
	if err := bus.Decode(payload, &env); err != nil {
		m.logger.Warn("bad ban envelope", slog.String("error", err.Error()))
		return
	}
	if s, ok := m.registry.FindByID(env.HostUserID); ok {
		msg := protocol.UserBan{NetworkID: env.BannedNetworkID}
		s.Send(msg.Encode())
	}
}

func (m *Manager) onWordlistRefresh([]byte) {
	if err := m.moderator.Refresh(m.context()); err != nil {
		m.logger.Error("refreshing blocked words", slog.String("error", err.Error()))
		return
	}
	m.logger.Info("blocked word cache refreshed")
}
