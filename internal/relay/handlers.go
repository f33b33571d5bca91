package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/protocol"
)

// registerHandlers installs the inbound frame table. Tags without an
// entry here are server-to-client only and get dropped by the
// dispatcher when a peer sends them anyway.
func (m *Manager) registerHandlers() {
	m.dispatcher.Handle(protocol.MsgTunnel, m.handleTunnel)
	m.dispatcher.Handle(protocol.MsgPlayerIdentity, m.handlePlayerIdentity)
	m.dispatcher.Handle(protocol.MsgChatMessage, m.handleChat)
	m.dispatcher.Handle(protocol.MsgOnlinePlayers, m.handleOnlinePlayers)
}

// handleTunnel forwards opaque game traffic. The inbound token names
// the destination; on the way out it is rewritten to the sender's own
// routing token so the receiver can address replies.
func (m *Manager) handleTunnel(c *Conn, payload []byte) error {
	msg, err := protocol.DecodeTunnel(payload)
	if err != nil {
		return fmt.Errorf("decoding tunnel: %w", err)
	}

	out := protocol.Tunnel{Token: c.Token(), Data: msg.Data}
	return m.deliver(m.context(), msg.Token, out.Encode())
}

// handlePlayerIdentity introduces the sender to the destination peer.
// Identity fields are taken from the verified session, never from the
// frame, so a client cannot impersonate another player.
func (m *Manager) handlePlayerIdentity(c *Conn, payload []byte) error {
	msg, err := protocol.DecodePlayerIdentity(payload)
	if err != nil {
		return fmt.Errorf("decoding identity: %w", err)
	}

	out := protocol.PlayerIdentity{
		Token:     c.Token(),
		NetworkID: string(c.UserID()),
		Name:      c.User().DisplayName,
	}
	return m.deliver(m.context(), msg.Token, out.Encode())
}

// handleChat runs the raw text through throttle, filter and signing,
// then fans the signed frame out to every session on this instance.
func (m *Manager) handleChat(c *Conn, payload []byte) error {
	now := m.clock.Now()
	if !c.User().AllowChat(now, m.cfg.ChatLimit, m.cfg.ChatWindow) {
		m.logger.Debug("chat throttled", slog.String("user_id", string(c.UserID())))
		return nil
	}

	frame, err := m.moderator.BuildChatFrame(c.UserID(), string(payload), now)
	if err != nil {
		if errors.Is(err, model.ErrMessageRejected) {
			m.logger.Debug("chat rejected", slog.String("user_id", string(c.UserID())))
			return nil
		}
		return fmt.Errorf("building chat frame: %w", err)
	}

	for _, s := range m.registry.All() {
		s.Send(frame)
	}
	return nil
}

// handleOnlinePlayers answers with the fleet-wide connected count.
func (m *Manager) handleOnlinePlayers(c *Conn, _ []byte) error {
	count := m.TotalOnline()
	if count > math.MaxUint16 {
		count = math.MaxUint16
	}
	msg := protocol.OnlinePlayers{Count: uint16(count)}
	c.Send(msg.Encode())
	return nil
}
