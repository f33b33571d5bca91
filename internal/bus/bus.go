// Package bus is the cross-instance broadcast fabric. Every server
// process in the deployment subscribes to a small set of named
// channels; publishes fan out to all current subscribers, publisher
// included. Delivery is best-effort at-least-once with no ordering
// guarantee, which is acceptable because every message on the bus is
// idempotent or loss-tolerant.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arcadelink/relay/internal/model"
)

// Channel names a logical broadcast stream.
type Channel string

const (
	// ChannelTunnelForward carries tunnel and identity frames whose
	// destination token was not found in the publisher's registry.
	ChannelTunnelForward Channel = "tunnel-forward"
	// ChannelOnlineCount carries each instance's connected-user count.
	ChannelOnlineCount Channel = "online-count"
	// ChannelKick instructs whichever instance holds a user's socket
	// to force-close it.
	ChannelKick Channel = "kick"
	// ChannelBanNotify tells a match host's instance that one of its
	// tunnel peers has been banned.
	ChannelBanNotify Channel = "ban-notify"
	// ChannelWordlistRefresh signals every instance to reload the
	// blocked-word cache wholesale.
	ChannelWordlistRefresh Channel = "wordlist-refresh"
)

// Handler consumes one published message. Handlers must not block.
type Handler func(payload []byte)

// Bus is the fan-out publish/subscribe capability injected into the
// relay. Implementations: in-process (single instance, tests) and
// Redis pub/sub (fleet deployments).
type Bus interface {
	Publish(ctx context.Context, channel Channel, payload []byte) error
	// Subscribe registers a handler for a channel. The subscription
	// lives until ctx is cancelled or the bus is closed.
	Subscribe(ctx context.Context, channel Channel, handler Handler) error
	Close() error
}

// Envelope types carried on the channels, JSON-encoded.

// TunnelForward is published on ChannelTunnelForward. Frame is the
// fully encoded outbound frame, ready to hand to the destination's
// socket untouched.
type TunnelForward struct {
	DestinationToken string `json:"destination_token"`
	Frame            []byte `json:"frame"`
}

// OnlineCount is published periodically on ChannelOnlineCount.
type OnlineCount struct {
	InstanceID string    `json:"instance_id"`
	Count      int       `json:"count"`
	SentAt     time.Time `json:"sent_at"`
}

// Kick is published on ChannelKick.
type Kick struct {
	UserID model.PlayerID `json:"user_id"`
	Reason string         `json:"reason"`
}

// BanNotify is published on ChannelBanNotify.
type BanNotify struct {
	HostUserID      model.PlayerID `json:"host_user_id"`
	BannedNetworkID string         `json:"banned_network_id"`
}

// Encode marshals an envelope for publishing.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals an envelope received from a channel.
func Decode(payload []byte, v any) error {
	return json.Unmarshal(payload, v)
}
