// Package protocol implements the binary wire format shared by every
// relay message. Each frame is a 1-byte message type tag followed by a
// type-specific payload; integers are big-endian, strings are UTF-8.
// The transport (one websocket message per frame) provides message
// boundaries, so no outer length prefix exists.
package protocol

import (
	"bytes"

	"github.com/arcadelink/relay/internal/model"
)

// MessageType is the leading tag byte of a frame.
type MessageType byte

const (
	MsgNotification   MessageType = 0
	MsgPlayerIdentity MessageType = 1
	MsgTunnel         MessageType = 2
	MsgOnlinePlayers  MessageType = 3
	MsgChatMessage    MessageType = 4
	MsgUserBan        MessageType = 7

	// MsgAuthenticated is sent once by the server after a successful
	// upgrade so the client learns its own routing token. The tag sits
	// outside the historical 0-7 range to avoid colliding with it.
	MsgAuthenticated MessageType = 8
)

// NetworkIDSize is the width of the fixed network-id string fields.
const NetworkIDSize = 32

// NameSize is the width of the fixed display-name field.
const NameSize = 16

// String names the tag for logging.
func (t MessageType) String() string {
	switch t {
	case MsgNotification:
		return "notification"
	case MsgPlayerIdentity:
		return "player_identity"
	case MsgTunnel:
		return "tunnel"
	case MsgOnlinePlayers:
		return "online_players"
	case MsgChatMessage:
		return "chat_message"
	case MsgUserBan:
		return "user_ban"
	case MsgAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// known reports whether the tag is part of the wire format.
func (t MessageType) known() bool {
	switch t {
	case MsgNotification, MsgPlayerIdentity, MsgTunnel, MsgOnlinePlayers,
		MsgChatMessage, MsgUserBan, MsgAuthenticated:
		return true
	}
	return false
}

// SplitFrame separates a raw frame into its tag and payload.
// An empty frame is malformed; an unrecognized tag is reported as
// ErrUnknownMessageType (non-fatal, the caller logs and drops it).
func SplitFrame(frame []byte) (MessageType, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, model.ErrMalformedFrame
	}
	t := MessageType(frame[0])
	if !t.known() {
		return t, nil, model.ErrUnknownMessageType
	}
	return t, frame[1:], nil
}

func encodeFrame(t MessageType, payload func(*bytes.Buffer)) []byte {
	buf := bytes.Buffer{}
	buf.WriteByte(byte(t))
	payload(&buf)
	return buf.Bytes()
}

// Notification carries informational text on a numbered channel.
type Notification struct {
	Channel byte
	Text    string
}

func (m *Notification) Encode() []byte {
	return encodeFrame(MsgNotification, func(buf *bytes.Buffer) {
		buf.WriteByte(m.Channel)
		buf.WriteString(m.Text)
	})
}

func DecodeNotification(payload []byte) (Notification, error) {
	r := newReader(payload)
	ch, err := r.byte()
	if err != nil {
		return Notification{}, err
	}
	return Notification{Channel: ch, Text: string(r.rest())}, nil
}

// PlayerIdentity announces a peer to another connection. Inbound from a
// client the token addresses the destination; outbound from the server
// it carries the origin, with the network id and name taken from the
// sender's verified session rather than the frame.
type PlayerIdentity struct {
	Token     Token
	NetworkID string
	Name      string
}

func (m *PlayerIdentity) Encode() []byte {
	return encodeFrame(MsgPlayerIdentity, func(buf *bytes.Buffer) {
		buf.Write(m.Token[:])
		writeFixedString(buf, m.NetworkID, NetworkIDSize)
		writeFixedString(buf, m.Name, NameSize)
	})
}

func DecodePlayerIdentity(payload []byte) (PlayerIdentity, error) {
	r := newReader(payload)
	tok, err := r.token()
	if err != nil {
		return PlayerIdentity{}, err
	}
	networkID, err := r.fixedString(NetworkIDSize)
	if err != nil {
		return PlayerIdentity{}, err
	}
	name, err := r.fixedString(NameSize)
	if err != nil {
		return PlayerIdentity{}, err
	}
	return PlayerIdentity{Token: tok, NetworkID: networkID, Name: name}, nil
}

// Tunnel relays opaque bytes between two peers. Same token convention
// as PlayerIdentity: destination inbound, origin outbound.
type Tunnel struct {
	Token Token
	Data  []byte
}

func (m *Tunnel) Encode() []byte {
	return encodeFrame(MsgTunnel, func(buf *bytes.Buffer) {
		buf.Write(m.Token[:])
		buf.Write(m.Data)
	})
}

func DecodeTunnel(payload []byte) (Tunnel, error) {
	r := newReader(payload)
	tok, err := r.token()
	if err != nil {
		return Tunnel{}, err
	}
	return Tunnel{Token: tok, Data: r.rest()}, nil
}

// OnlinePlayers reports the fleet-wide connected user count.
type OnlinePlayers struct {
	Count uint16
}

func (m *OnlinePlayers) Encode() []byte {
	return encodeFrame(MsgOnlinePlayers, func(buf *bytes.Buffer) {
		writeUint16(buf, m.Count)
	})
}

func DecodeOnlinePlayers(payload []byte) (OnlinePlayers, error) {
	r := newReader(payload)
	count, err := r.uint16()
	if err != nil {
		return OnlinePlayers{}, err
	}
	return OnlinePlayers{Count: count}, nil
}

// ChatPayload is the signed portion of a chat frame. The fields are
// self-delimiting, so the signature can trail them in the same frame.
type ChatPayload struct {
	UserID    string
	Message   string
	Timestamp uint32
}

// Encode produces the exact byte sequence that gets signed.
func (p *ChatPayload) Encode() []byte {
	buf := bytes.Buffer{}
	writeFixedString(&buf, p.UserID, NetworkIDSize)
	writeLenString(&buf, p.Message)
	writeUint32(&buf, p.Timestamp)
	return buf.Bytes()
}

func decodeChatPayload(r *reader) (ChatPayload, error) {
	userID, err := r.fixedString(NetworkIDSize)
	if err != nil {
		return ChatPayload{}, err
	}
	message, err := r.lenString()
	if err != nil {
		return ChatPayload{}, err
	}
	ts, err := r.uint32()
	if err != nil {
		return ChatPayload{}, err
	}
	return ChatPayload{UserID: userID, Message: message, Timestamp: ts}, nil
}

// ChatMessage is an outbound signed chat frame: the signed payload
// followed by its signature.
type ChatMessage struct {
	Payload   ChatPayload
	Signature []byte
}

func (m *ChatMessage) Encode() []byte {
	return encodeFrame(MsgChatMessage, func(buf *bytes.Buffer) {
		buf.Write(m.Payload.Encode())
		buf.Write(m.Signature)
	})
}

func DecodeChatMessage(payload []byte) (ChatMessage, error) {
	r := newReader(payload)
	p, err := decodeChatPayload(r)
	if err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{Payload: p, Signature: r.rest()}, nil
}

// UserBan tells a match host that one of its peers has been banned.
type UserBan struct {
	NetworkID string
}

func (m *UserBan) Encode() []byte {
	return encodeFrame(MsgUserBan, func(buf *bytes.Buffer) {
		writeFixedString(buf, m.NetworkID, NetworkIDSize)
	})
}

func DecodeUserBan(payload []byte) (UserBan, error) {
	r := newReader(payload)
	networkID, err := r.fixedString(NetworkIDSize)
	if err != nil {
		return UserBan{}, err
	}
	return UserBan{NetworkID: networkID}, nil
}

// Authenticated is the post-upgrade acknowledgment carrying the
// connection's own routing token.
type Authenticated struct {
	Token Token
}

func (m *Authenticated) Encode() []byte {
	return encodeFrame(MsgAuthenticated, func(buf *bytes.Buffer) {
		buf.Write(m.Token[:])
	})
}

func DecodeAuthenticated(payload []byte) (Authenticated, error) {
	r := newReader(payload)
	tok, err := r.token()
	if err != nil {
		return Authenticated{}, err
	}
	return Authenticated{Token: tok}, nil
}
