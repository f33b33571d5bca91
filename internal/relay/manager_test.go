package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/arcadelink/relay/internal/bus"
	"github.com/arcadelink/relay/internal/dependencies/clock"
	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/protocol"
	"github.com/arcadelink/relay/internal/registry"
	"github.com/arcadelink/relay/internal/services/moderation"
	"github.com/arcadelink/relay/internal/services/signing"
	"github.com/arcadelink/relay/internal/storage/memory"
	"github.com/arcadelink/relay/internal/testutil"
)

// recordingBus captures publishes so tests can assert on forwarding
// behavior without a broker.
type recordingBus struct {
	mu        sync.Mutex
	published []publishedMessage
}

type publishedMessage struct {
	channel bus.Channel
	payload []byte
}

func (b *recordingBus) Publish(_ context.Context, channel bus.Channel, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedMessage{channel: channel, payload: payload})
	return nil
}

func (b *recordingBus) Subscribe(context.Context, bus.Channel, bus.Handler) error { return nil }

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) on(channel bus.Channel) []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedMessage
	for _, p := range b.published {
		if p.channel == channel {
			out = append(out, p)
		}
	}
	return out
}

// failingDeleteStorage makes marker deletion fail to exercise the
// close fail-safe.
type failingDeleteStorage struct {
	*memory.Storage
}

func (s *failingDeleteStorage) DeleteSessionMarker(context.Context, model.PlayerID) error {
	return errors.New("store unavailable")
}

// fakeSession stands in for a remote-controlled connection in bus
// subscription tests.
type fakeSession struct {
	id     model.PlayerID
	token  protocol.Token
	sent   [][]byte
	kicked string
}

func (f *fakeSession) UserID() model.PlayerID { return f.id }
func (f *fakeSession) Token() protocol.Token { return f.token }
func (f *fakeSession) Send(frame []byte) { f.sent = append(f.sent, frame) }
func (f *fakeSession) ForceClose(reason string) { f.kicked = reason }

type ManagerSuite struct {
	suite.Suite
	storage   *memory.Storage
	bus       *recordingBus
	clock     *clock.Fixed
	signer    *signing.Service
	moderator *moderation.Service
	manager   *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	logger := testutil.NopLogger()
	s.storage = memory.New()
	s.bus = &recordingBus{}
	s.clock = clock.NewFixed(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	s.signer = signing.New(s.storage, logger)
	s.Require().NoError(s.signer.Initialize(context.Background()))
	s.moderator = moderation.New(s.storage, s.signer, logger)

	s.manager = NewManager(Config{
		InstanceID: "instance-a",
		ChatLimit:  2,
		ChatWindow: 10 * time.Second,
	}, registry.New(), s.storage, s.bus, s.moderator, s.clock, logger)
}

// connect registers a socketless connection directly, bypassing the
// websocket upgrade.
func (s *ManagerSuite) connect(name string) *Conn {
	token, err := protocol.NewToken()
	s.Require().NoError(err)
	identity := testutil.Identity(name)
	user := model.NewConnectedUser(identity, token.String(), s.clock.Now())
	c := newConn(user, token, nil, testutil.NopLogger())
	s.manager.registry.Register(c)
	return c
}

func (s *ManagerSuite) recvFrame(c *Conn) (protocol.MessageType, []byte) {
	frame, ok := c.tryRecv()
	s.Require().True(ok, "expected a queued frame")
	tag, payload, err := protocol.SplitFrame(frame)
	s.Require().NoError(err)
	return tag, payload
}

func (s *ManagerSuite) TestTunnelDeliveredLocally() {
	sender := s.connect("alice")
	dest := s.connect("bob")

	in := protocol.Tunnel{Token: dest.Token(), Data: []byte{0xde, 0xad}}
	s.Require().NoError(s.manager.handleTunnel(sender, in.Encode()[1:]))

	tag, payload := s.recvFrame(dest)
	s.Equal(protocol.MsgTunnel, tag)
	out, err := protocol.DecodeTunnel(payload)
	s.Require().NoError(err)
	s.Equal(sender.Token(), out.Token, "outbound token must name the sender")
	s.Equal([]byte{0xde, 0xad}, out.Data)

	s.Empty(s.bus.on(bus.ChannelTunnelForward), "local delivery must not touch the bus")
}

func (s *ManagerSuite) TestTunnelFallsBackToBus() {
	sender := s.connect("alice")
	remote, err := protocol.NewToken()
	s.Require().NoError(err)

	in := protocol.Tunnel{Token: remote, Data: []byte{0x01}}
	s.Require().NoError(s.manager.handleTunnel(sender, in.Encode()[1:]))

	forwards := s.bus.on(bus.ChannelTunnelForward)
	s.Require().Len(forwards, 1, "unresolved destination means exactly one publish")

	var env bus.TunnelForward
	s.Require().NoError(bus.Decode(forwards[0].payload, &env))
	s.Equal(remote.String(), env.DestinationToken)

	tag, payload, err := protocol.SplitFrame(env.Frame)
	s.Require().NoError(err)
	s.Equal(protocol.MsgTunnel, tag)
	out, err := protocol.DecodeTunnel(payload)
	s.Require().NoError(err)
	s.Equal(sender.Token(), out.Token)
	s.Equal([]byte{0x01}, out.Data)
}

func (s *ManagerSuite) TestPlayerIdentityRewrittenFromSession() {
	sender := s.connect("alice")
	dest := s.connect("bob")

	// The frame claims a forged identity; the handler must replace it.
	in := protocol.PlayerIdentity{Token: dest.Token(), NetworkID: "forged", Name: "mallory"}
	s.Require().NoError(s.manager.handlePlayerIdentity(sender, in.Encode()[1:]))

	tag, payload := s.recvFrame(dest)
	s.Equal(protocol.MsgPlayerIdentity, tag)
	out, err := protocol.DecodePlayerIdentity(payload)
	s.Require().NoError(err)
	s.Equal(sender.Token(), out.Token)
	s.Equal(string(sender.UserID()), out.NetworkID)
	s.Equal("alice", out.Name)
}

func (s *ManagerSuite) TestChatBroadcastSignedToAllLocalSessions() {
	sender := s.connect("alice")
	other := s.connect("bob")

	s.Require().NoError(s.manager.handleChat(sender, []byte("hello there")))

	publicKey, err := s.signer.PublicKey()
	s.Require().NoError(err)

	for _, c := range []*Conn{sender, other} {
		tag, payload := s.recvFrame(c)
		s.Equal(protocol.MsgChatMessage, tag)
		msg, err := protocol.DecodeChatMessage(payload)
		s.Require().NoError(err)
		s.Equal("hello there", msg.Payload.Message)
		s.Equal(string(sender.UserID()), msg.Payload.UserID)

		ok, err := signing.Verify(publicKey, msg.Payload.Encode(), msg.Signature)
		s.Require().NoError(err)
		s.True(ok, "broadcast chat must carry a valid signature")
	}
}

func (s *ManagerSuite) TestChatThrottledByWindow() {
	sender := s.connect("alice")
	dest := s.connect("bob")

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.manager.handleChat(sender, []byte("hi")))
	}

	var got int
	for {
		if _, ok := dest.tryRecv(); !ok {
			break
		}
		got++
	}
	s.Equal(2, got, "third message inside the window is dropped")

	// Once the window passes the user may speak again.
	s.clock.Advance(11 * time.Second)
	s.Require().NoError(s.manager.handleChat(sender, []byte("hi")))
	_, ok := dest.tryRecv()
	s.True(ok)
}

func (s *ManagerSuite) TestChatRejectedNotBroadcast() {
	sender := s.connect("alice")
	dest := s.connect("bob")

	s.Require().NoError(s.manager.handleChat(sender, []byte("   ")))
	_, ok := dest.tryRecv()
	s.False(ok, "rejected message must not reach anyone")
}

func (s *ManagerSuite) TestOnlinePlayersAggregatesFreshInstanceCounts() {
	c := s.connect("alice")
	s.connect("bob")

	fresh, err := bus.Encode(bus.OnlineCount{InstanceID: "instance-b", Count: 3, SentAt: s.clock.Now()})
	s.Require().NoError(err)
	s.manager.onOnlineCount(fresh)

	stale, err := bus.Encode(bus.OnlineCount{InstanceID: "instance-c", Count: 100, SentAt: s.clock.Now().Add(-time.Hour)})
	s.Require().NoError(err)
	s.manager.onOnlineCount(stale)

	s.Require().NoError(s.manager.handleOnlinePlayers(c, nil))

	tag, payload := s.recvFrame(c)
	s.Equal(protocol.MsgOnlinePlayers, tag)
	out, err := protocol.DecodeOnlinePlayers(payload)
	s.Require().NoError(err)
	s.Equal(uint16(5), out.Count, "2 local + 3 fresh remote, stale instance ignored")
}

func (s *ManagerSuite) TestCloseDeletesOwnMarkerAndUnregisters() {
	ctx := context.Background()
	c := s.connect("alice")
	marker := &model.SessionMarker{Token: c.Token().String(), CreatedAt: s.clock.Now()}
	s.Require().NoError(s.storage.SaveSessionMarker(ctx, c.UserID(), marker))

	s.manager.handleClose(ctx, c)

	_, err := s.storage.GetSessionMarker(ctx, c.UserID())
	s.ErrorIs(err, model.ErrSessionNotFound)
	_, ok := s.manager.registry.FindByID(c.UserID())
	s.False(ok)
	s.Len(s.bus.on(bus.ChannelOnlineCount), 1)
}

func (s *ManagerSuite) TestCloseKeepsMarkerOwnedByNewerConnection() {
	ctx := context.Background()
	c := s.connect("alice")
	marker := &model.SessionMarker{Token: "someone-elses-token", CreatedAt: s.clock.Now()}
	s.Require().NoError(s.storage.SaveSessionMarker(ctx, c.UserID(), marker))

	s.manager.handleClose(ctx, c)

	kept, err := s.storage.GetSessionMarker(ctx, c.UserID())
	s.Require().NoError(err)
	s.Equal("someone-elses-token", kept.Token)
	_, ok := s.manager.registry.FindByID(c.UserID())
	s.False(ok, "the closing connection still leaves the registry")
}

func (s *ManagerSuite) TestCloseFailSafeWhenMarkerDeleteFails() {
	ctx := context.Background()
	logger := testutil.NopLogger()
	store := &failingDeleteStorage{Storage: s.storage}
	manager := NewManager(Config{InstanceID: "instance-a"},
		registry.New(), store, s.bus, s.moderator, s.clock, logger)

	token, err := protocol.NewToken()
	s.Require().NoError(err)
	user := model.NewConnectedUser(testutil.Identity("alice"), token.String(), s.clock.Now())
	c := newConn(user, token, nil, logger)
	manager.registry.Register(c)
	marker := &model.SessionMarker{Token: token.String(), CreatedAt: s.clock.Now()}
	s.Require().NoError(store.SaveSessionMarker(ctx, user.ID, marker))

	manager.handleClose(ctx, c)

	// Registry entries survive so a reconnect cannot race the stale
	// marker; only the socket handle is gone.
	_, ok := manager.registry.FindByID(user.ID)
	s.True(ok)
	c.Send([]byte{0x00})
	_, got := c.tryRecv()
	s.False(got, "cleared connection must drop sends")
	s.Empty(s.bus.on(bus.ChannelOnlineCount), "no count broadcast on the fail-safe path")
}

func (s *ManagerSuite) TestTunnelForwardSubscriptionDeliversLocally() {
	dest := s.connect("bob")

	frame := (&protocol.Tunnel{Token: dest.Token(), Data: []byte{0x7f}}).Encode()
	payload, err := bus.Encode(bus.TunnelForward{DestinationToken: dest.Token().String(), Frame: frame})
	s.Require().NoError(err)
	s.manager.onTunnelForward(payload)

	got, ok := dest.tryRecv()
	s.Require().True(ok)
	s.Equal(frame, got, "forwarded frames pass through untouched")
}

func (s *ManagerSuite) TestTunnelForwardIgnoredForUnknownToken() {
	other, err := protocol.NewToken()
	s.Require().NoError(err)
	payload, err := bus.Encode(bus.TunnelForward{DestinationToken: other.String(), Frame: []byte{0x02}})
	s.Require().NoError(err)
	s.manager.onTunnelForward(payload)
	// Nothing to assert beyond the absence of a panic; the message was
	// addressed to a session on another instance.
}

func (s *ManagerSuite) TestKickClosesLocalSession() {
	f := &fakeSession{id: "player-1", token: protocol.Token{1}}
	s.manager.registry.Register(f)

	payload, err := bus.Encode(bus.Kick{UserID: "player-1", Reason: "banned"})
	s.Require().NoError(err)
	s.manager.onKick(payload)

	s.Equal("banned", f.kicked)
}

func (s *ManagerSuite) TestBanNotifyEmitsUserBanToHost() {
	host := &fakeSession{id: "host-1", token: protocol.Token{2}}
	s.manager.registry.Register(host)

	payload, err := bus.Encode(bus.BanNotify{HostUserID: "host-1", BannedNetworkID: "cheater-net-id"})
	s.Require().NoError(err)
	s.manager.onBanNotify(payload)

	s.Require().Len(host.sent, 1)
	tag, body, err := protocol.SplitFrame(host.sent[0])
	s.Require().NoError(err)
	s.Equal(protocol.MsgUserBan, tag)
	ban, err := protocol.DecodeUserBan(body)
	s.Require().NoError(err)
	s.Equal("cheater-net-id", ban.NetworkID)
}

func (s *ManagerSuite) TestWordlistRefreshReloadsCache() {
	ctx := context.Background()
	s.Require().NoError(s.storage.SaveBlockedWords(ctx, []string{"spam"}))
	s.manager.onWordlistRefresh(nil)

	filtered, err := s.moderator.Filter("buy spam now")
	s.Require().NoError(err)
	s.Equal("buy **** now", filtered)
}
