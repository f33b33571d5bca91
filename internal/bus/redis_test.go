package bus

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/arcadelink/relay/internal/testutil"
)

type RedisBusSuite struct {
	suite.Suite
	mini *miniredis.Miniredis
	bus  *RedisBus
	ctx  context.Context
}

func TestRedisBusSuite(t *testing.T) {
	suite.Run(t, new(RedisBusSuite))
}

func (s *RedisBusSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())

	client := redis.NewClient(&redis.Options{
		Addr: s.mini.Addr(),
	})
	s.bus = NewRedisBusWithClient(client, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *RedisBusSuite) TearDownTest() {
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *RedisBusSuite) TestPublishReachesSubscriber() {
	c := newCollector()
	s.Require().NoError(s.bus.Subscribe(s.ctx, ChannelTunnelForward, c.handler))

	payload, err := Encode(TunnelForward{DestinationToken: "tok", Frame: []byte{2, 0xAA}})
	s.Require().NoError(err)
	s.Require().NoError(s.bus.Publish(s.ctx, ChannelTunnelForward, payload))

	got := c.wait(s.T(), 1)
	var decoded TunnelForward
	s.Require().NoError(Decode(got[0], &decoded))
	s.Equal("tok", decoded.DestinationToken)
	s.Equal([]byte{2, 0xAA}, decoded.Frame)
}

func (s *RedisBusSuite) TestPublisherAlsoReceives() {
	// The instance that publishes a tunnel-forward must see it too,
	// since the destination might be local to a different connection.
	c := newCollector()
	s.Require().NoError(s.bus.Subscribe(s.ctx, ChannelKick, c.handler))

	s.Require().NoError(s.bus.Publish(s.ctx, ChannelKick, []byte("self")))
	s.Equal([]byte("self"), c.wait(s.T(), 1)[0])
}

func (s *RedisBusSuite) TestSubscriptionStopsOnContextCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	c := newCollector()
	s.Require().NoError(s.bus.Subscribe(ctx, ChannelKick, c.handler))

	cancel()

	// Publishing after cancellation must not fail even though the
	// subscriber is gone.
	s.NoError(s.bus.Publish(s.ctx, ChannelKick, []byte("late")))
}
