package registry

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/arcadelink/relay/internal/model"
	"github.com/arcadelink/relay/internal/protocol"
)

// fakeSession is a minimal Session for registry tests.
type fakeSession struct {
	id     model.PlayerID
	token  protocol.Token
	sent   [][]byte
	closed bool
}

func (f *fakeSession) UserID() model.PlayerID { return f.id }
func (f *fakeSession) Token() protocol.Token { return f.token }
func (f *fakeSession) Send(frame []byte) { f.sent = append(f.sent, frame) }
func (f *fakeSession) ForceClose(reason string) { f.closed = true }

func newFake(id string, fill byte) *fakeSession {
	var tok protocol.Token
	for i := range tok {
		tok[i] = fill
	}
	return &fakeSession{id: model.PlayerID(id), token: tok}
}

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.registry = New()
}

func (s *RegistrySuite) TestRegisterAndFind() {
	u := newFake("player-1", 1)
	s.registry.Register(u)

	byID, ok := s.registry.FindByID("player-1")
	s.True(ok)
	s.Same(u, byID)

	byToken, ok := s.registry.FindByToken(u.token)
	s.True(ok)
	s.Same(u, byToken)
}

func (s *RegistrySuite) TestFindMissing() {
	_, ok := s.registry.FindByID("nobody")
	s.False(ok)

	_, ok = s.registry.FindByToken(protocol.Token{})
	s.False(ok)
}

func (s *RegistrySuite) TestRegisterSupersedes() {
	// A second connection for the same identity evicts the old token
	// mapping but must not touch the old socket.
	u1 := newFake("player-1", 1)
	u2 := newFake("player-1", 2)

	s.registry.Register(u1)
	s.registry.Register(u2)

	_, ok := s.registry.FindByToken(u1.token)
	s.False(ok, "superseded token should resolve to nothing")

	byID, ok := s.registry.FindByID("player-1")
	s.True(ok)
	s.Same(u2, byID)

	byToken, ok := s.registry.FindByToken(u2.token)
	s.True(ok)
	s.Same(u2, byToken)

	s.False(u1.closed, "registry must never close sockets")
	s.Equal(1, s.registry.Count())
}

func (s *RegistrySuite) TestUnregisterSupersededIsNoop() {
	u1 := newFake("player-1", 1)
	u2 := newFake("player-1", 2)
	s.registry.Register(u1)
	s.registry.Register(u2)

	// The superseded connection closes later; its unregister must not
	// remove the new connection's entries.
	s.registry.Unregister(u1)

	byID, ok := s.registry.FindByID("player-1")
	s.True(ok)
	s.Same(u2, byID)
	_, ok = s.registry.FindByToken(u2.token)
	s.True(ok)
}

func (s *RegistrySuite) TestUnregister() {
	u := newFake("player-1", 1)
	s.registry.Register(u)
	s.registry.Unregister(u)

	_, ok := s.registry.FindByID("player-1")
	s.False(ok)
	_, ok = s.registry.FindByToken(u.token)
	s.False(ok)
	s.Equal(0, s.registry.Count())
}

func (s *RegistrySuite) TestAllSnapshotsEverySession() {
	u1 := newFake("player-1", 1)
	u2 := newFake("player-2", 2)
	s.registry.Register(u1)
	s.registry.Register(u2)

	all := s.registry.All()
	s.Len(all, 2)
	s.ElementsMatch([]Session{u1, u2}, all)
}

func (s *RegistrySuite) TestCount() {
	s.Equal(0, s.registry.Count())
	s.registry.Register(newFake("player-1", 1))
	s.registry.Register(newFake("player-2", 2))
	s.Equal(2, s.registry.Count())
}
