package matchmaking

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/arcadelink/relay/internal/model"
)

type FilterSuite struct {
	suite.Suite
}

func TestFilterSuite(t *testing.T) {
	suite.Run(t, new(FilterSuite))
}

func (s *FilterSuite) ad() model.MatchAdvertisement {
	return model.MatchAdvertisement{
		Token:          "host-token",
		Version:        "1.0",
		TotalSlots:     4,
		AvailableSlots: 2,
		Attributes:     map[string]string{"map": "dunes", "mode": "ffa"},
	}
}

func (s *FilterSuite) TestVersionMustMatchExactly() {
	req := model.MatchRequest{Version: "1.0", TotalSlots: 1}
	s.True(Matches(s.ad(), req))

	req.Version = "1.0.0"
	s.False(Matches(s.ad(), req))
}

func (s *FilterSuite) TestSlotBoundary() {
	// 2 available slots: a party of 3 is excluded, a party of 2 fits.
	req := model.MatchRequest{Version: "1.0", TotalSlots: 3}
	s.False(Matches(s.ad(), req))

	req.TotalSlots = 2
	s.True(Matches(s.ad(), req))
}

func (s *FilterSuite) TestAttributesMustAllMatch() {
	req := model.MatchRequest{
		Version:    "1.0",
		TotalSlots: 1,
		Attributes: map[string]string{"map": "dunes"},
	}
	s.True(Matches(s.ad(), req), "extra candidate attributes are ignored")

	req.Attributes["mode"] = "duel"
	s.False(Matches(s.ad(), req), "differing value excludes")

	req.Attributes = map[string]string{"region": "eu"}
	s.False(Matches(s.ad(), req), "missing key excludes")
}

func (s *FilterSuite) TestEmptyRequestAttributes() {
	req := model.MatchRequest{Version: "1.0", TotalSlots: 1}
	s.True(Matches(s.ad(), req))
}

func (s *FilterSuite) TestFilterReturnsTokensOnly() {
	ads := []model.MatchAdvertisement{
		s.ad(),
		{Token: "other-token", Version: "2.0", TotalSlots: 2, AvailableSlots: 2},
		{Token: "third-token", Version: "1.0", TotalSlots: 8, AvailableSlots: 8},
	}

	got := Filter(ads, model.MatchRequest{Version: "1.0", TotalSlots: 2})
	s.Equal([]string{"host-token", "third-token"}, got)
}

func (s *FilterSuite) TestFilterNoMatches() {
	got := Filter([]model.MatchAdvertisement{s.ad()}, model.MatchRequest{Version: "9.9", TotalSlots: 1})
	s.Empty(got)
}
