// Package matchmaking filters advertised matches against a search
// request. A match token is the host's routing token, so the result of
// a search is directly addressable through the relay.
package matchmaking

import "github.com/arcadelink/relay/internal/model"

// Matches reports whether one advertisement satisfies the request:
// exact version equality, enough available slots for the requested
// party size, and every requested attribute present with an equal
// value. Extra attributes on the advertisement are ignored.
func Matches(ad model.MatchAdvertisement, req model.MatchRequest) bool {
	if ad.Version != req.Version {
		return false
	}
	if req.TotalSlots > ad.AvailableSlots {
		return false
	}
	for key, want := range req.Attributes {
		if got, ok := ad.Attributes[key]; !ok || got != want {
			return false
		}
	}
	return true
}

// Filter returns the tokens of the advertisements matching the request.
// Only the token is exposed to the searcher.
func Filter(ads []model.MatchAdvertisement, req model.MatchRequest) []string {
	var tokens []string
	for _, ad := range ads {
		if Matches(ad, req) {
			tokens = append(tokens, ad.Token)
		}
	}
	return tokens
}
