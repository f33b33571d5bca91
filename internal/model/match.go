package model

// MatchAdvertisement is a hosted match as advertised to searchers.
// Token is the host's routing token; there is at most one advertisement
// per host at a time.
type MatchAdvertisement struct {
	Token          string            `json:"token"`
	Version        string            `json:"version"`
	TotalSlots     int               `json:"total_slots"`
	AvailableSlots int               `json:"available_slots"`
	Attributes     map[string]string `json:"attributes"`
}

// MatchRequest is a searcher's filter over advertised matches.
type MatchRequest struct {
	Version    string            `json:"version"`
	TotalSlots int               `json:"total_slots"`
	Attributes map[string]string `json:"attributes"`
}
