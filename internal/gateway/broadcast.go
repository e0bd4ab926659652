package gateway

import "github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"

// MatchSessions selects the sessions an event should reach from a
// registry snapshot, unioning three rules: exact key, the literal "*",
// and wildcard/prefix keys (see subkey.Matches). The result is
// duplicate-free.
func MatchSessions(eventKey string, snapshot map[string][]string) []string {
	seen := make(map[string]struct{})
	var out []string

	for pattern, sessions := range snapshot {
		if !subkey.Matches(pattern, eventKey) {
			continue
		}
		for _, id := range sessions {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
