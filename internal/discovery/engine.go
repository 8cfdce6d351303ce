// Package discovery implements the stateless filter matching that lets a
// peer select counterparts by role, tags and advertised properties.
package discovery

import (
	"github.com/signalcraft/beacon/internal/domain"
)

// PeerSummary is the discovery-facing projection of a registered peer.
type PeerSummary struct {
	PeerID   string          `json:"peer_id"`
	Role     domain.Role     `json:"role"`
	Metadata domain.Metadata `json:"metadata"`
}

// Find evaluates the filter against a snapshot of the room's peers. It
// never mutates state and never blocks. No ordering is guaranteed; callers
// wanting a "best" peer apply their own selection over the result.
func Find(room *domain.Room, filter Filter) []PeerSummary {
	peers := room.SnapshotPeers()

	matches := make([]PeerSummary, 0, len(peers))
	for _, peer := range peers {
		if !matchesPeer(peer, filter) {
			continue
		}
		matches = append(matches, PeerSummary{
			PeerID:   peer.PeerID,
			Role:     peer.Role,
			Metadata: peer.Metadata,
		})
	}

	return matches
}

func matchesPeer(peer domain.PeerHandle, filter Filter) bool {
	if filter.Role != "" && string(peer.Role) != filter.Role {
		return false
	}

	// Tag matching is a union: any shared tag qualifies.
	if len(filter.Tags) > 0 && !peer.Metadata.TagSet().ContainsAny(filter.Tags...) {
		return false
	}

	// Every requested property must exist and satisfy its predicate; a
	// missing key is a failed match, never a default pass.
	for key, predicate := range filter.Properties {
		value, present := peer.Metadata.Properties[key]
		if !present || !predicate.Matches(value) {
			return false
		}
	}

	return true
}
