// internal/relay/selector.go
// Package relay implements the Relay Selector (C7): picking up to N relays
// for a Gateway by great-circle distance, with located relays preferred over
// unlocated ones, plus the presence-churn debouncer that turns raw
// presence.Diff events into coalesced relays_presence pushes.
package relay

import (
	"math/rand"

	"github.com/Voskan/flarego/internal/geo"
	"github.com/Voskan/flarego/internal/presence"
)

// Selector picks relays for a Gateway.
type Selector struct {
	rng *rand.Rand
}

// NewSelector returns a Selector using the given source of randomness (tests
// can inject a seeded one for determinism).
func NewSelector(rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Selector{rng: rng}
}

// Select implements §4.7's algorithm:
//  1. Partition relays into located/unlocated.
//  2. With a gateway location: sort located by distance ascending, take up
//     to n; pad with random unlocated entries if short.
//  3. Without a gateway location: shuffle everything, preferring located
//     first, take up to n.
func (s *Selector) Select(gwLoc geo.LatLon, gwHasLoc bool, relays []presence.RelayEntry, n int) []presence.RelayEntry {
	if n <= 0 || len(relays) == 0 {
		return []presence.RelayEntry{}
	}

	var located, unlocated []presence.RelayEntry
	for _, r := range relays {
		if r.Meta.Lat != nil && r.Meta.Lon != nil {
			located = append(located, r)
		} else {
			unlocated = append(unlocated, r)
		}
	}

	if gwHasLoc {
		sortByDistance(located, gwLoc)
		out := take(located, n)
		if len(out) < n {
			s.shuffle(unlocated)
			out = append(out, take(unlocated, n-len(out))...)
		}
		return out
	}

	// No gateway location: shuffle both groups independently and prefer
	// located first so a tie-break still favors geo-aware relays.
	s.shuffle(located)
	s.shuffle(unlocated)
	combined := append(append([]presence.RelayEntry{}, located...), unlocated...)
	return take(combined, n)
}

func sortByDistance(relays []presence.RelayEntry, gwLoc geo.LatLon) {
	// Small N in practice; a simple insertion sort keeps this allocation-free
	// and avoids pulling in sort.Slice's reflection-based comparator for a
	// handful of elements.
	for i := 1; i < len(relays); i++ {
		j := i
		for j > 0 && distanceOf(relays[j], gwLoc) < distanceOf(relays[j-1], gwLoc) {
			relays[j], relays[j-1] = relays[j-1], relays[j]
			j--
		}
	}
}

func distanceOf(r presence.RelayEntry, gwLoc geo.LatLon) float64 {
	return geo.HaversineKM(gwLoc, geo.LatLon{Lat: *r.Meta.Lat, Lon: *r.Meta.Lon})
}

func take(relays []presence.RelayEntry, n int) []presence.RelayEntry {
	if n >= len(relays) {
		out := make([]presence.RelayEntry, len(relays))
		copy(out, relays)
		return out
	}
	out := make([]presence.RelayEntry, n)
	copy(out, relays[:n])
	return out
}

func (s *Selector) shuffle(relays []presence.RelayEntry) {
	s.rng.Shuffle(len(relays), func(i, j int) { relays[i], relays[j] = relays[j], relays[i] })
}
