package cassandra

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Selector picks one contact point for a session slot. endpoints is never
// empty.
type Selector func(endpoints []string, slot int) string

func RoundRobin(endpoints []string, slot int) string {
	if slot < 0 {
		slot = -slot
	}
	return endpoints[slot%len(endpoints)]
}

// Uniform picks a contact point at random, ignoring the slot.
func Uniform(r *rand.Rand) Selector {
	var mu sync.Mutex
	return func(endpoints []string, _ int) string {
		mu.Lock()
		defer mu.Unlock()
		return endpoints[r.IntN(len(endpoints))]
	}
}

// Fixed always returns the endpoint at index i, clamped to the list.
func Fixed(i int) Selector {
	return func(endpoints []string, _ int) string {
		if i < 0 || i >= len(endpoints) {
			return endpoints[0]
		}
		return endpoints[i]
	}
}

// ParseSelector maps the configured mode to a selector. seed feeds the
// random mode so runs can be replayed; fixed is the pinned index.
func ParseSelector(mode string, seed uint64, fixed int) (Selector, error) {
	switch mode {
	case "", "round-robin":
		return RoundRobin, nil
	case "random":
		return Uniform(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))), nil
	case "fixed":
		return Fixed(fixed), nil
	default:
		return nil, fmt.Errorf("unknown endpoint selection %q", mode)
	}
}
