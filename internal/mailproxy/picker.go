package mailproxy

import (
	"math/rand"
	"sync"
)

// Picker selects an upstream from the currently healthy set.
type Picker interface {
	Next(targets []string) string
}

type roundRobin struct {
	mu      sync.Mutex
	current int
}

func (r *roundRobin) Next(targets []string) string {
	if len(targets) == 0 {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	target := targets[r.current%len(targets)]
	r.current++

	return target
}

type random struct{}

func (random) Next(targets []string) string {
	if len(targets) == 0 {
		return ""
	}
	return targets[rand.Intn(len(targets))]
}

func newPicker(strategy string) Picker {
	if strategy == "random" {
		return random{}
	}
	return &roundRobin{}
}
