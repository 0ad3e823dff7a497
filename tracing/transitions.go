package tracing

import (
	"sort"

	"github.com/sarchlab/rubysim/coherence"
	"github.com/sarchlab/rubysim/sim/hooking"
)

// TransitionKey identifies a transition of a controller kind.
type TransitionKey struct {
	Machine coherence.MachineType
	From    coherence.State
	Event   string
	To      coherence.State
}

// TransitionCount is a transition together with how many times it fired.
type TransitionCount struct {
	TransitionKey
	Count uint64
}

// TransitionCounter counts the transitions taken by controllers, which
// tells how much of a protocol a workload covers.
type TransitionCounter struct {
	counts map[TransitionKey]uint64
}

// NewTransitionCounter creates a TransitionCounter.
func NewTransitionCounter() *TransitionCounter {
	return &TransitionCounter{
		counts: make(map[TransitionKey]uint64),
	}
}

// Func counts a transition.
func (c *TransitionCounter) Func(ctx hooking.HookCtx) {
	if ctx.Pos != coherence.HookPosTransition {
		return
	}

	info, ok := ctx.Detail.(coherence.TransitionInfo)
	if !ok {
		return
	}

	c.counts[TransitionKey{
		Machine: info.Machine,
		From:    info.From,
		Event:   info.Event,
		To:      info.To,
	}]++
}

// Count returns how many times a transition fired.
func (c *TransitionCounter) Count(key TransitionKey) uint64 {
	return c.counts[key]
}

// Distinct returns the number of distinct transitions seen.
func (c *TransitionCounter) Distinct() int {
	return len(c.counts)
}

// List returns every transition seen, most frequent first.
func (c *TransitionCounter) List() []TransitionCount {
	list := make([]TransitionCount, 0, len(c.counts))
	for k, n := range c.counts {
		list = append(list, TransitionCount{TransitionKey: k, Count: n})
	}

	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}

		if a.Machine != b.Machine {
			return a.Machine < b.Machine
		}

		if a.From != b.From {
			return a.From < b.From
		}

		if a.Event != b.Event {
			return a.Event < b.Event
		}

		return a.To < b.To
	})

	return list
}
