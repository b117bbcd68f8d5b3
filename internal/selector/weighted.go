// Package selector provides weighted random selection of simulated user tasks.
package selector

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// Errors returned by the selector package.
var (
	// ErrNoTasks is returned when there is nothing with a positive weight to select.
	ErrNoTasks = errors.New("selector: no tasks available")
	// ErrInvalidWeight is returned when an entry has a negative weight.
	ErrInvalidWeight = errors.New("selector: invalid weight")
)

// Entry is a named item with a relative selection weight.
type Entry[T any] struct {
	Name   string
	Weight int
	Value  T
}

type weightedEntry[T any] struct {
	entry            Entry[T]
	cumulativeWeight int
}

// Weighted picks entries with probability proportional to their weight.
//
// A Weighted is immutable after construction and may be shared between
// goroutines as long as each caller passes its own *rand.Rand to Pick.
type Weighted[T any] struct {
	entries     []weightedEntry[T]
	totalWeight int
}

// New builds a selector. Zero-weight entries are kept out of the pool.
func New[T any](entries []Entry[T]) (*Weighted[T], error) {
	w := &Weighted[T]{}

	for _, e := range entries {
		if e.Weight < 0 {
			return nil, fmt.Errorf("%w: %s has weight %d", ErrInvalidWeight, e.Name, e.Weight)
		}
		if e.Weight == 0 {
			continue
		}
		w.totalWeight += e.Weight
		w.entries = append(w.entries, weightedEntry[T]{entry: e, cumulativeWeight: w.totalWeight})
	}

	if w.totalWeight == 0 {
		return nil, ErrNoTasks
	}
	return w, nil
}

// Pick selects an entry using r as the randomness source.
func (w *Weighted[T]) Pick(r *rand.Rand) Entry[T] {
	target := r.IntN(w.totalWeight)

	// Binary search for the first entry whose cumulative weight exceeds target.
	low, high := 0, len(w.entries)-1
	for low < high {
		mid := (low + high) / 2
		if w.entries[mid].cumulativeWeight <= target {
			low = mid + 1
		} else {
			high = mid
		}
	}
	return w.entries[low].entry
}

// TotalWeight returns the sum of all positive weights.
func (w *Weighted[T]) TotalWeight() int {
	return w.totalWeight
}

// Len returns the number of selectable entries.
func (w *Weighted[T]) Len() int {
	return len(w.entries)
}

// Probability returns the selection probability of the named entry.
func (w *Weighted[T]) Probability(name string) float64 {
	for _, e := range w.entries {
		if e.entry.Name == name {
			return float64(e.entry.Weight) / float64(w.totalWeight)
		}
	}
	return 0
}
