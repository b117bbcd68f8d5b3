package harness

import "sync"

// Listener is notified of a run lifecycle event.
type Listener func(r *Runner)

// Events holds run lifecycle listeners. Listeners are called in
// registration order on the goroutine that runs the Runner.
type Events struct {
	mu      sync.Mutex
	onStart []Listener
	onStop  []Listener
}

// NewEvents returns an empty listener set.
func NewEvents() *Events {
	return &Events{}
}

// OnTestStart registers fn to run once before any user is spawned.
func (e *Events) OnTestStart(fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStart = append(e.onStart, fn)
}

// OnTestStop registers fn to run once after every user has stopped.
func (e *Events) OnTestStop(fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStop = append(e.onStop, fn)
}

func (e *Events) fireStart(r *Runner) {
	for _, fn := range e.snapshot(&e.onStart) {
		fn(r)
	}
}

func (e *Events) fireStop(r *Runner) {
	for _, fn := range e.snapshot(&e.onStop) {
		fn(r)
	}
}

func (e *Events) snapshot(list *[]Listener) []Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Listener, len(*list))
	copy(out, *list)
	return out
}
