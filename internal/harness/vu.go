// Package harness runs simulated users against a service: it spawns virtual
// users at a controlled rate, drives their weighted task loops with think
// time in between, and signals run start and stop to registered listeners.
package harness

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/sheetload/internal/selector"
)

// Task is one weighted action of a simulated user.
type Task struct {
	Name   string
	Weight int
	Run    func(ctx context.Context) error
}

// Behavior defines what a simulated user does.
type Behavior interface {
	// OnStart runs once before the first task. An error is logged and the
	// user carries on with its tasks.
	OnStart(ctx context.Context) error

	// Tasks returns the weighted tasks the user picks from.
	Tasks() []Task
}

// BehaviorFactory creates the behavior of the user with the given id.
type BehaviorFactory func(id int) Behavior

// WaitTime is a uniformly random think time between Min and Max.
type WaitTime struct {
	Min time.Duration
	Max time.Duration
}

// Next returns a think time in [Min, Max].
func (w WaitTime) Next(r *rand.Rand) time.Duration {
	diff := w.Max - w.Min
	if diff <= 0 {
		return w.Min
	}
	return w.Min + time.Duration(r.Int64N(int64(diff)+1))
}

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is created but not started.
	VUStateIdle VUState = iota
	// VUStateStarting indicates the VU is running its OnStart hook.
	VUStateStarting
	// VUStateRunning indicates the VU is executing tasks.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateStarting:
		return "starting"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is one simulated user executing its behavior.
//
// A VU is driven by a single goroutine; only its state and counters are
// read concurrently.
type VirtualUser struct {
	ID int

	behavior Behavior
	tasks    *selector.Weighted[Task]
	wait     WaitTime
	rng      *rand.Rand
	logger   *zap.Logger

	state      atomic.Int32
	iterations atomic.Int64
	taskErrors atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewVirtualUser creates a VU. It fails when the behavior has no task with a
// positive weight.
func NewVirtualUser(id int, behavior Behavior, wait WaitTime, seed uint64, logger *zap.Logger) (*VirtualUser, error) {
	tasks := behavior.Tasks()
	entries := make([]selector.Entry[Task], 0, len(tasks))
	for _, t := range tasks {
		entries = append(entries, selector.Entry[Task]{Name: t.Name, Weight: t.Weight, Value: t})
	}
	sel, err := selector.New(entries)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &VirtualUser{
		ID:       id,
		behavior: behavior,
		tasks:    sel,
		wait:     wait,
		rng:      rand.New(rand.NewPCG(seed, uint64(id))),
		logger:   logger.With(zap.Int("user", id)),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// Iterations returns how many tasks the VU has run.
func (vu *VirtualUser) Iterations() int64 {
	return vu.iterations.Load()
}

// TaskErrors returns how many tasks returned an error.
func (vu *VirtualUser) TaskErrors() int64 {
	return vu.taskErrors.Load()
}

// Run executes OnStart and then the task loop until ctx is done or the VU
// is asked to stop. It always leaves the VU in VUStateStopped.
func (vu *VirtualUser) Run(ctx context.Context) {
	defer vu.MarkStopped()

	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStarting)) {
		return
	}

	if err := vu.behavior.OnStart(ctx); err != nil && ctx.Err() == nil {
		vu.logger.Warn("on_start failed", zap.Error(err))
	}

	if !vu.state.CompareAndSwap(int32(VUStateStarting), int32(VUStateRunning)) {
		return
	}

	for {
		if vu.stopped(ctx) {
			return
		}

		if err := vu.RunIteration(ctx); err != nil && ctx.Err() != nil {
			return
		}

		if !vu.think(ctx) {
			return
		}
	}
}

// RunIteration picks one task by weight and runs it.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	task := vu.tasks.Pick(vu.rng).Value
	vu.iterations.Add(1)

	err := task.Run(ctx)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		vu.taskErrors.Add(1)
		vu.logger.Debug("task failed", zap.String("task", task.Name), zap.Error(err))
	}
	return err
}

// think waits a random wait time. It returns false if the VU should stop.
func (vu *VirtualUser) think(ctx context.Context) bool {
	d := vu.wait.Next(vu.rng)
	if d <= 0 {
		return !vu.stopped(ctx)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-vu.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (vu *VirtualUser) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-vu.stopCh:
		return true
	default:
		return false
	}
}

// RequestStop signals the VU to stop after its current task.
func (vu *VirtualUser) RequestStop() {
	for {
		current := vu.state.Load()
		if VUState(current) == VUStateStopping || VUState(current) == VUStateStopped {
			return
		}
		if vu.state.CompareAndSwap(current, int32(VUStateStopping)) {
			close(vu.stopCh)
			return
		}
	}
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}
