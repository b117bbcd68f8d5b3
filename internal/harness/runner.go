package harness

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/sheetload/internal/metrics"
)

// ErrAlreadyStarted is returned when Run is called more than once.
var ErrAlreadyStarted = errors.New("harness: runner already started")

// Config controls how many users run, how fast they arrive and for how long.
type Config struct {
	// Users is the number of simulated users to spawn.
	Users int

	// SpawnRate is how many users start per second.
	SpawnRate float64

	// RunTime bounds the run; zero runs until the context is cancelled.
	RunTime time.Duration

	// StopTimeout is how long running tasks may finish once the run ends
	// before their requests are aborted.
	StopTimeout time.Duration

	// Wait is the think time between two tasks of a user.
	Wait WaitTime

	// Seed makes task selection and think time reproducible. Zero is random.
	Seed uint64
}

// Validate checks the runner configuration.
func (c Config) Validate() error {
	switch {
	case c.Users <= 0:
		return fmt.Errorf("harness: users must be > 0, got %d", c.Users)
	case c.SpawnRate <= 0:
		return fmt.Errorf("harness: spawn rate must be > 0, got %g", c.SpawnRate)
	case c.RunTime < 0:
		return fmt.Errorf("harness: run time must be >= 0, got %s", c.RunTime)
	case c.StopTimeout < 0:
		return fmt.Errorf("harness: stop timeout must be >= 0, got %s", c.StopTimeout)
	case c.Wait.Min < 0 || c.Wait.Max < c.Wait.Min:
		return fmt.Errorf("harness: invalid wait time [%s, %s]", c.Wait.Min, c.Wait.Max)
	}
	return nil
}

// Result summarizes a finished run.
type Result struct {
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime"`
	Duration     time.Duration `json:"duration"`
	UsersSpawned int           `json:"usersSpawned"`
	Iterations   int64         `json:"iterations"`
	TaskErrors   int64         `json:"taskErrors"`
	// Aborted counts users whose running task outlived the stop timeout.
	Aborted int `json:"aborted"`
}

// Runner spawns virtual users and drives them until the run ends.
type Runner struct {
	config  Config
	factory BehaviorFactory
	metrics *metrics.Engine
	events  *Events
	logger  *zap.Logger

	vus   []*VirtualUser
	vusMu sync.RWMutex
	wg    sync.WaitGroup

	active    atomic.Int32
	started   atomic.Bool
	running   atomic.Bool
	startTime atomic.Pointer[time.Time]
	seed      uint64
}

// NewRunner creates a runner. events and logger may be nil.
func NewRunner(config Config, factory BehaviorFactory, engine *metrics.Engine, events *Events, logger *zap.Logger) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, errors.New("harness: behavior factory is required")
	}
	if engine == nil {
		engine = metrics.NewEngine()
	}
	if events == nil {
		events = NewEvents()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Runner{
		config:  config,
		factory: factory,
		metrics: engine,
		events:  events,
		logger:  logger,
		seed:    seed,
	}, nil
}

// Run fires the start event, spawns users at the configured rate, waits for
// the run to end, stops every user and fires the stop event.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if !r.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	start := time.Now()
	r.startTime.Store(&start)
	r.running.Store(true)
	defer r.running.Store(false)

	r.events.fireStart(r)

	runCtx := ctx
	if r.config.RunTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.RunTime)
		defer cancel()
	}

	// Users outlive both runCtx and ctx by up to StopTimeout so a running
	// task can finish; only stopAll cancels them.
	userCtx, cancelUsers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelUsers()

	r.spawn(runCtx, userCtx)

	<-runCtx.Done()
	r.logger.Info("stopping users", zap.Int("users", r.ActiveUsers()))

	aborted := r.stopAll(cancelUsers)

	result := &Result{
		StartTime:    start,
		EndTime:      time.Now(),
		UsersSpawned: r.SpawnedUsers(),
		Aborted:      aborted,
	}
	result.Duration = result.EndTime.Sub(result.StartTime)
	for _, vu := range r.Users() {
		result.Iterations += vu.Iterations()
		result.TaskErrors += vu.TaskErrors()
	}

	r.events.fireStop(r)

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return result, err
	}
	return result, nil
}

// spawn starts users at SpawnRate until all are running or runCtx ends.
func (r *Runner) spawn(runCtx, userCtx context.Context) {
	limiter := rate.NewLimiter(rate.Limit(r.config.SpawnRate), 1)

	for i := 0; i < r.config.Users; i++ {
		if err := limiter.Wait(runCtx); err != nil {
			r.logger.Info("spawning interrupted", zap.Int("spawned", i), zap.Int("users", r.config.Users))
			return
		}

		id := i + 1
		vu, err := NewVirtualUser(id, r.factory(id), r.config.Wait, r.seed, r.logger.Named("user"))
		if err != nil {
			r.logger.Error("cannot create user", zap.Int("user", id), zap.Error(err))
			continue
		}

		r.vusMu.Lock()
		r.vus = append(r.vus, vu)
		r.vusMu.Unlock()

		r.wg.Add(1)
		go r.runVU(userCtx, vu)
	}
	r.logger.Info("all users spawned", zap.Int("users", r.config.Users))
}

func (r *Runner) runVU(ctx context.Context, vu *VirtualUser) {
	defer r.wg.Done()

	r.metrics.SetActiveUsers(int(r.active.Add(1)))
	defer func() {
		r.metrics.SetActiveUsers(int(r.active.Add(-1)))
	}()

	vu.Run(ctx)
}

// stopAll asks every user to stop, gives them StopTimeout to finish their
// task and then aborts the rest. It returns the number of aborted users.
func (r *Runner) stopAll(cancelUsers context.CancelFunc) int {
	users := r.Users()
	for _, vu := range users {
		vu.RequestStop()
	}

	deadline := time.Now().Add(r.config.StopTimeout)
	aborted := 0
	for _, vu := range users {
		if !vu.WaitForStop(time.Until(deadline)) {
			aborted++
		}
	}

	cancelUsers()
	r.wg.Wait()
	return aborted
}

// Users returns every user spawned so far.
func (r *Runner) Users() []*VirtualUser {
	r.vusMu.RLock()
	defer r.vusMu.RUnlock()
	out := make([]*VirtualUser, len(r.vus))
	copy(out, r.vus)
	return out
}

// SpawnedUsers returns how many users have been spawned.
func (r *Runner) SpawnedUsers() int {
	r.vusMu.RLock()
	defer r.vusMu.RUnlock()
	return len(r.vus)
}

// ActiveUsers returns how many users are currently running.
func (r *Runner) ActiveUsers() int {
	return int(r.active.Load())
}

// TargetUsers returns the configured user count.
func (r *Runner) TargetUsers() int {
	return r.config.Users
}

// IsRunning reports whether Run is in progress.
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Metrics returns the metrics engine users report to.
func (r *Runner) Metrics() *metrics.Engine {
	return r.metrics
}

// Elapsed returns the time since Run started.
func (r *Runner) Elapsed() time.Duration {
	start := r.startTime.Load()
	if start == nil {
		return 0
	}
	return time.Since(*start)
}

// Progress returns the completed fraction of a timed run (0.0 to 1.0), or 0
// for a run without a run time.
func (r *Runner) Progress() float64 {
	if r.config.RunTime <= 0 {
		return 0
	}
	p := float64(r.Elapsed()) / float64(r.config.RunTime)
	if p > 1 {
		return 1
	}
	return p
}
