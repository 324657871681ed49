package loadgen

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/chatload/internal/logging"
	"github.com/wesleyorama2/chatload/internal/metrics"
)

// Config controls how many users run and for how long.
type Config struct {
	// Users is the number of virtual users to spawn.
	Users int

	// SpawnRate is how many users are started per second.
	SpawnRate float64

	// RunTime bounds the run. Zero runs until the context is cancelled.
	RunTime time.Duration

	// StopTimeout is how long users get to finish their current task
	// before their context is cancelled.
	StopTimeout time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Users <= 0 {
		return fmt.Errorf("users must be positive, got %d", c.Users)
	}
	if c.SpawnRate <= 0 {
		return fmt.Errorf("spawn rate must be positive, got %g", c.SpawnRate)
	}
	if c.RunTime < 0 {
		return fmt.Errorf("run time must not be negative, got %s", c.RunTime)
	}
	if c.StopTimeout < 0 {
		return fmt.Errorf("stop timeout must not be negative, got %s", c.StopTimeout)
	}
	return nil
}

// Stats summarizes a run.
type Stats struct {
	Spawned    int   `json:"spawned"`
	Active     int   `json:"active"`
	Iterations int64 `json:"iterations"`
	TaskErrors int64 `json:"taskErrors"`
}

// Runner spawns users produced by a Factory at a fixed rate, keeps them
// running, and stops them when the run ends.
type Runner struct {
	config  Config
	factory Factory
	metrics *metrics.Engine
	logger  *zap.Logger

	spawned atomic.Int64

	// activeMu orders updates of active with their publication to metrics.
	activeMu sync.Mutex
	active   atomic.Int32

	vus   []*VirtualUser
	vusMu sync.Mutex
}

// NewRunner creates a runner. metricsEngine may be nil.
func NewRunner(config Config, factory Factory, metricsEngine *metrics.Engine, logger *zap.Logger) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("user factory is required")
	}
	if config.StopTimeout == 0 {
		config.StopTimeout = 10 * time.Second
	}

	return &Runner{
		config:  config,
		factory: factory,
		metrics: metricsEngine,
		logger:  logging.OrNop(logger),
	}, nil
}

// Run spawns the users and blocks until the run time elapses or ctx is
// cancelled, then stops every user. Ending by ctx cancellation is not an
// error.
func (r *Runner) Run(ctx context.Context) error {
	runCtx := ctx
	if r.config.RunTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.RunTime)
		defer cancel()
	}

	// Users outlive runCtx by up to StopTimeout so in-flight tasks can finish.
	userCtx, cancelUsers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelUsers()

	r.logger.Info("spawning users",
		zap.Int("users", r.config.Users),
		zap.Float64("spawnRate", r.config.SpawnRate),
		zap.Duration("runTime", r.config.RunTime))

	var g errgroup.Group
	spawnErr := r.spawn(runCtx, userCtx, &g)
	if spawnErr == nil {
		<-runCtx.Done()
	}

	r.logger.Info("stopping users", zap.Int("active", int(r.active.Load())))
	r.stopAll()

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(r.config.StopTimeout):
		r.logger.Warn("stop timeout expired, aborting in-flight tasks",
			zap.Duration("stopTimeout", r.config.StopTimeout))
		cancelUsers()
		<-done
	}

	stats := r.Stats()
	r.logger.Info("run finished",
		zap.Int("spawned", stats.Spawned),
		zap.Int64("iterations", stats.Iterations),
		zap.Int64("taskErrors", stats.TaskErrors))

	return spawnErr
}

// spawn starts users at the configured rate until all are running or runCtx
// ends.
func (r *Runner) spawn(runCtx, userCtx context.Context, g *errgroup.Group) error {
	limiter := rate.NewLimiter(rate.Limit(r.config.SpawnRate), 1)

	for i := 0; i < r.config.Users; i++ {
		if err := limiter.Wait(runCtx); err != nil {
			// run ended before every user was spawned
			return nil
		}

		index := int(r.spawned.Add(1) - 1)
		vu, err := NewVirtualUser(index, r.factory(index), r.logger)
		if err != nil {
			return fmt.Errorf("spawn user %d: %w", index, err)
		}

		r.vusMu.Lock()
		r.vus = append(r.vus, vu)
		r.vusMu.Unlock()

		g.Go(func() error {
			r.addActive(1)
			defer r.addActive(-1)

			return vu.Run(userCtx)
		})
	}

	r.logger.Info("all users spawned", zap.Int("users", r.config.Users))
	return nil
}

func (r *Runner) addActive(delta int32) {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()

	n := r.active.Add(delta)
	if r.metrics != nil {
		r.metrics.SetActiveUsers(int(n))
	}
}

func (r *Runner) stopAll() {
	r.vusMu.Lock()
	defer r.vusMu.Unlock()

	for _, vu := range r.vus {
		vu.RequestStop()
	}
}

// Stats returns a snapshot of the run counters.
func (r *Runner) Stats() Stats {
	r.vusMu.Lock()
	defer r.vusMu.Unlock()

	stats := Stats{
		Spawned: int(r.spawned.Load()),
		Active:  int(r.active.Load()),
	}
	for _, vu := range r.vus {
		stats.Iterations += vu.Iterations()
		stats.TaskErrors += vu.TaskErrors()
	}
	return stats
}
