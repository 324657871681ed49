package loadgen

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/chatload/internal/logging"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU has been created but not started.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is running its start hook or tasks.
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

// VirtualUser drives one User: OnStart once, then task, think time, task...
// until it is stopped or its context is cancelled, then OnStop.
type VirtualUser struct {
	// ID is the spawn-order index handed to the Factory.
	ID int

	user   User
	picker *taskPicker
	logger *zap.Logger

	state  atomic.Int32
	stopCh chan struct{}
	doneCh chan struct{}

	iterations atomic.Int64
	taskErrors atomic.Int64
}

// NewVirtualUser creates a Virtual User around user.
func NewVirtualUser(id int, user User, logger *zap.Logger) (*VirtualUser, error) {
	picker, err := newTaskPicker(user.Tasks(), time.Now().UnixNano()+int64(id))
	if err != nil {
		return nil, err
	}

	return &VirtualUser{
		ID:     id,
		user:   user,
		picker: picker,
		logger: logging.OrNop(logger).With(zap.Int("user", id)),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// Iterations returns the number of tasks executed so far.
func (vu *VirtualUser) Iterations() int64 {
	return vu.iterations.Load()
}

// TaskErrors returns the number of tasks that returned an error.
func (vu *VirtualUser) TaskErrors() int64 {
	return vu.taskErrors.Load()
}

// Run executes the user's lifecycle and blocks until it ends.
//
// Task errors never end the loop; they are counted and logged at debug
// level since the request outcome is already in the metrics.
func (vu *VirtualUser) Run(ctx context.Context) error {
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		// stopped before it ever started
		if vu.GetState() == VUStateStopping {
			vu.MarkStopped()
		}
		return ErrStopped
	}
	defer vu.MarkStopped()
	defer vu.user.OnStop(context.WithoutCancel(ctx))

	if err := vu.user.OnStart(ctx); err != nil {
		vu.logger.Warn("start hook failed", zap.Error(err))
	}

	for {
		if vu.shouldStop(ctx) {
			return nil
		}

		task := vu.picker.pick()
		if err := task.Run(ctx); err != nil && ctx.Err() == nil {
			vu.taskErrors.Add(1)
			vu.logger.Debug("task failed", zap.String("task", task.Name), zap.Error(err))
		}
		vu.iterations.Add(1)

		if !vu.wait(ctx, vu.user.Wait()) {
			return nil
		}
	}
}

func (vu *VirtualUser) shouldStop(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-vu.stopCh:
		return true
	default:
		return false
	}
}

// wait applies think time. It returns false if the VU should exit instead.
func (vu *VirtualUser) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !vu.shouldStop(ctx)
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

// RequestStop signals the VU to stop after its current task.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	case <-time.After(timeout):
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
