// Package loadgen hosts user behaviour profiles: it spawns virtual users,
// runs their start hook once and then keeps picking weighted tasks with a
// think time between them until the run ends.
package loadgen

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

var (
	// ErrNoTasks is returned when a user has no task with a positive weight.
	ErrNoTasks = errors.New("user has no runnable tasks")

	// ErrStopped is returned when Run is called on a stopping or stopped user.
	ErrStopped = errors.New("virtual user is stopping or stopped")
)

// User is the behaviour of one simulated client.
type User interface {
	// OnStart runs once before the first task.
	OnStart(ctx context.Context) error

	// Tasks lists the repeatable actions and their relative weights.
	Tasks() []Task

	// Wait returns the think time to apply after each task.
	Wait() time.Duration

	// OnStop runs once when the user is torn down.
	OnStop(ctx context.Context)
}

// Factory builds the User for the given spawn-order index (0-based).
type Factory func(index int) User

// Task is one weighted action.
type Task struct {
	Name   string
	Weight int
	Run    func(ctx context.Context) error
}

// WaitFunc samples a think time.
type WaitFunc func() time.Duration

// Between returns a WaitFunc sampling uniformly from [min, max].
func Between(min, max time.Duration) WaitFunc {
	if max <= min {
		return Constant(min)
	}
	span := int64(max - min)
	switch {
	case span < 0:
		// max-min overflowed
		span = math.MaxInt64
	case span < math.MaxInt64:
		span++
	}
	return func() time.Duration {
		return min + time.Duration(rand.Int63n(span))
	}
}

// Constant returns a WaitFunc that always waits d.
func Constant(d time.Duration) WaitFunc {
	return func() time.Duration { return d }
}
