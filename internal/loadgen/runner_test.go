package loadgen

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/chatload/internal/metrics"
)

type userFarm struct {
	mu    sync.Mutex
	users []*fakeUser
	wait  time.Duration
}

func (f *userFarm) factory(index int) User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &fakeUser{index: index, wait: f.wait}
	f.users = append(f.users, u)
	return u
}

func (f *userFarm) snapshot() []*fakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeUser(nil), f.users...)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid", config: Config{Users: 10, SpawnRate: 2, RunTime: time.Minute}},
		{name: "until cancelled", config: Config{Users: 1, SpawnRate: 1}},
		{name: "no users", config: Config{Users: 0, SpawnRate: 1}, wantErr: true},
		{name: "no spawn rate", config: Config{Users: 1}, wantErr: true},
		{name: "negative run time", config: Config{Users: 1, SpawnRate: 1, RunTime: -time.Second}, wantErr: true},
		{name: "negative stop timeout", config: Config{Users: 1, SpawnRate: 1, StopTimeout: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRunner_RequiresFactory(t *testing.T) {
	_, err := NewRunner(Config{Users: 1, SpawnRate: 1}, nil, nil, nil)
	assert.Error(t, err)
}

func TestRunner_SpawnsAllUsersWithSpawnOrderIndexes(t *testing.T) {
	farm := &userFarm{wait: 5 * time.Millisecond}
	engine := metrics.NewEngine()

	runner, err := NewRunner(Config{
		Users:     5,
		SpawnRate: 1000,
		RunTime:   150 * time.Millisecond,
	}, farm.factory, engine, nil)
	require.NoError(t, err)

	require.NoError(t, runner.Run(context.Background()))

	users := farm.snapshot()
	require.Len(t, users, 5)
	for i, u := range users {
		assert.Equal(t, i, u.index, "spawn index")
		assert.EqualValues(t, 1, u.started.Load(), "user %d start hook", i)
		assert.EqualValues(t, 1, u.stopped.Load(), "user %d stop hook", i)
		assert.Positive(t, u.executed.Load(), "user %d ran no tasks", i)
	}

	stats := runner.Stats()
	assert.Equal(t, 5, stats.Spawned)
	assert.Equal(t, 0, stats.Active)
	assert.Positive(t, stats.Iterations)
	assert.Equal(t, 0, engine.ActiveUsers())
}

func TestRunner_SpawnRateLimitsRampUp(t *testing.T) {
	farm := &userFarm{wait: 10 * time.Millisecond}

	runner, err := NewRunner(Config{
		Users:     10,
		SpawnRate: 10, // one user every 100ms
		RunTime:   250 * time.Millisecond,
	}, farm.factory, nil, nil)
	require.NoError(t, err)

	require.NoError(t, runner.Run(context.Background()))

	spawned := runner.Stats().Spawned
	assert.GreaterOrEqual(t, spawned, 2)
	assert.LessOrEqual(t, spawned, 4)
}

func TestRunner_StopsOnContextCancel(t *testing.T) {
	farm := &userFarm{wait: time.Millisecond}

	runner, err := NewRunner(Config{Users: 3, SpawnRate: 1000}, farm.factory, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool { return runner.Stats().Active == 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}

	for _, u := range farm.snapshot() {
		assert.EqualValues(t, 1, u.stopped.Load())
	}
}

func TestRunner_PublishesActiveUsers(t *testing.T) {
	farm := &userFarm{wait: time.Millisecond}
	engine := metrics.NewEngine()

	runner, err := NewRunner(Config{Users: 4, SpawnRate: 1000}, farm.factory, engine, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool { return engine.ActiveUsers() == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, 4, engine.Snapshot().ActiveUsers)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
	assert.Equal(t, 0, engine.ActiveUsers())
}

func TestRunner_ActiveUsersSettleAtZero(t *testing.T) {
	for i := 0; i < 20; i++ {
		farm := &userFarm{wait: time.Millisecond}
		engine := metrics.NewEngine()

		runner, err := NewRunner(Config{
			Users:     64,
			SpawnRate: 100000,
			RunTime:   20 * time.Millisecond,
		}, farm.factory, engine, nil)
		require.NoError(t, err)

		require.NoError(t, runner.Run(context.Background()))
		require.Equal(t, 0, engine.ActiveUsers(), "run %d", i)
	}
}

// slowUser blocks in its task until its context is cancelled.
type slowUser struct {
	fakeUser
	aborted chan struct{}
}

func (u *slowUser) Tasks() []Task {
	return []Task{{Name: "hang", Weight: 1, Run: func(ctx context.Context) error {
		<-ctx.Done()
		close(u.aborted)
		return ctx.Err()
	}}}
}

func TestRunner_StopTimeoutAbortsInFlightTasks(t *testing.T) {
	user := &slowUser{aborted: make(chan struct{})}

	runner, err := NewRunner(Config{
		Users:       1,
		SpawnRate:   100,
		RunTime:     20 * time.Millisecond,
		StopTimeout: 20 * time.Millisecond,
	}, func(int) User { return user }, nil, nil)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, runner.Run(context.Background()))
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-user.aborted:
	default:
		t.Fatal("in-flight task was not cancelled after the stop timeout")
	}
	assert.EqualValues(t, 1, user.stopped.Load())
}

func TestRunner_FactoryWithoutTasks(t *testing.T) {
	runner, err := NewRunner(Config{Users: 2, SpawnRate: 100, RunTime: time.Second},
		func(int) User { return &emptyUser{} }, nil, nil)
	require.NoError(t, err)

	err = runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoTasks)
}
