package loadgen

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestBetween(t *testing.T) {
	wait := Between(time.Second, 3*time.Second)
	for i := 0; i < 1000; i++ {
		d := wait()
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("Between(1s, 3s) sampled %v", d)
		}
	}
}

func TestBetween_Degenerate(t *testing.T) {
	if got := Between(2*time.Second, 2*time.Second)(); got != 2*time.Second {
		t.Errorf("Between(2s, 2s)() = %v, want 2s", got)
	}
	if got := Between(3*time.Second, time.Second)(); got != 3*time.Second {
		t.Errorf("Between(3s, 1s)() = %v, want 3s", got)
	}
}

func TestBetween_ExtremeBounds(t *testing.T) {
	tests := []struct {
		name     string
		min, max time.Duration
	}{
		{"widest positive range", 0, math.MaxInt64},
		{"range wider than int64", math.MinInt64, math.MaxInt64},
		{"near the top", math.MaxInt64 - 1, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wait WaitFunc
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("Between(%d, %d) panicked: %v", tt.min, tt.max, r)
					}
				}()
				wait = Between(tt.min, tt.max)
				for i := 0; i < 100; i++ {
					if d := wait(); d < tt.min || d > tt.max {
						t.Fatalf("Between(%d, %d) sampled %d", tt.min, tt.max, d)
					}
				}
			}()
		})
	}
}

func TestConstant(t *testing.T) {
	if got := Constant(250 * time.Millisecond)(); got != 250*time.Millisecond {
		t.Errorf("Constant()() = %v", got)
	}
}

func noop(context.Context) error { return nil }

func TestTaskPicker_RespectsWeights(t *testing.T) {
	picker, err := newTaskPicker([]Task{
		{Name: "health", Weight: 1, Run: noop},
		{Name: "messages", Weight: 3, Run: noop},
		{Name: "disabled", Weight: 0, Run: noop},
	}, 42)
	if err != nil {
		t.Fatalf("newTaskPicker() error = %v", err)
	}

	counts := make(map[string]int)
	const draws = 8000
	for i := 0; i < draws; i++ {
		counts[picker.pick().Name]++
	}

	if counts["disabled"] != 0 {
		t.Errorf("zero-weight task picked %d times", counts["disabled"])
	}
	ratio := float64(counts["messages"]) / float64(draws)
	if ratio < 0.70 || ratio > 0.80 {
		t.Errorf("messages picked %.2f of the time, want ~0.75", ratio)
	}
}

func TestTaskPicker_SingleTask(t *testing.T) {
	picker, err := newTaskPicker([]Task{{Name: "health", Weight: 1, Run: noop}}, 1)
	if err != nil {
		t.Fatalf("newTaskPicker() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		if got := picker.pick().Name; got != "health" {
			t.Fatalf("pick() = %s, want health", got)
		}
	}
}

func TestTaskPicker_NoRunnableTasks(t *testing.T) {
	tests := map[string][]Task{
		"empty":       nil,
		"zero weight": {{Name: "health", Weight: 0, Run: noop}},
		"nil run":     {{Name: "health", Weight: 1}},
	}
	for name, tasks := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := newTaskPicker(tasks, 1); err != ErrNoTasks {
				t.Errorf("newTaskPicker() error = %v, want ErrNoTasks", err)
			}
		})
	}
}
