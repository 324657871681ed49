package output

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/chatload/internal/metrics"
)

const clearLine = "\r\033[2K"

// ProgressConfig contains configuration for Progress.
type ProgressConfig struct {
	Writer      io.Writer
	Interval    time.Duration
	RunTime     time.Duration
	TargetUsers int
	Colors      bool
}

// Progress keeps a single status line up to date while a run is in flight.
type Progress struct {
	config ProgressConfig
	scheme *ColorScheme

	mu           sync.Mutex
	lastTotal    int64
	lastTick     time.Time
	wroteAnyLine bool
}

// NewProgress creates a progress line writer.
func NewProgress(config ProgressConfig) *Progress {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	scheme := NoColorScheme()
	if config.Colors {
		scheme = DefaultColorScheme().forceColors()
	}
	return &Progress{config: config, scheme: scheme}
}

// ProgressEnabled reports whether a progress line makes sense on w.
func ProgressEnabled(w io.Writer) bool {
	return isTerminal(w)
}

// Run redraws the status line every interval until ctx is cancelled, then
// erases it so the summary starts on a clean line.
func (p *Progress) Run(ctx context.Context, engine *metrics.Engine) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.mu.Lock()
	p.lastTick = time.Now()
	p.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			p.clear()
			return
		case now := <-ticker.C:
			p.update(engine.Snapshot(), now)
		}
	}
}

func (p *Progress) update(snap *metrics.Snapshot, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rps := 0.0
	if dt := now.Sub(p.lastTick).Seconds(); dt > 0 {
		rps = float64(snap.TotalRequests-p.lastTotal) / dt
	}
	p.lastTotal = snap.TotalRequests
	p.lastTick = now

	fmt.Fprint(p.config.Writer, clearLine+p.render(snap, rps))
	p.wroteAnyLine = true
}

func (p *Progress) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wroteAnyLine {
		fmt.Fprint(p.config.Writer, clearLine)
	}
}

// render formats one status line:
//
//	[12s/2m0s] users 10/50 | reqs 1234 (45.6/s) | fails 3 (0.2%) | p95 12.0ms
func (p *Progress) render(snap *metrics.Snapshot, rps float64) string {
	var sb strings.Builder

	elapsed := snap.Elapsed.Round(time.Second)
	if p.config.RunTime > 0 {
		sb.WriteString(p.scheme.Dim.Sprintf("[%s/%s]", elapsed, p.config.RunTime))
	} else {
		sb.WriteString(p.scheme.Dim.Sprintf("[%s]", elapsed))
	}

	fmt.Fprintf(&sb, " users %s/%d", p.scheme.Highlight.Sprint(snap.ActiveUsers), p.config.TargetUsers)
	fmt.Fprintf(&sb, " | reqs %d (%.1f/s)", snap.TotalRequests, rps)

	fails := fmt.Sprintf("fails %d (%.1f%%)", snap.FailedRequests, snap.ErrorRate*100)
	if snap.FailedRequests > 0 {
		fails = p.scheme.Error.Sprint(fails)
	} else {
		fails = p.scheme.Success.Sprint(fails)
	}
	sb.WriteString(" | " + fails)

	fmt.Fprintf(&sb, " | p95 %sms", millis(snap.Latency.P95))
	return sb.String()
}
