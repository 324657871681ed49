// Package output renders the end-of-run summary.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wesleyorama2/chatload/internal/loadgen"
	"github.com/wesleyorama2/chatload/internal/metrics"
)

// Summary is everything reported at the end of a run.
type Summary struct {
	Name     string                 `json:"name,omitempty"`
	Host     string                 `json:"host"`
	RunID    string                 `json:"runId"`
	Elapsed  time.Duration          `json:"elapsed"`
	Users    loadgen.Stats          `json:"users"`
	Totals   *metrics.Snapshot      `json:"totals"`
	Requests []metrics.RequestStats `json:"requests"`
}

// NewSummary collects the final metrics of a run.
func NewSummary(name, host, runID string, users loadgen.Stats, engine *metrics.Engine) *Summary {
	snap := engine.Snapshot()
	return &Summary{
		Name:     name,
		Host:     host,
		RunID:    runID,
		Elapsed:  snap.Elapsed,
		Users:    users,
		Totals:   snap,
		Requests: engine.RequestStats(),
	}
}

// HasFailures reports whether any request failed.
func (s *Summary) HasFailures() bool {
	return s.Totals != nil && s.Totals.FailedRequests > 0
}

// TableOptions controls WriteTable.
type TableOptions struct {
	// Colors enables ANSI colors
	Colors bool
}

const (
	typeWidth = 6
	minName   = 24
)

// WriteTable writes a per-request table followed by an aggregated row, in
// the layout load testers are used to:
//
//	Type   Name             # reqs  # fails |  Avg   Min   Max   Med |  req/s  failures/s
func WriteTable(w io.Writer, s *Summary, opts TableOptions) error {
	scheme := NoColorScheme()
	if opts.Colors {
		scheme = DefaultColorScheme().forceColors()
	}

	nameWidth := minName
	for _, r := range s.Requests {
		if _, name := splitName(r.Name); len(name) > nameWidth {
			nameWidth = len(name)
		}
	}

	tw := &tableWriter{w: w}
	title := "chatload"
	if s.Name != "" {
		title = s.Name
	}
	tw.printf("%s %s\n", scheme.Header.Sprint(title), scheme.Dim.Sprintf("(%s, run %s)", s.Host, s.RunID))

	header := fmt.Sprintf("%-*s %-*s %8s %8s | %7s %7s %7s %7s | %7s %10s",
		typeWidth, "Type", nameWidth, "Name", "# reqs", "# fails", "Avg", "Min", "Max", "Med", "req/s", "failures/s")
	rule := strings.Repeat("-", len(header))

	tw.println(scheme.Header.Sprint(header))
	tw.println(rule)

	secs := s.Elapsed.Seconds()
	for _, r := range s.Requests {
		method, name := splitName(r.Name)
		tw.row(scheme, method, name, nameWidth, r.Latency, r.Failures, secs)
	}
	tw.println(rule)

	if s.Totals != nil {
		tw.row(scheme, "", "Aggregated", nameWidth, s.Totals.Latency, s.Totals.FailedRequests, secs)
	}
	tw.println("")
	tw.printf("users spawned: %d, iterations: %d, task errors: %d, elapsed: %s\n",
		s.Users.Spawned, s.Users.Iterations, s.Users.TaskErrors, s.Elapsed.Round(time.Millisecond))

	if s.HasFailures() {
		tw.printf("%s %s\n", ErrorIcon(!opts.Colors), scheme.Error.Sprintf("%d of %d requests failed",
			s.Totals.FailedRequests, s.Totals.TotalRequests))
	} else {
		tw.printf("%s %s\n", SuccessIcon(!opts.Colors), scheme.Success.Sprint("no failed requests"))
	}

	return tw.err
}

// tableWriter remembers the first write error so rows can be written
// without checking each call.
type tableWriter struct {
	w   io.Writer
	err error
}

func (t *tableWriter) printf(format string, args ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *tableWriter) println(line string) {
	t.printf("%s\n", line)
}

func (t *tableWriter) row(scheme *ColorScheme, method, name string, nameWidth int, l metrics.LatencyStats, failures int64, secs float64) {
	fails := fmt.Sprintf("%8d", failures)
	if failures > 0 {
		fails = scheme.Error.Sprint(fails)
	}

	rps, fps := 0.0, 0.0
	if secs > 0 {
		rps = float64(l.Count) / secs
		fps = float64(failures) / secs
	}

	t.printf("%-*s %s %8d %s | %7s %7s %7s %7s | %7.2f %10.2f\n",
		typeWidth, method,
		scheme.Name.Sprintf("%-*s", nameWidth, name),
		l.Count, fails,
		millis(l.Mean), millis(l.Min), millis(l.Max), millis(l.P50),
		rps, fps)
}

// splitName splits "GET /api/health" into its method and path.
func splitName(requestName string) (string, string) {
	method, name, found := strings.Cut(requestName, " ")
	if !found {
		return "", requestName
	}
	return method, name
}

// millis formats a latency in milliseconds.
func millis(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)
	if ms >= 100 {
		return fmt.Sprintf("%.0f", ms)
	}
	return fmt.Sprintf("%.1f", ms)
}
