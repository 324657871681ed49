// Package config loads and validates chatload run configurations.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RunConfig is the root configuration for a load run.
//
// Example YAML:
//
//	name: chat smoke
//	host: http://localhost:8080
//	users: 50
//	spawnRate: 5
//	runTime: 2m
//	waitTime: {min: 1s, max: 3s}
//	tasks: {health: 1}
type RunConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Host is the base URL of the chat API
	Host string `json:"host" yaml:"host"`

	// Users is the number of simulated users
	Users int `json:"users,omitempty" yaml:"users,omitempty"`

	// SpawnRate is the number of users started per second
	SpawnRate float64 `json:"spawnRate,omitempty" yaml:"spawnRate,omitempty"`

	// RunTime bounds the run; zero runs until interrupted
	RunTime Duration `json:"runTime,omitempty" yaml:"runTime,omitempty"`

	// StopTimeout is the grace period for in-flight actions at the end of a run
	StopTimeout Duration `json:"stopTimeout,omitempty" yaml:"stopTimeout,omitempty"`

	// WaitTime is the think time between actions
	WaitTime WaitTime `json:"waitTime,omitempty" yaml:"waitTime,omitempty"`

	// Tasks holds the action weights
	Tasks *TaskWeights `json:"tasks,omitempty" yaml:"tasks,omitempty"`

	HTTP    HTTPSettings    `json:"http,omitempty" yaml:"http,omitempty"`
	Metrics MetricsSettings `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// WaitTime is a uniform think-time range.
type WaitTime struct {
	Min Duration `json:"min" yaml:"min"`
	Max Duration `json:"max" yaml:"max"`
}

// TaskWeights sets how often each action is picked.
type TaskWeights struct {
	Health   int `json:"health" yaml:"health"`
	Messages int `json:"messages" yaml:"messages"`
	Socket   int `json:"socket" yaml:"socket"`
}

// HTTPSettings contains the transport settings shared by all users.
type HTTPSettings struct {
	// Timeout is the HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is sent with every request
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	// Listen is the address serving /metrics; empty disables it
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from "30s" style
// strings or plain integer seconds.
type Duration time.Duration

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// GetDuration returns the duration or a default if zero.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}

	dur, err := ParseDurationString(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
