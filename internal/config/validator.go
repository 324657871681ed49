package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidConfig wraps every schema and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the configuration after defaults and overrides have been
// applied.
//
// Returns nil if valid, or an error wrapping ErrInvalidConfig and a
// *ValidationErrors listing every problem.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	validateHost(c.Host, errs)

	if c.Users < 1 {
		errs.Add("users", "must be at least 1")
	}
	if c.SpawnRate <= 0 {
		errs.Add("spawnRate", "must be positive")
	}
	if c.RunTime < 0 {
		errs.Add("runTime", "must not be negative")
	}
	if c.StopTimeout < 0 {
		errs.Add("stopTimeout", "must not be negative")
	}

	if c.WaitTime.Min < 0 {
		errs.Add("waitTime.min", "must not be negative")
	}
	if c.WaitTime.Max < c.WaitTime.Min {
		errs.Add("waitTime.max", fmt.Sprintf("must be at least waitTime.min (%s)", c.WaitTime.Min))
	}

	if c.Tasks != nil {
		if c.Tasks.Health < 0 || c.Tasks.Messages < 0 || c.Tasks.Socket < 0 {
			errs.Add("tasks", "weights must not be negative")
		}
		if c.Tasks.Health+c.Tasks.Messages+c.Tasks.Socket == 0 {
			errs.Add("tasks", "at least one task needs a positive weight")
		}
	}

	if c.HTTP.Timeout < 0 {
		errs.Add("http.timeout", "must not be negative")
	}
	if c.HTTP.MaxIdleConnsPerHost < 0 {
		errs.Add("http.maxIdleConnsPerHost", "must not be negative")
	}

	if errs.HasErrors() {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

func validateHost(host string, errs *ValidationErrors) {
	if host == "" {
		errs.Add("host", "is required")
		return
	}

	u, err := url.Parse(host)
	if err != nil {
		errs.Add("host", fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("host", fmt.Sprintf("scheme must be http or https, got %q", u.Scheme))
	}
	if u.Host == "" {
		errs.Add("host", "missing host name")
	}
}
