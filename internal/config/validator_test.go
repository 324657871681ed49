package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *RunConfig)
		field   string
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *RunConfig) {}},
		{name: "zero users", mutate: func(c *RunConfig) { c.Users = 0 }, field: "users", wantErr: true},
		{name: "zero spawn rate", mutate: func(c *RunConfig) { c.SpawnRate = 0 }, field: "spawnRate", wantErr: true},
		{name: "negative run time", mutate: func(c *RunConfig) { c.RunTime = Duration(-time.Second) }, field: "runTime", wantErr: true},
		{name: "max below min", mutate: func(c *RunConfig) {
			c.WaitTime = WaitTime{Min: Duration(2 * time.Second), Max: Duration(time.Second)}
		}, field: "waitTime.max", wantErr: true},
		{name: "no tasks", mutate: func(c *RunConfig) { c.Tasks = &TaskWeights{} }, field: "tasks", wantErr: true},
		{name: "relative host", mutate: func(c *RunConfig) { c.Host = "localhost:8080" }, field: "host", wantErr: true},
		{name: "ftp host", mutate: func(c *RunConfig) { c.Host = "ftp://example.com" }, field: "host", wantErr: true},
		{name: "empty host", mutate: func(c *RunConfig) { c.Host = "" }, field: "host", wantErr: true},
		{name: "zero wait", mutate: func(c *RunConfig) { c.WaitTime = WaitTime{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)

			err := config.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var verrs *ValidationErrors
			require.True(t, errors.As(err, &verrs))
			fields := make([]string, 0, len(verrs.Errors))
			for _, e := range verrs.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestRunConfig_Validate_CollectsEveryProblem(t *testing.T) {
	config := Default()
	config.Users = 0
	config.SpawnRate = -1
	config.Host = ""

	err := config.Validate()
	require.Error(t, err)

	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs.Errors, 3)
	assert.Contains(t, err.Error(), "3 validation errors")
}

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t, "validation error on field 'users': must be at least 1",
		(&ValidationError{Field: "users", Message: "must be at least 1"}).Error())
	assert.Equal(t, "validation error: broken", (&ValidationError{Message: "broken"}).Error())
	assert.Equal(t, "no validation errors", (&ValidationErrors{}).Error())
}
