package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/chatload/pkg/jsonschema"
)

//go:embed schema.json
var schemaJSON string

var (
	compiledSchema     *sjsonschema.Schema
	compiledSchemaErr  error
	compiledSchemaOnce sync.Once
)

func runSchema() (*sjsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		compiledSchema, compiledSchemaErr = jsonschema.Compile("chatload.schema.json", schemaJSON)
	})
	return compiledSchema, compiledSchemaErr
}

// Defaults used when a field is left unset.
const (
	DefaultHost                = "http://localhost:8080"
	DefaultUsers               = 1
	DefaultSpawnRate           = 1.0
	DefaultStopTimeout         = 10 * time.Second
	DefaultWaitMin             = time.Second
	DefaultWaitMax             = 3 * time.Second
	DefaultHTTPTimeout         = 30 * time.Second
	DefaultMaxIdleConnsPerHost = 100
	DefaultUserAgent           = "chatload/0.1.0"
)

// Default returns a configuration with every default applied.
func Default() *RunConfig {
	config := &RunConfig{}
	ApplyDefaults(config)
	return config
}

// LoadConfig loads a run configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// The document is checked against the embedded schema, defaults are applied
// and the result is validated.
func LoadConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseConfig decodes configuration data and checks it against the schema.
// Defaults are not applied.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*RunConfig, error) {
	isJSON := strings.ToLower(filepath.Ext(path)) == ".json"

	var doc interface{}
	if isJSON {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	schema, err := runSchema()
	if err != nil {
		return nil, err
	}
	if errs := jsonschema.ValidateDocument(schema, doc); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}

	var config RunConfig
	if isJSON {
		err = json.Unmarshal(data, &config)
	} else {
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &config, nil
}

// ApplyDefaults fills every unset field.
func ApplyDefaults(config *RunConfig) {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Users == 0 {
		config.Users = DefaultUsers
	}
	if config.SpawnRate == 0 {
		config.SpawnRate = DefaultSpawnRate
	}
	if config.StopTimeout == 0 {
		config.StopTimeout = Duration(DefaultStopTimeout)
	}
	if config.WaitTime.Min == 0 && config.WaitTime.Max == 0 {
		config.WaitTime = WaitTime{Min: Duration(DefaultWaitMin), Max: Duration(DefaultWaitMax)}
	}
	if config.Tasks == nil {
		config.Tasks = &TaskWeights{Health: 1}
	}
	if config.HTTP.Timeout == 0 {
		config.HTTP.Timeout = Duration(DefaultHTTPTimeout)
	}
	if config.HTTP.MaxIdleConnsPerHost == 0 {
		config.HTTP.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if config.HTTP.UserAgent == "" {
		config.HTTP.UserAgent = DefaultUserAgent
	}
}
