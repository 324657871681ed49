package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wesleyorama2/chatload/internal/config"
	"github.com/wesleyorama2/chatload/internal/metrics"
	"github.com/wesleyorama2/chatload/internal/mockserver"
	"github.com/wesleyorama2/chatload/internal/profile"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("FORCE_COLOR", "")

	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

type jsonSummary struct {
	Host  string `json:"host"`
	RunID string `json:"runId"`
	Users struct {
		Spawned    int   `json:"spawned"`
		Iterations int64 `json:"iterations"`
	} `json:"users"`
	Totals struct {
		TotalRequests  int64 `json:"totalRequests"`
		FailedRequests int64 `json:"failedRequests"`
	} `json:"totals"`
	Requests []struct {
		Name     string `json:"name"`
		Failures int64  `json:"failures"`
	} `json:"requests"`
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "chatload "+version+"\n", stdout)
}

func TestRunCommand_AgainstMockServer(t *testing.T) {
	srv := mockserver.New(mockserver.Options{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	stdout, _, err := execute(t, "run",
		"--host", ts.URL,
		"--users", "3",
		"--spawn-rate", "100",
		"--run-time", "400ms",
		"--wait-min", "10ms",
		"--wait-max", "20ms",
		"--json",
		"--quiet",
	)
	require.NoError(t, err)

	var summary jsonSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))

	assert.Equal(t, ts.URL, summary.Host)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.Users.Spawned)
	assert.Positive(t, summary.Users.Iterations)
	assert.Zero(t, summary.Totals.FailedRequests)

	names := map[string]bool{}
	for _, r := range summary.Requests {
		names[r.Name] = true
	}
	assert.True(t, names["POST /api/register"])
	assert.True(t, names["POST /api/login"])
	assert.True(t, names["GET /api/health"])

	assert.Equal(t, 3, srv.Count("POST /api/register"))
	assert.Equal(t, 3, srv.Count("POST /api/login"))
	assert.Equal(t, 3, srv.Accounts())
}

func TestRunCommand_FailOnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	args := []string{"run",
		"--host", ts.URL,
		"--users", "1",
		"--spawn-rate", "10",
		"--run-time", "200ms",
		"--wait-min", "10ms",
		"--wait-max", "10ms",
		"--quiet",
	}

	stdout, _, err := execute(t, args...)
	require.NoError(t, err, "failures only fail the run when asked to")
	assert.Contains(t, stdout, "requests failed")

	_, _, err = execute(t, append(args, "--fail-on-error")...)
	assert.ErrorIs(t, err, errRunFailed)
}

func TestRunCommand_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero users", []string{"run", "--users", "0"}},
		{"wait max below min", []string{"run", "--wait-min", "2s", "--wait-max", "1s"}},
		{"bad host", []string{"run", "--host", "localhost:8080"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestRunCommand_UnknownOutputFormat(t *testing.T) {
	ts := httptest.NewServer(mockserver.New(mockserver.Options{}))
	defer ts.Close()

	_, _, err := execute(t, "run", "--host", ts.URL, "--run-time", "10ms", "--output", "html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: http://file.example.com
users: 20
spawnRate: 2
runTime: 1m
tasks: {health: 2, messages: 1}
`), 0o600))

	cmd := newRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--users", "5", "--wait-max", "4s"}))

	opts := &runOptions{configFile: path, users: 5, waitMax: 4 * time.Second}
	cfg, err := opts.resolveConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "http://file.example.com", cfg.Host)
	assert.Equal(t, 5, cfg.Users, "flag wins over file")
	assert.Equal(t, 2.0, cfg.SpawnRate)
	assert.Equal(t, config.Duration(time.Minute), cfg.RunTime)
	assert.Equal(t, config.Duration(time.Second), cfg.WaitTime.Min)
	assert.Equal(t, config.Duration(4*time.Second), cfg.WaitTime.Max)
	assert.Equal(t, 2, cfg.Weights().Health)
	assert.Equal(t, 1, cfg.Weights().Messages)
}

func TestResolveConfig_MissingFile(t *testing.T) {
	cmd := newRunCmd()
	opts := &runOptions{configFile: filepath.Join(t.TempDir(), "missing.yaml")}

	_, err := opts.resolveConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestNewUserFactory_InsecureTLSReachesSocket(t *testing.T) {
	ts := httptest.NewTLSServer(mockserver.New(mockserver.Options{}))
	defer ts.Close()

	cfg := config.Default()
	cfg.Host = ts.URL
	cfg.HTTP.InsecureSkipVerify = true

	engine := metrics.NewEngine()
	user, ok := newUserFactory(cfg, "run-1", engine, zap.NewNop())(0).(*profile.ChatUser)
	require.True(t, ok)

	ctx := context.Background()
	require.NoError(t, user.OnStart(ctx))
	_, hasToken := user.Token()
	require.True(t, hasToken)

	assert.NoError(t, user.Health(ctx))
	assert.NoError(t, user.Socket(ctx))
	assert.Zero(t, engine.Snapshot().FailedRequests)
}

func TestNewUserFactory_VerifiesTLSByDefault(t *testing.T) {
	ts := httptest.NewTLSServer(mockserver.New(mockserver.Options{}))
	defer ts.Close()

	cfg := config.Default()
	cfg.Host = ts.URL

	user, ok := newUserFactory(cfg, "run-1", metrics.NewEngine(), zap.NewNop())(0).(*profile.ChatUser)
	require.True(t, ok)

	err := user.Socket(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certificate")
}
