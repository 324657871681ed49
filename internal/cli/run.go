package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/chatload/internal/config"
	chathttp "github.com/wesleyorama2/chatload/internal/http"
	"github.com/wesleyorama2/chatload/internal/loadgen"
	"github.com/wesleyorama2/chatload/internal/logging"
	"github.com/wesleyorama2/chatload/internal/metrics"
	"github.com/wesleyorama2/chatload/internal/output"
	"github.com/wesleyorama2/chatload/internal/profile"
)

type runOptions struct {
	configFile    string
	host          string
	users         int
	spawnRate     float64
	runTime       time.Duration
	waitMin       time.Duration
	waitMax       time.Duration
	jsonOutput    bool
	format        string
	quiet         bool
	failOnError   bool
	metricsListen string
	logLevel      string
	logFormat     string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run simulated chat users against the API",
		Long: `Spawn simulated chat users and keep them busy until the run time elapses
or the process is interrupted, then print a per-request summary.

Config file mode:
  chatload run --config chat.yaml

Quick CLI mode:
  chatload run --host http://localhost:8080 --users 50 --spawn-rate 5 --run-time 2m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolveConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.execute(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to a YAML or JSON run configuration")
	flags.StringVarP(&opts.host, "host", "H", "", "Base URL of the chat API (default "+config.DefaultHost+")")
	flags.IntVarP(&opts.users, "users", "u", 0, "Number of simulated users")
	flags.Float64VarP(&opts.spawnRate, "spawn-rate", "r", 0, "Users started per second")
	flags.DurationVarP(&opts.runTime, "run-time", "t", 0, "Stop after this long (0 runs until interrupted)")
	flags.DurationVar(&opts.waitMin, "wait-min", 0, "Minimum think time between actions")
	flags.DurationVar(&opts.waitMax, "wait-max", 0, "Maximum think time between actions")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the summary as JSON (same as --output json)")
	flags.StringVarP(&opts.format, "output", "o", "text", "Summary format: text, json, yaml or junit")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Only log errors")
	flags.BoolVar(&opts.failOnError, "fail-on-error", false, "Exit non-zero when any request failed")
	flags.StringVar(&opts.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address, e.g. :9646")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "console", "Log format: console or json")

	return cmd
}

// resolveConfig layers the config file, defaults and explicitly set flags.
func (o *runOptions) resolveConfig(cmd *cobra.Command) (*config.RunConfig, error) {
	cfg := config.Default()
	if o.configFile != "" {
		loaded, err := config.LoadConfig(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = o.host
	}
	if flags.Changed("users") {
		cfg.Users = o.users
	}
	if flags.Changed("spawn-rate") {
		cfg.SpawnRate = o.spawnRate
	}
	if flags.Changed("run-time") {
		cfg.RunTime = config.Duration(o.runTime)
	}
	if flags.Changed("wait-min") {
		cfg.WaitTime.Min = config.Duration(o.waitMin)
	}
	if flags.Changed("wait-max") {
		cfg.WaitTime.Max = config.Duration(o.waitMax)
	}
	if flags.Changed("metrics-listen") {
		cfg.Metrics.Listen = o.metricsListen
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *runOptions) summaryFormat() (output.OutputFormat, error) {
	if o.jsonOutput {
		return output.FormatJSON, nil
	}
	return output.ParseFormat(o.format)
}

// execute runs the load test described by cfg and writes the summary to
// stdout. Logs go to stderr.
func (o *runOptions) execute(ctx context.Context, cfg *config.RunConfig, stdout, stderr io.Writer) error {
	format, err := o.summaryFormat()
	if err != nil {
		return err
	}

	level := o.logLevel
	if o.quiet {
		level = "error"
	}
	logger, err := logging.NewWithWriter(stderr, level, o.logFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run", runID))

	var observers []metrics.Observer
	registry := prometheus.NewRegistry()
	if cfg.Metrics.Listen != "" {
		observers = append(observers, metrics.NewPromCollector(registry))
	}
	engine := metrics.NewEngine(observers...)

	runner, err := loadgen.NewRunner(cfg.LoadgenConfig(), newUserFactory(cfg, runID, engine, logger), engine, logger)
	if err != nil {
		return err
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	var g errgroup.Group
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return metrics.Serve(bgCtx, cfg.Metrics.Listen, registry, logger)
		})
	}

	if !o.quiet && format == output.FormatText && output.ProgressEnabled(stderr) {
		progress := output.NewProgress(output.ProgressConfig{
			Writer:      stderr,
			RunTime:     time.Duration(cfg.RunTime),
			TargetUsers: cfg.Users,
			Colors:      output.UseColors(stderr),
		})
		g.Go(func() error {
			progress.Run(bgCtx, engine)
			return nil
		})
	}

	logger.Info("starting run",
		zap.String("host", cfg.Host),
		zap.Int("users", cfg.Users),
		zap.Float64("spawnRate", cfg.SpawnRate),
		zap.Duration("runTime", time.Duration(cfg.RunTime)))

	runErr := runner.Run(ctx)

	stopBackground()
	if err := g.Wait(); err != nil {
		logger.Warn("background task failed", zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	summary := output.NewSummary(cfg.Name, cfg.Host, runID, runner.Stats(), engine)
	if err := output.Write(stdout, format, summary, output.TableOptions{Colors: output.UseColors(stdout)}); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	if o.failOnError && summary.HasFailures() {
		return errRunFailed
	}
	return nil
}

// newUserFactory returns the factory producing one ChatUser per spawn.
// Users share one connection pool and websocket dialer but keep their own
// session state.
func newUserFactory(cfg *config.RunConfig, runID string, engine *metrics.Engine, logger *zap.Logger) loadgen.Factory {
	pool := cfg.PoolConfig()
	httpClient := chathttp.NewPooledClient(pool)
	dialer := chathttp.NewSocketDialer(pool)
	weights := cfg.Weights()
	wait := cfg.WaitFunc()

	return func(index int) loadgen.User {
		client := chathttp.NewClient(
			chathttp.WithHTTPClient(httpClient),
			chathttp.WithBaseURL(cfg.Host),
			chathttp.WithHeader("User-Agent", cfg.HTTP.UserAgent),
			chathttp.WithHeader("X-Run-ID", runID),
			chathttp.WithRecorder(engine),
		)
		return profile.NewChatUser(index, client, profile.Options{
			Wait:    wait,
			Weights: &weights,
			Dialer:  dialer,
			Logger:  logger,
		})
	}
}
