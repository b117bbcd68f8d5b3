package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/sheetload/internal/config"
	"github.com/wesleyorama2/sheetload/internal/harness"
	"github.com/wesleyorama2/sheetload/internal/logging"
	"github.com/wesleyorama2/sheetload/internal/metrics"
	"github.com/wesleyorama2/sheetload/internal/output"
	"github.com/wesleyorama2/sheetload/internal/scenario"
	"github.com/wesleyorama2/sheetload/internal/workbook"
)

// ExitError carries the process exit code of a finished run.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// runOptions are the settings of one run that do not belong in a config file.
type runOptions struct {
	JSONPath        string
	HTMLPath        string
	Quiet           bool
	ExitCodeOnError int
	UpdateInterval  time.Duration
	Stdout          io.Writer
	LogOutput       io.Writer
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the workbook load test",
		Long: `Run simulated workbook users against the target service.

Config file mode:
  sheetload run --config sheetload.yaml

Quick CLI mode:
  sheetload run --host http://localhost:8080 -u 50 -r 5 -t 10m

Flags override values from the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}

			jsonPath, _ := cmd.Flags().GetString("json")
			htmlPath, _ := cmd.Flags().GetString("html")
			quiet, _ := cmd.Flags().GetBool("quiet")
			exitCode, _ := cmd.Flags().GetInt("exit-code-on-error")

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = runLoadTest(ctx, cfg, runOptions{
				JSONPath:        jsonPath,
				HTMLPath:        htmlPath,
				Quiet:           quiet,
				ExitCodeOnError: exitCode,
				Stdout:          cmd.OutOrStdout(),
				LogOutput:       cmd.ErrOrStderr(),
			})
			return err
		},
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file (YAML or JSON)")
	cmd.Flags().String("host", "", "Base URL of the workbook service")
	cmd.Flags().IntP("users", "u", 0, "Number of simulated users")
	cmd.Flags().Float64P("spawn-rate", "r", 0, "Users started per second")
	cmd.Flags().StringP("run-time", "t", "", "Stop after this long, e.g. 30s, 10m (0 runs until interrupted)")
	cmd.Flags().Duration("min-wait", 0, "Minimum think time between tasks")
	cmd.Flags().Duration("max-wait", 0, "Maximum think time between tasks")
	cmd.Flags().Uint64("seed", 0, "Seed for reproducible traffic (0 is random)")
	cmd.Flags().String("json", "", "Write the final summary as JSON to this file")
	cmd.Flags().String("html", "", "Write an HTML report to this file")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn, error (default info, warn under the live terminal view)")
	cmd.Flags().String("log-format", "", "Log format: console, json")
	cmd.Flags().String("prometheus", "", "Serve Prometheus metrics on this address, e.g. :9646")
	cmd.Flags().Int("exit-code-on-error", 1, "Exit code when any request failed")
	cmd.Flags().BoolP("quiet", "q", false, "Disable live progress output, show only the final status")

	return cmd
}

// buildConfig loads the config file, if any, applies flag overrides and
// validates the result.
func buildConfig(cmd *cobra.Command) (*config.TestConfig, error) {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host, _ = flags.GetString("host")
	}
	if flags.Changed("users") {
		cfg.Users, _ = flags.GetInt("users")
	}
	if flags.Changed("spawn-rate") {
		cfg.SpawnRate, _ = flags.GetFloat64("spawn-rate")
	}
	if flags.Changed("run-time") {
		s, _ := flags.GetString("run-time")
		d, err := config.ParseDurationString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --run-time: %w", err)
		}
		cfg.RunTime = config.Duration(d)
	}
	if flags.Changed("min-wait") {
		d, _ := flags.GetDuration("min-wait")
		cfg.WaitTime.Min = config.Duration(d)
	}
	if flags.Changed("max-wait") {
		d, _ := flags.GetDuration("max-wait")
		cfg.WaitTime.Max = config.Duration(d)
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("prometheus") {
		cfg.Prometheus.Listen, _ = flags.GetString("prometheus")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runLoadTest runs one load test described by cfg and reports it.
func runLoadTest(ctx context.Context, cfg *config.TestConfig, opts runOptions) (*output.Summary, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = time.Second
	}

	console := output.NewConsole(output.ConsoleConfig{
		TestName:  cfg.Name,
		Host:      cfg.Host,
		Users:     cfg.Users,
		SpawnRate: cfg.SpawnRate,
		RunTime:   cfg.RunTime.Duration(),
		Writer:    opts.Stdout,
		Quiet:     opts.Quiet,
	})
	liveView := console.IsTTY() && !opts.Quiet && output.IsTerminal(opts.LogOutput)

	logger, err := logging.New(logging.Config{
		Level:  logLevel(cfg.Logging.Level, liveView),
		Format: cfg.Logging.Format,
		Output: opts.LogOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating logger: %w", err)
	}
	defer logger.Sync()

	var sinks []metrics.Sink
	if cfg.Prometheus.Listen != "" {
		exporterConfig := cfg.PrometheusExporterConfig()
		exporterConfig.Logger = logger.Named("prometheus")
		exporter := metrics.NewPrometheusExporter(exporterConfig)
		if err := exporter.Start(); err != nil {
			return nil, fmt.Errorf("error starting prometheus exporter: %w", err)
		}
		logger.Info("serving prometheus metrics", zap.String("addr", exporter.Addr()), zap.String("path", cfg.Prometheus.Path))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := exporter.Stop(shutdownCtx); err != nil {
				logger.Warn("prometheus exporter shutdown failed", zap.Error(err))
			}
		}()
		sinks = append(sinks, exporter)
	}
	engine := metrics.NewEngine(sinks...)

	events := harness.NewEvents()
	scenario.RegisterLifecycle(events, logger)

	transport := newTransport(cfg.Users)
	defer transport.CloseIdleConnections()

	newClient := func(id int) *workbook.Client {
		options := []workbook.ClientOption{
			workbook.WithBaseURL(cfg.Host),
			workbook.WithTimeout(cfg.Timeout.Duration()),
			workbook.WithTransport(transport),
			workbook.WithRecorder(engine),
			workbook.WithUserAgent("sheetload/" + version),
			workbook.WithResponseChecks(cfg.Behavior.CheckResponses),
		}
		for key, value := range cfg.Headers {
			options = append(options, workbook.WithHeader(key, value))
		}
		return workbook.NewClient(options...)
	}

	factory := scenario.Factory(cfg.ScenarioOptions(), newClient, cfg.Seed, logger.Named("user"))
	runner, err := harness.NewRunner(cfg.HarnessConfig(), factory, engine, events, logger.Named("runner"))
	if err != nil {
		return nil, fmt.Errorf("error creating runner: %w", err)
	}

	console.PrintHeader()

	type outcome struct {
		result *harness.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := runner.Run(ctx)
		done <- outcome{result, err}
	}()

	ticker := time.NewTicker(opts.UpdateInterval)
	defer ticker.Stop()

	var out outcome
progressLoop:
	for {
		select {
		case out = <-done:
			break progressLoop
		case <-ticker.C:
			console.Update(output.StatsFromSnapshot(engine.Snapshot(), runner.Progress(), cfg.RunTime.Duration(), cfg.Users))
		}
	}

	snap := engine.Snapshot()
	console.PrintSummary(out.result, snap)

	summary := &output.Summary{
		Name:    cfg.Name,
		Host:    cfg.Host,
		Run:     out.result,
		Metrics: snap,
	}
	if opts.JSONPath != "" {
		if err := summary.WriteJSONFile(opts.JSONPath); err != nil {
			return summary, err
		}
	}
	if opts.HTMLPath != "" {
		if err := summary.WriteHTMLFile(opts.HTMLPath); err != nil {
			return summary, err
		}
	}

	if out.err != nil {
		return summary, fmt.Errorf("error running test: %w", out.err)
	}
	if snap.FailedRequests > 0 && opts.ExitCodeOnError != 0 {
		return summary, &ExitError{
			Code:    opts.ExitCodeOnError,
			Message: fmt.Sprintf("%d of %d requests failed", snap.FailedRequests, snap.TotalRequests),
		}
	}
	return summary, nil
}

// logLevel resolves an unset level. The live view moves the cursor over
// its own lines, so info logs on the same terminal would be overwritten.
func logLevel(configured string, liveView bool) string {
	if configured != "" {
		return configured
	}
	if liveView {
		return "warn"
	}
	return "info"
}

// newTransport returns the transport shared by every simulated user.
func newTransport(users int) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = users * 2
	t.MaxIdleConnsPerHost = users
	return t
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
