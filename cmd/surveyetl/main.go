// Command surveyetl normalizes survey exports into interview, answer,
// question and option records and loads them into a database and/or emits
// them as Singer messages.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"surveyetl/internal/config"
	"surveyetl/internal/metrics"
	"surveyetl/internal/metrics/datadog"
	"surveyetl/internal/pipeline"

	// register all backends with the storage factory.
	_ "surveyetl/internal/storage/all"
)

// runner is the part of *pipeline.Runner used by the CLI.
type runner interface {
	Run(ctx context.Context, cfg config.Pipeline) (pipeline.Summary, error)
}

// metricsBackend is what initMetrics needs from a concrete backend.
type metricsBackend interface {
	Close() error
}

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	loadConfig  func(path string, fs *pflag.FlagSet) (config.Pipeline, error)
	newRunner   func(stdout io.Writer, logger pipeline.Logger) runner
	initMetrics func(ctx context.Context, jobName, backendName string) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig: config.Load,
		newRunner: func(stdout io.Writer, logger pipeline.Logger) runner {
			return pipeline.NewDefaultRunner(stdout, logger)
		},
		initMetrics: initMetrics,
	}
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = log.Printf
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain returns the process exit code: 0 on success, 2 on usage errors and
// 1 on everything else.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := pflag.NewFlagSet("surveyetl", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", "", "pipeline config path (YAML or JSON)")
	backendFlag := fs.String("metrics-backend", "", "metrics backend: none|datadog (default env METRICS_BACKEND, else none)")
	validate := fs.Bool("validate", false, "validate the configuration and exit")
	verbose := fs.BoolP("verbose", "v", false, "enable verbose logs")
	config.BindFlags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if strings.TrimSpace(*cfgPath) == "" {
		fmt.Fprintln(stderr, "usage: surveyetl --config path/to/pipeline.yaml [flags]")
		return 2
	}

	cfg, err := deps.loadConfig(*cfgPath, fs)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	issues := config.ValidatePipeline(cfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "config invalid: %s\n", *cfgPath)
		return 1
	}
	if *validate {
		fmt.Fprintln(stdout, "config ok")
		return 0
	}

	backendName := *backendFlag
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	cleanup, err := deps.initMetrics(ctx, cfg.Job, backendName)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	logger := log.New(stderr, "", log.LstdFlags)
	if *verbose {
		logger.Printf("pipeline: job=%s source=%s decoder=%s storage=%s singer=%t",
			cfg.Job, cfg.Source.Kind, cfg.Decoder.Kind, cfg.Storage.Kind, cfg.Singer.Enabled)
	}

	start := time.Now()
	sum, err := deps.newRunner(stdout, logger).Run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	if *verbose {
		logger.Printf("completed in %s files=%d skipped=%d failed=%d",
			time.Since(start).Truncate(time.Millisecond), sum.Files, sum.Skipped, sum.Failed)
	}

	// stdout carries the Singer stream when it is the configured output.
	if !(cfg.Singer.Enabled && cfg.Singer.ToStdout()) {
		fmt.Fprintln(stdout, "ok")
	}
	return 0
}

// initMetrics installs the named metrics backend. The returned cleanup is
// never nil and flushes the backend.
func initMetrics(ctx context.Context, jobName, backendName string) (func(), error) {
	noop := func() {}

	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "noop":
		return noop, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return noop, err
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|datadog)", backendName)
	}
}
