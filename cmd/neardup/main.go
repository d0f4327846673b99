// neardup removes near-duplicate records from a CSV or Parquet table.
//
// Usage:
//
//	neardup -input questions.csv -output dedup.csv -column question
//
// Weights, threshold and provider settings come from config/<ENV>.yaml;
// flags override the job section and the threshold.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/neardup/internal/bootstrap"
	"github.com/kailas-cloud/neardup/internal/config"
	"github.com/kailas-cloud/neardup/internal/domain"
	logpkg "github.com/kailas-cloud/neardup/internal/logger"
	jobuc "github.com/kailas-cloud/neardup/internal/usecase/job"
	"github.com/kailas-cloud/neardup/internal/version"
)

type options struct {
	configPath string
	input      string
	output     string
	column     string
	report     string
	delimiter  string
	threshold  float64
	header     bool
	noHeader   bool
	version    bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "config file (default: config/$ENV.yaml)")
	flag.StringVar(&o.input, "input", "", "input table (.csv or .parquet)")
	flag.StringVar(&o.output, "output", "", "output table, same format as input")
	flag.StringVar(&o.column, "column", "", "text column: header name or zero-based index")
	flag.StringVar(&o.report, "report", "", "write a JSON report of removed records to this file")
	flag.StringVar(&o.delimiter, "delimiter", "", "CSV field delimiter (default ',')")
	flag.Float64Var(&o.threshold, "threshold", -1, "fused score threshold in [0,1] (default from config)")
	flag.BoolVar(&o.header, "header", false, "CSV input has a header row")
	flag.BoolVar(&o.noHeader, "no-header", false, "CSV input has no header row")
	flag.BoolVar(&o.version, "version", false, "print version and exit")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()
	if opts.version {
		fmt.Println("neardup", version.String())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	code := run(ctx, opts)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, opts options) int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	env := config.GetEnv()
	var (
		cfg config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 2
	}

	logger, err := logpkg.NewLogger(env, "neardup", cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	spec, err := jobSpec(cfg, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		return 2
	}

	logger.Info("Starting neardup job",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("input", spec.Input),
		zap.String("output", spec.Output),
		zap.Float64("threshold", spec.Params.Threshold),
	)

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialise", zap.Error(err))
		return 1
	}
	defer app.Close()

	summary, err := jobuc.New(app.Dedup, logger).Run(logpkg.ContextWithLogger(ctx, logger), spec)
	if err != nil {
		logger.Error("Job failed", zap.Error(err))
		if errors.Is(err, domain.ErrInvalidInput) {
			return 2
		}
		return 1
	}

	fmt.Println(summary)
	return 0
}

// jobSpec merges the job section of the config with command-line flags.
func jobSpec(cfg config.Config, opts options) (jobuc.Spec, error) {
	spec := jobuc.Spec{
		Input:      firstNonEmpty(opts.input, cfg.Job.Input),
		Output:     firstNonEmpty(opts.output, cfg.Job.Output),
		TextColumn: firstNonEmpty(opts.column, cfg.Job.TextColumn),
		Report:     firstNonEmpty(opts.report, cfg.Job.Report),
		HasHeader:  cfg.Job.HasHeader,
		Params:     cfg.Dedup.Params(),
	}
	switch {
	case opts.header && opts.noHeader:
		return jobuc.Spec{}, errors.New("-header and -no-header are mutually exclusive")
	case opts.header:
		spec.HasHeader = true
	case opts.noHeader:
		spec.HasHeader = false
	}

	if d := firstNonEmpty(opts.delimiter, cfg.Job.Delimiter); d != "" {
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) {
			return jobuc.Spec{}, fmt.Errorf("delimiter must be a single character, got %q", d)
		}
		spec.Comma = r
	}

	if opts.threshold >= 0 {
		spec.Params.Threshold = opts.threshold
	}
	if err := spec.Params.Validate(); err != nil {
		return jobuc.Spec{}, err
	}

	if spec.Input == "" || spec.Output == "" {
		return jobuc.Spec{}, errors.New("-input and -output are required")
	}
	return spec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
