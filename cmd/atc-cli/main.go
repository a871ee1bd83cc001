// Command atc-cli trains and applies aspect category classifiers on
// SemEval style opinion corpora.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yashubustudio/aspectcat/aspect"
	"yashubustudio/aspectcat/internal/logging"
)

type cliOptions struct {
	configPath  string
	params      string
	params2     string
	inputPath   string
	format      string
	testset     string
	testOnly    bool
	outputPath  string
	field       string
	folds       int
	metricsPath string
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "atc-cli: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts cliOptions
	root := &cobra.Command{
		Use:           "atc-cli",
		Short:         "Aspect category classification for opinion corpora",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to atc.yaml (default: ./atc.yaml if present)")
	pf.StringVar(&opts.params, "params", "", `Feature parameter file, or "default"`)
	pf.StringVarP(&opts.inputPath, "input", "i", "", "Annotated corpus to train on or to annotate")
	pf.StringVar(&opts.format, "format", "semeval2015", "Corpus format: semeval2015 or tab")
	pf.StringVar(&opts.metricsPath, "metrics", "", "Write Prometheus metrics to this file when done")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	cascade := &cobra.Command{
		Use:   "cascade",
		Short: "Classify entities, then attributes conditioned on the entity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRun(cmd, opts, runCascade)
		},
	}
	cascade.Flags().StringVar(&opts.params2, "params2", "", "Feature parameter file for the attribute stage (default: --params)")
	addTaggingFlags(cascade, &opts)

	single := &cobra.Command{
		Use:   "single",
		Short: "Classify the joint entity#attribute label with one ensemble",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRun(cmd, opts, runSingle)
		},
	}
	addTaggingFlags(single, &opts)

	crossval := &cobra.Command{
		Use:   "crossval",
		Short: "Cross-validate a one-vs-all ensemble on a label field",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRun(cmd, opts, runCrossValidate)
		},
	}
	crossval.Flags().StringVar(&opts.field, "field", string(aspect.FieldEntityAttribute), "Label field: entCat, attCat or entAttCat")
	crossval.Flags().IntVar(&opts.folds, "folds", 0, "Number of folds (default: config folds)")

	root.AddCommand(cascade, single, crossval)
	return root
}

func addTaggingFlags(cmd *cobra.Command, opts *cliOptions) {
	cmd.Flags().StringVar(&opts.testset, "testset", "", "Corpus to annotate instead of --input")
	cmd.Flags().BoolVar(&opts.testOnly, "test-only", false, "Load trained models instead of training")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Write the annotated corpus here (default: stdout)")
}

type runner func(ctx context.Context, env *runEnv, opts cliOptions) error

func withRun(cmd *cobra.Command, opts cliOptions, fn runner) error {
	ctx := cmd.Context()
	opts.configPath = strings.TrimSpace(opts.configPath)
	opts.inputPath = strings.TrimSpace(opts.inputPath)
	opts.params = strings.TrimSpace(opts.params)
	if opts.inputPath == "" && opts.testset == "" {
		return errors.WithHint(errors.New("missing required --input corpus"), "pass --input FILE")
	}
	if opts.params == "" {
		return errors.WithHint(errors.New("missing required --params file"), `use --params default for the built-in features`)
	}

	cfg, err := aspect.LoadConfig(opts.configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	level := cfg.Log.Level
	if opts.verbose {
		level = "debug"
	}
	logger, err := logging.New(cfg.Log.JSON, level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	env, err := newRunEnv(cfg, logger, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer env.Close()

	if err := fn(ctx, env, opts); err != nil {
		logger.Error("run failed", zap.Error(err))
		return err
	}
	return env.writeMetrics(opts.metricsPath)
}
