package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/txscreen/internal/audit"
	"github.com/sells-group/txscreen/internal/config"
	"github.com/sells-group/txscreen/internal/metrics"
	"github.com/sells-group/txscreen/internal/model"
	"github.com/sells-group/txscreen/internal/pipeline"
	"github.com/sells-group/txscreen/internal/refdata"
	"github.com/sells-group/txscreen/internal/screen"
)

var screenFlags struct {
	transactions string
	sanctioned   string
	all          string
	blacklist    string
	flagged      string
	review       string
	summary      string
	batchSize    int
	threshold    int
	workers      int
	abort        bool
	lenient      bool
	reason       bool
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen a transaction feed into flagged and review files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyScreenFlags(cmd, cfg)
		if err := cfg.Validate("screen"); err != nil {
			return err
		}

		_, err := runScreen(ctx, cfg)
		return err
	},
}

func init() {
	f := screenCmd.Flags()
	f.StringVar(&screenFlags.transactions, "transactions", "", "transaction feed location (path, -, http(s):// or ftp://)")
	f.StringVar(&screenFlags.sanctioned, "sanctioned", "", "sanctioned countries list")
	f.StringVar(&screenFlags.all, "countries", "", "known countries list")
	f.StringVar(&screenFlags.blacklist, "blacklist", "", "blacklist (.xml, .json, .csv, .xlsx or plain text)")
	f.StringVar(&screenFlags.flagged, "flagged", "", "flagged output CSV")
	f.StringVar(&screenFlags.review, "review", "", "review output CSV")
	f.StringVar(&screenFlags.summary, "summary", "", "write a YAML run summary to this path")
	f.IntVar(&screenFlags.batchSize, "batch-size", 0, "results held per output before a flush")
	f.IntVar(&screenFlags.threshold, "threshold", 0, "fuzzy name match threshold (0-100)")
	f.IntVar(&screenFlags.workers, "workers", 0, "concurrent classifiers")
	f.BoolVar(&screenFlags.abort, "abort-on-malformed", false, "stop the run at the first malformed record")
	f.BoolVar(&screenFlags.lenient, "lenient", false, "skip unrecognized address parts when looking for a country")
	f.BoolVar(&screenFlags.reason, "reason", false, "add a reason column to the outputs")
	rootCmd.AddCommand(screenCmd)
}

// applyScreenFlags copies flags the user set over the loaded config.
func applyScreenFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("transactions") {
		c.Input.Transactions = screenFlags.transactions
	}
	if f.Changed("sanctioned") {
		c.Input.SanctionedCountries = screenFlags.sanctioned
	}
	if f.Changed("countries") {
		c.Input.AllCountries = screenFlags.all
	}
	if f.Changed("blacklist") {
		c.Input.Blacklist = screenFlags.blacklist
	}
	if f.Changed("flagged") {
		c.Output.Flagged = screenFlags.flagged
	}
	if f.Changed("review") {
		c.Output.Review = screenFlags.review
	}
	if f.Changed("summary") {
		c.Output.Summary = screenFlags.summary
	}
	if f.Changed("batch-size") {
		c.Screen.BatchSize = screenFlags.batchSize
	}
	if f.Changed("threshold") {
		c.Screen.FuzzyThreshold = screenFlags.threshold
	}
	if f.Changed("workers") {
		c.Screen.Workers = screenFlags.workers
	}
	if f.Changed("abort-on-malformed") {
		c.Screen.MalformedPolicy = string(screen.MalformedReview)
		if screenFlags.abort {
			c.Screen.MalformedPolicy = string(screen.MalformedAbort)
		}
	}
	if f.Changed("lenient") {
		c.Screen.ExtractionMode = string(screen.ExtractStrict)
		if screenFlags.lenient {
			c.Screen.ExtractionMode = string(screen.ExtractLenient)
		}
	}
	if f.Changed("reason") {
		c.Output.IncludeReason = screenFlags.reason
	}
}

// loadClassifier loads the reference data and builds the classifier.
func loadClassifier(ctx context.Context, c *config.Config) (*screen.Classifier, error) {
	opener := newOpener()

	j, err := refdata.LoadJurisdictions(ctx, opener, c.Input.SanctionedCountries, c.Input.AllCountries)
	if err != nil {
		return nil, err
	}
	entries, err := refdata.LoadBlacklist(ctx, opener, c.Input.Blacklist, c.Input.BlacklistElement)
	if err != nil {
		return nil, err
	}

	return screen.NewClassifier(j, screen.NewMatcher(entries, c.Screen.FuzzyThreshold),
		screen.WithExtractionMode(screen.ExtractionMode(c.Screen.ExtractionMode)),
		screen.WithMalformedPolicy(screen.MalformedPolicy(c.Screen.MalformedPolicy)),
	), nil
}

// runScreen executes one screening run. Reference-data and sink-open
// failures return before any transaction is read. Once the run has
// started, the summary file, metrics and audit trail are written even when
// the run fails.
func runScreen(ctx context.Context, c *config.Config) (model.Summary, error) {
	started := time.Now()

	cls, err := loadClassifier(ctx, c)
	if err != nil {
		return model.Summary{}, err
	}

	src, err := refdata.OpenTransactions(ctx, newOpener(), c.Input.Transactions, c.Input.TransactionsKey)
	if err != nil {
		return model.Summary{}, err
	}
	defer src.Close() //nolint:errcheck

	sinkOpts := pipeline.CSVSinkOptions{IncludeReason: c.Output.IncludeReason}
	flagged, err := pipeline.CreateCSVSink(c.Output.Flagged, sinkOpts)
	if err != nil {
		return model.Summary{}, err
	}
	defer flagged.Close() //nolint:errcheck
	review, err := pipeline.CreateCSVSink(c.Output.Review, sinkOpts)
	if err != nil {
		return model.Summary{}, err
	}
	defer review.Close() //nolint:errcheck

	rec, err := audit.Open(ctx, c.Audit.Driver, c.Audit.DatabaseURL)
	if err != nil {
		return model.Summary{}, eris.Wrap(err, "open audit trail")
	}
	defer rec.Close() //nolint:errcheck

	trail, err := audit.Start(ctx, rec, audit.Run{
		StartedAt:    started.UTC(),
		Transactions: c.Input.Transactions,
		Blacklist:    c.Input.Blacklist,
		Threshold:    c.Screen.FuzzyThreshold,
	})
	if err != nil {
		return model.Summary{}, err
	}
	log := zap.L().With(zap.String("run_id", trail.RunID()))
	log.Info("screen: run started",
		zap.String("transactions", c.Input.Transactions),
		zap.Int("batch_size", c.Screen.BatchSize),
		zap.Int("workers", c.Screen.Workers),
	)

	m := metrics.New()
	sum, runErr := pipeline.Run(ctx, src, cls, flagged, review, pipeline.Options{
		BatchSize: c.Screen.BatchSize,
		Workers:   c.Screen.Workers,
		Audit:     trail,
		Metrics:   m,
	})
	if err := flagged.Close(); err != nil && runErr == nil {
		runErr = model.NewError(model.KindSinkWrite, "close "+c.Output.Flagged, err)
	}
	if err := review.Close(); err != nil && runErr == nil {
		runErr = model.NewError(model.KindSinkWrite, "close "+c.Output.Review, err)
	}

	// Bookkeeping runs on a fresh context so an interrupted run is still recorded.
	bg := context.WithoutCancel(ctx)
	if err := trail.Finish(bg, sum, runErr); err != nil {
		log.Warn("screen: audit trail not finalized", zap.Error(err))
	}

	elapsed := time.Since(started)
	m.ObserveRun(elapsed, runErr == nil)
	if c.Metrics.Textfile != "" {
		if err := m.WriteTextfile(c.Metrics.Textfile); err != nil {
			log.Warn("screen: metrics not written", zap.Error(err))
		}
	}
	if c.Output.Summary != "" {
		report := newRunReport(trail.RunID(), started, elapsed, c, sum, flagged.Rows(), review.Rows(), runErr)
		if err := writeRunReport(c.Output.Summary, report); err != nil {
			log.Warn("screen: summary not written", zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.Int64("total", sum.Total),
		zap.Int64("flagged", sum.Flagged),
		zap.Int64("review", sum.Review),
		zap.Int64("passed", sum.Passed),
		zap.Int64("malformed", sum.Malformed),
		zap.Duration("elapsed", elapsed),
	}
	if runErr != nil {
		log.Error("screen: run failed", append(fields, zap.String("kind", string(model.KindOf(runErr))), zap.Error(runErr))...)
		return sum, eris.Wrap(runErr, "screen")
	}
	log.Info("screen: run complete", fields...)
	return sum, nil
}
