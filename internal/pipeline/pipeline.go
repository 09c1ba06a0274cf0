// Package pipeline drives classification over a transaction source and
// writes flagged and review results to their sinks in batches.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/txscreen/internal/metrics"
	"github.com/sells-group/txscreen/internal/model"
	"github.com/sells-group/txscreen/internal/screen"
)

// DefaultBatchSize is the number of results held per sink before a flush.
const DefaultBatchSize = 1000

// Source produces transactions one at a time and returns io.EOF after the last.
type Source interface {
	Next(ctx context.Context) (model.Transaction, error)
}

// Sink receives batches of results. It is opened once by its constructor,
// appended to any number of times and closed once.
type Sink interface {
	WriteBatch(ctx context.Context, results []model.Result) error
	Close() error
}

// Auditor receives the detections of every flagged batch once it has been
// written.
type Auditor interface {
	Record(ctx context.Context, detections []model.Detection) error
}

// Options tunes a run.
type Options struct {
	BatchSize int
	// Workers > 1 classifies windows of BatchSize transactions concurrently.
	// Results still reach each sink in source order.
	Workers int
	Audit   Auditor
	Metrics *metrics.Metrics
	// ProgressInterval is the minimum time between progress log lines; 0 means 5s.
	ProgressInterval time.Duration
}

// Run pulls every transaction from src, classifies it with cls and routes
// flagged and review results to their sinks; pass results are dropped.
// Batches are flushed when full and once more after the source ends.
//
// When the source fails, ctx is cancelled or a malformed record aborts the
// run, the batches already held are flushed before Run returns, so both
// sinks hold every result classified up to that point. Run does not close
// the sinks. The summary is valid even when an error is returned.
func Run(ctx context.Context, src Source, cls *screen.Classifier, flagged, review Sink, opts Options) (model.Summary, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 5 * time.Second
	}

	r := &runner{
		src:      src,
		cls:      cls,
		opts:     opts,
		flagged:  newBatcher("flagged", flagged, opts.BatchSize, opts.Metrics, opts.Audit),
		review:   newBatcher("review", review, opts.BatchSize, opts.Metrics, nil),
		progress: &rate.Sometimes{Interval: opts.ProgressInterval},
		started:  time.Now(),
	}
	err := r.run(ctx)
	return r.summary, err
}

type runner struct {
	src      Source
	cls      *screen.Classifier
	opts     Options
	flagged  *batcher
	review   *batcher
	summary  model.Summary
	seq      int64
	progress *rate.Sometimes
	started  time.Time
}

func (r *runner) run(ctx context.Context) error {
	window := 1
	if r.opts.Workers > 1 {
		window = r.opts.BatchSize
	}
	pending := make([]model.Transaction, 0, window)

	var stopErr error
	for {
		if err := ctx.Err(); err != nil {
			stopErr = eris.Wrap(err, "pipeline: cancelled")
			break
		}

		tx, err := r.src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			stopErr = err
			break
		}
		if err := r.cls.Check(tx); err != nil {
			stopErr = err
			break
		}

		pending = append(pending, tx)
		if len(pending) < window {
			continue
		}
		if err := r.process(ctx, pending); err != nil {
			return err
		}
		pending = pending[:0]
	}

	// Everything read before a failure is still classified and flushed,
	// even once ctx is cancelled.
	flushCtx := context.WithoutCancel(ctx)
	if err := r.process(flushCtx, pending); err != nil {
		return err
	}
	if err := r.flagged.flush(flushCtx); err != nil {
		return err
	}
	if err := r.review.flush(flushCtx); err != nil {
		return err
	}

	r.logDone(stopErr)
	return stopErr
}

// process classifies txs and routes the results in order.
func (r *runner) process(ctx context.Context, txs []model.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	results := r.classify(txs)
	for i := range results {
		if err := r.route(ctx, results[i]); err != nil {
			return err
		}
	}
	return nil
}

// classify labels txs, concurrently when Workers > 1. Each worker writes
// only its own slots of the result slice.
func (r *runner) classify(txs []model.Transaction) []model.Result {
	results := make([]model.Result, len(txs))
	if r.opts.Workers <= 1 || len(txs) == 1 {
		for i, tx := range txs {
			results[i] = r.cls.Classify(tx)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, tx := range txs {
		g.Go(func() error {
			results[i] = r.cls.Classify(tx)
			return nil
		})
	}
	_ = g.Wait() // classification cannot fail
	return results
}

func (r *runner) route(ctx context.Context, res model.Result) error {
	res.Seq = r.seq
	r.seq++
	r.summary.Add(res)
	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveResult(res)
	}

	var err error
	switch res.Label {
	case model.LabelFlagged:
		err = r.flagged.add(ctx, res)
	case model.LabelReview:
		err = r.review.add(ctx, res)
	}
	if err != nil {
		return err
	}

	r.progress.Do(func() {
		zap.L().Info("pipeline: progress",
			zap.Int64("total", r.summary.Total),
			zap.Int64("flagged", r.summary.Flagged),
			zap.Int64("review", r.summary.Review),
			zap.Duration("elapsed", time.Since(r.started)),
		)
	})
	return nil
}

func (r *runner) logDone(stopErr error) {
	fields := []zap.Field{
		zap.Int64("total", r.summary.Total),
		zap.Int64("flagged", r.summary.Flagged),
		zap.Int64("review", r.summary.Review),
		zap.Int64("passed", r.summary.Passed),
		zap.Int64("malformed", r.summary.Malformed),
		zap.Int("flagged_batches", r.flagged.flushes),
		zap.Int("review_batches", r.review.flushes),
		zap.Duration("elapsed", time.Since(r.started)),
	}
	if stopErr != nil {
		zap.L().Error("pipeline: stopped early, held batches flushed", append(fields, zap.Error(stopErr))...)
		return
	}
	zap.L().Info("pipeline: complete", fields...)
}
