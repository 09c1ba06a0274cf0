// Package audit keeps a write-only trail of screening runs and the sanction
// detections they produce. Nothing in the screening path reads it back.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/txscreen/internal/model"
)

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Run describes one screening run.
type Run struct {
	ID           string
	StartedAt    time.Time
	Transactions string // input location
	Blacklist    string
	Threshold    int
}

// Recorder persists runs and their detections.
type Recorder interface {
	Begin(ctx context.Context, run Run) error
	Record(ctx context.Context, runID string, detections []model.Detection) error
	End(ctx context.Context, runID string, summary model.Summary, status Status) error
	Close() error
}

// Open returns the recorder for driver: "" logs detections only, "sqlite"
// and "postgres" persist them at url.
func Open(ctx context.Context, driver, url string) (Recorder, error) {
	switch driver {
	case "":
		return NewLogRecorder(), nil
	case "sqlite":
		r, err := NewSQLiteRecorder(url)
		if err != nil {
			return nil, err
		}
		if err := r.Migrate(ctx); err != nil {
			_ = r.Close()
			return nil, err
		}
		return r, nil
	case "postgres":
		r, err := NewPostgresRecorder(ctx, url)
		if err != nil {
			return nil, err
		}
		if err := r.Migrate(ctx); err != nil {
			_ = r.Close()
			return nil, err
		}
		return r, nil
	default:
		return nil, eris.Errorf("audit: unknown driver %q", driver)
	}
}

// Trail binds a Recorder to one run.
type Trail struct {
	rec Recorder
	run Run
}

// Start begins a run on rec, assigning an ID and start time when unset.
func Start(ctx context.Context, rec Recorder, run Run) (*Trail, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if err := rec.Begin(ctx, run); err != nil {
		return nil, eris.Wrap(err, "audit: begin run")
	}
	return &Trail{rec: rec, run: run}, nil
}

// RunID returns the run's identifier.
func (t *Trail) RunID() string { return t.run.ID }

// Record stores detections for the run.
func (t *Trail) Record(ctx context.Context, detections []model.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	if err := t.rec.Record(ctx, t.run.ID, detections); err != nil {
		return eris.Wrapf(err, "audit: record %d detections", len(detections))
	}
	return nil
}

// Finish closes the run as complete, or failed when runErr is non-nil.
func (t *Trail) Finish(ctx context.Context, summary model.Summary, runErr error) error {
	status := StatusComplete
	if runErr != nil {
		status = StatusFailed
	}
	if err := t.rec.End(ctx, t.run.ID, summary, status); err != nil {
		return eris.Wrap(err, "audit: end run")
	}
	return nil
}

// LogRecorder writes the trail to the structured log.
type LogRecorder struct {
	log *zap.Logger
}

// NewLogRecorder returns a recorder backed by the global logger.
func NewLogRecorder() *LogRecorder {
	return &LogRecorder{log: zap.L().Named("audit")}
}

func (l *LogRecorder) Begin(_ context.Context, run Run) error {
	l.log.Info("run started",
		zap.String("run_id", run.ID),
		zap.Time("started_at", run.StartedAt),
		zap.String("transactions", run.Transactions),
		zap.String("blacklist", run.Blacklist),
		zap.Int("threshold", run.Threshold),
	)
	return nil
}

func (l *LogRecorder) Record(_ context.Context, runID string, detections []model.Detection) error {
	for _, d := range detections {
		l.log.Info("detection",
			zap.String("run_id", runID),
			zap.String("transaction_id", d.TransactionID),
			zap.String("party", string(d.Party)),
			zap.String("kind", string(d.Kind)),
			zap.String("list", d.List),
			zap.String("value", d.Value),
			zap.String("matched", d.Matched),
			zap.Int("score", d.Score),
		)
	}
	return nil
}

func (l *LogRecorder) End(_ context.Context, runID string, s model.Summary, status Status) error {
	l.log.Info("run finished",
		zap.String("run_id", runID),
		zap.String("status", string(status)),
		zap.Int64("total", s.Total),
		zap.Int64("flagged", s.Flagged),
		zap.Int64("review", s.Review),
		zap.Int64("passed", s.Passed),
		zap.Int64("malformed", s.Malformed),
	)
	return nil
}

func (l *LogRecorder) Close() error { return nil }
