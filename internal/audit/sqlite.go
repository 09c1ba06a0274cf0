package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/txscreen/internal/model"
)

// SQLiteRecorder implements Recorder using modernc.org/sqlite.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder opens a SQLite database at the given path and configures WAL mode.
func NewSQLiteRecorder(dsn string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteRecorder{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS screen_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	transactions TEXT NOT NULL,
	blacklist    TEXT NOT NULL DEFAULT '',
	threshold    INTEGER NOT NULL,
	total        INTEGER NOT NULL DEFAULT 0,
	flagged      INTEGER NOT NULL DEFAULT 0,
	review       INTEGER NOT NULL DEFAULT 0,
	passed       INTEGER NOT NULL DEFAULT 0,
	malformed    INTEGER NOT NULL DEFAULT 0,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME
);

CREATE TABLE IF NOT EXISTS detections (
	run_id         TEXT NOT NULL REFERENCES screen_runs(id),
	transaction_id TEXT NOT NULL,
	party          TEXT NOT NULL,
	kind           TEXT NOT NULL,
	list           TEXT NOT NULL,
	value          TEXT NOT NULL,
	matched        TEXT NOT NULL,
	score          INTEGER NOT NULL,
	recorded_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_detections_run_id ON detections(run_id);
CREATE INDEX IF NOT EXISTS idx_detections_transaction_id ON detections(transaction_id);
`

// Migrate creates the audit tables.
func (s *SQLiteRecorder) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}

func (s *SQLiteRecorder) Begin(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO screen_runs (id, status, transactions, blacklist, threshold, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(StatusRunning), run.Transactions, run.Blacklist, run.Threshold, run.StartedAt,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteRecorder) Record(ctx context.Context, runID string, detections []model.Detection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO detections (run_id, transaction_id, party, kind, list, value, matched, score) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare detection insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, d := range detections {
		if _, err := stmt.ExecContext(ctx, runID, d.TransactionID, string(d.Party), string(d.Kind), d.List, d.Value, d.Matched, d.Score); err != nil {
			return eris.Wrapf(err, "sqlite: insert detection for %s", d.TransactionID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit detections")
}

func (s *SQLiteRecorder) End(ctx context.Context, runID string, sum model.Summary, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE screen_runs SET status = ?, total = ?, flagged = ?, review = ?, passed = ?, malformed = ?, finished_at = ? WHERE id = ?`,
		string(status), sum.Total, sum.Flagged, sum.Review, sum.Passed, sum.Malformed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
