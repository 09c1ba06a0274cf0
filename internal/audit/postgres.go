package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/txscreen/internal/model"
)

// Pool is the subset of *pgxpool.Pool the recorder uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// PostgresRecorder implements Recorder using pgxpool. Detections are
// written with COPY.
type PostgresRecorder struct {
	pool Pool
}

// NewPostgresRecorder connects to connString and verifies the connection.
func NewPostgresRecorder(ctx context.Context, connString string) (*PostgresRecorder, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresRecorder{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS screen_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	transactions TEXT NOT NULL,
	blacklist    TEXT NOT NULL DEFAULT '',
	threshold    INTEGER NOT NULL,
	total        BIGINT NOT NULL DEFAULT 0,
	flagged      BIGINT NOT NULL DEFAULT 0,
	review       BIGINT NOT NULL DEFAULT 0,
	passed       BIGINT NOT NULL DEFAULT 0,
	malformed    BIGINT NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ
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
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_detections_run_id ON detections(run_id);
CREATE INDEX IF NOT EXISTS idx_detections_transaction_id ON detections(transaction_id);
`

var detectionColumns = []string{"run_id", "transaction_id", "party", "kind", "list", "value", "matched", "score"}

// Migrate creates the audit tables.
func (p *PostgresRecorder) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (p *PostgresRecorder) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresRecorder) Begin(ctx context.Context, run Run) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO screen_runs (id, status, transactions, blacklist, threshold, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, string(StatusRunning), run.Transactions, run.Blacklist, run.Threshold, run.StartedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (p *PostgresRecorder) Record(ctx context.Context, runID string, detections []model.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	rows := make([][]any, len(detections))
	for i, d := range detections {
		rows[i] = []any{runID, d.TransactionID, string(d.Party), string(d.Kind), d.List, d.Value, d.Matched, d.Score}
	}
	if _, err := p.pool.CopyFrom(ctx, pgx.Identifier{"detections"}, detectionColumns, pgx.CopyFromRows(rows)); err != nil {
		return eris.Wrap(err, "postgres: COPY INTO detections")
	}
	return nil
}

func (p *PostgresRecorder) End(ctx context.Context, runID string, sum model.Summary, status Status) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE screen_runs SET status = $1, total = $2, flagged = $3, review = $4, passed = $5, malformed = $6, finished_at = $7 WHERE id = $8`,
		string(status), sum.Total, sum.Flagged, sum.Review, sum.Passed, sum.Malformed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}
