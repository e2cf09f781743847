package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pfs-cli/internal/config"
	"github.com/sells-group/pfs-cli/internal/db"
	"github.com/sells-group/pfs-cli/internal/model"
)

// PostgresStore implements Store on a pgx pool. Outcomes live in their own
// table and are written with COPY.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects a pool and pings it.
func NewPostgres(ctx context.Context, connString string, poolCfg config.PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg.MaxConns > 0 {
		pgxCfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		pgxCfg.MinConns = poolCfg.MinConns
	}
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL DEFAULT '',
	label      TEXT NOT NULL DEFAULT '',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fill_runs (
	id          TEXT PRIMARY KEY,
	snapshot_id TEXT NOT NULL DEFAULT '',
	template_id TEXT NOT NULL,
	edition     TEXT NOT NULL,
	status      TEXT NOT NULL,
	filled      INTEGER NOT NULL DEFAULT 0,
	blank       INTEGER NOT NULL DEFAULT 0,
	missing     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fill_outcomes (
	run_id     TEXT NOT NULL REFERENCES fill_runs(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	field_name TEXT NOT NULL,
	status     TEXT NOT NULL,
	widget     TEXT NOT NULL DEFAULT '',
	value      TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_owner ON snapshots(owner, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fill_runs_created ON fill_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_fill_runs_status ON fill_runs(status);
CREATE INDEX IF NOT EXISTS idx_fill_runs_snapshot ON fill_runs(snapshot_id);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	stamp(&snap.ID, &snap.CreatedAt)
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal snapshot data")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, owner, label, data, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET owner = EXCLUDED.owner, label = EXCLUDED.label, data = EXCLUDED.data`,
		snap.ID, snap.Owner, snap.Label, data, snap.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save snapshot %s", snap.ID)
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner, label, data, created_at FROM snapshots WHERE id = $1`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: snapshot %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get snapshot %s", id)
	}
	return snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, f SnapshotFilter) ([]model.Snapshot, error) {
	var w where
	if f.Owner != "" {
		w.add("owner", f.Owner)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner, label, data, created_at FROM snapshots`+w.sql()+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limitOf(f.Limit)),
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list snapshots")
}

var outcomeColumns = []string{"run_id", "position", "field_name", "status", "widget", "value", "detail"}

// SaveFillRun writes the run and replaces its outcomes in one transaction.
func (s *PostgresStore) SaveFillRun(ctx context.Context, r *model.FillRun) error {
	stamp(&r.ID, &r.CreatedAt)

	rows := make([][]any, len(r.Outcomes))
	for i, o := range r.Outcomes {
		rows[i] = []any{r.ID, i, o.FieldName, string(o.Status), o.Widget, o.Value, o.Detail}
	}

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO fill_runs (id, snapshot_id, template_id, edition, status, filled, blank, missing, failed, error, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, filled = EXCLUDED.filled, blank = EXCLUDED.blank,
			   missing = EXCLUDED.missing, failed = EXCLUDED.failed, error = EXCLUDED.error`,
			r.ID, r.SnapshotID, r.TemplateID, r.Edition, string(r.Status),
			r.Filled, r.Blank, r.Missing, r.Failed, r.Error, r.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "insert run")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM fill_outcomes WHERE run_id = $1`, r.ID); err != nil {
			return eris.Wrap(err, "clear outcomes")
		}
		_, err := db.CopyFrom(ctx, tx, "fill_outcomes", outcomeColumns, rows)
		return err
	})
	return eris.Wrapf(err, "postgres: save fill run %s", r.ID)
}

const runColumns = `id, snapshot_id, template_id, edition, status, filled, blank, missing, failed, error, created_at`

func (s *PostgresStore) GetFillRun(ctx context.Context, id string) (*model.FillRun, error) {
	run, err := scanFillRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM fill_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: fill run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get fill run %s", id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT field_name, status, widget, value, detail FROM fill_outcomes WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get outcomes %s", id)
	}
	defer rows.Close()
	for rows.Next() {
		var o model.FillOutcome
		var status string
		if err := rows.Scan(&o.FieldName, &status, &o.Widget, &o.Value, &o.Detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		o.Status = model.OutcomeStatus(status)
		run.Outcomes = append(run.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: get outcomes %s", id)
	}
	return run, nil
}

func (s *PostgresStore) ListFillRuns(ctx context.Context, f RunFilter) ([]model.FillRun, error) {
	var w where
	if f.SnapshotID != "" {
		w.add("snapshot_id", f.SnapshotID)
	}
	if f.TemplateID != "" {
		w.add("template_id", f.TemplateID)
	}
	if f.Status != "" {
		w.add("status", string(f.Status))
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM fill_runs`+w.sql()+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limitOf(f.Limit)),
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fill runs")
	}
	defer rows.Close()

	var out []model.FillRun
	for rows.Next() {
		run, err := scanFillRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan fill run")
		}
		out = append(out, *run)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list fill runs")
}

// where builds a numbered-placeholder WHERE clause.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(col string, v any) {
	w.args = append(w.args, v)
	w.conds = append(w.conds, fmt.Sprintf("%s = $%d", col, len(w.args)))
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scannable) (*model.Snapshot, error) {
	var snap model.Snapshot
	var data []byte
	if err := row.Scan(&snap.ID, &snap.Owner, &snap.Label, &data, &snap.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &snap.Data); err != nil {
		return nil, eris.Wrap(err, "unmarshal snapshot data")
	}
	return &snap, nil
}

func scanFillRun(row scannable) (*model.FillRun, error) {
	var r model.FillRun
	var status string
	err := row.Scan(&r.ID, &r.SnapshotID, &r.TemplateID, &r.Edition, &status,
		&r.Filled, &r.Blank, &r.Missing, &r.Failed, &r.Error, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}
