package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pfs-cli/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. Outcomes are kept as a
// JSON column on the run.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL DEFAULT '',
	label      TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL
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
	outcomes    TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_owner ON snapshots(owner);
CREATE INDEX IF NOT EXISTS idx_fill_runs_created ON fill_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_fill_runs_status ON fill_runs(status);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	stamp(&snap.ID, &snap.CreatedAt)
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal snapshot data")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, owner, label, data, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET owner = excluded.owner, label = excluded.label, data = excluded.data`,
		snap.ID, snap.Owner, snap.Label, string(data), snap.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save snapshot %s", snap.ID)
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, label, data, created_at FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: snapshot %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get snapshot %s", id)
	}
	return snap, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, f SnapshotFilter) ([]model.Snapshot, error) {
	var conds []string
	var args []any
	if f.Owner != "" {
		conds, args = append(conds, "owner = ?"), append(args, f.Owner)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, label, data, created_at FROM snapshots`+whereSQL(conds)+
			fmt.Sprintf(` ORDER BY created_at DESC, rowid DESC LIMIT %d`, limitOf(f.Limit)),
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list snapshots")
}

func (s *SQLiteStore) SaveFillRun(ctx context.Context, r *model.FillRun) error {
	stamp(&r.ID, &r.CreatedAt)
	outcomes := r.Outcomes
	if outcomes == nil {
		outcomes = []model.FillOutcome{}
	}
	outJSON, err := json.Marshal(outcomes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal outcomes")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fill_runs (id, snapshot_id, template_id, edition, status, filled, blank, missing, failed, error, outcomes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, filled = excluded.filled, blank = excluded.blank,
		   missing = excluded.missing, failed = excluded.failed, error = excluded.error, outcomes = excluded.outcomes`,
		r.ID, r.SnapshotID, r.TemplateID, r.Edition, string(r.Status),
		r.Filled, r.Blank, r.Missing, r.Failed, r.Error, string(outJSON), r.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save fill run %s", r.ID)
}

func (s *SQLiteStore) GetFillRun(ctx context.Context, id string) (*model.FillRun, error) {
	var outJSON string
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+`, outcomes FROM fill_runs WHERE id = ?`, id)
	run, err := scanFillRun(withTail(row, &outJSON))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: fill run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get fill run %s", id)
	}
	if err := json.Unmarshal([]byte(outJSON), &run.Outcomes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal outcomes")
	}
	return run, nil
}

func (s *SQLiteStore) ListFillRuns(ctx context.Context, f RunFilter) ([]model.FillRun, error) {
	var conds []string
	var args []any
	if f.SnapshotID != "" {
		conds, args = append(conds, "snapshot_id = ?"), append(args, f.SnapshotID)
	}
	if f.TemplateID != "" {
		conds, args = append(conds, "template_id = ?"), append(args, f.TemplateID)
	}
	if f.Status != "" {
		conds, args = append(conds, "status = ?"), append(args, string(f.Status))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM fill_runs`+whereSQL(conds)+
			fmt.Sprintf(` ORDER BY created_at DESC, rowid DESC LIMIT %d`, limitOf(f.Limit)),
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fill runs")
	}
	defer rows.Close()

	var out []model.FillRun
	for rows.Next() {
		run, err := scanFillRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fill run")
		}
		out = append(out, *run)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list fill runs")
}

func whereSQL(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// tailScanner appends extra destinations to a Scan call.
type tailScanner struct {
	row  scannable
	tail []any
}

func (t tailScanner) Scan(dest ...any) error {
	return t.row.Scan(append(dest, t.tail...)...)
}

func withTail(row scannable, tail ...any) scannable {
	return tailScanner{row: row, tail: tail}
}
