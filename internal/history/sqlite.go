package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/ejagojo/VibeScan/internal/scanner"
	"github.com/ejagojo/VibeScan/pkg/rules"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// DB is the run history store backed by SQLite.
type DB struct {
	conn *sql.DB
}

// Run is one persisted scan.
type Run struct {
	ID        string            `json:"id"`
	StartedAt time.Time         `json:"started_at"`
	Target    string            `json:"target"`
	Scores    scanner.Scores    `json:"scores"`
	Stats     scanner.Stats     `json:"stats"`
	Findings  []scanner.Finding `json:"findings,omitempty"`
}

// Open opens (and creates if missing) a SQLite DB at path and ensures
// the schema exists.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	c, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db := &DB{conn: c}
	if err := db.CreateSchema(); err != nil {
		c.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error { return db.conn.Close() }

// CreateSchema ensures tables exist.
func (db *DB) CreateSchema() error {
	_, err := db.conn.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id             TEXT PRIMARY KEY,
  started_at     TEXT NOT NULL,   -- RFC3339Nano
  target         TEXT,
  security_score INTEGER NOT NULL,
  style_score    INTEGER NOT NULL,
  files          INTEGER NOT NULL,
  findings       INTEGER NOT NULL,
  suppressed     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS findings (
  seq      INTEGER NOT NULL,
  run_id   TEXT NOT NULL,
  rule_id  TEXT NOT NULL,
  file     TEXT NOT NULL,
  line     INTEGER NOT NULL,
  severity TEXT NOT NULL,
  category TEXT NOT NULL,
  message  TEXT,
  PRIMARY KEY (run_id, seq),
  FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_findings_rule ON findings(rule_id);
`)
	if err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// SaveRun upserts a run and (re)writes its findings.
func (db *DB) SaveRun(ctx context.Context, run Run) error {
	ts := run.StartedAt.UTC().Format(time.RFC3339Nano)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, target, security_score, style_score, files, findings, suppressed)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET started_at=excluded.started_at, target=excluded.target,
           security_score=excluded.security_score, style_score=excluded.style_score,
           files=excluded.files, findings=excluded.findings, suppressed=excluded.suppressed`,
		run.ID, ts, run.Target, run.Scores.Security, run.Scores.Style,
		run.Stats.Files, run.Stats.Findings, run.Stats.Suppressed,
	); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	if len(run.Findings) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO findings (seq, run_id, rule_id, file, line, severity, category, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, f := range run.Findings {
			if _, err := stmt.ExecContext(ctx, i, run.ID, f.RuleID, f.Path, f.Line,
				string(f.Severity), string(f.Category), f.Message); err != nil {
				return fmt.Errorf("failed to save finding: %w", err)
			}
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs without their findings.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
		SELECT id, started_at, target, security_score, style_score, files, findings, suppressed
		  FROM runs
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`
	rows, err := db.conn.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var startedAt string
		if err := rows.Scan(&r.ID, &startedAt, &r.Target, &r.Scores.Security, &r.Scores.Style,
			&r.Stats.Files, &r.Stats.Findings, &r.Stats.Suppressed); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun loads one run with its findings in scan order.
func (db *DB) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	var startedAt string
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, started_at, target, security_score, style_score, files, findings, suppressed
		  FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &startedAt, &r.Target, &r.Scores.Security, &r.Scores.Style,
			&r.Stats.Files, &r.Stats.Findings, &r.Stats.Suppressed)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = parseTime(startedAt)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT rule_id, file, line, severity, category, message
		  FROM findings WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var f scanner.Finding
		var sev, cat string
		if err := rows.Scan(&f.RuleID, &f.Path, &f.Line, &sev, &cat, &f.Message); err != nil {
			return Run{}, err
		}
		f.Severity = rules.Severity(sev)
		f.Category = rules.Category(cat)
		r.Findings = append(r.Findings, f)
	}
	return r, rows.Err()
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
