// Package storage provides SQLite-backed persistence for valuation
// snapshots. Reports themselves are pure and carry no identity; a snapshot
// wraps one with an id and a capture time.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/phenomenon0/cuprun/pkg/engine/analysis"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Snapshot is one persisted pipeline run. Breakeven is nil when the report
// left it undefined.
type Snapshot struct {
	ID             string           `json:"id"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpectedValue  float64          `json:"expected_value"`
	ExpectedIRRPct float64          `json:"expected_irr_pct"`
	Breakeven      *float64         `json:"breakeven,omitempty"`
	Report         *analysis.Report `json:"report,omitempty"`
}

// Store wraps a SQLite database holding the snapshot history.
type Store struct {
	db   *sql.DB
	keep int
}

const defaultKeep = 500

// New opens or creates the SQLite database at dbPath, keeping at most keep
// snapshots. An empty dbPath defaults to $TMPDIR/cuprun/cuprun.db; keep
// values below 1 get the default cap.
func New(dbPath string, keep int) (*Store, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "cuprun", "cuprun.db")
	}
	if keep < 1 {
		keep = defaultKeep
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Store{db: db, keep: keep}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id               TEXT PRIMARY KEY,
			created_at       INTEGER NOT NULL,
			expected_value   REAL NOT NULL,
			expected_irr_pct REAL NOT NULL,
			breakeven        REAL,
			report           TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot persists the report under a fresh id and enforces the
// retention cap in the same transaction.
func (s *Store) SaveSnapshot(report *analysis.Report) (*Snapshot, error) {
	if report == nil {
		return nil, fmt.Errorf("nil report")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	snap := &Snapshot{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		ExpectedValue:  report.ExpectedValue.InexactFloat64(),
		ExpectedIRRPct: report.ExpectedIRRPct,
		Report:         report,
	}
	if report.BreakevenValid {
		be := report.Breakeven.InexactFloat64()
		snap.Breakeven = &be
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO snapshots (id, created_at, expected_value, expected_irr_pct, breakeven, report)
		VALUES (?,?,?,?,?,?)`,
		snap.ID, snap.CreatedAt.UnixNano(), snap.ExpectedValue, snap.ExpectedIRRPct,
		nullableFloat(snap.Breakeven), string(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY created_at DESC LIMIT ?
		)`, s.keep); err != nil {
		return nil, fmt.Errorf("failed to enforce snapshot cap: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return snap, nil
}

// LatestSnapshot returns the newest snapshot, or nil when none exist.
func (s *Store) LatestSnapshot() (*Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, expected_value, expected_irr_pct, breakeven, report
		FROM snapshots ORDER BY created_at DESC LIMIT 1`)
	snap, err := scanSnapshot(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns up to limit snapshots, newest first. A limit below
// 1 returns 50.
func (s *Store) ListSnapshots(limit int) ([]*Snapshot, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, created_at, expected_value, expected_irr_pct, breakeven, report
		FROM snapshots ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []*Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// Prune enforces the retention cap outside of a save.
func (s *Store) Prune() error {
	if _, err := s.db.Exec(`
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY created_at DESC LIMIT ?
		)`, s.keep); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return nil
}

func scanSnapshot(scan func(...any) error) (*Snapshot, error) {
	var snap Snapshot
	var createdAtNano int64
	var breakeven sql.NullFloat64
	var payload string

	if err := scan(&snap.ID, &createdAtNano, &snap.ExpectedValue, &snap.ExpectedIRRPct, &breakeven, &payload); err != nil {
		return nil, err
	}
	snap.CreatedAt = time.Unix(0, createdAtNano).UTC()
	if breakeven.Valid {
		snap.Breakeven = &breakeven.Float64
	}

	var report analysis.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	snap.Report = &report
	return &snap, nil
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
