// Package store persists the delivery journal and the handled-deployments
// ledger in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"scopelock/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.AttemptRecorder and domain.DeploymentLedger.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ domain.AttemptRecorder  = (*SQLiteStore)(nil)
	_ domain.DeploymentLedger = (*SQLiteStore)(nil)
)

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers queries.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Delivery journal ---

func (s *SQLiteStore) RecordAttempt(ctx context.Context, a domain.Attempt) error {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_attempts (dispatch_id, chunk_index, chunk_count, rich_text, outcome, detail, length, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.DispatchID, a.ChunkIndex, a.ChunkCount, a.RichText, string(a.Outcome), a.Detail, a.Length, a.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// RecentAttempts returns up to limit attempts, newest first.
func (s *SQLiteStore) RecentAttempts(ctx context.Context, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT dispatch_id, chunk_index, chunk_count, rich_text, outcome, detail, length, created_at
		 FROM delivery_attempts ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var a domain.Attempt
		var outcome string
		if err := rows.Scan(&a.DispatchID, &a.ChunkIndex, &a.ChunkCount, &a.RichText, &outcome, &a.Detail, &a.Length, &a.At); err != nil {
			return nil, err
		}
		a.Outcome = domain.Outcome(outcome)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// DispatchAttempts returns every attempt of one dispatch in delivery order.
func (s *SQLiteStore) DispatchAttempts(ctx context.Context, dispatchID string) ([]domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dispatch_id, chunk_index, chunk_count, rich_text, outcome, detail, length, created_at
		 FROM delivery_attempts WHERE dispatch_id = ? ORDER BY id`, dispatchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var a domain.Attempt
		var outcome string
		if err := rows.Scan(&a.DispatchID, &a.ChunkIndex, &a.ChunkCount, &a.RichText, &outcome, &a.Detail, &a.Length, &a.At); err != nil {
			return nil, err
		}
		a.Outcome = domain.Outcome(outcome)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// PruneAttempts deletes journal rows older than before and returns how many went.
func (s *SQLiteStore) PruneAttempts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM delivery_attempts WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	return res.RowsAffected()
}

// --- Deployment ledger ---

func (s *SQLiteStore) ClaimDeployment(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO handled_deployments (id, status, claimed_at) VALUES (?, ?, ?)`,
		id, string(domain.FixRunning), time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("claim deployment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) FinishDeployment(ctx context.Context, id string, status domain.FixStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE handled_deployments SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finish deployment %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish deployment %s: not claimed", id)
	}
	return nil
}

func (s *SQLiteStore) HasDeployment(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM handled_deployments WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) CountDeployments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM handled_deployments`).Scan(&n)
	return n, err
}

// RecentDeployments lists ledger entries, newest claim first.
func (s *SQLiteStore) RecentDeployments(ctx context.Context, limit int) ([]domain.HandledDeployment, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, claimed_at, finished_at FROM handled_deployments
		 ORDER BY claimed_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query deployments: %w", err)
	}
	defer rows.Close()

	var out []domain.HandledDeployment
	for rows.Next() {
		var d domain.HandledDeployment
		var status string
		var finished sql.NullTime
		if err := rows.Scan(&d.ID, &status, &d.ClaimedAt, &finished); err != nil {
			return nil, err
		}
		d.Status = domain.FixStatus(status)
		if finished.Valid {
			d.FinishedAt = finished.Time
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
