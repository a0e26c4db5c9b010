package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldworks/dispatch/pkg/types"
)

// OTCSessionRecord represents a one-time-code session scoped to a job and
// purpose. Only the salted hash of the code is ever persisted.
type OTCSessionRecord struct {
	ID           int64
	Purpose      types.OTCPurpose
	JobID        int64
	Phone        string
	CodeHash     string
	ExpiresAt    time.Time
	IsUsed       bool
	AttemptCount int
	CreatedAt    time.Time
}

// InvalidateOTCSessions marks every unused session for (purpose, job) as
// used. Called before inserting a replacement so at most one live session
// exists per pair.
func InvalidateOTCSessions(ctx context.Context, q DBTX, purpose types.OTCPurpose, jobID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE otc_sessions SET is_used = 1 WHERE purpose = ? AND job_id = ? AND is_used = 0`,
		string(purpose), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to invalidate OTC sessions: %w", err)
	}
	return nil
}

// InsertOTCSession persists a new session
func InsertOTCSession(ctx context.Context, q DBTX, record *OTCSessionRecord) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO otc_sessions
		 (purpose, job_id, phone, code_hash, expires_at, is_used, attempt_count, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, ?)`,
		string(record.Purpose),
		record.JobID,
		record.Phone,
		record.CodeHash,
		record.ExpiresAt.Unix(),
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert OTC session: %w", err)
	}
	return nil
}

// LatestUnusedOTCSession returns the most recent live session for
// (purpose, job), or nil when none exists.
func LatestUnusedOTCSession(ctx context.Context, q DBTX, purpose types.OTCPurpose, jobID int64) (*OTCSessionRecord, error) {
	record := &OTCSessionRecord{}
	var expiresAtUnix, createdAtUnix int64
	var isUsed int

	err := q.QueryRowContext(ctx,
		`SELECT id, purpose, job_id, phone, code_hash, expires_at, is_used, attempt_count, created_at
		 FROM otc_sessions
		 WHERE purpose = ? AND job_id = ? AND is_used = 0
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		string(purpose), jobID,
	).Scan(
		&record.ID,
		&record.Purpose,
		&record.JobID,
		&record.Phone,
		&record.CodeHash,
		&expiresAtUnix,
		&isUsed,
		&record.AttemptCount,
		&createdAtUnix,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query OTC session: %w", err)
	}

	record.ExpiresAt = time.Unix(expiresAtUnix, 0)
	record.IsUsed = isUsed != 0
	record.CreatedAt = time.Unix(createdAtUnix, 0)
	return record, nil
}

// MarkOTCSessionUsed consumes a session by ID
func MarkOTCSessionUsed(ctx context.Context, q DBTX, id int64) error {
	_, err := q.ExecContext(ctx, `UPDATE otc_sessions SET is_used = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark OTC session used: %w", err)
	}
	return nil
}

// IncrementOTCAttempts bumps the failed-attempt counter, leaving the
// session live for further retries until expiry.
func IncrementOTCAttempts(ctx context.Context, q DBTX, id int64) error {
	_, err := q.ExecContext(ctx, `UPDATE otc_sessions SET attempt_count = attempt_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment OTC attempts: %w", err)
	}
	return nil
}
