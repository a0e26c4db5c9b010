package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldworks/dispatch/pkg/types"
)

// AuditRecord is one immutable row of a job's status history
type AuditRecord struct {
	ID        int64
	JobID     int64
	Status    types.JobStatus
	Notes     string
	CreatedAt time.Time
}

// AppendAudit inserts a history entry. Entries are never updated or
// deleted except through cascading job deletion.
func AppendAudit(ctx context.Context, q DBTX, jobID int64, status types.JobStatus, notes string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_log (job_id, status, notes, created_at) VALUES (?, ?, ?, ?)`,
		jobID, string(status), nullStr(notes), at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditHistory returns a job's history in chronological order. The row ID
// breaks ties between entries committed within the same second.
func AuditHistory(ctx context.Context, q DBTX, jobID int64) ([]*AuditRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, job_id, status, COALESCE(notes, ''), created_at
		 FROM audit_log WHERE job_id = ? ORDER BY created_at ASC, id ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit history: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var records []*AuditRecord
	for rows.Next() {
		record := &AuditRecord{}
		var createdAtUnix int64
		if err := rows.Scan(&record.ID, &record.JobID, &record.Status, &record.Notes, &createdAtUnix); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		record.CreatedAt = time.Unix(createdAtUnix, 0)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return records, nil
}
