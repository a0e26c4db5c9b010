package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PartnerRecord represents a field partner stored in the database
type PartnerRecord struct {
	ID           int64
	Name         string
	Phone        string
	IsVerified   bool
	IsIDVerified bool
	IsAssigned   bool
	CreatedAt    time.Time
}

// InsertPartner creates a partner record and returns its ID
func InsertPartner(ctx context.Context, q DBTX, name, phone string) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO partners (name, phone, created_at) VALUES (?, ?, ?)`,
		name, phone, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert partner: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get partner id: %w", err)
	}
	return id, nil
}

// GetPartner retrieves a partner by ID. Returns nil without error when the
// partner does not exist; the caller decides how absence is reported.
func GetPartner(ctx context.Context, q DBTX, id int64) (*PartnerRecord, error) {
	record := &PartnerRecord{}
	var createdAtUnix int64
	var isVerified, isIDVerified, isAssigned int

	err := q.QueryRowContext(ctx,
		`SELECT id, name, phone, is_verified, is_id_verified, is_assigned, created_at
		 FROM partners WHERE id = ?`,
		id,
	).Scan(
		&record.ID,
		&record.Name,
		&record.Phone,
		&isVerified,
		&isIDVerified,
		&isAssigned,
		&createdAtUnix,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query partner: %w", err)
	}

	record.IsVerified = isVerified != 0
	record.IsIDVerified = isIDVerified != 0
	record.IsAssigned = isAssigned != 0
	record.CreatedAt = time.Unix(createdAtUnix, 0)
	return record, nil
}

// SetPartnerAssigned flips the exclusive-assignment flag on a partner row.
// Must run inside the transaction that performs the matching job status
// change.
func SetPartnerAssigned(ctx context.Context, q DBTX, id int64, assigned bool) error {
	res, err := q.ExecContext(ctx,
		`UPDATE partners SET is_assigned = ? WHERE id = ?`,
		boolToInt(assigned), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update partner assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("partner %d not found", id)
	}
	return nil
}

// GrantPartner authorizes an administrator to assign/unassign a partner
func GrantPartner(ctx context.Context, q DBTX, adminID, partnerID int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO admin_partner_grants (admin_id, partner_id, created_at) VALUES (?, ?, ?)`,
		adminID, partnerID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert admin grant: %w", err)
	}
	return nil
}

// AdminGrantExists reports whether (admin, partner) authorization exists
func AdminGrantExists(ctx context.Context, q DBTX, adminID, partnerID int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM admin_partner_grants WHERE admin_id = ? AND partner_id = ?`,
		adminID, partnerID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query admin grant: %w", err)
	}
	return true, nil
}

// ActiveJobForPartner returns the in-progress job currently bound to the
// partner, or nil when there is none.
func ActiveJobForPartner(ctx context.Context, q DBTX, partnerID int64) (*JobRecord, error) {
	return scanJobRow(q.QueryRowContext(ctx,
		jobSelectColumns+` FROM jobs WHERE partner_id = ? AND status = 'in_progress'`,
		partnerID,
	))
}
