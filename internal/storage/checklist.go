package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ChecklistRecord is a reusable checklist template
type ChecklistRecord struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// ChecklistItemRecord is one line of a checklist template
type ChecklistItemRecord struct {
	ID          int64
	ChecklistID int64
	Text        string
	Position    int64
	CreatedAt   time.Time
}

// ItemStatusRecord is the per-job, per-item completion/approval state.
// Rows are created lazily on first write; absence means all-false defaults.
type ItemStatusRecord struct {
	ID              int64
	JobID           int64
	ChecklistItemID int64
	Checked         bool
	IsApproved      bool
	Comment         string
	AdminComment    string
	DocumentLink    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InsertChecklist creates a checklist template
func InsertChecklist(ctx context.Context, q DBTX, name, description string) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO checklists (name, description, created_at) VALUES (?, ?, ?)`,
		name, nullStr(description), time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert checklist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get checklist id: %w", err)
	}
	return id, nil
}

// InsertChecklistItem appends an item to a checklist template
func InsertChecklistItem(ctx context.Context, q DBTX, checklistID int64, text string, position int64) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO checklist_items (checklist_id, text, position, created_at) VALUES (?, ?, ?, ?)`,
		checklistID, text, position, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert checklist item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get checklist item id: %w", err)
	}
	return id, nil
}

// GetChecklistItem retrieves one template item, nil when missing
func GetChecklistItem(ctx context.Context, q DBTX, itemID int64) (*ChecklistItemRecord, error) {
	record := &ChecklistItemRecord{}
	var createdAtUnix int64
	err := q.QueryRowContext(ctx,
		`SELECT id, checklist_id, text, position, created_at FROM checklist_items WHERE id = ?`,
		itemID,
	).Scan(&record.ID, &record.ChecklistID, &record.Text, &record.Position, &createdAtUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query checklist item: %w", err)
	}
	record.CreatedAt = time.Unix(createdAtUnix, 0)
	return record, nil
}

// LinkChecklistToJob attaches a checklist template to a job
func LinkChecklistToJob(ctx context.Context, q DBTX, jobID, checklistID int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO job_checklists (job_id, checklist_id, created_at) VALUES (?, ?, ?)`,
		jobID, checklistID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to link checklist to job: %w", err)
	}
	return nil
}

// ChecklistLinkedToJob reports whether a job carries the given checklist
func ChecklistLinkedToJob(ctx context.Context, q DBTX, jobID, checklistID int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM job_checklists WHERE job_id = ? AND checklist_id = ?`,
		jobID, checklistID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query job checklist link: %w", err)
	}
	return true, nil
}

// ItemWithStatus joins a template item with its optional per-job status row
type ItemWithStatus struct {
	Item   ChecklistItemRecord
	Status *ItemStatusRecord
}

// ItemsWithStatus returns every item of a checklist in position order with
// the job's status row where one exists. Missing rows stay nil so callers
// can synthesize the default projection without writing anything.
func ItemsWithStatus(ctx context.Context, q DBTX, jobID, checklistID int64) ([]*ItemWithStatus, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT i.id, i.checklist_id, i.text, i.position, i.created_at,
		        s.id, s.checked, s.is_approved, s.comment, s.admin_comment,
		        s.document_link, s.created_at, s.updated_at
		 FROM checklist_items i
		 LEFT JOIN checklist_item_status s
		   ON s.checklist_item_id = i.id AND s.job_id = ?
		 WHERE i.checklist_id = ?
		 ORDER BY i.position ASC, i.id ASC`,
		jobID, checklistID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query checklist items: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var result []*ItemWithStatus
	for rows.Next() {
		entry := &ItemWithStatus{}
		var itemCreatedAt int64
		var statusID, statusCreatedAt, statusUpdatedAt sql.NullInt64
		var checked, approved sql.NullInt64
		var comment, adminComment, documentLink sql.NullString

		if err := rows.Scan(
			&entry.Item.ID,
			&entry.Item.ChecklistID,
			&entry.Item.Text,
			&entry.Item.Position,
			&itemCreatedAt,
			&statusID,
			&checked,
			&approved,
			&comment,
			&adminComment,
			&documentLink,
			&statusCreatedAt,
			&statusUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan checklist item: %w", err)
		}

		entry.Item.CreatedAt = time.Unix(itemCreatedAt, 0)
		if statusID.Valid {
			entry.Status = &ItemStatusRecord{
				ID:              statusID.Int64,
				JobID:           jobID,
				ChecklistItemID: entry.Item.ID,
				Checked:         checked.Int64 != 0,
				IsApproved:      approved.Int64 != 0,
				Comment:         comment.String,
				AdminComment:    adminComment.String,
				DocumentLink:    documentLink.String,
				CreatedAt:       time.Unix(statusCreatedAt.Int64, 0),
				UpdatedAt:       time.Unix(statusUpdatedAt.Int64, 0),
			}
		}
		result = append(result, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checklist items: %w", err)
	}

	return result, nil
}

// UpsertPartnerItemStatus writes the partner-writable subset of an item
// status. The UNIQUE(job_id, checklist_item_id) constraint makes the
// insert-or-update race-safe; nil fields leave existing values untouched.
func UpsertPartnerItemStatus(ctx context.Context, q DBTX, jobID, itemID int64, checked *bool, comment, documentLink *string, at time.Time) error {
	var checkedArg interface{}
	if checked != nil {
		checkedArg = boolToInt(*checked)
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO checklist_item_status
		 (job_id, checklist_item_id, checked, comment, document_link, created_at, updated_at)
		 VALUES (?1, ?2, COALESCE(?3, 0), ?4, ?5, ?6, ?6)
		 ON CONFLICT (job_id, checklist_item_id) DO UPDATE SET
		   checked = COALESCE(?3, checked),
		   comment = COALESCE(?4, comment),
		   document_link = COALESCE(?5, document_link),
		   updated_at = ?6`,
		jobID, itemID, checkedArg, comment, documentLink, at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert partner item status: %w", err)
	}
	return nil
}

// UpsertAdminItemStatus writes the administrator-writable superset fields
// with the same insert-or-update semantics.
func UpsertAdminItemStatus(ctx context.Context, q DBTX, jobID, itemID int64, isApproved *bool, adminComment *string, at time.Time) error {
	var approvedArg interface{}
	if isApproved != nil {
		approvedArg = boolToInt(*isApproved)
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO checklist_item_status
		 (job_id, checklist_item_id, is_approved, admin_comment, created_at, updated_at)
		 VALUES (?1, ?2, COALESCE(?3, 0), ?4, ?5, ?5)
		 ON CONFLICT (job_id, checklist_item_id) DO UPDATE SET
		   is_approved = COALESCE(?3, is_approved),
		   admin_comment = COALESCE(?4, admin_comment),
		   updated_at = ?5`,
		jobID, itemID, approvedArg, adminComment, at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert admin item status: %w", err)
	}
	return nil
}

// GetItemStatus retrieves the persisted status row for (job, item), nil
// when none has been written yet.
func GetItemStatus(ctx context.Context, q DBTX, jobID, itemID int64) (*ItemStatusRecord, error) {
	record := &ItemStatusRecord{}
	var checked, approved int
	var comment, adminComment, documentLink sql.NullString
	var createdAtUnix, updatedAtUnix int64

	err := q.QueryRowContext(ctx,
		`SELECT id, job_id, checklist_item_id, checked, is_approved, comment,
		        admin_comment, document_link, created_at, updated_at
		 FROM checklist_item_status WHERE job_id = ? AND checklist_item_id = ?`,
		jobID, itemID,
	).Scan(
		&record.ID,
		&record.JobID,
		&record.ChecklistItemID,
		&checked,
		&approved,
		&comment,
		&adminComment,
		&documentLink,
		&createdAtUnix,
		&updatedAtUnix,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query item status: %w", err)
	}

	record.Checked = checked != 0
	record.IsApproved = approved != 0
	record.Comment = comment.String
	record.AdminComment = adminComment.String
	record.DocumentLink = documentLink.String
	record.CreatedAt = time.Unix(createdAtUnix, 0)
	record.UpdatedAt = time.Unix(updatedAtUnix, 0)
	return record, nil
}
