// Package checklist tracks per-job checklist item state, split into a
// partner-writable subset and an administrator-writable superset. Status
// rows are created lazily; a missing row reads as unchecked and unapproved.
package checklist

import (
	"context"
	"database/sql"
	"time"

	"github.com/fieldworks/dispatch/internal/apperr"
	"github.com/fieldworks/dispatch/internal/storage"
	"github.com/fieldworks/dispatch/pkg/types"
)

// Tracker reads and writes checklist item status for jobs
type Tracker struct {
	store *storage.Store
	now   func() time.Time
}

// NewTracker creates a tracker over the shared store
func NewTracker(store *storage.Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// ItemsWithStatus returns every item of a checklist attached to the job,
// with the default projection synthesized for items that have no persisted
// status row. Nothing is written.
func (t *Tracker) ItemsWithStatus(ctx context.Context, jobID, checklistID int64) ([]types.ChecklistItemResponse, error) {
	db := t.store.DB()

	job, err := storage.GetJob(ctx, db, jobID)
	if err != nil {
		return nil, apperr.Storage(err, "loading job %d", jobID)
	}
	if job == nil {
		return nil, apperr.NotFound("job %d not found", jobID)
	}

	linked, err := storage.ChecklistLinkedToJob(ctx, db, jobID, checklistID)
	if err != nil {
		return nil, apperr.Storage(err, "checking checklist link")
	}
	if !linked {
		return nil, apperr.NotFound("checklist %d is not attached to job %d", checklistID, jobID)
	}

	rows, err := storage.ItemsWithStatus(ctx, db, jobID, checklistID)
	if err != nil {
		return nil, apperr.Storage(err, "loading checklist items")
	}

	result := make([]types.ChecklistItemResponse, 0, len(rows))
	for _, row := range rows {
		entry := types.ChecklistItemResponse{
			ItemID:   row.Item.ID,
			Text:     row.Item.Text,
			Position: row.Item.Position,
		}
		if row.Status != nil {
			entry.Checked = row.Status.Checked
			entry.IsApproved = row.Status.IsApproved
			entry.Comment = row.Status.Comment
			entry.AdminComment = row.Status.AdminComment
			entry.DocumentLink = row.Status.DocumentLink
			updatedAt := row.Status.UpdatedAt
			entry.UpdatedAt = &updatedAt
		}
		result = append(result, entry)
	}
	return result, nil
}

// UpdatePartnerFields upserts the partner-writable subset of an item status
func (t *Tracker) UpdatePartnerFields(ctx context.Context, jobID, itemID int64, patch types.ChecklistPartnerUpdateRequest) (*storage.ItemStatusRecord, error) {
	var result *storage.ItemStatusRecord
	err := t.store.Transact(ctx, func(tx *sql.Tx) error {
		if err := t.checkJobAndItem(ctx, tx, jobID, itemID); err != nil {
			return err
		}
		if err := storage.UpsertPartnerItemStatus(ctx, tx, jobID, itemID,
			patch.Checked, patch.Comment, patch.DocumentLink, t.now()); err != nil {
			return apperr.Storage(err, "updating item %d for job %d", itemID, jobID)
		}
		record, err := storage.GetItemStatus(ctx, tx, jobID, itemID)
		if err != nil {
			return apperr.Storage(err, "reading back item status")
		}
		result = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateAdminFields upserts the administrator-writable superset fields
func (t *Tracker) UpdateAdminFields(ctx context.Context, jobID, itemID int64, patch types.ChecklistAdminUpdateRequest) (*storage.ItemStatusRecord, error) {
	var result *storage.ItemStatusRecord
	err := t.store.Transact(ctx, func(tx *sql.Tx) error {
		if err := t.checkJobAndItem(ctx, tx, jobID, itemID); err != nil {
			return err
		}
		if err := storage.UpsertAdminItemStatus(ctx, tx, jobID, itemID,
			patch.IsApproved, patch.AdminComment, t.now()); err != nil {
			return apperr.Storage(err, "approving item %d for job %d", itemID, jobID)
		}
		record, err := storage.GetItemStatus(ctx, tx, jobID, itemID)
		if err != nil {
			return apperr.Storage(err, "reading back item status")
		}
		result = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (t *Tracker) checkJobAndItem(ctx context.Context, tx *sql.Tx, jobID, itemID int64) error {
	job, err := storage.GetJob(ctx, tx, jobID)
	if err != nil {
		return apperr.Storage(err, "loading job %d", jobID)
	}
	if job == nil {
		return apperr.NotFound("job %d not found", jobID)
	}
	item, err := storage.GetChecklistItem(ctx, tx, itemID)
	if err != nil {
		return apperr.Storage(err, "loading checklist item %d", itemID)
	}
	if item == nil {
		return apperr.NotFound("checklist item %d not found", itemID)
	}
	return nil
}
