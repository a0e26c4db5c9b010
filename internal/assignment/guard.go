// Package assignment enforces the exclusive partner-assignment invariant:
// a partner is bound to at most one in-progress job at any moment, and a
// non-superadmin administrator may only move partners they hold a grant for.
package assignment

import (
	"context"

	"github.com/fieldworks/dispatch/internal/apperr"
	"github.com/fieldworks/dispatch/internal/storage"
)

// Actor identifies the administrator performing an assignment change
type Actor struct {
	AdminID    int64
	Superadmin bool
}

// Assign acquires a partner exclusively. It must run inside the transaction
// that moves the job to in_progress; the store serializes writers, so the
// check-then-set below cannot interleave with a competing Assign. On
// conflict the error carries the job currently holding the partner when it
// can be found.
func Assign(ctx context.Context, q storage.DBTX, partnerID int64, actor Actor) (*storage.PartnerRecord, error) {
	partner, err := storage.GetPartner(ctx, q, partnerID)
	if err != nil {
		return nil, apperr.Storage(err, "looking up partner %d", partnerID)
	}
	if partner == nil {
		return nil, apperr.NotFound("partner %d not found", partnerID)
	}

	if partner.IsAssigned {
		active, err := storage.ActiveJobForPartner(ctx, q, partnerID)
		if err != nil {
			return nil, apperr.Storage(err, "looking up active job for partner %d", partnerID)
		}
		if active != nil {
			return nil, apperr.Conflict(active.ID,
				"partner %d is already assigned to job %d", partnerID, active.ID)
		}
		return nil, apperr.Conflict(0, "partner %d is already assigned to another job", partnerID)
	}

	if err := authorize(ctx, q, partnerID, actor); err != nil {
		return nil, err
	}

	if err := storage.SetPartnerAssigned(ctx, q, partnerID, true); err != nil {
		return nil, apperr.Storage(err, "assigning partner %d", partnerID)
	}

	partner.IsAssigned = true
	return partner, nil
}

// Unassign releases a partner. Releasing an already-free partner succeeds
// without changing anything.
func Unassign(ctx context.Context, q storage.DBTX, partnerID int64, actor Actor) (*storage.PartnerRecord, error) {
	partner, err := storage.GetPartner(ctx, q, partnerID)
	if err != nil {
		return nil, apperr.Storage(err, "looking up partner %d", partnerID)
	}
	if partner == nil {
		return nil, apperr.NotFound("partner %d not found", partnerID)
	}

	if err := authorize(ctx, q, partnerID, actor); err != nil {
		return nil, err
	}

	if !partner.IsAssigned {
		return partner, nil
	}

	if err := storage.SetPartnerAssigned(ctx, q, partnerID, false); err != nil {
		return nil, apperr.Storage(err, "unassigning partner %d", partnerID)
	}

	partner.IsAssigned = false
	return partner, nil
}

func authorize(ctx context.Context, q storage.DBTX, partnerID int64, actor Actor) error {
	if actor.Superadmin {
		return nil
	}
	granted, err := storage.AdminGrantExists(ctx, q, actor.AdminID, partnerID)
	if err != nil {
		return apperr.Storage(err, "checking grant for admin %d on partner %d", actor.AdminID, partnerID)
	}
	if !granted {
		return apperr.Forbidden("admin %d is not allowed to manage partner %d", actor.AdminID, partnerID)
	}
	return nil
}
