// Package lifecycle implements the job state machine. Every action runs as
// one transaction: precondition checks, the partner assignment change, the
// status write, and the audit append either all commit or all roll back.
package lifecycle

import (
	"context"
	"database/sql"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldworks/dispatch/internal/apperr"
	"github.com/fieldworks/dispatch/internal/assignment"
	"github.com/fieldworks/dispatch/internal/metrics"
	"github.com/fieldworks/dispatch/internal/otc"
	"github.com/fieldworks/dispatch/internal/storage"
	"github.com/fieldworks/dispatch/pkg/types"
)

// Engine orchestrates job transitions over the shared store
type Engine struct {
	store   *storage.Store
	gate    *otc.Gate
	metrics *metrics.Set
	now     func() time.Time
}

// New creates an engine. The metrics set may be nil in tests.
func New(store *storage.Store, gate *otc.Gate, m *metrics.Set) *Engine {
	return &Engine{
		store:   store,
		gate:    gate,
		metrics: m,
		now:     time.Now,
	}
}

// Create validates partner availability and authorization when a partner is
// referenced, persists the job in state created, links any checklists, and
// writes the first audit entry.
func (e *Engine) Create(ctx context.Context, req types.CreateJobRequest, actor assignment.Actor) (*storage.JobRecord, error) {
	var job *storage.JobRecord
	err := e.store.Transact(ctx, func(tx *sql.Tx) error {
		if req.PartnerID != nil {
			if err := e.checkPartnerAvailable(ctx, tx, *req.PartnerID, actor); err != nil {
				return err
			}
		}

		now := e.now()
		record := &storage.JobRecord{
			Name:         req.Name,
			Status:       types.StatusCreated,
			PartnerID:    req.PartnerID,
			AdminID:      &actor.AdminID,
			JobType:      req.JobType,
			StartDate:    req.StartDate,
			DeliveryDate: req.DeliveryDate,
			MapLink:      req.MapLink,
			CreatedAt:    now,
		}
		if req.BaseRate != nil {
			record.BaseRate = *req.BaseRate
		}
		if req.Area != nil {
			record.Area = *req.Area
		}
		if req.AdditionalExpense != nil {
			record.AdditionalExpense = *req.AdditionalExpense
		}

		if hasCustomerFields(req.CustomerName, req.CustomerPhone, req.Address, req.City, req.Pincode) {
			name := req.CustomerName
			if name == "" {
				name = "Unknown"
			}
			customerID, err := storage.InsertCustomer(ctx, tx, &storage.CustomerRecord{
				Name:      name,
				Phone:     req.CustomerPhone,
				Address:   req.Address,
				City:      req.City,
				Pincode:   req.Pincode,
				CreatedAt: now,
			})
			if err != nil {
				return apperr.Storage(err, "creating customer")
			}
			record.CustomerID = &customerID
		}

		id, err := storage.InsertJob(ctx, tx, record)
		if err != nil {
			return apperr.Storage(err, "creating job")
		}
		record.ID = id

		for _, checklistID := range req.ChecklistIDs {
			if err := storage.LinkChecklistToJob(ctx, tx, id, checklistID); err != nil {
				return apperr.Storage(err, "linking checklist %d", checklistID)
			}
		}

		if err := storage.AppendAudit(ctx, tx, id, types.StatusCreated, "Job created", now); err != nil {
			return apperr.Storage(err, "recording job creation")
		}

		job = record
		return nil
	})
	e.record("create", err)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"job_id": job.ID, "admin_id": actor.AdminID}).Info("Job created")
	return job, nil
}

// Get returns a job by ID
func (e *Engine) Get(ctx context.Context, jobID int64) (*storage.JobRecord, error) {
	job, err := storage.GetJob(ctx, e.store.DB(), jobID)
	if err != nil {
		return nil, apperr.Storage(err, "loading job %d", jobID)
	}
	if job == nil {
		return nil, apperr.NotFound("job %d not found", jobID)
	}
	return job, nil
}

// List returns jobs matching the filter
func (e *Engine) List(ctx context.Context, filter storage.ListJobsFilter) ([]*storage.JobRecord, error) {
	jobs, err := storage.ListJobs(ctx, e.store.DB(), filter)
	if err != nil {
		return nil, apperr.Storage(err, "listing jobs")
	}
	return jobs, nil
}

// Update applies a partial update. Changing the partner reference on an
// in-progress job releases the old partner and acquires the new one inside
// the same transaction, under the same authorization and exclusivity rules
// as start. On jobs in other states the reference simply changes hands;
// assignment flags only move while the job is running.
func (e *Engine) Update(ctx context.Context, jobID int64, req types.UpdateJobRequest, actor assignment.Actor) (*storage.JobRecord, error) {
	var job *storage.JobRecord
	err := e.store.Transact(ctx, func(tx *sql.Tx) error {
		record, err := e.loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}

		if req.PartnerID != nil && (record.PartnerID == nil || *record.PartnerID != *req.PartnerID) {
			newPartnerID := *req.PartnerID
			if record.Status == types.StatusInProgress {
				if record.PartnerID != nil {
					if _, err := assignment.Unassign(ctx, tx, *record.PartnerID, actor); err != nil {
						return err
					}
				}
				if _, err := assignment.Assign(ctx, tx, newPartnerID, actor); err != nil {
					return err
				}
			} else {
				partner, err := storage.GetPartner(ctx, tx, newPartnerID)
				if err != nil {
					return apperr.Storage(err, "looking up partner %d", newPartnerID)
				}
				if partner == nil {
					return apperr.NotFound("partner %d not found", newPartnerID)
				}
			}
			record.PartnerID = &newPartnerID
		}

		if err := e.applyCustomerPatch(ctx, tx, record, req); err != nil {
			return err
		}

		if req.Name != nil {
			record.Name = *req.Name
		}
		if req.JobType != nil {
			record.JobType = *req.JobType
		}
		if req.BaseRate != nil {
			record.BaseRate = *req.BaseRate
		}
		if req.Area != nil {
			record.Area = *req.Area
		}
		if req.AdditionalExpense != nil {
			record.AdditionalExpense = *req.AdditionalExpense
		}
		if req.StartDate != nil {
			record.StartDate = *req.StartDate
		}
		if req.DeliveryDate != nil {
			record.DeliveryDate = *req.DeliveryDate
		}
		if req.MapLink != nil {
			record.MapLink = *req.MapLink
		}

		if err := storage.UpdateJob(ctx, tx, record); err != nil {
			return apperr.Storage(err, "updating job %d", jobID)
		}
		job = record
		return nil
	})
	e.record("update", err)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Start moves a job from created or paused to in_progress, acquiring its
// partner exclusively. A job with a customer phone must have a verified
// start code before it can start.
func (e *Engine) Start(ctx context.Context, jobID int64, actor assignment.Actor, notes string) (*storage.JobRecord, error) {
	var job *storage.JobRecord
	err := e.store.Transact(ctx, func(tx *sql.Tx) error {
		record, err := e.loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if record.Status != types.StatusCreated && record.Status != types.StatusPaused {
			return apperr.InvalidTransition("job cannot be started, current status: %s", record.Status)
		}
		phone, err := storage.CustomerPhoneForJob(ctx, tx, jobID)
		if err != nil {
			return apperr.Storage(err, "loading customer phone for job %d", jobID)
		}
		if phone != "" && !record.StartVerified {
			return apperr.Validation("job %d requires customer confirmation; request a start code first", jobID)
		}
		if err := e.startTx(ctx, tx, record, actor, notes); err != nil {
			return err
		}
		job = record
		return nil
	})
	e.record("start", err)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"job_id": jobID, "admin_id": actor.AdminID}).Info("Job started")
	return job, nil
}

// Pause releases the partner and moves an in-progress job to paused
func (e *Engine) Pause(ctx context.Context, jobID int64, actor assignment.Actor, notes string) (*storage.JobRecord, error) {
	var job *storage.JobRecord
	err := e.store.Transact(ctx, func(tx *sql.Tx) error {
		record, err := e.loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if record.Status != types.StatusInProgress {
			return apperr.InvalidTransition("only jobs in progress can be paused, current status: %s", record.Status)
		}

		if record.PartnerID != nil {
			if _, err := assignment.Unassign(ctx, tx, *record.PartnerID, actor); err != nil {
				return err
			}
		}

		if err := storage.SetJobStatus(ctx, tx, jobID, types.StatusPaused); err != nil {
			return apperr.Storage(err, "pausing job %d", jobID)
		}
		if notes == "" {
			notes = "Job paused"
		}
		if err := storage.AppendAudit(ctx, tx, jobID, types.StatusPaused, notes, e.now()); err != nil {
			return apperr.Storage(err, "recording pause")
		}

		record.Status = types.StatusPaused
		job = record
		return nil
	})
	e.record("pause", err)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"job_id": jobID, "admin_id": actor.AdminID}).Info("Job paused")
	return job, nil
}

// Finish releases the partner and moves an in-progress job to completed,
// the terminal state. A job with a customer phone must have a verified end
// code first.
func (e *Engine) Finish(ctx context.Context, jobID int64, actor assignment.Actor, notes string) (*storage.JobRecord, error) {
	var job *storage.JobRecord
	err := e.store.Transact(ctx, func(tx *sql.Tx) error {
		record, err := e.loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if record.Status != types.StatusInProgress {
			return apperr.InvalidTransition("only jobs in progress can be finished, current status: %s", record.Status)
		}
		phone, err := storage.CustomerPhoneForJob(ctx, tx, jobID)
		if err != nil {
			return apperr.Storage(err, "loading customer phone for job %d", jobID)
		}
		if phone != "" && !record.FinishVerified {
			return apperr.Validation("job %d requires customer confirmation; request an end code first", jobID)
		}
		if err := e.finishTx(ctx, tx, record, actor, notes); err != nil {
			return err
		}
		job = record
		return nil
	})
	e.record("finish", err)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"job_id": jobID, "admin_id": actor.AdminID}).Info("Job completed")
	return job, nil
}

// Delete removes a job from any state, cascading deletion of checklist
// links, OTC sessions, and audit entries. The partner is released only when
// the job is in progress; in any other state the reference is stale and the
// partner may be held by a different running job.
func (e *Engine) Delete(ctx context.Context, jobID int64, actor assignment.Actor) error {
	err := e.store.Transact(ctx, func(tx *sql.Tx) error {
		record, err := e.loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}

		if record.PartnerID != nil && record.Status == types.StatusInProgress {
			if _, err := assignment.Unassign(ctx, tx, *record.PartnerID, actor); err != nil {
				return err
			}
		}

		if err := storage.DeleteJob(ctx, tx, jobID); err != nil {
			return apperr.Storage(err, "deleting job %d", jobID)
		}
		return nil
	})
	e.record("delete", err)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"job_id": jobID, "admin_id": actor.AdminID}).Info("Job deleted")
	return nil
}

// Customer returns the customer attached to a job, or nil when the job has
// none.
func (e *Engine) Customer(ctx context.Context, job *storage.JobRecord) (*storage.CustomerRecord, error) {
	if job.CustomerID == nil {
		return nil, nil
	}
	customer, err := storage.GetCustomer(ctx, e.store.DB(), *job.CustomerID)
	if err != nil {
		return nil, apperr.Storage(err, "loading customer %d", *job.CustomerID)
	}
	return customer, nil
}

// History returns the job's audit entries in chronological order
func (e *Engine) History(ctx context.Context, jobID int64) ([]*storage.AuditRecord, error) {
	job, err := storage.GetJob(ctx, e.store.DB(), jobID)
	if err != nil {
		return nil, apperr.Storage(err, "loading job %d", jobID)
	}
	if job == nil {
		return nil, apperr.NotFound("job %d not found", jobID)
	}
	entries, err := storage.AuditHistory(ctx, e.store.DB(), jobID)
	if err != nil {
		return nil, apperr.Storage(err, "loading history for job %d", jobID)
	}
	return entries, nil
}

// CodeDelivery is what the caller needs to hand a freshly issued code to
// the notifier after the transaction commits.
type CodeDelivery struct {
	Code         string
	Phone        string
	CustomerName string
}

// RequestCode issues a one-time code for the job's customer. The SMS
// dispatch happens outside this transaction, by the caller, so the partner
// lock is never held across network I/O.
func (e *Engine) RequestCode(ctx context.Context, purpose types.OTCPurpose, jobID int64) (*CodeDelivery, error) {
	var delivery *CodeDelivery
	err := e.store.Transact(ctx, func(tx *sql.Tx) error {
		record, err := e.loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if record.CustomerID == nil {
			return apperr.Validation("job %d has no customer", jobID)
		}
		customer, err := storage.GetCustomer(ctx, tx, *record.CustomerID)
		if err != nil {
			return apperr.Storage(err, "loading customer for job %d", jobID)
		}
		if customer == nil || customer.Phone == "" {
			return apperr.Validation("job %d has no customer phone", jobID)
		}

		code, err := e.gate.Issue(ctx, tx, purpose, jobID, customer.Phone)
		if err != nil {
			return err
		}
		delivery = &CodeDelivery{Code: code, Phone: customer.Phone, CustomerName: customer.Name}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

// VerifyAndStart checks the submitted start code and, when it matches,
// marks the job start-verified and starts it. The verification commits in
// its own transaction before the transition is attempted: a mismatch must
// durably bump the session's attempt counter and an expired session must
// stay consumed, even though the transition itself never happens.
func (e *Engine) VerifyAndStart(ctx context.Context, jobID int64, actor assignment.Actor, code, notes string) (*storage.JobRecord, error) {
	job, err := e.verify(ctx, jobID, types.PurposeJobStart, code)
	if err != nil {
		e.record("start", err)
		return nil, err
	}

	err = e.store.Transact(ctx, func(tx *sql.Tx) error {
		return e.startTx(ctx, tx, job, actor, notes)
	})
	e.record("start", err)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// VerifyAndFinish is the end-code counterpart of VerifyAndStart
func (e *Engine) VerifyAndFinish(ctx context.Context, jobID int64, actor assignment.Actor, code, notes string) (*storage.JobRecord, error) {
	job, err := e.verify(ctx, jobID, types.PurposeJobEnd, code)
	if err != nil {
		e.record("finish", err)
		return nil, err
	}

	err = e.store.Transact(ctx, func(tx *sql.Tx) error {
		return e.finishTx(ctx, tx, job, actor, notes)
	})
	e.record("finish", err)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// verify runs the gate check and, on a match, sets the job's verification
// flag for the purpose, committing both together. Failure-path session
// writes (attempt counts, expiry consumption) commit too; only then is the
// rejection reported.
func (e *Engine) verify(ctx context.Context, jobID int64, purpose types.OTCPurpose, code string) (*storage.JobRecord, error) {
	var job *storage.JobRecord
	var ok bool
	err := e.store.Transact(ctx, func(tx *sql.Tx) error {
		record, err := e.loadJob(ctx, tx, jobID)
		if err != nil {
			return err
		}
		job = record

		ok, err = e.gate.Verify(ctx, tx, purpose, jobID, code)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if err := storage.SetJobVerified(ctx, tx, jobID, purpose); err != nil {
			return apperr.Storage(err, "marking job %d verified for %s", jobID, purpose)
		}
		if purpose == types.PurposeJobStart {
			record.StartVerified = true
		} else {
			record.FinishVerified = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.recordOTC(ok)
	if !ok {
		return nil, apperr.Validation("invalid or expired code")
	}
	return job, nil
}

// startTx performs the start transition inside the caller's transaction.
// Verification preconditions are the caller's responsibility.
func (e *Engine) startTx(ctx context.Context, tx *sql.Tx, record *storage.JobRecord, actor assignment.Actor, notes string) error {
	if record.Status != types.StatusCreated && record.Status != types.StatusPaused {
		return apperr.InvalidTransition("job cannot be started, current status: %s", record.Status)
	}
	if record.PartnerID == nil {
		return apperr.Validation("no partner assigned")
	}

	if _, err := assignment.Assign(ctx, tx, *record.PartnerID, actor); err != nil {
		return err
	}

	if err := storage.SetJobStatus(ctx, tx, record.ID, types.StatusInProgress); err != nil {
		return apperr.Storage(err, "starting job %d", record.ID)
	}
	if notes == "" {
		if record.Status == types.StatusPaused {
			notes = "Job resumed"
		} else {
			notes = "Job started"
		}
	}
	if err := storage.AppendAudit(ctx, tx, record.ID, types.StatusInProgress, notes, e.now()); err != nil {
		return apperr.Storage(err, "recording start")
	}

	record.Status = types.StatusInProgress
	return nil
}

func (e *Engine) finishTx(ctx context.Context, tx *sql.Tx, record *storage.JobRecord, actor assignment.Actor, notes string) error {
	if record.Status != types.StatusInProgress {
		return apperr.InvalidTransition("only jobs in progress can be finished, current status: %s", record.Status)
	}

	if record.PartnerID != nil {
		if _, err := assignment.Unassign(ctx, tx, *record.PartnerID, actor); err != nil {
			return err
		}
	}

	if err := storage.SetJobStatus(ctx, tx, record.ID, types.StatusCompleted); err != nil {
		return apperr.Storage(err, "finishing job %d", record.ID)
	}
	if notes == "" {
		notes = "Job completed"
	}
	if err := storage.AppendAudit(ctx, tx, record.ID, types.StatusCompleted, notes, e.now()); err != nil {
		return apperr.Storage(err, "recording finish")
	}

	record.Status = types.StatusCompleted
	return nil
}

func (e *Engine) loadJob(ctx context.Context, tx *sql.Tx, jobID int64) (*storage.JobRecord, error) {
	record, err := storage.GetJob(ctx, tx, jobID)
	if err != nil {
		return nil, apperr.Storage(err, "loading job %d", jobID)
	}
	if record == nil {
		return nil, apperr.NotFound("job %d not found", jobID)
	}
	return record, nil
}

func (e *Engine) checkPartnerAvailable(ctx context.Context, tx *sql.Tx, partnerID int64, actor assignment.Actor) error {
	partner, err := storage.GetPartner(ctx, tx, partnerID)
	if err != nil {
		return apperr.Storage(err, "looking up partner %d", partnerID)
	}
	if partner == nil {
		return apperr.NotFound("partner %d not found", partnerID)
	}
	if partner.IsAssigned {
		active, err := storage.ActiveJobForPartner(ctx, tx, partnerID)
		if err != nil {
			return apperr.Storage(err, "looking up active job for partner %d", partnerID)
		}
		if active != nil {
			return apperr.Conflict(active.ID, "partner %d is already assigned to job %d", partnerID, active.ID)
		}
		return apperr.Conflict(0, "partner %d is already assigned to another job", partnerID)
	}
	if actor.Superadmin {
		return nil
	}
	granted, err := storage.AdminGrantExists(ctx, tx, actor.AdminID, partnerID)
	if err != nil {
		return apperr.Storage(err, "checking grant for admin %d", actor.AdminID)
	}
	if !granted {
		return apperr.Forbidden("admin %d is not allowed to manage partner %d", actor.AdminID, partnerID)
	}
	return nil
}

func (e *Engine) applyCustomerPatch(ctx context.Context, tx *sql.Tx, record *storage.JobRecord, req types.UpdateJobRequest) error {
	if req.CustomerName == nil && req.CustomerPhone == nil && req.Address == nil && req.City == nil && req.Pincode == nil {
		return nil
	}

	if record.CustomerID == nil {
		name := "Unknown"
		if req.CustomerName != nil {
			name = *req.CustomerName
		}
		customer := &storage.CustomerRecord{Name: name, CreatedAt: e.now()}
		if req.CustomerPhone != nil {
			customer.Phone = *req.CustomerPhone
		}
		if req.Address != nil {
			customer.Address = *req.Address
		}
		if req.City != nil {
			customer.City = *req.City
		}
		customer.Pincode = req.Pincode
		id, err := storage.InsertCustomer(ctx, tx, customer)
		if err != nil {
			return apperr.Storage(err, "creating customer")
		}
		record.CustomerID = &id
		return nil
	}

	customer, err := storage.GetCustomer(ctx, tx, *record.CustomerID)
	if err != nil {
		return apperr.Storage(err, "loading customer %d", *record.CustomerID)
	}
	if customer == nil {
		return apperr.NotFound("customer %d not found", *record.CustomerID)
	}
	if req.CustomerName != nil {
		customer.Name = *req.CustomerName
	}
	if req.CustomerPhone != nil {
		customer.Phone = *req.CustomerPhone
	}
	if req.Address != nil {
		customer.Address = *req.Address
	}
	if req.City != nil {
		customer.City = *req.City
	}
	if req.Pincode != nil {
		customer.Pincode = req.Pincode
	}
	if err := storage.UpdateCustomer(ctx, tx, customer); err != nil {
		return apperr.Storage(err, "updating customer %d", customer.ID)
	}
	return nil
}

func (e *Engine) record(action string, err error) {
	if e.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if apperr.KindOf(err) == apperr.KindConflict {
			e.metrics.PartnerConflicts.Inc()
		}
	}
	e.metrics.Transitions.WithLabelValues(action, outcome).Inc()
}

func (e *Engine) recordOTC(ok bool) {
	if e.metrics == nil {
		return
	}
	result := "rejected"
	if ok {
		result = "verified"
	}
	e.metrics.OTCVerifications.WithLabelValues(result).Inc()
}

func hasCustomerFields(name, phone, address, city string, pincode *int64) bool {
	return name != "" || phone != "" || address != "" || city != "" || pincode != nil
}
