package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/dispatch/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close() // Ignore error in test
	})
	return store
}

func TestNewStore_InMemory(t *testing.T) {
	store := newTestStore(t)
	assert.NotNil(t, store.db)
}

func TestNewStore_FilePath(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-*.db")
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	defer func() {
		_ = os.Remove(tmpFile.Name()) // Ignore error in test
	}()

	store, err := NewStore(tmpFile.Name())
	require.NoError(t, err)
	defer func() {
		_ = store.Close() // Ignore error in test
	}()

	assert.NotNil(t, store.db)
}

func TestTransact_RollbackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := store.Transact(ctx, func(tx *sql.Tx) error {
		_, err := InsertPartner(ctx, tx, "Asha", "9000000001")
		require.NoError(t, err)
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	// The partner insert must have been rolled back
	partner, err := GetPartner(ctx, store.DB(), 1)
	require.NoError(t, err)
	assert.Nil(t, partner)
}

func TestTransact_Commit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var id int64
	err := store.Transact(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = InsertPartner(ctx, tx, "Asha", "9000000001")
		return err
	})
	require.NoError(t, err)

	partner, err := GetPartner(ctx, store.DB(), id)
	require.NoError(t, err)
	require.NotNil(t, partner)
	assert.Equal(t, "Asha", partner.Name)
	assert.False(t, partner.IsAssigned)
}

func TestJob_InsertGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := &JobRecord{
		Name:      "Wardrobe install",
		Status:    types.StatusCreated,
		JobType:   "installation",
		BaseRate:  1200,
		CreatedAt: time.Now(),
	}
	id, err := InsertJob(ctx, store.DB(), record)
	require.NoError(t, err)

	got, err := GetJob(ctx, store.DB(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Wardrobe install", got.Name)
	assert.Equal(t, types.StatusCreated, got.Status)
	assert.Nil(t, got.PartnerID)

	require.NoError(t, AppendAudit(ctx, store.DB(), id, types.StatusCreated, "Job created", time.Now()))
	require.NoError(t, DeleteJob(ctx, store.DB(), id))

	got, err = GetJob(ctx, store.DB(), id)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Cascade removed the audit trail as well
	entries, err := AuditHistory(ctx, store.DB(), id)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListJobs_StatusFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := InsertJob(ctx, store.DB(), &JobRecord{Status: types.StatusCreated, CreatedAt: time.Now()})
		require.NoError(t, err)
	}
	_, err := InsertJob(ctx, store.DB(), &JobRecord{Status: types.StatusCompleted, CreatedAt: time.Now()})
	require.NoError(t, err)

	jobs, err := ListJobs(ctx, store.DB(), ListJobsFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 4)

	jobs, err = ListJobs(ctx, store.DB(), ListJobsFilter{Status: string(types.StatusCreated)})
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	jobs, err = ListJobs(ctx, store.DB(), ListJobsFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = ListJobs(ctx, store.DB(), ListJobsFilter{Status: string(types.StatusPaused)})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestAuditHistory_ChronologicalOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := InsertJob(ctx, store.DB(), &JobRecord{Status: types.StatusCreated, CreatedAt: time.Now()})
	require.NoError(t, err)

	base := time.Now()
	require.NoError(t, AppendAudit(ctx, store.DB(), jobID, types.StatusCreated, "Job created", base))
	require.NoError(t, AppendAudit(ctx, store.DB(), jobID, types.StatusInProgress, "Job started", base.Add(time.Second)))
	require.NoError(t, AppendAudit(ctx, store.DB(), jobID, types.StatusPaused, "Job paused", base.Add(2*time.Second)))

	entries, err := AuditHistory(ctx, store.DB(), jobID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, types.StatusCreated, entries[0].Status)
	assert.Equal(t, types.StatusInProgress, entries[1].Status)
	assert.Equal(t, types.StatusPaused, entries[2].Status)
	assert.True(t, !entries[1].CreatedAt.Before(entries[0].CreatedAt))
}

func TestAuditHistory_SameSecondKeepsInsertOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := InsertJob(ctx, store.DB(), &JobRecord{Status: types.StatusCreated, CreatedAt: time.Now()})
	require.NoError(t, err)

	at := time.Now()
	require.NoError(t, AppendAudit(ctx, store.DB(), jobID, types.StatusInProgress, "first", at))
	require.NoError(t, AppendAudit(ctx, store.DB(), jobID, types.StatusPaused, "second", at))

	entries, err := AuditHistory(ctx, store.DB(), jobID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Notes)
	assert.Equal(t, "second", entries[1].Notes)
}

func TestOTCSessions_InvalidateAndLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := InsertJob(ctx, store.DB(), &JobRecord{Status: types.StatusCreated, CreatedAt: time.Now()})
	require.NoError(t, err)

	now := time.Now()
	first := &OTCSessionRecord{
		Purpose:   types.PurposeJobStart,
		JobID:     jobID,
		Phone:     "9000000001",
		CodeHash:  "hash-1",
		ExpiresAt: now.Add(10 * time.Minute),
		CreatedAt: now,
	}
	require.NoError(t, InsertOTCSession(ctx, store.DB(), first))

	require.NoError(t, InvalidateOTCSessions(ctx, store.DB(), types.PurposeJobStart, jobID))
	second := &OTCSessionRecord{
		Purpose:   types.PurposeJobStart,
		JobID:     jobID,
		Phone:     "9000000001",
		CodeHash:  "hash-2",
		ExpiresAt: now.Add(10 * time.Minute),
		CreatedAt: now.Add(time.Second),
	}
	require.NoError(t, InsertOTCSession(ctx, store.DB(), second))

	session, err := LatestUnusedOTCSession(ctx, store.DB(), types.PurposeJobStart, jobID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "hash-2", session.CodeHash)

	// Different purpose has no live session
	endSession, err := LatestUnusedOTCSession(ctx, store.DB(), types.PurposeJobEnd, jobID)
	require.NoError(t, err)
	assert.Nil(t, endSession)

	require.NoError(t, MarkOTCSessionUsed(ctx, store.DB(), 9999)) // unknown id, no-op
	require.NoError(t, IncrementOTCAttempts(ctx, store.DB(), session.ID))

	session, err = LatestUnusedOTCSession(ctx, store.DB(), types.PurposeJobStart, jobID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 1, session.AttemptCount)
}

func TestChecklistUpserts_RaceSafePartialWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := InsertJob(ctx, store.DB(), &JobRecord{Status: types.StatusCreated, CreatedAt: time.Now()})
	require.NoError(t, err)
	checklistID, err := InsertChecklist(ctx, store.DB(), "Install", "")
	require.NoError(t, err)
	itemID, err := InsertChecklistItem(ctx, store.DB(), checklistID, "Level the cabinet", 1)
	require.NoError(t, err)
	require.NoError(t, LinkChecklistToJob(ctx, store.DB(), jobID, checklistID))

	checked := true
	comment := "done on site"
	now := time.Now()
	require.NoError(t, UpsertPartnerItemStatus(ctx, store.DB(), jobID, itemID, &checked, &comment, nil, now))

	status, err := GetItemStatus(ctx, store.DB(), jobID, itemID)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.True(t, status.Checked)
	assert.Equal(t, "done on site", status.Comment)
	assert.False(t, status.IsApproved)

	// Admin write on the same row must not clobber partner fields
	approved := true
	adminComment := "looks good"
	require.NoError(t, UpsertAdminItemStatus(ctx, store.DB(), jobID, itemID, &approved, &adminComment, now.Add(time.Second)))

	status, err = GetItemStatus(ctx, store.DB(), jobID, itemID)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.True(t, status.Checked)
	assert.Equal(t, "done on site", status.Comment)
	assert.True(t, status.IsApproved)
	assert.Equal(t, "looks good", status.AdminComment)

	// Partial partner update leaves unspecified fields untouched
	link := "https://docs.example/evidence.jpg"
	require.NoError(t, UpsertPartnerItemStatus(ctx, store.DB(), jobID, itemID, nil, nil, &link, now.Add(2*time.Second)))

	status, err = GetItemStatus(ctx, store.DB(), jobID, itemID)
	require.NoError(t, err)
	assert.True(t, status.Checked)
	assert.Equal(t, "done on site", status.Comment)
	assert.Equal(t, link, status.DocumentLink)
}

func TestItemsWithStatus_DefaultProjection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := InsertJob(ctx, store.DB(), &JobRecord{Status: types.StatusCreated, CreatedAt: time.Now()})
	require.NoError(t, err)
	checklistID, err := InsertChecklist(ctx, store.DB(), "Install", "standard install list")
	require.NoError(t, err)
	itemA, err := InsertChecklistItem(ctx, store.DB(), checklistID, "Unpack", 1)
	require.NoError(t, err)
	_, err = InsertChecklistItem(ctx, store.DB(), checklistID, "Assemble", 2)
	require.NoError(t, err)
	require.NoError(t, LinkChecklistToJob(ctx, store.DB(), jobID, checklistID))

	checked := true
	require.NoError(t, UpsertPartnerItemStatus(ctx, store.DB(), jobID, itemA, &checked, nil, nil, time.Now()))

	rows, err := ItemsWithStatus(ctx, store.DB(), jobID, checklistID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Unpack", rows[0].Item.Text)
	require.NotNil(t, rows[0].Status)
	assert.True(t, rows[0].Status.Checked)

	// No row was written for the second item; the projection stays nil
	assert.Equal(t, "Assemble", rows[1].Item.Text)
	assert.Nil(t, rows[1].Status)

	// Reading never creates rows
	status, err := GetItemStatus(ctx, store.DB(), jobID, rows[1].Item.ID)
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestCustomerPhoneForJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	customerID, err := InsertCustomer(ctx, store.DB(), &CustomerRecord{
		Name:      "Meera",
		Phone:     "9000000002",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	withCustomer, err := InsertJob(ctx, store.DB(), &JobRecord{
		Status:     types.StatusCreated,
		CustomerID: &customerID,
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)

	withoutCustomer, err := InsertJob(ctx, store.DB(), &JobRecord{Status: types.StatusCreated, CreatedAt: time.Now()})
	require.NoError(t, err)

	phone, err := CustomerPhoneForJob(ctx, store.DB(), withCustomer)
	require.NoError(t, err)
	assert.Equal(t, "9000000002", phone)

	phone, err = CustomerPhoneForJob(ctx, store.DB(), withoutCustomer)
	require.NoError(t, err)
	assert.Empty(t, phone)
}
