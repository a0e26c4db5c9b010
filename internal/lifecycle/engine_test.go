package lifecycle

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/dispatch/internal/apperr"
	"github.com/fieldworks/dispatch/internal/assignment"
	"github.com/fieldworks/dispatch/internal/config"
	"github.com/fieldworks/dispatch/internal/otc"
	"github.com/fieldworks/dispatch/internal/storage"
	"github.com/fieldworks/dispatch/pkg/types"
)

var superadmin = assignment.Actor{AdminID: 1, Superadmin: true}

type testEnv struct {
	store  *storage.Store
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close() // Ignore error in test
	})
	gate := otc.NewGate(config.OTCConfig{Length: 6, Expiry: 10 * time.Minute}, nil)
	return &testEnv{store: store, engine: New(store, gate, nil)}
}

// phoneSeq keeps seeded partner phones unique; partners.phone carries a
// UNIQUE constraint.
var phoneSeq int64

func (env *testEnv) seedPartner(t *testing.T, name string) int64 {
	t.Helper()
	phone := fmt.Sprintf("98%08d", atomic.AddInt64(&phoneSeq, 1))
	id, err := storage.InsertPartner(context.Background(), env.store.DB(), name, phone)
	require.NoError(t, err)
	return id
}

func (env *testEnv) createJob(t *testing.T, req types.CreateJobRequest) *storage.JobRecord {
	t.Helper()
	job, err := env.engine.Create(context.Background(), req, superadmin)
	require.NoError(t, err)
	return job
}

func TestCreate_MinimalJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe install", JobType: "installation"})
	assert.Equal(t, types.StatusCreated, job.Status)
	assert.Nil(t, job.PartnerID)
	assert.Nil(t, job.CustomerID)

	entries, err := env.engine.History(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.StatusCreated, entries[0].Status)
	assert.Equal(t, "Job created", entries[0].Notes)
}

func TestCreate_WithCustomer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.createJob(t, types.CreateJobRequest{
		Name:          "Kitchen fitting",
		CustomerName:  "Meera",
		CustomerPhone: "9000000002",
		City:          "Pune",
	})
	require.NotNil(t, job.CustomerID)

	customer, err := env.engine.Customer(ctx, job)
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "Meera", customer.Name)
	assert.Equal(t, "9000000002", customer.Phone)
}

func TestCreate_UnknownPartner(t *testing.T) {
	env := newTestEnv(t)

	partnerID := int64(42)
	_, err := env.engine.Create(context.Background(), types.CreateJobRequest{PartnerID: &partnerID}, superadmin)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreate_UngrantedAdminForbidden(t *testing.T) {
	env := newTestEnv(t)

	partnerID := env.seedPartner(t, "Asha")
	_, err := env.engine.Create(context.Background(), types.CreateJobRequest{PartnerID: &partnerID}, assignment.Actor{AdminID: 9})
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestStart_NoPartnerAssigned(t *testing.T) {
	env := newTestEnv(t)

	job := env.createJob(t, types.CreateJobRequest{Name: "Loose shelf"})
	_, err := env.engine.Start(context.Background(), job.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "no partner assigned")
}

func TestStart_PartnerHeldByAnotherJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	first := env.createJob(t, types.CreateJobRequest{Name: "First", PartnerID: &partnerID})
	second := env.createJob(t, types.CreateJobRequest{Name: "Second", PartnerID: &partnerID})

	_, err := env.engine.Start(ctx, first.ID, superadmin, "")
	require.NoError(t, err)

	_, err = env.engine.Start(ctx, second.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, first.ID, appErr.ConflictJobID)

	// The second job must not have moved
	got, err := env.engine.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCreated, got.Status)
}

func TestStartPauseStart_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe", PartnerID: &partnerID})

	started, err := env.engine.Start(ctx, job.ID, superadmin, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, started.Status)

	partner, err := storage.GetPartner(ctx, env.store.DB(), partnerID)
	require.NoError(t, err)
	assert.True(t, partner.IsAssigned)

	paused, err := env.engine.Pause(ctx, job.ID, superadmin, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, paused.Status)

	partner, err = storage.GetPartner(ctx, env.store.DB(), partnerID)
	require.NoError(t, err)
	assert.False(t, partner.IsAssigned)

	resumed, err := env.engine.Start(ctx, job.ID, superadmin, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, resumed.Status)

	entries, err := env.engine.History(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "Job created", entries[0].Notes)
	assert.Equal(t, "Job started", entries[1].Notes)
	assert.Equal(t, "Job paused", entries[2].Notes)
	assert.Equal(t, "Job resumed", entries[3].Notes)
}

func TestPause_OnlyInProgress(t *testing.T) {
	env := newTestEnv(t)

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe"})
	_, err := env.engine.Pause(context.Background(), job.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestFinish_TerminalState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe", PartnerID: &partnerID})
	_, err := env.engine.Start(ctx, job.ID, superadmin, "")
	require.NoError(t, err)

	finished, err := env.engine.Finish(ctx, job.ID, superadmin, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, finished.Status)

	// The partner is free again
	partner, err := storage.GetPartner(ctx, env.store.DB(), partnerID)
	require.NoError(t, err)
	assert.False(t, partner.IsAssigned)

	// completed is terminal
	_, err = env.engine.Start(ctx, job.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	_, err = env.engine.Pause(ctx, job.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	_, err = env.engine.Finish(ctx, job.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestFinish_NotStarted(t *testing.T) {
	env := newTestEnv(t)

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe"})
	_, err := env.engine.Finish(context.Background(), job.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestStart_RequiresVerificationWithCustomerPhone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	job := env.createJob(t, types.CreateJobRequest{
		Name:          "Wardrobe",
		PartnerID:     &partnerID,
		CustomerName:  "Meera",
		CustomerPhone: "9000000002",
	})

	_, err := env.engine.Start(ctx, job.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "customer confirmation")
}

func TestRequestCode_NoCustomer(t *testing.T) {
	env := newTestEnv(t)

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe"})
	_, err := env.engine.RequestCode(context.Background(), types.PurposeJobStart, job.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestVerifyAndStart_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	job := env.createJob(t, types.CreateJobRequest{
		Name:          "Wardrobe",
		PartnerID:     &partnerID,
		CustomerName:  "Meera",
		CustomerPhone: "9000000002",
	})

	delivery, err := env.engine.RequestCode(ctx, types.PurposeJobStart, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "9000000002", delivery.Phone)
	assert.Equal(t, "Meera", delivery.CustomerName)
	assert.Len(t, delivery.Code, 6)

	started, err := env.engine.VerifyAndStart(ctx, job.ID, superadmin, delivery.Code, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, started.Status)
	assert.True(t, started.StartVerified)

	// A plain start after verification also works once paused
	_, err = env.engine.Pause(ctx, job.ID, superadmin, "")
	require.NoError(t, err)
	resumed, err := env.engine.Start(ctx, job.ID, superadmin, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, resumed.Status)
}

func TestVerifyAndStart_WrongCodeLeavesJobUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	job := env.createJob(t, types.CreateJobRequest{
		Name:          "Wardrobe",
		PartnerID:     &partnerID,
		CustomerName:  "Meera",
		CustomerPhone: "9000000002",
	})

	delivery, err := env.engine.RequestCode(ctx, types.PurposeJobStart, job.ID)
	require.NoError(t, err)

	wrong := "000000"
	if wrong == delivery.Code {
		wrong = "111111"
	}

	_, err = env.engine.VerifyAndStart(ctx, job.ID, superadmin, wrong, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	got, err := env.engine.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCreated, got.Status)
	assert.False(t, got.StartVerified)

	partner, err := storage.GetPartner(ctx, env.store.DB(), partnerID)
	require.NoError(t, err)
	assert.False(t, partner.IsAssigned)

	// The failed attempt is recorded durably and the session stays live
	session, err := storage.LatestUnusedOTCSession(ctx, env.store.DB(), types.PurposeJobStart, job.ID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 1, session.AttemptCount)

	// A retry with the right code still works
	started, err := env.engine.VerifyAndStart(ctx, job.ID, superadmin, delivery.Code, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, started.Status)
}

func TestVerifyAndStart_ExpiredSessionConsumedDurably(t *testing.T) {
	store, err := storage.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close() // Ignore error in test
	})

	current := time.Now()
	gate := otc.NewGate(config.OTCConfig{Length: 6, Expiry: 10 * time.Minute}, func() time.Time { return current })
	env := &testEnv{store: store, engine: New(store, gate, nil)}

	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")
	job := env.createJob(t, types.CreateJobRequest{
		Name:          "Wardrobe",
		PartnerID:     &partnerID,
		CustomerName:  "Meera",
		CustomerPhone: "9000000002",
	})

	delivery, err := env.engine.RequestCode(ctx, types.PurposeJobStart, job.ID)
	require.NoError(t, err)

	current = current.Add(11 * time.Minute)
	_, err = env.engine.VerifyAndStart(ctx, job.ID, superadmin, delivery.Code, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Expiry consumed the session even though the transition rolled back;
	// no further attempts are possible without a fresh code.
	session, err := storage.LatestUnusedOTCSession(ctx, store.DB(), types.PurposeJobStart, job.ID)
	require.NoError(t, err)
	assert.Nil(t, session)

	_, err = env.engine.VerifyAndStart(ctx, job.ID, superadmin, delivery.Code, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// A reissued code opens a fresh session and starts the job
	delivery, err = env.engine.RequestCode(ctx, types.PurposeJobStart, job.ID)
	require.NoError(t, err)
	started, err := env.engine.VerifyAndStart(ctx, job.ID, superadmin, delivery.Code, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, started.Status)
}

func TestVerifyAndFinish_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	job := env.createJob(t, types.CreateJobRequest{
		Name:          "Wardrobe",
		PartnerID:     &partnerID,
		CustomerName:  "Meera",
		CustomerPhone: "9000000002",
	})

	delivery, err := env.engine.RequestCode(ctx, types.PurposeJobStart, job.ID)
	require.NoError(t, err)
	_, err = env.engine.VerifyAndStart(ctx, job.ID, superadmin, delivery.Code, "")
	require.NoError(t, err)

	// A plain finish is still gated
	_, err = env.engine.Finish(ctx, job.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	delivery, err = env.engine.RequestCode(ctx, types.PurposeJobEnd, job.ID)
	require.NoError(t, err)
	finished, err := env.engine.VerifyAndFinish(ctx, job.ID, superadmin, delivery.Code, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, finished.Status)
	assert.True(t, finished.FinishVerified)

	entries, err := env.engine.History(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Job completed", entries[2].Notes)
}

func TestUpdate_PartialPatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rate := 1200.0
	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe", JobType: "installation", BaseRate: &rate})

	newName := "Wardrobe + loft"
	area := int64(80)
	updated, err := env.engine.Update(ctx, job.ID, types.UpdateJobRequest{Name: &newName, Area: &area}, superadmin)
	require.NoError(t, err)
	assert.Equal(t, "Wardrobe + loft", updated.Name)
	assert.Equal(t, int64(80), updated.Area)
	// untouched fields survive
	assert.Equal(t, "installation", updated.JobType)
	assert.Equal(t, 1200.0, updated.BaseRate)
}

func TestUpdate_CustomerUpsert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe"})
	require.Nil(t, job.CustomerID)

	phone := "9000000002"
	updated, err := env.engine.Update(ctx, job.ID, types.UpdateJobRequest{CustomerPhone: &phone}, superadmin)
	require.NoError(t, err)
	require.NotNil(t, updated.CustomerID)

	customer, err := env.engine.Customer(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", customer.Name)
	assert.Equal(t, phone, customer.Phone)

	name := "Meera"
	updated, err = env.engine.Update(ctx, job.ID, types.UpdateJobRequest{CustomerName: &name}, superadmin)
	require.NoError(t, err)

	customer, err = env.engine.Customer(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, "Meera", customer.Name)
	assert.Equal(t, phone, customer.Phone)
}

func TestUpdate_ReassignInProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	oldPartner := env.seedPartner(t, "Asha")
	newPartner := env.seedPartner(t, "Bilal")

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe", PartnerID: &oldPartner})
	_, err := env.engine.Start(ctx, job.ID, superadmin, "")
	require.NoError(t, err)

	updated, err := env.engine.Update(ctx, job.ID, types.UpdateJobRequest{PartnerID: &newPartner}, superadmin)
	require.NoError(t, err)
	require.NotNil(t, updated.PartnerID)
	assert.Equal(t, newPartner, *updated.PartnerID)

	old, err := storage.GetPartner(ctx, env.store.DB(), oldPartner)
	require.NoError(t, err)
	assert.False(t, old.IsAssigned)

	current, err := storage.GetPartner(ctx, env.store.DB(), newPartner)
	require.NoError(t, err)
	assert.True(t, current.IsAssigned)
}

func TestUpdate_ReassignCreatedLeavesFlagsAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	oldPartner := env.seedPartner(t, "Asha")
	newPartner := env.seedPartner(t, "Bilal")

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe", PartnerID: &oldPartner})

	updated, err := env.engine.Update(ctx, job.ID, types.UpdateJobRequest{PartnerID: &newPartner}, superadmin)
	require.NoError(t, err)
	assert.Equal(t, newPartner, *updated.PartnerID)

	// Neither partner's flag moved; the job never ran
	for _, id := range []int64{oldPartner, newPartner} {
		partner, err := storage.GetPartner(ctx, env.store.DB(), id)
		require.NoError(t, err)
		assert.False(t, partner.IsAssigned)
	}
}

func TestDelete_ReleasesPartnerAndCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	job := env.createJob(t, types.CreateJobRequest{
		Name:          "Wardrobe",
		PartnerID:     &partnerID,
		CustomerName:  "Meera",
		CustomerPhone: "9000000002",
	})
	delivery, err := env.engine.RequestCode(ctx, types.PurposeJobStart, job.ID)
	require.NoError(t, err)
	_, err = env.engine.VerifyAndStart(ctx, job.ID, superadmin, delivery.Code, "")
	require.NoError(t, err)

	require.NoError(t, env.engine.Delete(ctx, job.ID, superadmin))

	_, err = env.engine.Get(ctx, job.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	partner, err := storage.GetPartner(ctx, env.store.DB(), partnerID)
	require.NoError(t, err)
	assert.False(t, partner.IsAssigned)

	session, err := storage.LatestUnusedOTCSession(ctx, env.store.DB(), types.PurposeJobStart, job.ID)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestDelete_StaleReferenceKeepsPartnerHeld(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	running := env.createJob(t, types.CreateJobRequest{Name: "Running", PartnerID: &partnerID})
	stale := env.createJob(t, types.CreateJobRequest{Name: "Stale", PartnerID: &partnerID})

	_, err := env.engine.Start(ctx, running.ID, superadmin, "")
	require.NoError(t, err)

	// Deleting the created job must not release the partner the running
	// job holds
	require.NoError(t, env.engine.Delete(ctx, stale.ID, superadmin))

	partner, err := storage.GetPartner(ctx, env.store.DB(), partnerID)
	require.NoError(t, err)
	assert.True(t, partner.IsAssigned)

	_, err = env.engine.Create(ctx, types.CreateJobRequest{Name: "Third", PartnerID: &partnerID}, superadmin)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, running.ID, appErr.ConflictJobID)
}

func TestDelete_PausedJobKeepsPartnerFree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe", PartnerID: &partnerID})
	_, err := env.engine.Start(ctx, job.ID, superadmin, "")
	require.NoError(t, err)
	_, err = env.engine.Pause(ctx, job.ID, superadmin, "")
	require.NoError(t, err)

	require.NoError(t, env.engine.Delete(ctx, job.ID, superadmin))

	partner, err := storage.GetPartner(ctx, env.store.DB(), partnerID)
	require.NoError(t, err)
	assert.False(t, partner.IsAssigned)
}

func TestStart_StatusCheckedBeforeConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.createJob(t, types.CreateJobRequest{
		Name:          "Wardrobe",
		CustomerName:  "Meera",
		CustomerPhone: "9000000002",
	})
	require.NoError(t, storage.SetJobStatus(ctx, env.store.DB(), job.ID, types.StatusCompleted))

	// An unstartable state reports the transition error, not the missing
	// confirmation
	_, err := env.engine.Start(ctx, job.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	assert.Contains(t, err.Error(), string(types.StatusCompleted))
}

func TestFinish_StatusCheckedBeforeConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job := env.createJob(t, types.CreateJobRequest{
		Name:          "Wardrobe",
		CustomerName:  "Meera",
		CustomerPhone: "9000000002",
	})

	_, err := env.engine.Finish(ctx, job.ID, superadmin, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	assert.Contains(t, err.Error(), string(types.StatusCreated))
}

func TestHistory_UnknownJob(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.History(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestList_ByStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	partnerID := env.seedPartner(t, "Asha")

	env.createJob(t, types.CreateJobRequest{Name: "One"})
	running := env.createJob(t, types.CreateJobRequest{Name: "Two", PartnerID: &partnerID})
	_, err := env.engine.Start(ctx, running.ID, superadmin, "")
	require.NoError(t, err)

	jobs, err := env.engine.List(ctx, storage.ListJobsFilter{Status: string(types.StatusInProgress)})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, running.ID, jobs[0].ID)
}

func TestCreate_LinksChecklists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	checklistID, err := storage.InsertChecklist(ctx, env.store.DB(), "Install", "")
	require.NoError(t, err)

	job := env.createJob(t, types.CreateJobRequest{Name: "Wardrobe", ChecklistIDs: []int64{checklistID}})

	linked, err := storage.ChecklistLinkedToJob(ctx, env.store.DB(), job.ID, checklistID)
	require.NoError(t, err)
	assert.True(t, linked)
}
