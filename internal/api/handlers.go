package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fieldworks/dispatch/internal/apperr"
	"github.com/fieldworks/dispatch/internal/assignment"
	"github.com/fieldworks/dispatch/internal/auth"
	"github.com/fieldworks/dispatch/internal/checklist"
	"github.com/fieldworks/dispatch/internal/docs"
	"github.com/fieldworks/dispatch/internal/lifecycle"
	"github.com/fieldworks/dispatch/internal/notify"
	"github.com/fieldworks/dispatch/internal/storage"
	"github.com/fieldworks/dispatch/pkg/types"
)

const roleHeader = "X-Actor-Role"

// Handler handles HTTP API requests
type Handler struct {
	engine   *lifecycle.Engine
	tracker  *checklist.Tracker
	notifier notify.Notifier
	docs     docs.Store // nil when document storage is disabled
}

// NewHandler creates a new API handler
func NewHandler(engine *lifecycle.Engine, tracker *checklist.Tracker, notifier notify.Notifier, docStore docs.Store) *Handler {
	return &Handler{
		engine:   engine,
		tracker:  tracker,
		notifier: notifier,
		docs:     docStore,
	}
}

// SetupRoutes configures the API routes
func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api/v1")
	api.Use(auth.Middleware())
	{
		api.POST("/jobs", handler.CreateJob)
		api.GET("/jobs", handler.ListJobs)
		api.GET("/jobs/:job_id", handler.GetJob)
		api.PATCH("/jobs/:job_id", handler.UpdateJob)
		api.DELETE("/jobs/:job_id", handler.DeleteJob)

		api.POST("/jobs/:job_id/start", handler.StartJob)
		api.POST("/jobs/:job_id/pause", handler.PauseJob)
		api.POST("/jobs/:job_id/finish", handler.FinishJob)
		api.GET("/jobs/:job_id/history", handler.GetHistory)

		api.POST("/jobs/:job_id/request-start-otc", handler.RequestStartOTC)
		api.POST("/jobs/:job_id/verify-start-otc", handler.VerifyStartOTC)
		api.POST("/jobs/:job_id/request-end-otc", handler.RequestEndOTC)
		api.POST("/jobs/:job_id/verify-end-otc", handler.VerifyEndOTC)

		api.GET("/jobs/:job_id/checklists/:checklist_id/items", handler.GetChecklistItems)
		api.PUT("/jobs/:job_id/checklist-items/:item_id", handler.UpdateChecklistItem)
		api.POST("/jobs/:job_id/checklist-items/:item_id/document", handler.UploadChecklistDocument)
	}

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)
}

func actorFrom(c *gin.Context) assignment.Actor {
	actx := auth.FromGin(c)
	return assignment.Actor{AdminID: actx.AdminID, Superadmin: actx.Superadmin}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: name + " must be a positive integer",
			Code:    http.StatusBadRequest,
		})
		return 0, false
	}
	return id, true
}

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error("Request failed")
		message = "internal error"
	}

	label := "request failed"
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		label = "not found"
	case apperr.KindConflict:
		label = "partner already assigned"
	case apperr.KindForbidden:
		label = "forbidden"
	case apperr.KindInvalidTransition:
		label = "invalid transition"
	case apperr.KindValidation:
		label = "validation failed"
	}

	c.JSON(status, types.ErrorResponse{
		Error:   label,
		Message: message,
		Code:    status,
	})
}

func (h *Handler) jobResponse(c *gin.Context, record *storage.JobRecord) types.JobResponse {
	resp := types.JobResponse{
		ID:                record.ID,
		Name:              record.Name,
		Status:            record.Status,
		PartnerID:         record.PartnerID,
		CustomerID:        record.CustomerID,
		JobType:           record.JobType,
		BaseRate:          record.BaseRate,
		Area:              record.Area,
		AdditionalExpense: record.AdditionalExpense,
		StartDate:         record.StartDate,
		DeliveryDate:      record.DeliveryDate,
		MapLink:           record.MapLink,
		StartVerified:     record.StartVerified,
		FinishVerified:    record.FinishVerified,
		CreatedAt:         record.CreatedAt,
	}

	customer, err := h.engine.Customer(c.Request.Context(), record)
	if err == nil && customer != nil {
		resp.CustomerName = customer.Name
		resp.CustomerPhone = customer.Phone
	}
	return resp
}

// CreateJob handles job creation requests
func (h *Handler) CreateJob(c *gin.Context) {
	var req types.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	job, err := h.engine.Create(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.jobResponse(c, job))
}

// ListJobs returns jobs with optional status filtering
func (h *Handler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := h.engine.List(c.Request.Context(), storage.ListJobsFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]types.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, h.jobResponse(c, job))
	}
	c.JSON(http.StatusOK, responses)
}

// GetJob returns a single job
func (h *Handler) GetJob(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	job, err := h.engine.Get(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.jobResponse(c, job))
}

// UpdateJob applies a partial update, possibly reassigning the partner
func (h *Handler) UpdateJob(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req types.UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	job, err := h.engine.Update(c.Request.Context(), jobID, req, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.jobResponse(c, job))
}

// DeleteJob removes a job from any state
func (h *Handler) DeleteJob(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	if err := h.engine.Delete(c.Request.Context(), jobID, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
		"job_id": jobID,
	})
}

func (h *Handler) transition(c *gin.Context, fn func(jobID int64, actor assignment.Actor, notes string) (*storage.JobRecord, error)) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req types.TransitionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.ErrorResponse{
				Error:   "invalid request",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}
	}

	job, err := fn(jobID, actorFrom(c), req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.jobResponse(c, job))
}

// StartJob starts or resumes a job
func (h *Handler) StartJob(c *gin.Context) {
	h.transition(c, func(jobID int64, actor assignment.Actor, notes string) (*storage.JobRecord, error) {
		return h.engine.Start(c.Request.Context(), jobID, actor, notes)
	})
}

// PauseJob pauses an in-progress job
func (h *Handler) PauseJob(c *gin.Context) {
	h.transition(c, func(jobID int64, actor assignment.Actor, notes string) (*storage.JobRecord, error) {
		return h.engine.Pause(c.Request.Context(), jobID, actor, notes)
	})
}

// FinishJob completes an in-progress job
func (h *Handler) FinishJob(c *gin.Context) {
	h.transition(c, func(jobID int64, actor assignment.Actor, notes string) (*storage.JobRecord, error) {
		return h.engine.Finish(c.Request.Context(), jobID, actor, notes)
	})
}

// GetHistory returns the job's audit trail, oldest first
func (h *Handler) GetHistory(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	entries, err := h.engine.History(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]types.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, types.AuditEntryResponse{
			JobID:     entry.JobID,
			Status:    entry.Status,
			Notes:     entry.Notes,
			Timestamp: entry.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, responses)
}

func (h *Handler) requestOTC(c *gin.Context, purpose types.OTCPurpose) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	delivery, err := h.engine.RequestCode(c.Request.Context(), purpose, jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Dispatch happens after the issuing transaction committed; a failed
	// send leaves the session valid and is reported, not thrown.
	sent := h.notifier.Send(c.Request.Context(), delivery.Phone,
		notify.CodeMessage(delivery.CustomerName, delivery.Code))

	message := "code sent"
	if !sent {
		message = "failed to send code"
	}
	c.JSON(http.StatusOK, types.OTCResponse{Success: sent, Message: message})
}

// RequestStartOTC issues and dispatches a start confirmation code
func (h *Handler) RequestStartOTC(c *gin.Context) {
	h.requestOTC(c, types.PurposeJobStart)
}

// RequestEndOTC issues and dispatches a completion confirmation code
func (h *Handler) RequestEndOTC(c *gin.Context) {
	h.requestOTC(c, types.PurposeJobEnd)
}

// VerifyStartOTC verifies the customer's start code and starts the job
func (h *Handler) VerifyStartOTC(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req types.VerifyOTCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	job, err := h.engine.VerifyAndStart(c.Request.Context(), jobID, actorFrom(c), req.Code, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.jobResponse(c, job))
}

// VerifyEndOTC verifies the customer's end code and completes the job
func (h *Handler) VerifyEndOTC(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}

	var req types.VerifyOTCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	job, err := h.engine.VerifyAndFinish(c.Request.Context(), jobID, actorFrom(c), req.Code, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.jobResponse(c, job))
}

// GetChecklistItems returns checklist items with their per-job status
func (h *Handler) GetChecklistItems(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	checklistID, ok := pathID(c, "checklist_id")
	if !ok {
		return
	}

	items, err := h.tracker.ItemsWithStatus(c.Request.Context(), jobID, checklistID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// UpdateChecklistItem dispatches on the acting role: partners may write the
// completion subset, administrators the approval superset.
func (h *Handler) UpdateChecklistItem(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}

	var record *storage.ItemStatusRecord
	var err error
	if c.GetHeader(roleHeader) == "partner" {
		var req types.ChecklistPartnerUpdateRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			err = apperr.Validation("invalid request body: %v", bindErr)
		} else {
			record, err = h.tracker.UpdatePartnerFields(c.Request.Context(), jobID, itemID, req)
		}
	} else {
		var req types.ChecklistAdminUpdateRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			err = apperr.Validation("invalid request body: %v", bindErr)
		} else {
			record, err = h.tracker.UpdateAdminFields(c.Request.Context(), jobID, itemID, req)
		}
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ChecklistItemResponse{
		ItemID:       record.ChecklistItemID,
		Checked:      record.Checked,
		IsApproved:   record.IsApproved,
		Comment:      record.Comment,
		AdminComment: record.AdminComment,
		DocumentLink: record.DocumentLink,
		UpdatedAt:    &record.UpdatedAt,
	})
}

// UploadChecklistDocument stores an evidence file and records its link on
// the item status.
func (h *Handler) UploadChecklistDocument(c *gin.Context) {
	jobID, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "item_id")
	if !ok {
		return
	}

	if h.docs == nil {
		c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{
			Error:   "document storage disabled",
			Message: "no document storage endpoint configured",
			Code:    http.StatusServiceUnavailable,
		})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, apperr.Validation("missing file field: %v", err))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, errors.New("failed to read upload"))
		return
	}
	defer func() {
		_ = file.Close()
	}()

	link, err := h.docs.Upload(c.Request.Context(), jobID, itemID,
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file, fileHeader.Size)
	if err != nil {
		respondError(c, err)
		return
	}

	record, err := h.tracker.UpdatePartnerFields(c.Request.Context(), jobID, itemID,
		types.ChecklistPartnerUpdateRequest{DocumentLink: &link})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ChecklistItemResponse{
		ItemID:       record.ChecklistItemID,
		Checked:      record.Checked,
		IsApproved:   record.IsApproved,
		Comment:      record.Comment,
		AdminComment: record.AdminComment,
		DocumentLink: record.DocumentLink,
		UpdatedAt:    &record.UpdatedAt,
	})
}

// HealthCheck provides service health information
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   "1.0.0",
	})
}
