package types

import "time"

// JobStatus represents the lifecycle state of a field-service job
type JobStatus string

const (
	StatusCreated    JobStatus = "created"
	StatusInProgress JobStatus = "in_progress"
	StatusPaused     JobStatus = "paused"
	StatusCompleted  JobStatus = "completed"
)

// OTCPurpose scopes a one-time code to a specific transition
type OTCPurpose string

const (
	PurposeJobStart OTCPurpose = "job_start"
	PurposeJobEnd   OTCPurpose = "job_end"
)

// CreateJobRequest represents a job creation request
type CreateJobRequest struct {
	Name              string   `json:"name"`
	PartnerID         *int64   `json:"partner_id"`
	CustomerName      string   `json:"customer_name"`
	CustomerPhone     string   `json:"customer_phone"`
	Address           string   `json:"address"`
	City              string   `json:"city"`
	Pincode           *int64   `json:"pincode"`
	JobType           string   `json:"job_type"`
	BaseRate          *float64 `json:"base_rate"`
	Area              *int64   `json:"area"`
	AdditionalExpense *float64 `json:"additional_expense"`
	StartDate         string   `json:"start_date"`
	DeliveryDate      string   `json:"delivery_date"`
	MapLink           string   `json:"map_link"`
	ChecklistIDs      []int64  `json:"checklist_ids"`
}

// UpdateJobRequest is a partial update; nil fields are left unchanged.
// Changing partner_id on an in-progress job triggers reassignment.
type UpdateJobRequest struct {
	Name              *string  `json:"name"`
	PartnerID         *int64   `json:"partner_id"`
	CustomerName      *string  `json:"customer_name"`
	CustomerPhone     *string  `json:"customer_phone"`
	Address           *string  `json:"address"`
	City              *string  `json:"city"`
	Pincode           *int64   `json:"pincode"`
	JobType           *string  `json:"job_type"`
	BaseRate          *float64 `json:"base_rate"`
	Area              *int64   `json:"area"`
	AdditionalExpense *float64 `json:"additional_expense"`
	StartDate         *string  `json:"start_date"`
	DeliveryDate      *string  `json:"delivery_date"`
	MapLink           *string  `json:"map_link"`
}

// TransitionRequest carries optional operator notes for a lifecycle action
type TransitionRequest struct {
	Notes string `json:"notes"`
}

// VerifyOTCRequest carries the customer code plus optional transition notes
type VerifyOTCRequest struct {
	Code  string `json:"code" binding:"required"`
	Notes string `json:"notes"`
}

// OTCResponse reports the outcome of an OTC dispatch request
type OTCResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// JobResponse represents a job as returned by the API
type JobResponse struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name,omitempty"`
	Status            JobStatus `json:"status"`
	PartnerID         *int64    `json:"partner_id,omitempty"`
	CustomerID        *int64    `json:"customer_id,omitempty"`
	CustomerName      string    `json:"customer_name,omitempty"`
	CustomerPhone     string    `json:"customer_phone,omitempty"`
	JobType           string    `json:"job_type,omitempty"`
	BaseRate          float64   `json:"base_rate,omitempty"`
	Area              int64     `json:"area,omitempty"`
	AdditionalExpense float64   `json:"additional_expense,omitempty"`
	StartDate         string    `json:"start_date,omitempty"`
	DeliveryDate      string    `json:"delivery_date,omitempty"`
	MapLink           string    `json:"map_link,omitempty"`
	StartVerified     bool      `json:"start_verified"`
	FinishVerified    bool      `json:"finish_verified"`
	CreatedAt         time.Time `json:"created_at"`
}

// AuditEntryResponse is one row of a job's status history
type AuditEntryResponse struct {
	JobID     int64     `json:"job_id"`
	Status    JobStatus `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChecklistItemResponse joins a template item with its per-job status.
// Items without a persisted status row report the default projection.
type ChecklistItemResponse struct {
	ItemID       int64      `json:"item_id"`
	Text         string     `json:"text"`
	Position     int64      `json:"position"`
	Checked      bool       `json:"checked"`
	IsApproved   bool       `json:"is_approved"`
	Comment      string     `json:"comment,omitempty"`
	AdminComment string     `json:"admin_comment,omitempty"`
	DocumentLink string     `json:"document_link,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// ChecklistPartnerUpdateRequest is the partner-writable subset of an item status
type ChecklistPartnerUpdateRequest struct {
	Checked      *bool   `json:"checked"`
	Comment      *string `json:"comment"`
	DocumentLink *string `json:"document_link"`
}

// ChecklistAdminUpdateRequest is the administrator-writable subset
type ChecklistAdminUpdateRequest struct {
	IsApproved   *bool   `json:"is_approved"`
	AdminComment *string `json:"admin_comment"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
