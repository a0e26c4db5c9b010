package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldworks/dispatch/pkg/types"
)

// JobRecord represents a job stored in the database
type JobRecord struct {
	ID                int64
	Name              string
	Status            types.JobStatus
	PartnerID         *int64
	CustomerID        *int64
	AdminID           *int64
	JobType           string
	BaseRate          float64
	Area              int64
	AdditionalExpense float64
	StartDate         string
	DeliveryDate      string
	MapLink           string
	StartVerified     bool
	FinishVerified    bool
	CreatedAt         time.Time
}

const jobSelectColumns = `SELECT id, name, status, partner_id, customer_id, admin_id,
	job_type, base_rate, area, additional_expense, start_date, delivery_date,
	map_link, start_verified, finish_verified, created_at`

func scanJobRow(row *sql.Row) (*JobRecord, error) {
	record := &JobRecord{}
	var name, jobType, startDate, deliveryDate, mapLink sql.NullString
	var baseRateF, expense sql.NullFloat64
	var areaI sql.NullInt64
	var startVerified, finishVerified int
	var createdAtUnix int64

	err := row.Scan(
		&record.ID,
		&name,
		&record.Status,
		&record.PartnerID,
		&record.CustomerID,
		&record.AdminID,
		&jobType,
		&baseRateF,
		&areaI,
		&expense,
		&startDate,
		&deliveryDate,
		&mapLink,
		&startVerified,
		&finishVerified,
		&createdAtUnix,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	record.Name = name.String
	record.JobType = jobType.String
	record.BaseRate = baseRateF.Float64
	record.Area = areaI.Int64
	record.AdditionalExpense = expense.Float64
	record.StartDate = startDate.String
	record.DeliveryDate = deliveryDate.String
	record.MapLink = mapLink.String
	record.StartVerified = startVerified != 0
	record.FinishVerified = finishVerified != 0
	record.CreatedAt = time.Unix(createdAtUnix, 0)
	return record, nil
}

// InsertJob persists a new job and returns its ID
func InsertJob(ctx context.Context, q DBTX, record *JobRecord) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO jobs
		 (name, status, partner_id, customer_id, admin_id, job_type, base_rate,
		  area, additional_expense, start_date, delivery_date, map_link,
		  start_verified, finish_verified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullStr(record.Name),
		string(record.Status),
		record.PartnerID,
		record.CustomerID,
		record.AdminID,
		nullStr(record.JobType),
		record.BaseRate,
		record.Area,
		record.AdditionalExpense,
		nullStr(record.StartDate),
		nullStr(record.DeliveryDate),
		nullStr(record.MapLink),
		boolToInt(record.StartVerified),
		boolToInt(record.FinishVerified),
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get job id: %w", err)
	}
	return id, nil
}

// GetJob retrieves a job by ID. Returns nil without error when missing.
func GetJob(ctx context.Context, q DBTX, id int64) (*JobRecord, error) {
	return scanJobRow(q.QueryRowContext(ctx, jobSelectColumns+` FROM jobs WHERE id = ?`, id))
}

// UpdateJob writes back all mutable columns of a job record
func UpdateJob(ctx context.Context, q DBTX, record *JobRecord) error {
	_, err := q.ExecContext(ctx,
		`UPDATE jobs
		 SET name = ?, status = ?, partner_id = ?, customer_id = ?, job_type = ?,
		     base_rate = ?, area = ?, additional_expense = ?, start_date = ?,
		     delivery_date = ?, map_link = ?, start_verified = ?, finish_verified = ?
		 WHERE id = ?`,
		nullStr(record.Name),
		string(record.Status),
		record.PartnerID,
		record.CustomerID,
		nullStr(record.JobType),
		record.BaseRate,
		record.Area,
		record.AdditionalExpense,
		nullStr(record.StartDate),
		nullStr(record.DeliveryDate),
		nullStr(record.MapLink),
		boolToInt(record.StartVerified),
		boolToInt(record.FinishVerified),
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// SetJobStatus updates only the status column
func SetJobStatus(ctx context.Context, q DBTX, id int64, status types.JobStatus) error {
	_, err := q.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// SetJobVerified sets the start/finish verification flag for a purpose
func SetJobVerified(ctx context.Context, q DBTX, id int64, purpose types.OTCPurpose) error {
	column := "start_verified"
	if purpose == types.PurposeJobEnd {
		column = "finish_verified"
	}
	_, err := q.ExecContext(ctx, `UPDATE jobs SET `+column+` = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to set job verification flag: %w", err)
	}
	return nil
}

// DeleteJob removes a job and cascades deletion of its checklist links,
// checklist item statuses, OTC sessions, and audit entries.
func DeleteJob(ctx context.Context, q DBTX, id int64) error {
	statements := []string{
		`DELETE FROM job_checklists WHERE job_id = ?`,
		`DELETE FROM checklist_item_status WHERE job_id = ?`,
		`DELETE FROM otc_sessions WHERE job_id = ?`,
		`DELETE FROM audit_log WHERE job_id = ?`,
		`DELETE FROM jobs WHERE id = ?`,
	}
	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
	}
	return nil
}

// ListJobsFilter defines filtering options for ListJobs
type ListJobsFilter struct {
	Status string // optional: filter by status
	Limit  int    // default: 100
	Offset int    // default: 0
}

// ListJobs retrieves jobs with optional filtering, newest first
func ListJobs(ctx context.Context, q DBTX, filter ListJobsFilter) ([]*JobRecord, error) {
	if filter.Limit == 0 {
		filter.Limit = 100
	}
	if filter.Limit > 10000 {
		filter.Limit = 10000 // Cap limit to prevent excessive queries
	}

	query := jobSelectColumns + ` FROM jobs`
	args := []interface{}{}

	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database rows")
		}
	}()

	var records []*JobRecord
	for rows.Next() {
		record := &JobRecord{}
		var name, jobType, startDate, deliveryDate, mapLink sql.NullString
		var baseRateF, expense sql.NullFloat64
		var areaI sql.NullInt64
		var startVerified, finishVerified int
		var createdAtUnix int64

		if err := rows.Scan(
			&record.ID,
			&name,
			&record.Status,
			&record.PartnerID,
			&record.CustomerID,
			&record.AdminID,
			&jobType,
			&baseRateF,
			&areaI,
			&expense,
			&startDate,
			&deliveryDate,
			&mapLink,
			&startVerified,
			&finishVerified,
			&createdAtUnix,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		record.Name = name.String
		record.JobType = jobType.String
		record.BaseRate = baseRateF.Float64
		record.Area = areaI.Int64
		record.AdditionalExpense = expense.Float64
		record.StartDate = startDate.String
		record.DeliveryDate = deliveryDate.String
		record.MapLink = mapLink.String
		record.StartVerified = startVerified != 0
		record.FinishVerified = finishVerified != 0
		record.CreatedAt = time.Unix(createdAtUnix, 0)

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return records, nil
}

// CountJobsByStatus returns the number of jobs with a given status
func CountJobsByStatus(ctx context.Context, q DBTX, status types.JobStatus) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = ?`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}
