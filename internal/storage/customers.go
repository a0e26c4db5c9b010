package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CustomerRecord represents an end customer referenced by jobs
type CustomerRecord struct {
	ID        int64
	Name      string
	Phone     string
	Address   string
	City      string
	Pincode   *int64
	CreatedAt time.Time
}

// InsertCustomer creates a customer record and returns its ID
func InsertCustomer(ctx context.Context, q DBTX, record *CustomerRecord) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO customers (name, phone, address, city, pincode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.Name,
		nullStr(record.Phone),
		nullStr(record.Address),
		nullStr(record.City),
		record.Pincode,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert customer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get customer id: %w", err)
	}
	return id, nil
}

// GetCustomer retrieves a customer by ID, nil when missing
func GetCustomer(ctx context.Context, q DBTX, id int64) (*CustomerRecord, error) {
	record := &CustomerRecord{}
	var phone, address, city sql.NullString
	var createdAtUnix int64

	err := q.QueryRowContext(ctx,
		`SELECT id, name, phone, address, city, pincode, created_at FROM customers WHERE id = ?`,
		id,
	).Scan(&record.ID, &record.Name, &phone, &address, &city, &record.Pincode, &createdAtUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}

	record.Phone = phone.String
	record.Address = address.String
	record.City = city.String
	record.CreatedAt = time.Unix(createdAtUnix, 0)
	return record, nil
}

// UpdateCustomer writes back the mutable columns of a customer record
func UpdateCustomer(ctx context.Context, q DBTX, record *CustomerRecord) error {
	_, err := q.ExecContext(ctx,
		`UPDATE customers SET name = ?, phone = ?, address = ?, city = ?, pincode = ? WHERE id = ?`,
		record.Name,
		nullStr(record.Phone),
		nullStr(record.Address),
		nullStr(record.City),
		record.Pincode,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return nil
}

// CustomerPhoneForJob returns the phone number of the customer attached to
// a job, or "" when the job has no customer or the customer has no phone.
func CustomerPhoneForJob(ctx context.Context, q DBTX, jobID int64) (string, error) {
	var phone sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT c.phone FROM jobs j JOIN customers c ON c.id = j.customer_id WHERE j.id = ?`,
		jobID,
	).Scan(&phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query customer phone: %w", err)
	}
	return phone.String, nil
}
