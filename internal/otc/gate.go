// Package otc generates and verifies the customer one-time codes that gate
// job start and finish transitions. Codes are numeric, short-lived, and
// stored only as bcrypt hashes; the plaintext exists exactly once, on its
// way to the SMS notifier.
package otc

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldworks/dispatch/internal/apperr"
	"github.com/fieldworks/dispatch/internal/config"
	"github.com/fieldworks/dispatch/internal/storage"
	"github.com/fieldworks/dispatch/pkg/types"
)

// Gate issues and verifies one-time codes scoped to (purpose, job)
type Gate struct {
	length   int
	expiry   time.Duration
	debugLog bool
	now      func() time.Time
}

// NewGate builds a gate from configuration. now is injected so expiry
// behavior is testable; pass time.Now in production.
func NewGate(cfg config.OTCConfig, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{
		length:   cfg.Length,
		expiry:   cfg.Expiry,
		debugLog: cfg.DebugLog,
		now:      now,
	}
}

// Issue creates a fresh session for (purpose, job) and returns the
// plaintext code once. Any prior unused session for the pair is invalidated
// first, so at most one live session exists per pair.
func (g *Gate) Issue(ctx context.Context, q storage.DBTX, purpose types.OTCPurpose, jobID int64, phone string) (string, error) {
	if phone == "" {
		return "", apperr.Validation("job %d has no customer phone", jobID)
	}

	code, err := g.generateCode()
	if err != nil {
		return "", apperr.Storage(err, "generating code")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", apperr.Storage(err, "hashing code")
	}

	if err := storage.InvalidateOTCSessions(ctx, q, purpose, jobID); err != nil {
		return "", apperr.Storage(err, "invalidating prior sessions")
	}

	issuedAt := g.now()
	session := &storage.OTCSessionRecord{
		Purpose:   purpose,
		JobID:     jobID,
		Phone:     phone,
		CodeHash:  string(hash),
		ExpiresAt: issuedAt.Add(g.expiry),
		CreatedAt: issuedAt,
	}
	if err := storage.InsertOTCSession(ctx, q, session); err != nil {
		return "", apperr.Storage(err, "persisting session")
	}

	if g.debugLog {
		logrus.WithFields(logrus.Fields{
			"purpose":    purpose,
			"job_id":     jobID,
			"phone":      MaskPhone(phone),
			"code":       code,
			"expires_at": session.ExpiresAt.Format(time.RFC3339),
		}).Warn("OTC debug logging enabled")
	}

	return code, nil
}

// Verify checks a submitted code against the live session for
// (purpose, job). An expired session is consumed as a side effect even on
// its first verification attempt; a mismatch only bumps the attempt counter
// so the customer may retry until expiry. The caller sets the job's
// verification flag inside the same transaction when Verify returns true.
func (g *Gate) Verify(ctx context.Context, q storage.DBTX, purpose types.OTCPurpose, jobID int64, submitted string) (bool, error) {
	session, err := storage.LatestUnusedOTCSession(ctx, q, purpose, jobID)
	if err != nil {
		return false, apperr.Storage(err, "looking up session")
	}
	if session == nil {
		return false, nil
	}

	if session.ExpiresAt.Before(g.now()) {
		if err := storage.MarkOTCSessionUsed(ctx, q, session.ID); err != nil {
			return false, apperr.Storage(err, "expiring session")
		}
		return false, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(session.CodeHash), []byte(submitted)) != nil {
		if err := storage.IncrementOTCAttempts(ctx, q, session.ID); err != nil {
			return false, apperr.Storage(err, "recording failed attempt")
		}
		return false, nil
	}

	if err := storage.MarkOTCSessionUsed(ctx, q, session.ID); err != nil {
		return false, apperr.Storage(err, "consuming session")
	}
	return true, nil
}

func (g *Gate) generateCode() (string, error) {
	digits := make([]byte, g.length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("reading random digit: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// MaskPhone hides the middle of a phone number for logging
func MaskPhone(phone string) string {
	if phone == "" {
		return "unknown"
	}
	if len(phone) <= 4 {
		masked := make([]byte, len(phone))
		for i := range masked {
			masked[i] = '*'
		}
		return string(masked)
	}
	return phone[:2] + "****" + phone[len(phone)-2:]
}
