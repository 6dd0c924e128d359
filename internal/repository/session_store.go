// internal/repository/session_store.go
package repository

import (
	"context"
	"errors"

	"challenge-orchestrator/internal/models"
)

var (
	ErrSessionNotFound = errors.New("payment session not found")
	ErrSessionExists   = errors.New("payment session already exists")
	// ErrConflict is returned when an update lost the optimistic-concurrency
	// race more times than the store is willing to retry.
	ErrConflict         = errors.New("payment session update conflict")
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// SessionStore persists payment sessions. Update serializes read-modify-write
// per session id: concurrent browser retries and duplicate tabs must never
// interleave partial updates.
type SessionStore interface {
	Create(ctx context.Context, session *models.PaymentSession) error
	Get(ctx context.Context, id string) (*models.PaymentSession, error)
	// Update applies mutate to the current record and writes the result back
	// only if no concurrent writer got there first. mutate may be invoked
	// more than once; it must be pure with respect to its argument. If mutate
	// returns an error the update is abandoned and that error is returned.
	Update(ctx context.Context, id string, mutate func(*models.PaymentSession) error) (*models.PaymentSession, error)
}
