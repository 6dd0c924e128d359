// internal/service/ownership.go
package service

import (
	"context"

	"go.uber.org/zap"

	"challenge-orchestrator/internal/models"
)

// OwnershipVerifier confirms the caller is entitled to act on a session or
// instrument. Account identifiers drifted across a storage migration, so a
// direct mismatch falls back to re-deriving ownership through the instrument
// record. Fails closed: both checks failing is reported as not-found, never
// "exists but not yours".
type OwnershipVerifier struct {
	instruments InstrumentReader
	logger      *zap.Logger
}

func NewOwnershipVerifier(instruments InstrumentReader, logger *zap.Logger) *OwnershipVerifier {
	return &OwnershipVerifier{instruments: instruments, logger: logger}
}

// VerifyAccess checks account ownership of a session. Returns ErrNotFound on
// any failure path to prevent enumeration.
func (v *OwnershipVerifier) VerifyAccess(ctx context.Context, accountID string, session *models.PaymentSession) error {
	if accountID == "" || session == nil {
		return ErrNotFound
	}
	if session.AccountID == accountID {
		return nil
	}

	// Migration-era fallback: the session may carry the pre-migration
	// account id. Re-resolve through the instrument's recorded owner.
	pi, err := v.instruments.GetInstrument(ctx, accountID, session.PaymentInstrumentID)
	if err != nil {
		v.logger.Info("ownership fallback lookup failed",
			zap.String("session_id", session.ID))
		return ErrNotFound
	}
	if pi.AccountID != accountID {
		return ErrNotFound
	}

	v.logger.Info("ownership resolved via instrument fallback",
		zap.String("session_id", session.ID))
	return nil
}

// VerifyInstrumentAccess checks account ownership of an instrument directly.
func (v *OwnershipVerifier) VerifyInstrumentAccess(ctx context.Context, accountID, piID string) (*models.Instrument, error) {
	pi, err := v.instruments.GetInstrument(ctx, accountID, piID)
	if err != nil {
		return nil, ErrNotFound
	}
	if pi.AccountID != accountID {
		return nil, ErrNotFound
	}
	return pi, nil
}
