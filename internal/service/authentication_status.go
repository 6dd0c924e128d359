// internal/service/authentication_status.go
package service

import (
	"context"

	"go.uber.org/zap"

	"challenge-orchestrator/internal/models"
)

// AuthenticationStatusService answers "was this instrument truly
// authenticated for this transaction": ownership gate, then protocol
// applicability, then session state, then transaction integrity.
type AuthenticationStatusService struct {
	sessions  *SessionManager
	ownership *OwnershipVerifier
	integrity *TransactionIntegrityVerifier
	logger    *zap.Logger
}

func NewAuthenticationStatusService(
	sessions *SessionManager,
	ownership *OwnershipVerifier,
	integrity *TransactionIntegrityVerifier,
	logger *zap.Logger,
) *AuthenticationStatusService {
	return &AuthenticationStatusService{
		sessions:  sessions,
		ownership: ownership,
		integrity: integrity,
		logger:    logger,
	}
}

// GetAuthenticationStatus gates the query on ownership, then verifies the
// session's terminal outcome and its integrity against the supplied
// transaction context. Integrity mismatches surface as verified=false with a
// typed reason, never as an error.
func (s *AuthenticationStatusService) GetAuthenticationStatus(
	ctx context.Context,
	accountID, sessionID, piID string,
	txn *models.TransactionContext,
) (*models.AuthenticationStatus, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, ErrNotFound
	}
	if piID != "" && session.PaymentInstrumentID != piID {
		return nil, ErrNotFound
	}
	if err := s.ownership.VerifyAccess(ctx, accountID, session); err != nil {
		return nil, err
	}

	// When the instrument's required-challenge set lacks the modern-protocol
	// marker, verification does not apply: report verified without
	// evaluating session state at all.
	pi, err := s.ownership.VerifyInstrumentAccess(ctx, accountID, session.PaymentInstrumentID)
	if err == nil && !pi.RequiresThreeDSTwo() {
		return &models.AuthenticationStatus{
			Verified: true,
			Status:   models.ChallengeStatusNotApplicable,
		}, nil
	}

	if !session.ChallengeStatus.IsVerified() {
		return &models.AuthenticationStatus{
			Verified:      false,
			Status:        session.ChallengeStatus,
			FailureReason: "ChallengeNotCompleted",
		}, nil
	}

	if txn != nil {
		if result := s.integrity.Verify(session, txn); result != models.VerificationSuccess {
			s.logger.Info("transaction integrity verification failed",
				zap.String("session_id", session.ID),
				zap.String("result", string(result)))
			return &models.AuthenticationStatus{
				Verified:      false,
				Status:        session.ChallengeStatus,
				FailureReason: string(result),
			}, nil
		}
	}

	return &models.AuthenticationStatus{
		Verified: true,
		Status:   session.ChallengeStatus,
	}, nil
}
