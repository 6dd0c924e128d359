// internal/service/session_manager.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"challenge-orchestrator/internal/metrics"
	"challenge-orchestrator/internal/models"
	"challenge-orchestrator/internal/repository"
	"challenge-orchestrator/internal/signature"
)

// SessionManager creates, reads and updates payment sessions, and is the only
// component that writes through the session store. Terminal-status
// monotonicity and signature validation are enforced here so every caller
// gets them for free.
type SessionManager struct {
	store       repository.SessionStore
	legacyStore repository.SessionStore
	provider    AuthProvider
	instruments InstrumentReader
	signer      *signature.Signer
	framePolicy FramePolicyConfig
	toggles     Toggles
	logger      *zap.Logger
}

func NewSessionManager(
	store repository.SessionStore,
	legacyStore repository.SessionStore,
	provider AuthProvider,
	instruments InstrumentReader,
	signer *signature.Signer,
	framePolicy FramePolicyConfig,
	toggles Toggles,
	logger *zap.Logger,
) *SessionManager {
	return &SessionManager{
		store:       store,
		legacyStore: legacyStore,
		provider:    provider,
		instruments: instruments,
		signer:      signer,
		framePolicy: framePolicy,
		toggles:     toggles,
		logger:      logger,
	}
}

// CreateSession validates the request, resolves whether a challenge is
// required, signs the record and persists it.
func (m *SessionManager) CreateSession(ctx context.Context, accountID string, req *models.CreateSessionRequest) (*models.PaymentSession, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	session := &models.PaymentSession{
		ID:                  uuid.New().String(),
		AccountID:           accountID,
		PaymentInstrumentID: req.PaymentInstrumentID,
		RequestID:           req.RequestID,
		Partner:             req.Partner,
		Country:             req.Country,
		Language:            req.Language,
		Amount:              req.Amount,
		Currency:            req.Currency,
		PaymentMethodType:   req.PaymentMethodType,
		ChallengeScenario:   req.ChallengeScenario,
		ChallengeWindowSize: windowSizeOrDefault(req.ChallengeWindowSize),
		HasPreOrder:         req.HasPreOrder,
		IsMOTO:              req.IsMOTO,
		PurchaseOrderID:     req.PurchaseOrderID,
		TenantID:            req.TenantID,
		SuccessURL:          req.SuccessURL,
		FailureURL:          req.FailureURL,
		ChallengeStatus:     models.ChallengeStatusCreated,
		SchemaRevision:      models.SchemaRevisionCurrent,
		CreatedTime:         time.Now().UTC(),
		LastUpdatedTime:     time.Now().UTC(),
	}

	// The instrument's required-challenge set and the enrollment policy are
	// resolved independently; under partial rollout they legitimately
	// diverge, so both are recorded.
	pi, err := m.instruments.GetInstrument(ctx, accountID, req.PaymentInstrumentID)
	if err != nil {
		return nil, fmt.Errorf("resolve instrument for session: %w", err)
	}
	session.PiRequiresAuthentication = pi.RequiresThreeDSTwo()

	decision, err := m.provider.CheckEnrollment(ctx, session, req.DeviceChannel, req.CardNetwork)
	if err != nil {
		metrics.ProviderFaults.WithLabelValues("enrollment").Inc()
		return nil, fmt.Errorf("resolve challenge requirement: %w", err)
	}
	session.IsChallengeRequired = decision.ChallengeRequired
	session.ChallengeType = decision.ChallengeType
	if session.ChallengeType == "" {
		session.ChallengeType = models.ChallengeTypeThreeDSTwo
	}
	if !decision.ChallengeRequired {
		session.ChallengeStatus = models.ChallengeStatusNoChallengeNeeded
	}

	session.FramePolicy = m.framePolicy.Resolve(session.Partner, session.ChallengeType)

	sig, err := m.signer.Sign(session)
	if err != nil {
		return nil, err
	}
	session.Signature = sig

	if err := m.store.Create(ctx, session); err != nil {
		return nil, err
	}

	metrics.SessionsCreated.WithLabelValues(string(session.ChallengeType)).Inc()
	m.logger.Info("payment session created",
		zap.String("session_id", session.ID),
		zap.String("challenge_type", string(session.ChallengeType)),
		zap.Bool("challenge_required", session.IsChallengeRequired))

	return session, nil
}

// GetSession reads a session, consulting the legacy store when the id is not
// in the primary one. Which store answered determines the schema revision the
// session completes on.
func (m *SessionManager) GetSession(ctx context.Context, id string) (*models.PaymentSession, error) {
	session, err := m.store.Get(ctx, id)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrSessionNotFound) || m.legacyStore == nil {
		return nil, err
	}
	return m.legacyStore.Get(ctx, id)
}

// UpdateSession applies a delta under the store's per-id serialization.
// The stored signature must validate before any transition is honored, and a
// terminal status is never overwritten unless the diagnostic override is on.
func (m *SessionManager) UpdateSession(ctx context.Context, id string, mutate func(*models.PaymentSession) error) (*models.PaymentSession, error) {
	guarded := func(session *models.PaymentSession) error {
		if err := m.signer.Verify(session); err != nil {
			return err
		}
		before := session.ChallengeStatus
		if err := mutate(session); err != nil {
			return err
		}
		if before.IsTerminal() && session.ChallengeStatus != before && !m.toggles.DiagnosticOverride {
			// Terminal statuses are monotonic; keep the recorded one.
			session.ChallengeStatus = before
		}
		return nil
	}

	updated, err := m.storeFor(ctx, id).Update(ctx, id, guarded)
	if err != nil {
		return nil, err
	}
	if updated.ChallengeStatus.IsTerminal() {
		metrics.TerminalTransitions.WithLabelValues(string(updated.ChallengeStatus)).Inc()
	}
	return updated, nil
}

// LinkSession records a provider sub-session (UPI and redirect flows create
// one) against the parent so later steps correlate on the parent id alone.
func (m *SessionManager) LinkSession(ctx context.Context, id, linkedID string) error {
	_, err := m.UpdateSession(ctx, id, func(s *models.PaymentSession) error {
		s.LinkedSessionID = linkedID
		return nil
	})
	return err
}

func (m *SessionManager) storeFor(ctx context.Context, id string) repository.SessionStore {
	if m.legacyStore == nil {
		return m.store
	}
	if _, err := m.store.Get(ctx, id); errors.Is(err, repository.ErrSessionNotFound) {
		return m.legacyStore
	}
	return m.store
}

func validateCreateRequest(req *models.CreateSessionRequest) error {
	switch {
	case req.PaymentInstrumentID == "":
		return fmt.Errorf("%w: paymentInstrumentId is required", ErrValidation)
	case req.Partner == "":
		return fmt.Errorf("%w: partner is required", ErrValidation)
	case req.Country == "":
		return fmt.Errorf("%w: country is required", ErrValidation)
	case len(req.Currency) != 3:
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	case req.ChallengeScenario == "":
		return fmt.Errorf("%w: challengeScenario is required", ErrValidation)
	}

	// A session synthesized from initialization data needs the raw card
	// context a stored PI would otherwise supply.
	if req.SynthesizePI {
		switch {
		case req.CardNetwork == "":
			return fmt.Errorf("%w: cardNetwork is required when synthesizing a session", ErrValidation)
		case req.Market == "":
			return fmt.Errorf("%w: market is required when synthesizing a session", ErrValidation)
		case req.DeviceChannel == "":
			return fmt.Errorf("%w: deviceChannel is required when synthesizing a session", ErrValidation)
		}
	}
	return nil
}

func windowSizeOrDefault(size models.ChallengeWindowSize) models.ChallengeWindowSize {
	if size == "" {
		return models.WindowSize03
	}
	return size
}
