// internal/service/challenge_engine.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"challenge-orchestrator/internal/metrics"
	"challenge-orchestrator/internal/models"
	"challenge-orchestrator/internal/repository"
	"challenge-orchestrator/internal/signature"
)

// ChallengeFlowEngine drives a session through its fingerprint and challenge
// round trips. State advances only in direct response to an inbound browser
// call; every endpoint is retryable keyed by session id.
//
// Created -> {FingerprintPending, ChallengeInProgress, NoChallengeNeeded}
// FingerprintPending -> ChallengeInProgress
// ChallengeInProgress -> terminal
type ChallengeFlowEngine struct {
	sessions *SessionManager
	provider AuthProvider
	notifier *AttachmentNotifier
	signer   *signature.Signer
	toggles  Toggles
	logger   *zap.Logger

	// publicBaseURL fronts the proxied-frame variant: the hidden form posts
	// back through this service instead of straight to the provider.
	publicBaseURL      string
	fingerprintTimeout time.Duration
}

func NewChallengeFlowEngine(
	sessions *SessionManager,
	provider AuthProvider,
	notifier *AttachmentNotifier,
	signer *signature.Signer,
	toggles Toggles,
	publicBaseURL string,
	fingerprintTimeout time.Duration,
	logger *zap.Logger,
) *ChallengeFlowEngine {
	if fingerprintTimeout <= 0 {
		fingerprintTimeout = 10 * time.Second
	}
	return &ChallengeFlowEngine{
		sessions:           sessions,
		provider:           provider,
		notifier:           notifier,
		signer:             signer,
		toggles:            toggles,
		publicBaseURL:      publicBaseURL,
		fingerprintTimeout: fingerprintTimeout,
		logger:             logger,
	}
}

// Instruction returns what the browser should do next for the session's
// current state. Duplicate tabs and refreshes replay the cached provider
// payload instead of re-asking the provider.
func (e *ChallengeFlowEngine) Instruction(ctx context.Context, id string) (*models.BrowserInstruction, error) {
	session, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case session.ChallengeStatus.IsTerminal():
		return e.terminalInstruction(session), nil

	case session.ChallengeStatus == models.ChallengeStatusNoChallengeNeeded:
		return &models.BrowserInstruction{
			Type:      models.InstructionTerminal,
			SessionID: session.ID,
			Status:    models.ChallengeStatusNoChallengeNeeded,
			Session:   session,
		}, nil

	case session.ChallengeStatus == models.ChallengeStatusFingerprintPending:
		return e.fingerprintInstruction(session), nil

	case session.ChallengeStatus == models.ChallengeStatusChallengeInProgress:
		return e.challengeInstruction(session), nil
	}

	// Created: enter the flow. Cardholder-absent transactions cannot complete
	// a challenge, and validate-on-attach types carry no browser interaction;
	// both resolve terminal without touching the provider.
	if session.IsMOTO {
		return e.recordTerminal(ctx, session, models.ChallengeStatusByPassed, nil)
	}
	if session.ChallengeType == models.ChallengeTypeValidateOnAttach {
		return e.recordTerminal(ctx, session, models.ChallengeStatusNotApplicable, nil)
	}
	if needsFingerprint(session.ChallengeType) {
		return e.startFingerprint(ctx, session)
	}
	return e.startChallenge(ctx, session, "")
}

// CompleteFingerprintStep handles the browser's fingerprint callback. An
// absent or late method-data payload is recorded and the flow proceeds to the
// challenge step regardless: fingerprinting is advisory and never gates the
// purchase.
func (e *ChallengeFlowEngine) CompleteFingerprintStep(ctx context.Context, id string, methodData string) (*models.BrowserInstruction, error) {
	session, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.ChallengeStatus.IsTerminal() {
		return e.terminalInstruction(session), nil
	}
	if session.ChallengeStatus == models.ChallengeStatusChallengeInProgress {
		// Late fingerprint callback after a duplicate tab advanced the flow.
		return e.challengeInstruction(session), nil
	}

	if methodData == "" {
		metrics.FingerprintTimeouts.Inc()
		e.logger.Info("fingerprint step timed out, proceeding to challenge",
			zap.String("session_id", session.ID))
	}

	session, err = e.sessions.UpdateSession(ctx, id, func(s *models.PaymentSession) error {
		s.FingerprintTimedOut = methodData == ""
		s.BrowserInfoCollected = methodData != ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.startChallenge(ctx, session, methodData)
}

// CompleteChallengeStep handles the browser's challenge-completion callback:
// query the provider for the disposition, resolve it to a terminal status and
// attach evidence for order-linked sessions.
func (e *ChallengeFlowEngine) CompleteChallengeStep(ctx context.Context, id string, providerFields map[string]string) (*models.BrowserInstruction, error) {
	if len(providerFields) == 0 {
		return nil, fmt.Errorf("%w: challenge completion payload is empty", ErrValidation)
	}

	session, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) && e.toggles.TreatProviderFaultAsVerified {
			return e.safetyNetInstruction(id), nil
		}
		return nil, err
	}

	if session.ChallengeStatus.IsTerminal() {
		return e.terminalInstruction(session), nil
	}

	disposition, err := e.provider.GetDisposition(ctx, session, providerFields)
	if err != nil {
		metrics.ProviderFaults.WithLabelValues("disposition").Inc()
		e.logger.Error("disposition query failed",
			zap.String("session_id", session.ID), zap.Error(err))
		return e.recordTerminal(ctx, session, models.ChallengeStatusInternalServerError, nil)
	}

	status := disposition.Status
	if status == "" || status == models.ChallengeStatusUnknown || !status.IsTerminal() {
		var rule string
		status, rule = ResolveDisposition(DispositionInput{
			TransactionStatus:        disposition.TransactionStatus,
			TransactionStatusReason:  disposition.TransactionStatusReason,
			ChallengeCancelIndicator: disposition.ChallengeCancelIndicator,
			IsMOTO:                   session.IsMOTO,
		}, e.toggles)
		e.logger.Info("ambiguous disposition resolved",
			zap.String("session_id", session.ID),
			zap.String("rule", rule),
			zap.String("trans_status", string(disposition.TransactionStatus)),
			zap.String("reason", string(disposition.TransactionStatusReason)),
			zap.String("cancel_indicator", disposition.ChallengeCancelIndicator),
			zap.String("status", string(status)))
	}

	return e.recordTerminal(ctx, session, status, disposition)
}

// ReportCancelled records an explicit user dismissal of the challenge UI.
// Cancelled is terminal, distinct from Failed, and routes the browser home
// instead of to an error display.
func (e *ChallengeFlowEngine) ReportCancelled(ctx context.Context, id string) (*models.BrowserInstruction, error) {
	session, err := e.sessions.UpdateSession(ctx, id, func(s *models.PaymentSession) error {
		if !s.ChallengeStatus.IsTerminal() {
			s.ChallengeStatus = models.ChallengeStatusCancelled
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.BrowserInstruction{
		Type:        models.InstructionReturnHome,
		SessionID:   session.ID,
		Status:      session.ChallengeStatus,
		RedirectURL: session.SuccessURL,
		Session:     session,
	}, nil
}

func (e *ChallengeFlowEngine) startFingerprint(ctx context.Context, session *models.PaymentSession) (*models.BrowserInstruction, error) {
	method, err := e.provider.GetMethodData(ctx, session)
	if err != nil {
		// Fingerprinting is fail-open: skip straight to the challenge step.
		metrics.ProviderFaults.WithLabelValues("method_data").Inc()
		e.logger.Warn("method data unavailable, skipping fingerprint",
			zap.String("session_id", session.ID), zap.Error(err))
		session, uerr := e.sessions.UpdateSession(ctx, session.ID, func(s *models.PaymentSession) error {
			s.FingerprintTimedOut = true
			return nil
		})
		if uerr != nil {
			return nil, uerr
		}
		return e.startChallenge(ctx, session, "")
	}

	session, err = e.sessions.UpdateSession(ctx, session.ID, func(s *models.PaymentSession) error {
		s.ChallengeStatus = models.ChallengeStatusFingerprintPending
		s.MethodDataURL = method.URL
		s.MethodDataFields = method.Fields
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.fingerprintInstruction(session), nil
}

func (e *ChallengeFlowEngine) startChallenge(ctx context.Context, session *models.PaymentSession, methodData string) (*models.BrowserInstruction, error) {
	challenge, err := e.provider.GetChallengeData(ctx, session, methodData)
	if err != nil {
		metrics.ProviderFaults.WithLabelValues("challenge_data").Inc()
		e.logger.Error("challenge data query failed",
			zap.String("session_id", session.ID), zap.Error(err))
		return e.recordTerminal(ctx, session, models.ChallengeStatusInternalServerError, nil)
	}

	session, err = e.sessions.UpdateSession(ctx, session.ID, func(s *models.PaymentSession) error {
		s.ChallengeStatus = models.ChallengeStatusChallengeInProgress
		s.AcsChallengeURL = challenge.URL
		s.AcsChallengeFields = challenge.Fields
		if challenge.WindowSize != "" {
			s.ChallengeWindowSize = challenge.WindowSize
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e.challengeInstruction(session), nil
}

// recordTerminal writes the terminal transition and, for order-linked
// sessions ending in a verified status, pushes evidence downstream exactly
// once. The notify decision is made inside the serialized store update so
// concurrent callbacks cannot double-attach.
func (e *ChallengeFlowEngine) recordTerminal(ctx context.Context, session *models.PaymentSession, status models.ChallengeStatus, disposition *models.Disposition) (*models.BrowserInstruction, error) {
	var notify bool
	updated, err := e.sessions.UpdateSession(ctx, session.ID, func(s *models.PaymentSession) error {
		notify = false
		if s.ChallengeStatus.IsTerminal() {
			return nil
		}
		s.ChallengeStatus = status
		if disposition != nil {
			s.TransactionStatus = disposition.TransactionStatus
			s.TransactionStatusReason = disposition.TransactionStatusReason
			s.ChallengeCancelIndicator = disposition.ChallengeCancelIndicator
			if status == models.ChallengeStatusFailed && disposition.DisplayMessage != "" {
				s.UserDisplayMessage = disposition.DisplayMessage
			}
		}
		if s.RequestID != "" && s.ChallengeStatus.IsVerified() && !s.EvidenceAttached {
			s.EvidenceAttached = true
			notify = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if notify {
		e.notifier.NotifyTerminal(ctx, updated)
	}

	return e.terminalInstruction(updated), nil
}

func (e *ChallengeFlowEngine) fingerprintInstruction(session *models.PaymentSession) *models.BrowserInstruction {
	return &models.BrowserInstruction{
		Type:       models.InstructionFingerprintIframe,
		SessionID:  session.ID,
		FormURL:    session.MethodDataURL,
		FormFields: session.MethodDataFields,
		TimeoutMS:  int(e.fingerprintTimeout / time.Millisecond),
	}
}

func (e *ChallengeFlowEngine) challengeInstruction(session *models.PaymentSession) *models.BrowserInstruction {
	inst := &models.BrowserInstruction{
		SessionID:  session.ID,
		FormFields: session.AcsChallengeFields,
		WindowSize: session.ChallengeWindowSize,
	}

	switch session.FramePolicy {
	case models.FullPageRedirect:
		inst.Type = models.InstructionRedirect
		inst.FormURL = session.AcsChallengeURL
	case models.FrameProxied:
		inst.Type = models.InstructionChallengeIframe
		inst.FormURL = fmt.Sprintf("%s/api/v1/paymentSessions/%s/proxyFrame", e.publicBaseURL, session.ID)
	default:
		inst.Type = models.InstructionChallengeIframe
		inst.FormURL = session.AcsChallengeURL
	}
	return inst
}

func (e *ChallengeFlowEngine) terminalInstruction(session *models.PaymentSession) *models.BrowserInstruction {
	inst := &models.BrowserInstruction{
		Type:           models.InstructionTerminal,
		SessionID:      session.ID,
		Status:         session.ChallengeStatus,
		DisplayMessage: session.UserDisplayMessage,
		Session:        session,
	}
	if session.ChallengeStatus == models.ChallengeStatusCancelled {
		inst.Type = models.InstructionReturnHome
		inst.RedirectURL = session.SuccessURL
	} else if !session.ChallengeStatus.IsVerified() && session.FailureURL != "" {
		inst.RedirectURL = session.FailureURL
	} else if session.SuccessURL != "" {
		inst.RedirectURL = session.SuccessURL
	}
	return inst
}

// safetyNetInstruction synthesizes a minimal signed Succeeded session when
// the store cannot produce one for a completion callback. Gated behind the
// TreatProviderFaultAsVerified toggle.
func (e *ChallengeFlowEngine) safetyNetInstruction(id string) *models.BrowserInstruction {
	session := &models.PaymentSession{
		ID:                  id,
		IsChallengeRequired: true,
		ChallengeStatus:     models.ChallengeStatusSucceeded,
		SchemaRevision:      models.SchemaRevisionCurrent,
	}
	if sig, err := e.signer.Sign(session); err == nil {
		session.Signature = sig
	}
	e.logger.Warn("completion callback for unknown session, returning safety net",
		zap.String("session_id", id))
	return &models.BrowserInstruction{
		Type:      models.InstructionTerminal,
		SessionID: id,
		Status:    models.ChallengeStatusSucceeded,
		Session:   session,
	}
}

func needsFingerprint(t models.ChallengeType) bool {
	return t == models.ChallengeTypeThreeDSTwo
}
