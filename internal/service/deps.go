// internal/service/deps.go
package service

import (
	"context"
	"errors"

	"challenge-orchestrator/internal/models"
)

var (
	ErrValidation = errors.New("invalid request")
	// ErrNotFound deliberately covers both "absent" and "not yours": ownership
	// failures must be indistinguishable from missing records.
	ErrNotFound = errors.New("not found")
)

// AuthProvider is the external ACS-facing authentication provider.
type AuthProvider interface {
	CheckEnrollment(ctx context.Context, session *models.PaymentSession, deviceChannel, cardNetwork string) (*models.EnrollmentDecision, error)
	GetMethodData(ctx context.Context, session *models.PaymentSession) (*models.MethodData, error)
	GetChallengeData(ctx context.Context, session *models.PaymentSession, methodData string) (*models.ChallengeData, error)
	GetDisposition(ctx context.Context, session *models.PaymentSession, providerFields map[string]string) (*models.Disposition, error)
}

// InstrumentReader looks up payment-instrument records.
type InstrumentReader interface {
	GetInstrument(ctx context.Context, accountID, piID string) (*models.Instrument, error)
}

// EvidenceSink receives completed-challenge evidence for order-linked sessions.
type EvidenceSink interface {
	AttachChallengeEvidence(ctx context.Context, requestID string, evidence *models.ChallengeEvidence) error
}

// Toggles are the feature switches threaded through the engine. The two
// ambiguity escape hatches are deliberately separate switches: one treats
// provider faults as verified, the other resolves ambiguous dispositions via
// the raw-code heuristic. They are not equivalent and must never be merged.
type Toggles struct {
	// TreatProviderFaultAsVerified synthesizes a minimal Succeeded session
	// when the store cannot produce one for a completion callback.
	TreatProviderFaultAsVerified bool
	// AmbiguousStatusHeuristic resolves U/C dispositions through the decision
	// table's fail-open tail instead of failing them.
	AmbiguousStatusHeuristic bool
	// StrictContextChecks promotes the advisory integrity fields (partner,
	// country, preorder, MOTO, scenario, purchase order) from logged to
	// blocking.
	StrictContextChecks bool
	// DiagnosticOverride permits overwriting a terminal status. Support
	// tooling only.
	DiagnosticOverride bool
}
