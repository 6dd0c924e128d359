// internal/models/provider.go
package models

// TransactionStatus is the raw EMVCo-style status code returned by the
// authentication provider.
type TransactionStatus string

const (
	TransStatusAuthenticated    TransactionStatus = "Y"
	TransStatusNotAuthenticated TransactionStatus = "N"
	TransStatusUnavailable      TransactionStatus = "U"
	TransStatusAttempted        TransactionStatus = "A"
	TransStatusChallenge        TransactionStatus = "C"
	TransStatusRejected         TransactionStatus = "R"
	TransStatusFullyRejected    TransactionStatus = "FR"
	TransStatusCancelledByACS   TransactionStatus = "AC"
)

// TransactionStatusReason qualifies a TransactionStatus. TSR10 marks a hard
// authentication failure; TSR14 marks a challenge timeout.
type TransactionStatusReason string

const (
	ReasonNone           TransactionStatusReason = ""
	ReasonCardAuthFailed TransactionStatusReason = "TSR10"
	ReasonTimedOut       TransactionStatusReason = "TSR14"
)

// ChallengeCancelIndicator values reported by the provider when a challenge
// ended without an authentication result.
const (
	CancelledByCardHolder   = "CancelledByCardHolder"
	CancelledByRequestor    = "CancelledByRequestor"
	TransactionAbandoned    = "TransactionAbandoned"
	TransactionCReqTimedOut = "TransactionCReqTimedOut"
	TransactionTimedOut     = "TransactionTimedOut"
	CancelTransactionError  = "TransactionError"
	CancelIndicatorUnknown  = "Unknown"
)

// MethodData is the provider's device-fingerprinting instruction: a hidden
// form posted to the provider from an invisible iframe.
type MethodData struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// ChallengeData is the provider's challenge instruction.
type ChallengeData struct {
	URL        string              `json:"url"`
	Fields     map[string]string   `json:"fields"`
	WindowSize ChallengeWindowSize `json:"windowSize"`
}

// Disposition is the provider's answer to "how did this challenge end".
type Disposition struct {
	Status                   ChallengeStatus         `json:"status"`
	TransactionStatus        TransactionStatus       `json:"transactionStatus"`
	TransactionStatusReason  TransactionStatusReason `json:"transactionStatusReason"`
	ChallengeCancelIndicator string                  `json:"challengeCancelIndicator"`
	DisplayMessage           string                  `json:"displayMessage"`
}

// EnrollmentDecision is the provider's challenge-requirement ruling for an
// instrument in a given market.
type EnrollmentDecision struct {
	ChallengeRequired bool          `json:"challengeRequired"`
	ChallengeType     ChallengeType `json:"challengeType"`
}

// Instrument is the subset of the payment-instrument record the orchestrator
// needs for ownership fallback checks.
type Instrument struct {
	ID                string   `json:"id"`
	AccountID         string   `json:"accountId"`
	PaymentMethodType string   `json:"paymentMethodType"`
	RequiredChallenge []string `json:"requiredChallenge"`
	PendingOn         string   `json:"pendingOn,omitempty"`
}

// RequiresThreeDSTwo reports whether the instrument's required-challenge set
// carries the modern-protocol marker.
func (i *Instrument) RequiresThreeDSTwo() bool {
	for _, c := range i.RequiredChallenge {
		if c == "3ds2" {
			return true
		}
	}
	return false
}

// ChallengeEvidence is the completed-challenge record pushed to the order
// service for sessions created within an order context.
type ChallengeEvidence struct {
	PaymentInstrumentID string          `json:"paymentInstrumentId"`
	ChallengeType       ChallengeType   `json:"challengeType"`
	ChallengeStatus     ChallengeStatus `json:"challengeStatus"`
	SessionID           string          `json:"sessionId"`
	TenantID            string          `json:"tenantId,omitempty"`
}
