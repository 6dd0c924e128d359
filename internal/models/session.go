// internal/models/session.go
package models

import "time"

type ChallengeStatus string

const (
	ChallengeStatusUnknown             ChallengeStatus = "Unknown"
	ChallengeStatusCreated             ChallengeStatus = "Created"
	ChallengeStatusFingerprintPending  ChallengeStatus = "FingerprintPending"
	ChallengeStatusChallengeInProgress ChallengeStatus = "ChallengeInProgress"
	ChallengeStatusNoChallengeNeeded   ChallengeStatus = "NoChallengeNeeded"
	ChallengeStatusSucceeded           ChallengeStatus = "Succeeded"
	ChallengeStatusFailed              ChallengeStatus = "Failed"
	ChallengeStatusByPassed            ChallengeStatus = "ByPassed"
	ChallengeStatusNotApplicable       ChallengeStatus = "NotApplicable"
	ChallengeStatusTimedOut            ChallengeStatus = "TimedOut"
	ChallengeStatusInternalServerError ChallengeStatus = "InternalServerError"
	ChallengeStatusCancelled           ChallengeStatus = "Cancelled"
)

// IsTerminal reports whether no further transition is expected for s.
func (s ChallengeStatus) IsTerminal() bool {
	switch s {
	case ChallengeStatusSucceeded,
		ChallengeStatusFailed,
		ChallengeStatusByPassed,
		ChallengeStatusNotApplicable,
		ChallengeStatusTimedOut,
		ChallengeStatusInternalServerError,
		ChallengeStatusCancelled:
		return true
	}
	return false
}

// IsVerified reports whether s counts as a successfully authenticated outcome.
func (s ChallengeStatus) IsVerified() bool {
	return s == ChallengeStatusSucceeded || s == ChallengeStatusByPassed || s == ChallengeStatusNotApplicable
}

type ChallengeType string

const (
	ChallengeTypeThreeDSOne       ChallengeType = "ThreeDSOne"
	ChallengeTypeThreeDSTwo       ChallengeType = "ThreeDSTwo"
	ChallengeTypeUPI              ChallengeType = "UPIChallenge"
	ChallengeTypeLegacyRedirect   ChallengeType = "LegacyRedirectChallenge"
	ChallengeTypeValidateOnAttach ChallengeType = "ValidateOnAttachChallenge"
)

type ChallengeScenario string

const (
	ScenarioAddCard              ChallengeScenario = "AddCard"
	ScenarioPaymentTransaction   ChallengeScenario = "PaymentTransaction"
	ScenarioRecurringTransaction ChallengeScenario = "RecurringTransaction"
)

// ChallengeWindowSize follows the EMVCo window size codes.
type ChallengeWindowSize string

const (
	WindowSize01         ChallengeWindowSize = "01" // 250x400
	WindowSize02         ChallengeWindowSize = "02" // 390x400
	WindowSize03         ChallengeWindowSize = "03" // 500x600
	WindowSize04         ChallengeWindowSize = "04" // 600x400
	WindowSizeFullScreen ChallengeWindowSize = "05"
)

// FramePolicy decides how challenge content is presented to the browser.
// Resolved once at session creation from partner policy, never re-evaluated
// per transition.
type FramePolicy string

const (
	FrameDirect      FramePolicy = "direct"   // hidden form posts straight to the provider
	FrameProxied     FramePolicy = "proxied"  // form posts back through this service
	FullPageRedirect FramePolicy = "redirect" // top-level navigation to the provider
)

// SchemaRevision selects the persistence shape governing a session. Sessions
// begun before the store migration are revision 1 and must complete on the
// legacy shape.
type SchemaRevision int

const (
	SchemaRevisionLegacy  SchemaRevision = 1
	SchemaRevisionCurrent SchemaRevision = 2
)

// PaymentSession is the stateful record tracking one authentication attempt
// for one instrument/transaction pair. Id doubles as the provider correlation
// key and is the sole correlation key across every sub-step.
type PaymentSession struct {
	ID                  string              `json:"id"`
	AccountID           string              `json:"accountId"`
	PaymentInstrumentID string              `json:"paymentInstrumentId"`
	RequestID           string              `json:"requestId,omitempty"`
	Partner             string              `json:"partner"`
	Country             string              `json:"country"`
	Language            string              `json:"language,omitempty"`
	Amount              float64             `json:"amount"`
	Currency            string              `json:"currency"`
	PaymentMethodType   string              `json:"paymentMethodType,omitempty"`
	ChallengeScenario   ChallengeScenario   `json:"challengeScenario"`
	ChallengeType       ChallengeType       `json:"challengeType"`
	ChallengeWindowSize ChallengeWindowSize `json:"challengeWindowSize,omitempty"`

	IsChallengeRequired      bool `json:"isChallengeRequired"`
	PiRequiresAuthentication bool `json:"piRequiresAuthentication"`

	ChallengeStatus ChallengeStatus `json:"challengeStatus"`

	// Raw provider codes, consulted only when the mapped status is ambiguous.
	TransactionStatus        TransactionStatus       `json:"transactionStatus,omitempty"`
	TransactionStatusReason  TransactionStatusReason `json:"transactionStatusReason,omitempty"`
	ChallengeCancelIndicator string                  `json:"challengeCancelIndicator,omitempty"`

	HasPreOrder     bool   `json:"hasPreOrder"`
	IsMOTO          bool   `json:"isMOTO"`
	PurchaseOrderID string `json:"purchaseOrderId,omitempty"`
	TenantID        string `json:"tenantId,omitempty"`

	SuccessURL string `json:"successUrl,omitempty"`
	FailureURL string `json:"failureUrl,omitempty"`

	Signature string `json:"signature"`

	FramePolicy FramePolicy `json:"framePolicy,omitempty"`

	// Cached provider payloads so browser retries replay the same instruction.
	MethodDataURL      string            `json:"methodDataUrl,omitempty"`
	MethodDataFields   map[string]string `json:"methodDataFields,omitempty"`
	AcsChallengeURL    string            `json:"acsChallengeUrl,omitempty"`
	AcsChallengeFields map[string]string `json:"acsChallengeFields,omitempty"`

	FingerprintTimedOut  bool   `json:"fingerprintTimedOut,omitempty"`
	BrowserInfoCollected bool   `json:"browserInfoCollected,omitempty"`
	LinkedSessionID      string `json:"linkedSessionId,omitempty"`
	UserDisplayMessage   string `json:"userDisplayMessage,omitempty"`

	// EvidenceAttached flips in the same store update as the terminal
	// transition so the order service is notified exactly once.
	EvidenceAttached bool `json:"evidenceAttached,omitempty"`

	SchemaRevision SchemaRevision `json:"schemaRevision"`
	Version        int64          `json:"version"`

	CreatedTime     time.Time `json:"createdTime"`
	LastUpdatedTime time.Time `json:"lastUpdatedTime"`
}

// CreateSessionRequest is the inbound payload for session creation.
type CreateSessionRequest struct {
	PaymentInstrumentID string              `json:"paymentInstrumentId" binding:"required"`
	Partner             string              `json:"partner" binding:"required"`
	Country             string              `json:"country" binding:"required"`
	Language            string              `json:"language"`
	Amount              float64             `json:"amount"`
	Currency            string              `json:"currency" binding:"required,len=3"`
	PaymentMethodType   string              `json:"paymentMethodType"`
	ChallengeScenario   ChallengeScenario   `json:"challengeScenario" binding:"required"`
	ChallengeWindowSize ChallengeWindowSize `json:"challengeWindowSize"`
	RequestID           string              `json:"requestId"`
	TenantID            string              `json:"tenantId"`
	PurchaseOrderID     string              `json:"purchaseOrderId"`
	HasPreOrder         bool                `json:"hasPreOrder"`
	IsMOTO              bool                `json:"isMOTO"`
	SuccessURL          string              `json:"successUrl"`
	FailureURL          string              `json:"failureUrl"`

	// Initialization data, mandatory only when the session is synthesized
	// from raw instrument data instead of a stored PI.
	CardNetwork   string `json:"cardNetwork"`
	Market        string `json:"market"`
	DeviceChannel string `json:"deviceChannel"`
	SynthesizePI  bool   `json:"synthesizePi"`
}

// TransactionContext is the caller-supplied purchase context that a completed
// session is verified against at authorization time.
type TransactionContext struct {
	Currency          string            `json:"currency"`
	Country           string            `json:"country"`
	Partner           string            `json:"partner"`
	HasPreOrder       bool              `json:"hasPreOrder"`
	IsMOTO            bool              `json:"isMOTO"`
	ChallengeScenario ChallengeScenario `json:"challengeScenario"`
	PurchaseOrderID   string            `json:"purchaseOrderId"`
	Pretax            float64           `json:"pretax"`
	Posttax           float64           `json:"posttax"`
}

// VerificationResult classifies the outcome of transaction integrity checks.
type VerificationResult string

const (
	VerificationSuccess          VerificationResult = "Success"
	VerificationCurrencyMismatch VerificationResult = "CurrencyMismatch"
	VerificationAmountMismatch   VerificationResult = "AmountMismatch"
)

// AuthenticationStatus is the response of the authentication-status query.
type AuthenticationStatus struct {
	Verified      bool            `json:"verified"`
	Status        ChallengeStatus `json:"status"`
	FailureReason string          `json:"failureReason,omitempty"`
}
