// internal/models/instruction.go
package models

// InstructionType tells the browser what to do next.
type InstructionType string

const (
	InstructionFingerprintIframe InstructionType = "fingerprint_iframe"
	InstructionChallengeIframe   InstructionType = "challenge_iframe"
	InstructionRedirect          InstructionType = "redirect"
	InstructionTerminal          InstructionType = "terminal"
	InstructionReturnHome        InstructionType = "return_home"
)

// BrowserInstruction is the orchestrator's answer to every browser-facing
// call: either an auto-submitting hidden form (action URL plus field set,
// both provider-supplied), a top-level redirect, or a terminal payload.
type BrowserInstruction struct {
	Type       InstructionType     `json:"type"`
	SessionID  string              `json:"sessionId"`
	FormURL    string              `json:"formUrl,omitempty"`
	FormFields map[string]string   `json:"formFields,omitempty"`
	WindowSize ChallengeWindowSize `json:"windowSize,omitempty"`
	// TimeoutMS bounds how long the browser waits on a fingerprint iframe
	// before reporting back empty-handed.
	TimeoutMS int `json:"timeoutMs,omitempty"`

	RedirectURL string `json:"redirectUrl,omitempty"`

	Status         ChallengeStatus `json:"status,omitempty"`
	DisplayMessage string          `json:"displayMessage,omitempty"`
	Session        *PaymentSession `json:"session,omitempty"`
}
