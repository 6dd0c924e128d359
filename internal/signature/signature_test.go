// internal/signature/signature_test.go
package signature

import (
	"errors"
	"testing"

	"challenge-orchestrator/internal/models"
)

func signedSession(t *testing.T, signer *Signer) *models.PaymentSession {
	t.Helper()
	session := &models.PaymentSession{
		ID:                  "session-1",
		PaymentInstrumentID: "pi-1",
		Amount:              42.50,
		Currency:            "EUR",
		IsChallengeRequired: true,
	}
	sig, err := signer.Sign(session)
	if err != nil {
		t.Fatalf("Sign() err = %v", err)
	}
	session.Signature = sig
	return session
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := NewSigner([]byte("key"), "issuer")
	session := signedSession(t, signer)

	if err := signer.Verify(session); err != nil {
		t.Errorf("Verify() err = %v, want nil", err)
	}
}

func TestVerifyRejectsTamperedFields(t *testing.T) {
	signer := NewSigner([]byte("key"), "issuer")

	tests := []struct {
		name   string
		mutate func(*models.PaymentSession)
	}{
		{"Amount changed", func(s *models.PaymentSession) { s.Amount = 1 }},
		{"Currency changed", func(s *models.PaymentSession) { s.Currency = "USD" }},
		{"Instrument swapped", func(s *models.PaymentSession) { s.PaymentInstrumentID = "pi-other" }},
		{"Challenge requirement flipped", func(s *models.PaymentSession) { s.IsChallengeRequired = false }},
		{"Signature moved to another session", func(s *models.PaymentSession) { s.ID = "session-2" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := signedSession(t, signer)
			tt.mutate(session)
			if err := signer.Verify(session); !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("Verify() err = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestVerifyRejectsMissingSignature(t *testing.T) {
	signer := NewSigner([]byte("key"), "issuer")
	session := signedSession(t, signer)
	session.Signature = ""

	if err := signer.Verify(session); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify() err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	signer := NewSigner([]byte("key"), "issuer")
	session := signedSession(t, signer)

	other := NewSigner([]byte("other-key"), "issuer")
	if err := other.Verify(session); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify() err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	signer := NewSigner([]byte("key"), "issuer-a")
	session := signedSession(t, signer)

	other := NewSigner([]byte("key"), "issuer-b")
	if err := other.Verify(session); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify() err = %v, want ErrInvalidSignature", err)
	}
}
