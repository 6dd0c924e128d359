// internal/signature/signature.go

// Package signature issues and validates the anti-tamper signature carried by
// every payment session. The signature binds the fields a client could profit
// from altering (amount, currency, instrument, challenge requirement) to the
// session id, so a creation payload or completion callback that was modified
// in flight is rejected before any state transition is honored.
package signature

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"challenge-orchestrator/internal/models"
)

var ErrInvalidSignature = errors.New("payment session signature is missing or invalid")

type Signer struct {
	key    []byte
	issuer string
}

func NewSigner(key []byte, issuer string) *Signer {
	return &Signer{key: key, issuer: issuer}
}

type sessionClaims struct {
	PaymentInstrumentID string  `json:"piid"`
	Amount              float64 `json:"amt"`
	Currency            string  `json:"cur"`
	IsChallengeRequired bool    `json:"chreq"`
	jwt.RegisteredClaims
}

// Sign produces the signature token for a session. Sessions are signed once,
// at creation, before persistence.
func (s *Signer) Sign(session *models.PaymentSession) (string, error) {
	claims := sessionClaims{
		PaymentInstrumentID: session.PaymentInstrumentID,
		Amount:              session.Amount,
		Currency:            session.Currency,
		IsChallengeRequired: session.IsChallengeRequired,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			Subject:  session.ID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign payment session: %w", err)
	}
	return signed, nil
}

// Verify checks the session's signature against its current field values.
// Any mismatch, including a well-formed token minted for different values,
// reports ErrInvalidSignature.
func (s *Signer) Verify(session *models.PaymentSession) error {
	if session.Signature == "" {
		return ErrInvalidSignature
	}

	var claims sessionClaims
	token, err := jwt.ParseWithClaims(session.Signature, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil || !token.Valid {
		return ErrInvalidSignature
	}

	if claims.Subject != session.ID ||
		claims.PaymentInstrumentID != session.PaymentInstrumentID ||
		claims.Amount != session.Amount ||
		claims.Currency != session.Currency ||
		claims.IsChallengeRequired != session.IsChallengeRequired {
		return ErrInvalidSignature
	}
	return nil
}
