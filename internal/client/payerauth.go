// internal/client/payerauth.go

// Package client holds the REST clients for the orchestrator's external
// collaborators: the authentication provider, the payment-instrument
// service and the order service.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"challenge-orchestrator/internal/models"
)

// ErrProviderFault marks any provider call failure, timeout included. The
// challenge engine maps it to the InternalServerError terminal state; it is
// never surfaced to the browser.
var ErrProviderFault = errors.New("authentication provider call failed")

// CorrelationHeader carries the request-scoped correlation id to every
// collaborator.
const CorrelationHeader = "x-correlation-id"

type correlationKey struct{}

// WithCorrelationID threads the correlation id through a context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID extracts the correlation id from a context, if present.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// PayerAuthClient talks to the ACS-facing authentication provider. The
// provider owns the cryptographic and network internals of the protocol;
// this client only exchanges session-correlated instructions and outcomes.
type PayerAuthClient struct {
	http *resty.Client
}

func NewPayerAuthClient(baseURL string, timeout time.Duration) *PayerAuthClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &PayerAuthClient{http: c}
}

type enrollmentRequest struct {
	SessionID         string  `json:"sessionId"`
	PaymentInstrument string  `json:"paymentInstrumentId"`
	Partner           string  `json:"partner"`
	Country           string  `json:"country"`
	Currency          string  `json:"currency"`
	Amount            float64 `json:"amount"`
	Scenario          string  `json:"challengeScenario"`
	DeviceChannel     string  `json:"deviceChannel,omitempty"`
	CardNetwork       string  `json:"cardNetwork,omitempty"`
}

// CheckEnrollment asks the provider whether a challenge is required for the
// instrument in this market. BIN, country and partner rules live provider-side.
func (c *PayerAuthClient) CheckEnrollment(ctx context.Context, session *models.PaymentSession, deviceChannel, cardNetwork string) (*models.EnrollmentDecision, error) {
	req := enrollmentRequest{
		SessionID:         session.ID,
		PaymentInstrument: session.PaymentInstrumentID,
		Partner:           session.Partner,
		Country:           session.Country,
		Currency:          session.Currency,
		Amount:            session.Amount,
		Scenario:          string(session.ChallengeScenario),
		DeviceChannel:     deviceChannel,
		CardNetwork:       cardNetwork,
	}

	var decision models.EnrollmentDecision
	if err := c.post(ctx, "/enrollment", req, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// GetMethodData fetches the device-fingerprinting form for the session.
func (c *PayerAuthClient) GetMethodData(ctx context.Context, session *models.PaymentSession) (*models.MethodData, error) {
	var method models.MethodData
	if err := c.post(ctx, fmt.Sprintf("/sessions/%s/methodData", session.ID), session, &method); err != nil {
		return nil, err
	}
	return &method, nil
}

type challengeRequest struct {
	Session             *models.PaymentSession `json:"session"`
	MethodData          string                 `json:"methodData,omitempty"`
	FingerprintTimedOut bool                   `json:"fingerprintTimedOut"`
}

// GetChallengeData fetches the challenge form for the session, reporting
// whether fingerprinting completed so the provider can score accordingly.
func (c *PayerAuthClient) GetChallengeData(ctx context.Context, session *models.PaymentSession, methodData string) (*models.ChallengeData, error) {
	req := challengeRequest{
		Session:             session,
		MethodData:          methodData,
		FingerprintTimedOut: session.FingerprintTimedOut,
	}

	var challenge models.ChallengeData
	if err := c.post(ctx, fmt.Sprintf("/sessions/%s/challengeData", session.ID), req, &challenge); err != nil {
		return nil, err
	}
	return &challenge, nil
}

// GetDisposition asks the provider how the challenge ended.
func (c *PayerAuthClient) GetDisposition(ctx context.Context, session *models.PaymentSession, providerFields map[string]string) (*models.Disposition, error) {
	req := map[string]interface{}{
		"session":        session,
		"providerFields": providerFields,
	}

	var disposition models.Disposition
	if err := c.post(ctx, fmt.Sprintf("/sessions/%s/completion", session.ID), req, &disposition); err != nil {
		return nil, err
	}
	return &disposition, nil
}

func (c *PayerAuthClient) post(ctx context.Context, path string, body, result interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(CorrelationHeader, CorrelationID(ctx)).
		SetBody(body).
		SetResult(result).
		Post(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderFault, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrProviderFault, path, resp.StatusCode())
	}
	return nil
}
