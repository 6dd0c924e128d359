// internal/client/orders.go
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"challenge-orchestrator/internal/models"
)

// OrderClient pushes completed-challenge evidence to the order/payment-request
// service.
type OrderClient struct {
	http *resty.Client
}

func NewOrderClient(baseURL string, timeout time.Duration) *OrderClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &OrderClient{http: c}
}

// AttachChallengeEvidence records the challenge outcome on the payment
// request. The call is synchronous so the caller's next read of order state
// observes the attachment.
func (c *OrderClient) AttachChallengeEvidence(ctx context.Context, requestID string, evidence *models.ChallengeEvidence) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(CorrelationHeader, CorrelationID(ctx)).
		SetBody(evidence).
		Post(fmt.Sprintf("/paymentRequests/%s/attachChallengeData", requestID))
	if err != nil {
		return fmt.Errorf("attach challenge evidence to %s: %w", requestID, err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("attach challenge evidence to %s: status %d", requestID, resp.StatusCode())
	}
	return nil
}
