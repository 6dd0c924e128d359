// internal/client/instruments.go
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

var ErrInstrumentNotFound = errors.New("payment instrument not found")

// InstrumentClient reads payment-instrument records. Instrument storage and
// CRUD are owned elsewhere; this client only serves ownership fallback and
// required-challenge lookups.
type InstrumentClient struct {
	http *resty.Client
}

func NewInstrumentClient(baseURL string, timeout time.Duration) *InstrumentClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &InstrumentClient{http: c}
}

func (c *InstrumentClient) GetInstrument(ctx context.Context, accountID, piID string) (*models.Instrument, error) {
	var pi models.Instrument
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(CorrelationHeader, CorrelationID(ctx)).
		SetResult(&pi).
		Get(fmt.Sprintf("/accounts/%s/paymentInstruments/%s", accountID, piID))
	if err != nil {
		return nil, fmt.Errorf("get instrument %s: %w", piID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrInstrumentNotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get instrument %s: status %d", piID, resp.StatusCode())
	}
	return &pi, nil
}
