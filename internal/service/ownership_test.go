// internal/service/ownership_test.go
package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"challenge-orchestrator/internal/models"
)

type fakeInstruments struct {
	instruments map[string]*models.Instrument
}

func (f *fakeInstruments) GetInstrument(_ context.Context, _, piID string) (*models.Instrument, error) {
	pi, ok := f.instruments[piID]
	if !ok {
		return nil, errors.New("instrument not found")
	}
	return pi, nil
}

func TestVerifyAccess(t *testing.T) {
	instruments := &fakeInstruments{instruments: map[string]*models.Instrument{
		"pi-1": {ID: "pi-1", AccountID: "acct-new"},
	}}
	v := NewOwnershipVerifier(instruments, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name      string
		accountID string
		session   *models.PaymentSession
		wantErr   error
	}{
		{
			name:      "Direct owner match",
			accountID: "acct-1",
			session:   &models.PaymentSession{ID: "s1", AccountID: "acct-1", PaymentInstrumentID: "pi-1"},
			wantErr:   nil,
		},
		{
			name:      "Mismatch with successful instrument fallback",
			accountID: "acct-new",
			session:   &models.PaymentSession{ID: "s2", AccountID: "acct-old", PaymentInstrumentID: "pi-1"},
			wantErr:   nil,
		},
		{
			name:      "Mismatch with failed fallback",
			accountID: "acct-other",
			session:   &models.PaymentSession{ID: "s3", AccountID: "acct-old", PaymentInstrumentID: "pi-1"},
			wantErr:   ErrNotFound,
		},
		{
			name:      "Mismatch with missing instrument",
			accountID: "acct-1",
			session:   &models.PaymentSession{ID: "s4", AccountID: "acct-old", PaymentInstrumentID: "pi-missing"},
			wantErr:   ErrNotFound,
		},
		{
			name:      "Empty account id",
			accountID: "",
			session:   &models.PaymentSession{ID: "s5", AccountID: "acct-1", PaymentInstrumentID: "pi-1"},
			wantErr:   ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifyAccess(ctx, tt.accountID, tt.session)
			if !errors.Is(err, tt.wantErr) && err != tt.wantErr {
				t.Errorf("VerifyAccess() err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
