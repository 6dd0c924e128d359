// internal/repository/redis_store_test.go
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"challenge-orchestrator/internal/models"
)

func newTestStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisSessionStore(rdb, time.Hour), mr
}

func testSession(id string) *models.PaymentSession {
	return &models.PaymentSession{
		ID:                  id,
		AccountID:           "acct-1",
		PaymentInstrumentID: "pi-1",
		Partner:             "webblends",
		Country:             "US",
		Amount:              100,
		Currency:            "USD",
		ChallengeScenario:   models.ScenarioPaymentTransaction,
		ChallengeType:       models.ChallengeTypeThreeDSTwo,
		ChallengeStatus:     models.ChallengeStatusCreated,
		CreatedTime:         time.Now().UTC(),
		LastUpdatedTime:     time.Now().UTC(),
	}
}

func TestRedisStoreCreateGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	session := testSession("sess-1")
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() err = %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() err = %v", err)
	}
	if got.ID != "sess-1" || got.Currency != "USD" || got.Amount != 100 {
		t.Errorf("Get() = %+v, want stored session", got)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if got.SchemaRevision != models.SchemaRevisionCurrent {
		t.Errorf("SchemaRevision = %d, want %d", got.SchemaRevision, models.SchemaRevisionCurrent)
	}
}

func TestRedisStoreCreateDuplicate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("Create() err = %v", err)
	}
	if err := store.Create(ctx, testSession("sess-1")); !errors.Is(err, ErrSessionExists) {
		t.Errorf("Create() err = %v, want ErrSessionExists", err)
	}
}

func TestRedisStoreGetNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() err = %v, want ErrSessionNotFound", err)
	}
}

func TestRedisStoreUpdate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("Create() err = %v", err)
	}

	updated, err := store.Update(ctx, "sess-1", func(s *models.PaymentSession) error {
		s.ChallengeStatus = models.ChallengeStatusFingerprintPending
		return nil
	})
	if err != nil {
		t.Fatalf("Update() err = %v", err)
	}
	if updated.ChallengeStatus != models.ChallengeStatusFingerprintPending {
		t.Errorf("status = %v, want FingerprintPending", updated.ChallengeStatus)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() err = %v", err)
	}
	if got.ChallengeStatus != models.ChallengeStatusFingerprintPending {
		t.Errorf("persisted status = %v, want FingerprintPending", got.ChallengeStatus)
	}
}

func TestRedisStoreUpdateMutateError(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testSession("sess-1")); err != nil {
		t.Fatalf("Create() err = %v", err)
	}

	wantErr := errors.New("mutate failed")
	_, err := store.Update(ctx, "sess-1", func(*models.PaymentSession) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Update() err = %v, want mutate error", err)
	}

	got, _ := store.Get(ctx, "sess-1")
	if got.Version != 1 {
		t.Errorf("Version = %d after failed mutate, want 1", got.Version)
	}
}

func TestRedisStoreLegacyRevisionRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	// Seed a record the way the pre-migration writer shaped it.
	legacy := legacySessionRecord{
		SessionID:         "legacy-1",
		AccountID:         "acct-1",
		PiID:              "pi-1",
		Partner:           "webblends",
		Country:           "DE",
		AmountMinor:       2550,
		Currency:          "EUR",
		Scenario:          string(models.ScenarioPaymentTransaction),
		ChallengeType:     string(models.ChallengeTypeThreeDSOne),
		ChallengeRequired: true,
		Status:            string(models.ChallengeStatusChallengeInProgress),
		Version:           3,
		CreatedUnix:       time.Now().Unix(),
		UpdatedUnix:       time.Now().Unix(),
	}
	payload, _ := json.Marshal(legacy)
	envelope, _ := json.Marshal(sessionEnvelope{Rev: models.SchemaRevisionLegacy, Payload: payload})
	mr.Set(sessionKey("legacy-1"), string(envelope))

	got, err := store.Get(ctx, "legacy-1")
	if err != nil {
		t.Fatalf("Get() err = %v", err)
	}
	if got.SchemaRevision != models.SchemaRevisionLegacy {
		t.Errorf("SchemaRevision = %d, want legacy", got.SchemaRevision)
	}
	if got.Amount != 25.50 {
		t.Errorf("Amount = %v, want 25.50 (minor units converted)", got.Amount)
	}
	if got.ChallengeType != models.ChallengeTypeThreeDSOne {
		t.Errorf("ChallengeType = %v, want ThreeDSOne", got.ChallengeType)
	}

	// An update must write back in the legacy shape.
	_, err = store.Update(ctx, "legacy-1", func(s *models.PaymentSession) error {
		s.ChallengeStatus = models.ChallengeStatusSucceeded
		return nil
	})
	if err != nil {
		t.Fatalf("Update() err = %v", err)
	}

	raw, err := mr.Get(sessionKey("legacy-1"))
	if err != nil {
		t.Fatalf("miniredis get: %v", err)
	}
	var env sessionEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Rev != models.SchemaRevisionLegacy {
		t.Errorf("written revision = %d, want legacy", env.Rev)
	}
	var rec legacySessionRecord
	if err := json.Unmarshal(env.Payload, &rec); err != nil {
		t.Fatalf("unmarshal legacy payload: %v", err)
	}
	if rec.Status != string(models.ChallengeStatusSucceeded) {
		t.Errorf("written status = %q, want Succeeded", rec.Status)
	}
	if rec.AmountMinor != 2550 {
		t.Errorf("AmountMinor = %d, want 2550", rec.AmountMinor)
	}
}

func TestRedisStoreUpdateNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Update(context.Background(), "missing", func(*models.PaymentSession) error {
		return nil
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Update() err = %v, want ErrSessionNotFound", err)
	}
}
