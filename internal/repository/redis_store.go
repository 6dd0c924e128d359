// internal/repository/redis_store.go
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"challenge-orchestrator/internal/models"
)

const (
	sessionKeyPrefix = "pxsession"
	updateMaxRetries = 4
)

// sessionEnvelope wraps the on-disk payload with its schema revision so one
// logical session type can be read from either historical shape.
type sessionEnvelope struct {
	Rev     models.SchemaRevision `json:"rev"`
	Payload json.RawMessage       `json:"payload"`
}

// legacySessionRecord is the pre-migration persistence shape: different field
// names and the amount stored in minor units. Sessions begun before the
// migration boundary still read and write this shape so they complete
// correctly.
type legacySessionRecord struct {
	SessionID          string            `json:"session_id"`
	AccountID          string            `json:"account_id"`
	PiID               string            `json:"pi_id"`
	RequestID          string            `json:"request_id,omitempty"`
	Partner            string            `json:"partner"`
	Country            string            `json:"country"`
	Language           string            `json:"language,omitempty"`
	AmountMinor        int64             `json:"amount_minor"`
	Currency           string            `json:"currency"`
	Scenario           string            `json:"scenario"`
	ChallengeType      string            `json:"challenge_type"`
	WindowSize         string            `json:"window_size,omitempty"`
	ChallengeRequired  bool              `json:"challenge_required"`
	PiRequiresAuth     bool              `json:"pi_requires_auth"`
	Status             string            `json:"status"`
	TransStatus        string            `json:"trans_status,omitempty"`
	TransStatusReason  string            `json:"trans_status_reason,omitempty"`
	CancelIndicator    string            `json:"cancel_indicator,omitempty"`
	HasPreOrder        bool              `json:"has_preorder"`
	IsMOTO             bool              `json:"is_moto"`
	PurchaseOrderID    string            `json:"purchase_order_id,omitempty"`
	TenantID           string            `json:"tenant_id,omitempty"`
	SuccessURL         string            `json:"success_url,omitempty"`
	FailureURL         string            `json:"failure_url,omitempty"`
	Signature          string            `json:"signature"`
	FramePolicy        string            `json:"frame_policy,omitempty"`
	MethodURL          string            `json:"method_url,omitempty"`
	MethodFields       map[string]string `json:"method_fields,omitempty"`
	AcsURL             string            `json:"acs_url,omitempty"`
	AcsFields          map[string]string `json:"acs_fields,omitempty"`
	FingerprintTimeout bool              `json:"fingerprint_timeout,omitempty"`
	BrowserInfo        bool              `json:"browser_info,omitempty"`
	LinkedSessionID    string            `json:"linked_session_id,omitempty"`
	DisplayMessage     string            `json:"display_message,omitempty"`
	EvidenceAttached   bool              `json:"evidence_attached,omitempty"`
	Version            int64             `json:"version"`
	CreatedUnix        int64             `json:"created_unix"`
	UpdatedUnix        int64             `json:"updated_unix"`
}

// RedisSessionStore is the primary session store. Keys carry a TTL; retention
// and expiry are the store's concern, not the orchestrator's.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + ":" + id
}

func (s *RedisSessionStore) Create(ctx context.Context, session *models.PaymentSession) error {
	if session.SchemaRevision == 0 {
		session.SchemaRevision = models.SchemaRevisionCurrent
	}
	session.Version = 1

	encoded, err := encodeSession(session)
	if err != nil {
		return err
	}

	ok, err := s.rdb.SetNX(ctx, sessionKey(session.ID), encoded, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*models.PaymentSession, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeSession(data)
}

func (s *RedisSessionStore) Update(ctx context.Context, id string, mutate func(*models.PaymentSession) error) (*models.PaymentSession, error) {
	key := sessionKey(id)

	var updated *models.PaymentSession
	for i := 0; i < updateMaxRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrSessionNotFound
				}
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}

			session, err := decodeSession(data)
			if err != nil {
				return err
			}

			if err := mutate(session); err != nil {
				return err
			}
			session.Version++
			session.LastUpdatedTime = time.Now().UTC()

			encoded, err := encodeSession(session)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}
			updated = session
			return nil
		}, key)

		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue // lost the race, reread and retry
		}
		return nil, err
	}
	return nil, ErrConflict
}

func encodeSession(session *models.PaymentSession) ([]byte, error) {
	var payload []byte
	var err error

	switch session.SchemaRevision {
	case models.SchemaRevisionLegacy:
		payload, err = json.Marshal(toLegacyRecord(session))
	default:
		payload, err = json.Marshal(session)
	}
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	return json.Marshal(sessionEnvelope{Rev: session.SchemaRevision, Payload: payload})
}

func decodeSession(data []byte) (*models.PaymentSession, error) {
	var env sessionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode session envelope: %w", err)
	}

	switch env.Rev {
	case models.SchemaRevisionLegacy:
		var rec legacySessionRecord
		if err := json.Unmarshal(env.Payload, &rec); err != nil {
			return nil, fmt.Errorf("decode legacy session: %w", err)
		}
		return fromLegacyRecord(&rec), nil
	case models.SchemaRevisionCurrent:
		var session models.PaymentSession
		if err := json.Unmarshal(env.Payload, &session); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		session.SchemaRevision = models.SchemaRevisionCurrent
		return &session, nil
	default:
		return nil, fmt.Errorf("unknown session schema revision %d", env.Rev)
	}
}

func toLegacyRecord(s *models.PaymentSession) *legacySessionRecord {
	return &legacySessionRecord{
		SessionID:          s.ID,
		AccountID:          s.AccountID,
		PiID:               s.PaymentInstrumentID,
		RequestID:          s.RequestID,
		Partner:            s.Partner,
		Country:            s.Country,
		Language:           s.Language,
		AmountMinor:        int64(s.Amount * 100),
		Currency:           s.Currency,
		Scenario:           string(s.ChallengeScenario),
		ChallengeType:      string(s.ChallengeType),
		WindowSize:         string(s.ChallengeWindowSize),
		ChallengeRequired:  s.IsChallengeRequired,
		PiRequiresAuth:     s.PiRequiresAuthentication,
		Status:             string(s.ChallengeStatus),
		TransStatus:        string(s.TransactionStatus),
		TransStatusReason:  string(s.TransactionStatusReason),
		CancelIndicator:    s.ChallengeCancelIndicator,
		HasPreOrder:        s.HasPreOrder,
		IsMOTO:             s.IsMOTO,
		PurchaseOrderID:    s.PurchaseOrderID,
		TenantID:           s.TenantID,
		SuccessURL:         s.SuccessURL,
		FailureURL:         s.FailureURL,
		Signature:          s.Signature,
		FramePolicy:        string(s.FramePolicy),
		MethodURL:          s.MethodDataURL,
		MethodFields:       s.MethodDataFields,
		AcsURL:             s.AcsChallengeURL,
		AcsFields:          s.AcsChallengeFields,
		FingerprintTimeout: s.FingerprintTimedOut,
		BrowserInfo:        s.BrowserInfoCollected,
		LinkedSessionID:    s.LinkedSessionID,
		DisplayMessage:     s.UserDisplayMessage,
		EvidenceAttached:   s.EvidenceAttached,
		Version:            s.Version,
		CreatedUnix:        s.CreatedTime.Unix(),
		UpdatedUnix:        s.LastUpdatedTime.Unix(),
	}
}

func fromLegacyRecord(r *legacySessionRecord) *models.PaymentSession {
	return &models.PaymentSession{
		ID:                       r.SessionID,
		AccountID:                r.AccountID,
		PaymentInstrumentID:      r.PiID,
		RequestID:                r.RequestID,
		Partner:                  r.Partner,
		Country:                  r.Country,
		Language:                 r.Language,
		Amount:                   float64(r.AmountMinor) / 100,
		Currency:                 r.Currency,
		ChallengeScenario:        models.ChallengeScenario(r.Scenario),
		ChallengeType:            models.ChallengeType(r.ChallengeType),
		ChallengeWindowSize:      models.ChallengeWindowSize(r.WindowSize),
		IsChallengeRequired:      r.ChallengeRequired,
		PiRequiresAuthentication: r.PiRequiresAuth,
		ChallengeStatus:          models.ChallengeStatus(r.Status),
		TransactionStatus:        models.TransactionStatus(r.TransStatus),
		TransactionStatusReason:  models.TransactionStatusReason(r.TransStatusReason),
		ChallengeCancelIndicator: r.CancelIndicator,
		HasPreOrder:              r.HasPreOrder,
		IsMOTO:                   r.IsMOTO,
		PurchaseOrderID:          r.PurchaseOrderID,
		TenantID:                 r.TenantID,
		SuccessURL:               r.SuccessURL,
		FailureURL:               r.FailureURL,
		Signature:                r.Signature,
		FramePolicy:              models.FramePolicy(r.FramePolicy),
		MethodDataURL:            r.MethodURL,
		MethodDataFields:         r.MethodFields,
		AcsChallengeURL:          r.AcsURL,
		AcsChallengeFields:       r.AcsFields,
		FingerprintTimedOut:      r.FingerprintTimeout,
		BrowserInfoCollected:     r.BrowserInfo,
		LinkedSessionID:          r.LinkedSessionID,
		UserDisplayMessage:       r.DisplayMessage,
		EvidenceAttached:         r.EvidenceAttached,
		SchemaRevision:           models.SchemaRevisionLegacy,
		Version:                  r.Version,
		CreatedTime:              time.Unix(r.CreatedUnix, 0).UTC(),
		LastUpdatedTime:          time.Unix(r.UpdatedUnix, 0).UTC(),
	}
}
