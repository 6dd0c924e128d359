// internal/repository/postgres_store.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"challenge-orchestrator/internal/models"
)

// Sessions table. The record body is stored as JSONB in the revision shape
// named by schema_rev; the version column carries the optimistic-concurrency
// counter.
const SessionSchema = `
CREATE TABLE IF NOT EXISTS payment_sessions (
    id VARCHAR(36) PRIMARY KEY,
    schema_rev SMALLINT NOT NULL,
    version BIGINT NOT NULL,
    record JSONB NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);
`

// PostgresSessionStore is the pre-migration session store, kept so sessions
// begun before the Redis cutover still complete. Same SessionStore contract,
// compare-and-swap on the version column instead of WATCH.
type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

func (s *PostgresSessionStore) Create(ctx context.Context, session *models.PaymentSession) error {
	if session.SchemaRevision == 0 {
		session.SchemaRevision = models.SchemaRevisionCurrent
	}
	session.Version = 1

	record, err := marshalRecord(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payment_sessions (id, schema_rev, version, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		session.ID,
		int(session.SchemaRevision),
		session.Version,
		record,
		session.CreatedTime,
		session.LastUpdatedTime,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionExists
	}
	return nil
}

func (s *PostgresSessionStore) Get(ctx context.Context, id string) (*models.PaymentSession, error) {
	query := `SELECT schema_rev, version, record FROM payment_sessions WHERE id = $1`

	var rev int
	var version int64
	var record []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&rev, &version, &record)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	session, err := unmarshalRecord(models.SchemaRevision(rev), record)
	if err != nil {
		return nil, err
	}
	session.Version = version
	return session, nil
}

func (s *PostgresSessionStore) Update(ctx context.Context, id string, mutate func(*models.PaymentSession) error) (*models.PaymentSession, error) {
	for i := 0; i < updateMaxRetries; i++ {
		session, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		expectedVersion := session.Version
		if err := mutate(session); err != nil {
			return nil, err
		}
		session.Version = expectedVersion + 1
		session.LastUpdatedTime = time.Now().UTC()

		record, err := marshalRecord(session)
		if err != nil {
			return nil, err
		}

		query := `
			UPDATE payment_sessions
			SET version = $1, record = $2, updated_at = $3
			WHERE id = $4 AND version = $5
		`
		res, err := s.db.ExecContext(ctx, query,
			session.Version,
			record,
			session.LastUpdatedTime,
			id,
			expectedVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return session, nil
		}
		// lost the race, reread and retry
	}
	return nil, ErrConflict
}

func marshalRecord(session *models.PaymentSession) ([]byte, error) {
	if session.SchemaRevision == models.SchemaRevisionLegacy {
		return json.Marshal(toLegacyRecord(session))
	}
	return json.Marshal(session)
}

func unmarshalRecord(rev models.SchemaRevision, record []byte) (*models.PaymentSession, error) {
	switch rev {
	case models.SchemaRevisionLegacy:
		var legacy legacySessionRecord
		if err := json.Unmarshal(record, &legacy); err != nil {
			return nil, fmt.Errorf("decode legacy session: %w", err)
		}
		return fromLegacyRecord(&legacy), nil
	case models.SchemaRevisionCurrent:
		var session models.PaymentSession
		if err := json.Unmarshal(record, &session); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		session.SchemaRevision = models.SchemaRevisionCurrent
		return &session, nil
	default:
		return nil, fmt.Errorf("unknown session schema revision %d", rev)
	}
}
