package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"adlign-personalization-layer/internal/domain"
	"adlign-personalization-layer/internal/ports"
)

// SessionRepository stores OAuth install sessions keyed by state
type SessionRepository struct {
	kv ports.KVStore
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(kv ports.KVStore) *SessionRepository {
	return &SessionRepository{kv: kv}
}

// CreateSession saves a new OAuth session
func (r *SessionRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.kv.Put(ctx, BucketOAuthSessions, session.State, data); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// ConsumeSession deletes the session for state and returns it
func (r *SessionRepository) ConsumeSession(ctx context.Context, state string) (*domain.Session, error) {
	var session *domain.Session
	err := r.kv.Update(ctx, BucketOAuthSessions, state, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, nil
		}
		var s domain.Session
		if err := json.Unmarshal(current, &s); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		session = &s
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume session: %w", err)
	}
	return session, nil
}

// PurgeExpired removes sessions that expired at or before now
func (r *SessionRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	states, err := r.kv.Keys(ctx, BucketOAuthSessions)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	purged := 0
	for _, state := range states {
		expired := false
		err := r.kv.Update(ctx, BucketOAuthSessions, state, func(current []byte) ([]byte, error) {
			if current == nil {
				return nil, nil
			}
			var s domain.Session
			if err := json.Unmarshal(current, &s); err != nil || s.Expired(now) {
				expired = true
				return nil, nil
			}
			expired = false
			return current, nil
		})
		if err != nil {
			return purged, fmt.Errorf("failed to purge session: %w", err)
		}
		if expired {
			purged++
		}
	}
	return purged, nil
}

var _ ports.SessionRepository = (*SessionRepository)(nil)
