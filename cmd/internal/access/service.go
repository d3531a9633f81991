package access

import (
	"context"
	"errors"
	"strings"
	"time"

	"apseq/cmd/identity/ids"
)

// Service implements the get-or-create/renew session contract.
type Service struct {
	cfg   Config
	store Store
}

// NewService constructs a Service.
func NewService(cfg Config, store Store) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	if cfg.TTL <= 0 || cfg.RenewWithin <= 0 || cfg.RenewWithin >= cfg.TTL {
		return nil, ErrInvalidInput
	}
	return &Service{cfg: cfg, store: store}, nil
}

// Config returns the service configuration (used by collaborators that grant
// sessions inside their own transactions).
func (s *Service) Config() Config { return s.cfg }

// Ensure returns the live session for (user, project), creating or renewing
// it as needed.
//
// No write happens while remaining validity is at or above the renewal
// threshold; below it (or past expiry, or with no session at all) the expiry
// becomes now + TTL.
func (s *Service) Ensure(ctx context.Context, userID, projectID string, now time.Time) (Session, error) {
	if s == nil || s.store == nil {
		return Session{}, ErrInvalidInput
	}
	userID = strings.TrimSpace(userID)
	projectID = strings.TrimSpace(projectID)
	if userID == "" || projectID == "" {
		return Session{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	existing, err := s.store.Get(ctx, userID, projectID)
	switch {
	case err == nil:
		if existing.ExpiresAt.Sub(now) >= s.cfg.RenewWithin {
			return existing, nil
		}
		existing.ExpiresAt = now.Add(s.cfg.TTL)
		return s.store.Put(ctx, existing)

	case errors.Is(err, ErrNotFound):
		id, idErr := ids.NewULID(now)
		if idErr != nil {
			return Session{}, idErr
		}
		return s.store.Put(ctx, Session{
			ID:        id,
			UserID:    userID,
			ProjectID: projectID,
			ExpiresAt: now.Add(s.cfg.TTL),
		})

	default:
		return Session{}, err
	}
}

// Current returns the stored session for (user, project), live or expired.
// ErrNotFound when none exists.
func (s *Service) Current(ctx context.Context, userID, projectID string) (Session, error) {
	if s == nil || s.store == nil {
		return Session{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	return s.store.Get(ctx, userID, projectID)
}

// HasAccess reports whether a live session exists for (user, project).
// It never writes; sensitive reads use it to decide whether to demand
// re-verification of the access key.
func (s *Service) HasAccess(ctx context.Context, userID, projectID string, now time.Time) (bool, error) {
	if s == nil || s.store == nil {
		return false, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sess, err := s.store.Get(ctx, userID, projectID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sess.Active(now), nil
}
