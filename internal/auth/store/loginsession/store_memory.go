package loginsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eseva/internal/auth/models"
	id "eseva/pkg/domain"
	"eseva/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when no matching session exists
// - ErrAlreadyUsed when MarkVerified targets a session that is already verified
// InMemoryStore keeps login sessions in insertion order. Sessions are never purged.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions []*models.LoginSession
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.LoginSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions = append(s.sessions, &cp)
	return nil
}

// FindLatestUnverified returns the most recently generated unverified session
// for the (mobile, otp) pair, regardless of expiry.
func (s *InMemoryStore) FindLatestUnverified(_ context.Context, mobile, otp string) (*models.LoginSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.LoginSession
	for _, sess := range s.sessions {
		if sess.Verified || sess.Mobile != mobile || sess.OTP != otp {
			continue
		}
		if latest == nil || !sess.GeneratedAt.Before(latest.GeneratedAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("login session not found: %w", sentinel.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

// MarkVerified flips verified to true exactly once per session.
func (s *InMemoryStore) MarkVerified(_ context.Context, sessionID id.LoginSessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ID != sessionID {
			continue
		}
		if sess.Verified {
			return fmt.Errorf("login session already verified: %w", sentinel.ErrAlreadyUsed)
		}
		sess.MarkVerified(at)
		return nil
	}
	return fmt.Errorf("login session not found: %w", sentinel.ErrNotFound)
}

// ListByMobile returns every session issued to mobile, oldest first.
func (s *InMemoryStore) ListByMobile(_ context.Context, mobile string) ([]*models.LoginSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.LoginSession
	for _, sess := range s.sessions {
		if sess.Mobile == mobile {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}
