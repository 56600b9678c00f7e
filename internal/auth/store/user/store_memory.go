package user

import (
	"context"
	"fmt"
	"sync"

	"eseva/internal/auth/models"
	id "eseva/pkg/domain"
	"eseva/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when the requested user does not exist
// - ErrConflict when a user with the same mobile already exists
// InMemoryUserStore keeps users in memory for tests/dev.
type InMemoryUserStore struct {
	mu       sync.RWMutex
	users    map[id.UserID]*models.User
	byMobile map[string]id.UserID
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:    make(map[id.UserID]*models.User),
		byMobile: make(map[string]id.UserID),
	}
}

func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byMobile[user.Mobile]; exists {
		return fmt.Errorf("user with mobile exists: %w", sentinel.ErrConflict)
	}
	u := *user
	s.users[user.ID] = &u
	s.byMobile[user.Mobile] = user.ID
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		out := *u
		return &out, nil
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryUserStore) FindByMobile(_ context.Context, mobile string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID, ok := s.byMobile[mobile]; ok {
		out := *s.users[userID]
		return &out, nil
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

// FindByIDs returns the users that exist among ids; unknown ids are skipped.
func (s *InMemoryUserStore) FindByIDs(_ context.Context, ids []id.UserID) (map[id.UserID]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.UserID]*models.User, len(ids))
	for _, userID := range ids {
		if u, ok := s.users[userID]; ok {
			cp := *u
			out[userID] = &cp
		}
	}
	return out, nil
}

// SetRole changes a user's role. Used by seeding and operator tooling.
func (s *InMemoryUserStore) SetRole(_ context.Context, userID id.UserID, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	u.Role = role
	return nil
}
