package loginsession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"eseva/internal/auth/models"
	id "eseva/pkg/domain"
	"eseva/pkg/platform/sentinel"
)

type LoginSessionStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
}

func (s *LoginSessionStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
}

func TestLoginSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(LoginSessionStoreSuite))
}

func (s *LoginSessionStoreSuite) issue(mobile, otp string, at time.Time) *models.LoginSession {
	sess := &models.LoginSession{
		ID:          id.NewLoginSessionID(),
		Mobile:      mobile,
		OTP:         otp,
		GeneratedAt: at,
		ExpiresAt:   at.Add(5 * time.Minute),
	}
	s.Require().NoError(s.store.Create(context.Background(), sess))
	return sess
}

func (s *LoginSessionStoreSuite) TestFindLatestUnverifiedPicksNewest() {
	s.issue("9876543210", "123456", s.now)
	newer := s.issue("9876543210", "123456", s.now.Add(time.Minute))
	s.issue("9876543210", "654321", s.now.Add(2*time.Minute))

	found, err := s.store.FindLatestUnverified(context.Background(), "9876543210", "123456")
	s.Require().NoError(err)
	s.Equal(newer.ID, found.ID)
}

func (s *LoginSessionStoreSuite) TestVerifiedSessionsAreSkipped() {
	ctx := context.Background()
	sess := s.issue("9876543210", "123456", s.now)
	s.Require().NoError(s.store.MarkVerified(ctx, sess.ID, s.now.Add(time.Minute)))

	_, err := s.store.FindLatestUnverified(ctx, "9876543210", "123456")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LoginSessionStoreSuite) TestMarkVerifiedOnlyOnce() {
	ctx := context.Background()
	sess := s.issue("9876543210", "123456", s.now)

	s.Require().NoError(s.store.MarkVerified(ctx, sess.ID, s.now))
	err := s.store.MarkVerified(ctx, sess.ID, s.now)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	err = s.store.MarkVerified(ctx, id.NewLoginSessionID(), s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *LoginSessionStoreSuite) TestPriorSessionsUntouched() {
	ctx := context.Background()
	first := s.issue("9876543210", "111111", s.now)
	s.issue("9876543210", "222222", s.now.Add(time.Minute))

	sessions, err := s.store.ListByMobile(ctx, "9876543210")
	s.Require().NoError(err)
	s.Require().Len(sessions, 2)
	s.Equal(first.ID, sessions[0].ID)
	s.False(sessions[0].Verified)
}
