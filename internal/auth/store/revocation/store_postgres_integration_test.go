//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"eseva/internal/auth/store/revocation"
	"eseva/pkg/testutil/containers"
)

type PostgresTRLSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	now      time.Time
	trl      *revocation.PostgresTRL
}

func TestPostgresTRLSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresTRLSuite))
}

func (s *PostgresTRLSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.trl = revocation.NewPostgresTRL(s.postgres.DB, revocation.WithPostgresClock(func() time.Time { return s.now }))
}

func (s *PostgresTRLSuite) SetupTest() {
	s.now = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "token_revocations"))
}

func (s *PostgresTRLSuite) TestRevokeExpireAndPurge() {
	ctx := context.Background()
	s.Require().NoError(s.trl.RevokeToken(ctx, "jti-pg", time.Minute))

	revoked, err := s.trl.IsTokenRevoked(ctx, "jti-pg")
	s.Require().NoError(err)
	s.True(revoked)

	s.now = s.now.Add(2 * time.Minute)
	revoked, err = s.trl.IsRevoked(ctx, "jti-pg")
	s.Require().NoError(err)
	s.False(revoked)

	purged, err := s.trl.PurgeExpired(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), purged)
}
