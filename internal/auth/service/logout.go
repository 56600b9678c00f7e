package service

import (
	"context"
	"strings"

	id "eseva/pkg/domain"
	dErrors "eseva/pkg/domain-errors"
	audit "eseva/pkg/platform/audit"
	request "eseva/pkg/platform/middleware/request"
)

// Logout revokes the token's jti for the rest of its lifetime. Tokens that
// no longer validate are already unusable, so logging them out succeeds
// without touching the revocation list.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Logout")
	defer func() { endSpan(span, err) }()

	token = strings.TrimSpace(token)
	if token == "" {
		return dErrors.New(dErrors.CodeBadRequest, "token is required")
	}

	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		s.logger.DebugContext(ctx, "logout with unusable token",
			"reason", err.Error(),
			"request_id", request.GetRequestID(ctx),
		)
		return nil
	}

	ttl := s.tokens.RemainingLifetime(claims)
	if ttl <= 0 {
		return nil
	}
	if err := s.trl.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}

	s.metrics.IncrementTokensRevoked()
	userID, _ := id.ParseUserID(claims.UserID)
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventTokenRevoked),
		UserID:  userID,
		Subject: claims.Mobile,
	})
	return nil
}
