package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"eseva/internal/auth/models"
	"eseva/internal/notification"
	id "eseva/pkg/domain"
	dErrors "eseva/pkg/domain-errors"
	audit "eseva/pkg/platform/audit"
	request "eseva/pkg/platform/middleware/request"
	"eseva/pkg/platform/sentinel"
	"eseva/pkg/requestcontext"
)

const (
	otpMin   = 100000
	otpRange = 900000
)

// GenerateOTP returns a six-digit code drawn uniformly from [100000, 999999].
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

// SendOTP issues a fresh login session for the mobile number and delivers
// its code by SMS. Earlier sessions for the same number remain usable.
func (s *Service) SendOTP(ctx context.Context, req *models.SendOTPRequest) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.SendOTP")
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		return err
	}

	code, err := s.generateOTP()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate otp")
	}

	now := requestcontext.Now(ctx)
	session := &models.LoginSession{
		ID:          id.NewLoginSessionID(),
		Mobile:      req.Mobile,
		OTP:         code,
		GeneratedAt: now,
		ExpiresAt:   now.Add(s.cfg.OTPTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create login session")
	}

	message := strings.ReplaceAll(s.cfg.MessageTemplate, "{otp}", code)
	result, err := s.gateway.SendSMS(ctx, req.Mobile, message)
	if err != nil {
		s.metrics.IncrementOTPSendFailures()
		attrs := []any{"error", err, "request_id", request.GetRequestID(ctx)}
		var perr *notification.ProviderError
		if errors.As(err, &perr) {
			attrs = append(attrs, "provider_code", string(perr.Result.ErrorCode), "attempts", perr.Attempts)
		}
		s.logger.ErrorContext(ctx, "failed to deliver otp", attrs...)
		s.emit(ctx, audit.Event{
			Action:  string(audit.EventSMSDispatchKO),
			Subject: req.Mobile,
			Reason:  string(result.ErrorCode),
		})
		return dErrors.Wrap(err, dErrors.CodeUpstream, "failed to send OTP")
	}

	s.metrics.IncrementOTPSent()
	s.logger.InfoContext(ctx, "otp sent",
		"session_id", session.ID.String(),
		"message_id", result.MessageID,
		"request_id", request.GetRequestID(ctx),
	)
	s.emit(ctx, audit.Event{Action: string(audit.EventOTPSent), Subject: req.Mobile})
	return nil
}

// VerifyOTP exchanges a valid code for a session token, creating the user on
// first login.
func (s *Service) VerifyOTP(ctx context.Context, req *models.VerifyOTPRequest) (result *models.VerifyResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.VerifyOTP")
	defer func() { endSpan(span, err) }()

	if err := req.Validate(); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidOTP) {
			s.metrics.ObserveOTPVerification("invalid")
		}
		return nil, err
	}

	now := requestcontext.Now(ctx)
	session, err := s.sessions.FindLatestUnverified(ctx, req.Mobile, req.OTP)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.rejectOTP(ctx, req.Mobile, "invalid", dErrors.New(dErrors.CodeInvalidOTP, "invalid otp"))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load login session")
	}
	if session.IsExpired(now) {
		return nil, s.rejectOTP(ctx, req.Mobile, "expired", dErrors.New(dErrors.CodeOTPExpired, "otp has expired"))
	}
	if err := s.sessions.MarkVerified(ctx, session.ID, now); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) || errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.rejectOTP(ctx, req.Mobile, "invalid", dErrors.New(dErrors.CodeInvalidOTP, "invalid otp"))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify login session")
	}

	user, err := s.findOrCreateUser(ctx, req.Mobile, now)
	if err != nil {
		return nil, err
	}

	issued, err := s.tokens.GenerateAccessToken(user.ID, user.Mobile, user.Role.String(), s.cfg.TokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.metrics.ObserveOTPVerification("success")
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventTokenIssued),
		UserID:  user.ID,
		Subject: user.Mobile,
	})
	return &models.VerifyResult{Token: issued.Token, ExpiresAt: issued.ExpiresAt, User: user}, nil
}

func (s *Service) rejectOTP(ctx context.Context, mobile, outcome string, err error) error {
	s.metrics.ObserveOTPVerification(outcome)
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventOTPRejected),
		Subject: mobile,
		Reason:  outcome,
	})
	return err
}

func (s *Service) findOrCreateUser(ctx context.Context, mobile string, now time.Time) (*models.User, error) {
	user, err := s.users.FindByMobile(ctx, mobile)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	user = &models.User{
		ID:        id.NewUserID(),
		Mobile:    mobile,
		Role:      models.RoleUser,
		CreatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
		}
		// Lost a first-login race; the other request created the account.
		existing, findErr := s.users.FindByMobile(ctx, mobile)
		if findErr != nil {
			return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load user")
		}
		return existing, nil
	}

	s.metrics.IncrementUsersCreated()
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventUserCreated),
		UserID:  user.ID,
		Subject: user.Mobile,
	})
	return user, nil
}
