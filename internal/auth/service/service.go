package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eseva/internal/auth/models"
	jwttoken "eseva/internal/jwt_token"
	"eseva/internal/notification"
	"eseva/internal/platform/metrics"
	id "eseva/pkg/domain"
	audit "eseva/pkg/platform/audit"
	request "eseva/pkg/platform/middleware/request"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByMobile(ctx context.Context, mobile string) (*models.User, error)
}

type LoginSessionStore interface {
	Create(ctx context.Context, session *models.LoginSession) error
	FindLatestUnverified(ctx context.Context, mobile, otp string) (*models.LoginSession, error)
	MarkVerified(ctx context.Context, sessionID id.LoginSessionID, at time.Time) error
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, mobile, role string, expiresIn time.Duration) (*jwttoken.IssuedToken, error)
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
	RemainingLifetime(claims *jwttoken.Claims) time.Duration
}

type TokenRevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const (
	DefaultOTPTTL          = 5 * time.Minute
	DefaultTokenTTL        = 7 * 24 * time.Hour
	DefaultMessageTemplate = "Your e-seva login OTP is {otp}. It is valid for 5 minutes."
)

// Config controls OTP and session token lifetimes.
type Config struct {
	OTPTTL          time.Duration
	TokenTTL        time.Duration
	MessageTemplate string
}

func (c *Config) applyDefaults() {
	if c.OTPTTL <= 0 {
		c.OTPTTL = DefaultOTPTTL
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	if c.MessageTemplate == "" {
		c.MessageTemplate = DefaultMessageTemplate
	}
}

// Service manages the OTP login lifecycle: issuing codes, exchanging them for
// session tokens and revoking tokens on logout.
type Service struct {
	users          UserStore
	sessions       LoginSessionStore
	gateway        notification.Gateway
	tokens         TokenIssuer
	trl            TokenRevocationList
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
	cfg            Config
	generateOTP    func() (string, error)
}

type Option func(*Service)

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOTPGenerator replaces the random code source. Tests only.
func WithOTPGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.generateOTP = gen
		}
	}
}

func New(
	users UserStore,
	sessions LoginSessionStore,
	gateway notification.Gateway,
	tokens TokenIssuer,
	trl TokenRevocationList,
	cfg Config,
	opts ...Option,
) *Service {
	cfg.applyDefaults()
	s := &Service{
		users:       users,
		sessions:    sessions,
		gateway:     gateway,
		tokens:      tokens,
		trl:         trl,
		cfg:         cfg,
		logger:      slog.Default(),
		tracer:      otel.Tracer("eseva/internal/auth/service"),
		generateOTP: GenerateOTP,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = request.GetRequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
			"request_id", event.RequestID,
		)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
