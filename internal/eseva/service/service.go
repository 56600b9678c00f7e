package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	authmodels "eseva/internal/auth/models"
	"eseva/internal/eseva/models"
	"eseva/internal/platform/metrics"
	id "eseva/pkg/domain"
	audit "eseva/pkg/platform/audit"
	request "eseva/pkg/platform/middleware/request"
)

// Store persists applications and their documents. Writes made with the
// context passed to fn are committed or rolled back together.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateApplication(ctx context.Context, app *models.Application) error
	CreateDocuments(ctx context.Context, docs []*models.Document) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	ListAll(ctx context.Context) ([]*models.Application, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Application, error)
	UpdateStatus(ctx context.Context, appID id.ApplicationID, status models.Status, adminID id.UserID, remarks string) (*models.Application, error)
	MarkProcessed(ctx context.Context, appID id.ApplicationID, agentID id.UserID, remarks string, at time.Time) (*models.Application, error)
	ListDocuments(ctx context.Context, appID id.ApplicationID) ([]*models.Document, error)
}

type Requirements interface {
	Missing(serviceType string, provided []string) ([]string, error)
	All() map[string][]string
}

// FileCleaner removes staged uploads that will not be attached to an application.
type FileCleaner interface {
	DeleteAll(ctx context.Context, files []models.StagedFile) error
}

// UserDirectory resolves user ids to users for listing enrichment.
type UserDirectory interface {
	FindByIDs(ctx context.Context, ids []id.UserID) (map[id.UserID]*authmodels.User, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service implements application submission and the staff workflow around it.
type Service struct {
	store          Store
	requirements   Requirements
	files          FileCleaner
	users          UserDirectory
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
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

// WithUserDirectory enables submitter, admin and agent names in staff listings.
func WithUserDirectory(users UserDirectory) Option {
	return func(s *Service) { s.users = users }
}

func New(store Store, requirements Requirements, files FileCleaner, opts ...Option) *Service {
	s := &Service{
		store:        store,
		requirements: requirements,
		files:        files,
		logger:       slog.Default(),
		tracer:       otel.Tracer("eseva/internal/eseva/service"),
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

// cleanup deletes staged uploads after a failed submission. Failures are
// logged; the original error is what the caller sees.
func (s *Service) cleanup(ctx context.Context, files []models.StagedFile) {
	if len(files) == 0 || s.files == nil {
		return
	}
	if err := s.files.DeleteAll(context.WithoutCancel(ctx), files); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete staged uploads",
			"error", err,
			"files", len(files),
			"request_id", request.GetRequestID(ctx),
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
