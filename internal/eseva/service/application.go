package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"eseva/internal/eseva/models"
	id "eseva/pkg/domain"
	dErrors "eseva/pkg/domain-errors"
	audit "eseva/pkg/platform/audit"
	request "eseva/pkg/platform/middleware/request"
	"eseva/pkg/platform/sentinel"
	"eseva/pkg/requestcontext"
)

// Submit validates document completeness and persists the application with
// one document per staged file. Staged files are deleted on every failure.
func (s *Service) Submit(ctx context.Context, actor models.Actor, req *models.SubmitRequest) (app *models.Application, err error) {
	ctx, span := s.tracer.Start(ctx, "eseva.Submit")
	defer func() { endSpan(span, err) }()

	var staged []models.StagedFile
	if req != nil {
		staged = req.Files
	}
	defer func() {
		if err != nil {
			s.cleanup(ctx, staged)
		}
	}()

	if actor.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("service_type", req.ServiceType))

	missing, err := s.requirements.Missing(req.ServiceType, req.FieldNames())
	if errors.Is(err, sentinel.ErrNotFound) {
		s.metrics.IncrementSubmissionsRejected("unknown_service_type")
		return nil, dErrors.New(dErrors.CodeUnknownServiceType, "Invalid service type")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve required documents")
	}
	if len(missing) > 0 {
		s.metrics.IncrementSubmissionsRejected("missing_documents")
		s.logger.InfoContext(ctx, "application rejected: missing documents",
			"service_type", req.ServiceType,
			"missing", missing,
			"request_id", request.GetRequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeMissingDocuments, "Missing required documents").
			WithDetails("missingDocuments", missing)
	}

	now := requestcontext.Now(ctx)
	app = &models.Application{
		ID:               id.NewApplicationID(),
		UserID:           actor.UserID,
		ServiceType:      req.ServiceType,
		ApplicantName:    req.ApplicantName,
		ApplicantDetails: req.ApplicantDetails,
		Status:           models.StatusSubmitted,
		CreatedAt:        now,
	}
	docs := make([]*models.Document, 0, len(req.Files))
	for _, f := range req.Files {
		docs = append(docs, &models.Document{
			ID:            id.NewDocumentID(),
			ApplicationID: app.ID,
			Name:          f.FieldName,
			StoragePath:   f.Path,
			CreatedAt:     now,
		})
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateApplication(ctx, app); err != nil {
			return err
		}
		return s.store.CreateDocuments(ctx, docs)
	})
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save application")
	}

	s.metrics.IncrementApplicationsSubmitted(app.ServiceType)
	s.logger.InfoContext(ctx, "application submitted",
		"application_id", app.ID.String(),
		"service_type", app.ServiceType,
		"documents", len(docs),
		"request_id", request.GetRequestID(ctx),
	)
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventApplicationSubmitted),
		UserID:  actor.UserID,
		Subject: app.ID.String(),
		Reason:  app.ServiceType,
	})
	return app, nil
}

// List returns every application for staff, enriched with user names, and
// only the caller's own applications otherwise. Newest first.
func (s *Service) List(ctx context.Context, actor models.Actor) (apps []*models.Application, err error) {
	ctx, span := s.tracer.Start(ctx, "eseva.List")
	defer func() { endSpan(span, err) }()

	if actor.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsStaff() {
		apps, err = s.store.ListByUser(ctx, actor.UserID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
		}
		return apps, nil
	}

	apps, err = s.store.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	s.enrich(ctx, apps)
	return apps, nil
}

// enrich fills display names from the user directory. A lookup failure
// leaves the names empty rather than failing the listing.
func (s *Service) enrich(ctx context.Context, apps []*models.Application) {
	if s.users == nil || len(apps) == 0 {
		return
	}
	users, err := s.users.FindByIDs(ctx, models.UserIDs(apps))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve application users",
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
		return
	}
	name := func(userID id.UserID) string {
		if u, ok := users[userID]; ok {
			return u.Mobile
		}
		return ""
	}
	for _, app := range apps {
		app.SubmitterName = name(app.UserID)
		if app.AdminID != nil {
			app.AdminName = name(*app.AdminID)
		}
		if app.AgentID != nil {
			app.AgentName = name(*app.AgentID)
		}
	}
}

// Details returns an application with its documents. Citizens may only see
// their own applications.
func (s *Service) Details(ctx context.Context, actor models.Actor, appID id.ApplicationID) (details *models.ApplicationDetails, err error) {
	ctx, span := s.tracer.Start(ctx, "eseva.Details")
	defer func() { endSpan(span, err) }()

	if actor.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	app, err := s.store.FindByID(ctx, appID)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load application")
	}
	if !actor.IsStaff() && app.UserID != actor.UserID {
		return nil, dErrors.New(dErrors.CodeForbidden, "Access denied")
	}
	docs, err := s.store.ListDocuments(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load documents")
	}
	return &models.ApplicationDetails{Application: app, Documents: docs}, nil
}

// UpdateStatus sets any status from the closed set. Only admins may call it.
func (s *Service) UpdateStatus(ctx context.Context, actor models.Actor, appID id.ApplicationID, req *models.UpdateStatusRequest) (app *models.Application, err error) {
	ctx, span := s.tracer.Start(ctx, "eseva.UpdateStatus")
	defer func() { endSpan(span, err) }()

	if actor.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "Only admins can update application status")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	status := req.ParsedStatus()

	app, err = s.store.UpdateStatus(ctx, appID, status, actor.UserID, req.Remarks)
	if err != nil {
		return nil, translateStoreErr(err, "failed to update application status")
	}

	s.metrics.IncrementStatusTransition(string(status))
	s.logger.InfoContext(ctx, "application status updated",
		"application_id", appID.String(),
		"status", string(status),
		"request_id", request.GetRequestID(ctx),
	)
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventApplicationStatusUpdated),
		UserID:   app.UserID,
		Subject:  appID.String(),
		Decision: string(status),
		Reason:   req.Remarks,
		ActorID:  actor.UserID.String(),
	})
	return app, nil
}

// Process marks an application Processed on behalf of an agent or admin.
// Processing an already processed application overwrites the agent fields.
func (s *Service) Process(ctx context.Context, actor models.Actor, appID id.ApplicationID, req *models.ProcessRequest) (app *models.Application, err error) {
	ctx, span := s.tracer.Start(ctx, "eseva.Process")
	defer func() { endSpan(span, err) }()

	if actor.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsStaff() {
		return nil, dErrors.New(dErrors.CodeForbidden, "Only agents or admins can process applications")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	app, err = s.store.MarkProcessed(ctx, appID, actor.UserID, req.Remarks, requestcontext.Now(ctx))
	if err != nil {
		return nil, translateStoreErr(err, "failed to process application")
	}

	s.metrics.IncrementStatusTransition(string(models.StatusProcessed))
	s.logger.InfoContext(ctx, "application processed",
		"application_id", appID.String(),
		"request_id", request.GetRequestID(ctx),
	)
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventApplicationProcessed),
		UserID:   app.UserID,
		Subject:  appID.String(),
		Decision: string(models.StatusProcessed),
		Reason:   req.Remarks,
		ActorID:  actor.UserID.String(),
	})
	return app, nil
}

// Requirements returns the full service type to document matrix.
func (s *Service) Requirements() map[string][]string {
	return s.requirements.All()
}

func translateStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "Application not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
