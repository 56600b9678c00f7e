package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Requirements,FileCleaner,UserDirectory,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	authmodels "eseva/internal/auth/models"
	"eseva/internal/eseva/models"
	"eseva/internal/eseva/service/mocks"
	"eseva/internal/eseva/store"
	"eseva/internal/platform/metrics"
	"eseva/internal/requirements"
	id "eseva/pkg/domain"
	dErrors "eseva/pkg/domain-errors"
	audit "eseva/pkg/platform/audit"
	"eseva/pkg/platform/sentinel"
	"eseva/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockStore
	files   *mocks.MockFileCleaner
	users   *mocks.MockUserDirectory
	audit   *mocks.MockAuditPublisher
	metrics *metrics.Metrics
	service *Service
	now     time.Time
	ctx     context.Context

	citizen models.Actor
	agent   models.Actor
	admin   models.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.files = mocks.NewMockFileCleaner(s.ctrl)
	s.users = mocks.NewMockUserDirectory(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.citizen = models.Actor{UserID: id.NewUserID(), Mobile: "9000000001", Role: authmodels.RoleUser}
	s.agent = models.Actor{UserID: id.NewUserID(), Mobile: "9000000002", Role: authmodels.RoleAgent}
	s.admin = models.Actor{UserID: id.NewUserID(), Mobile: "9000000003", Role: authmodels.RoleAdmin}

	s.service = New(s.store, requirements.NewRegistry(), s.files,
		WithAuditPublisher(s.audit),
		WithUserDirectory(s.users),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *ServiceSuite) expectTx() {
	s.store.EXPECT().RunInTx(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) })
}

func birthCertificateFiles(fields ...string) []models.StagedFile {
	if len(fields) == 0 {
		fields = []string{"hospital_birth_report", "parents_aadhar_card", "address_proof"}
	}
	files := make([]models.StagedFile, 0, len(fields))
	for _, f := range fields {
		files = append(files, models.StagedFile{FieldName: f, OriginalName: f + ".pdf", Path: "/uploads/" + f + ".pdf", Size: 10})
	}
	return files
}

func (s *ServiceSuite) TestSubmit() {
	s.Run("complete birth certificate application is persisted with its documents", func() {
		files := birthCertificateFiles()
		var createdApp *models.Application
		var createdDocs []*models.Document
		s.expectTx()
		s.store.EXPECT().CreateApplication(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, app *models.Application) error {
				createdApp = app
				return nil
			})
		s.store.EXPECT().CreateDocuments(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, docs []*models.Document) error {
				createdDocs = docs
				return nil
			})
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Event) error {
				s.Equal(string(audit.EventApplicationSubmitted), e.Action)
				s.Equal(s.citizen.UserID, e.UserID)
				return nil
			})

		app, err := s.service.Submit(s.ctx, s.citizen, &models.SubmitRequest{
			ServiceType:      "Birth_Certificate",
			ApplicantName:    "  Asha  ",
			ApplicantDetails: map[string]any{"dob": "2024-01-01"},
			Files:            files,
		})
		s.Require().NoError(err)
		s.Require().NotNil(createdApp)
		s.Equal(app.ID, createdApp.ID)
		s.Equal(models.StatusSubmitted, createdApp.Status)
		s.Equal("Asha", createdApp.ApplicantName)
		s.Equal(s.citizen.UserID, createdApp.UserID)
		s.Equal(s.now, createdApp.CreatedAt)
		s.Require().Len(createdDocs, 3)
		for i, doc := range createdDocs {
			s.Equal(app.ID, doc.ApplicationID)
			s.Equal(files[i].FieldName, doc.Name)
			s.Equal(files[i].Path, doc.StoragePath)
		}
		s.Equal(1.0, testutil.ToFloat64(s.metrics.ApplicationsSubmitted.WithLabelValues("Birth_Certificate")))
	})

	s.Run("missing documents are listed in registry order and uploads are deleted", func() {
		files := birthCertificateFiles("hospital_birth_report")
		s.files.EXPECT().DeleteAll(gomock.Any(), files).Return(nil)

		_, err := s.service.Submit(s.ctx, s.citizen, &models.SubmitRequest{
			ServiceType:   "Birth_Certificate",
			ApplicantName: "Asha",
			Files:         files,
		})
		s.Require().Error(err)
		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal(dErrors.CodeMissingDocuments, de.Code)
		s.Equal([]string{"parents_aadhar_card", "address_proof"}, de.Details["missingDocuments"])
	})

	s.Run("unknown service type is rejected and uploads are deleted", func() {
		files := birthCertificateFiles()
		s.files.EXPECT().DeleteAll(gomock.Any(), files).Return(nil)

		_, err := s.service.Submit(s.ctx, s.citizen, &models.SubmitRequest{
			ServiceType:   "Passport",
			ApplicantName: "Asha",
			Files:         files,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownServiceType))
	})

	s.Run("blank applicant name is a validation error", func() {
		files := birthCertificateFiles()
		s.files.EXPECT().DeleteAll(gomock.Any(), files).Return(nil)

		_, err := s.service.Submit(s.ctx, s.citizen, &models.SubmitRequest{
			ServiceType: "Birth_Certificate",
			Files:       files,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("store failure rolls back and deletes uploads", func() {
		files := birthCertificateFiles()
		s.expectTx()
		s.store.EXPECT().CreateApplication(gomock.Any(), gomock.Any()).Return(nil)
		s.store.EXPECT().CreateDocuments(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
		s.files.EXPECT().DeleteAll(gomock.Any(), files).Return(nil)

		_, err := s.service.Submit(s.ctx, s.citizen, &models.SubmitRequest{
			ServiceType:   "Birth_Certificate",
			ApplicantName: "Asha",
			Files:         files,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("cleanup failure does not mask the original error", func() {
		files := birthCertificateFiles("address_proof")
		s.files.EXPECT().DeleteAll(gomock.Any(), files).Return(errors.New("permission denied"))

		_, err := s.service.Submit(s.ctx, s.citizen, &models.SubmitRequest{
			ServiceType:   "Birth_Certificate",
			ApplicantName: "Asha",
			Files:         files,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeMissingDocuments))
	})

	s.Run("anonymous actor is unauthorized", func() {
		s.files.EXPECT().DeleteAll(gomock.Any(), gomock.Any()).Return(nil)
		_, err := s.service.Submit(s.ctx, models.Actor{}, &models.SubmitRequest{Files: birthCertificateFiles()})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestList() {
	s.Run("citizens see only their own applications", func() {
		own := []*models.Application{{ID: id.NewApplicationID(), UserID: s.citizen.UserID}}
		s.store.EXPECT().ListByUser(gomock.Any(), s.citizen.UserID).Return(own, nil)

		apps, err := s.service.List(s.ctx, s.citizen)
		s.Require().NoError(err)
		s.Equal(own, apps)
		s.Empty(apps[0].SubmitterName)
	})

	s.Run("staff see every application with user names", func() {
		agentID := s.agent.UserID
		all := []*models.Application{
			{ID: id.NewApplicationID(), UserID: s.citizen.UserID, AgentID: &agentID},
			{ID: id.NewApplicationID(), UserID: s.citizen.UserID},
		}
		s.store.EXPECT().ListAll(gomock.Any()).Return(all, nil)
		s.users.EXPECT().FindByIDs(gomock.Any(), gomock.Any()).Return(map[id.UserID]*authmodels.User{
			s.citizen.UserID: {ID: s.citizen.UserID, Mobile: s.citizen.Mobile},
			s.agent.UserID:   {ID: s.agent.UserID, Mobile: s.agent.Mobile},
		}, nil)

		apps, err := s.service.List(s.ctx, s.agent)
		s.Require().NoError(err)
		s.Require().Len(apps, 2)
		s.Equal(s.citizen.Mobile, apps[0].SubmitterName)
		s.Equal(s.agent.Mobile, apps[0].AgentName)
		s.Empty(apps[1].AgentName)
	})

	s.Run("enrichment failure still returns the listing", func() {
		all := []*models.Application{{ID: id.NewApplicationID(), UserID: s.citizen.UserID}}
		s.store.EXPECT().ListAll(gomock.Any()).Return(all, nil)
		s.users.EXPECT().FindByIDs(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

		apps, err := s.service.List(s.ctx, s.admin)
		s.Require().NoError(err)
		s.Len(apps, 1)
	})

	s.Run("store failure is internal", func() {
		s.store.EXPECT().ListByUser(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
		_, err := s.service.List(s.ctx, s.citizen)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestDetails() {
	appID := id.NewApplicationID()
	app := &models.Application{ID: appID, UserID: s.citizen.UserID}
	docs := []*models.Document{{ID: id.NewDocumentID(), ApplicationID: appID, Name: "address_proof"}}

	s.Run("owner sees application and documents", func() {
		s.store.EXPECT().FindByID(gomock.Any(), appID).Return(app, nil)
		s.store.EXPECT().ListDocuments(gomock.Any(), appID).Return(docs, nil)

		details, err := s.service.Details(s.ctx, s.citizen, appID)
		s.Require().NoError(err)
		s.Equal(appID, details.ID)
		s.Equal(docs, details.Documents)
	})

	s.Run("another citizen is forbidden", func() {
		other := models.Actor{UserID: id.NewUserID(), Role: authmodels.RoleUser}
		s.store.EXPECT().FindByID(gomock.Any(), appID).Return(app, nil)

		_, err := s.service.Details(s.ctx, other, appID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("staff may view any application", func() {
		s.store.EXPECT().FindByID(gomock.Any(), appID).Return(app, nil)
		s.store.EXPECT().ListDocuments(gomock.Any(), appID).Return(docs, nil)

		_, err := s.service.Details(s.ctx, s.agent, appID)
		s.NoError(err)
	})

	s.Run("unknown application is not found", func() {
		s.store.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Details(s.ctx, s.admin, id.NewApplicationID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestUpdateStatus() {
	appID := id.NewApplicationID()

	s.Run("admin sets any status", func() {
		updated := &models.Application{ID: appID, UserID: s.citizen.UserID, Status: models.StatusApproved}
		s.store.EXPECT().UpdateStatus(gomock.Any(), appID, models.StatusApproved, s.admin.UserID, "all good").Return(updated, nil)
		s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.Event) error {
				s.Equal(string(audit.EventApplicationStatusUpdated), e.Action)
				s.Equal("Approved", e.Decision)
				s.Equal(s.admin.UserID.String(), e.ActorID)
				return nil
			})

		app, err := s.service.UpdateStatus(s.ctx, s.admin, appID, &models.UpdateStatusRequest{Status: "approved", Remarks: " all good "})
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, app.Status)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.StatusTransitions.WithLabelValues("Approved")))
	})

	s.Run("agents cannot update status and nothing is written", func() {
		_, err := s.service.UpdateStatus(s.ctx, s.agent, appID, &models.UpdateStatusRequest{Status: "Approved"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("citizens cannot update status", func() {
		_, err := s.service.UpdateStatus(s.ctx, s.citizen, appID, &models.UpdateStatusRequest{Status: "Approved"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("status outside the closed set is rejected", func() {
		_, err := s.service.UpdateStatus(s.ctx, s.admin, appID, &models.UpdateStatusRequest{Status: "Archived"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown application is not found", func() {
		s.store.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, sentinel.ErrNotFound)
		_, err := s.service.UpdateStatus(s.ctx, s.admin, id.NewApplicationID(), &models.UpdateStatusRequest{Status: "Rejected"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestProcess() {
	appID := id.NewApplicationID()

	for _, actor := range []models.Actor{s.agent, s.admin} {
		s.Run(string(actor.Role)+" processes with the request time", func() {
			processed := &models.Application{ID: appID, UserID: s.citizen.UserID, Status: models.StatusProcessed}
			s.store.EXPECT().MarkProcessed(gomock.Any(), appID, actor.UserID, "verified", s.now).Return(processed, nil)
			s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

			app, err := s.service.Process(s.ctx, actor, appID, &models.ProcessRequest{Remarks: "verified"})
			s.Require().NoError(err)
			s.Equal(models.StatusProcessed, app.Status)
		})
	}

	s.Run("citizens cannot process", func() {
		_, err := s.service.Process(s.ctx, s.citizen, appID, &models.ProcessRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown application is not found", func() {
		s.store.EXPECT().MarkProcessed(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Process(s.ctx, s.agent, id.NewApplicationID(), &models.ProcessRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestRequirementLookupFailure() {
	reqs := mocks.NewMockRequirements(s.ctrl)
	svc := New(s.store, reqs, s.files, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	files := birthCertificateFiles()

	reqs.EXPECT().Missing("Birth_Certificate", gomock.Any()).Return(nil, errors.New("registry unavailable"))
	s.files.EXPECT().DeleteAll(gomock.Any(), files).Return(nil)

	_, err := svc.Submit(s.ctx, s.citizen, &models.SubmitRequest{ServiceType: "Birth_Certificate", ApplicantName: "Asha", Files: files})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestRequirements() {
	all := s.service.Requirements()
	s.Equal([]string{"hospital_birth_report", "parents_aadhar_card", "address_proof"}, all["Birth_Certificate"])
	s.Len(all, 6)
}

// The in-memory store exercises the real transaction path end to end.
func TestSubmitWithInMemoryStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	files := mocks.NewMockFileCleaner(ctrl)
	st := store.NewInMemoryStore()
	svc := New(st, requirements.NewRegistry(), files, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	citizen := models.Actor{UserID: id.NewUserID(), Role: authmodels.RoleUser}
	ctx := requestcontext.WithTime(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	app, err := svc.Submit(ctx, citizen, &models.SubmitRequest{
		ServiceType:   "Birth_Certificate",
		ApplicantName: "Asha",
		Files:         birthCertificateFiles(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	details, err := svc.Details(ctx, citizen, app.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Status != models.StatusSubmitted || len(details.Documents) != 3 {
		t.Fatalf("unexpected details: status=%s documents=%d", details.Status, len(details.Documents))
	}

	listed, err := svc.List(ctx, citizen)
	if err != nil || len(listed) != 1 {
		t.Fatalf("list: %v (%d)", err, len(listed))
	}
}
