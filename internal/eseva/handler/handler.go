package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	authmodels "eseva/internal/auth/models"
	"eseva/internal/eseva/models"
	id "eseva/pkg/domain"
	dErrors "eseva/pkg/domain-errors"
	"eseva/pkg/platform/httputil"
	request "eseva/pkg/platform/middleware/request"
	"eseva/pkg/requestcontext"
)

const (
	maxMultipartMemory = 32 << 20

	// DefaultMaxRequestBytes bounds an /eseva/apply body before any part is
	// spooled to disk.
	DefaultMaxRequestBytes = 48 << 20

	formFieldAllowance = 1 << 20
)

// MaxRequestBytes sizes the apply body cap for parts files of up to perFile
// bytes each plus the text fields.
func MaxRequestBytes(perFile int64, parts int) int64 {
	return formFieldAllowance + int64(parts)*perFile
}

// Service defines the application operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, actor models.Actor, req *models.SubmitRequest) (*models.Application, error)
	List(ctx context.Context, actor models.Actor) ([]*models.Application, error)
	Details(ctx context.Context, actor models.Actor, appID id.ApplicationID) (*models.ApplicationDetails, error)
	UpdateStatus(ctx context.Context, actor models.Actor, appID id.ApplicationID, req *models.UpdateStatusRequest) (*models.Application, error)
	Process(ctx context.Context, actor models.Actor, appID id.ApplicationID, req *models.ProcessRequest) (*models.Application, error)
	Requirements() map[string][]string
}

// Uploads stages multipart file parts before the service sees them.
type Uploads interface {
	Save(ctx context.Context, field, originalName string, r io.Reader) (*models.StagedFile, error)
	DeleteAll(ctx context.Context, files []models.StagedFile) error
}

// Handler serves the /eseva routes. Every route expects the auth middleware
// to have placed the actor in the request context.
type Handler struct {
	service         Service
	uploads         Uploads
	logger          *slog.Logger
	exposeInternal  bool
	maxRequestBytes int64
}

type Option func(*Handler)

// WithInternalErrors includes internal error details in responses. Never enable in production.
func WithInternalErrors() Option {
	return func(h *Handler) { h.exposeInternal = true }
}

// WithMaxRequestBytes caps the apply request body. Non-positive values keep the default.
func WithMaxRequestBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxRequestBytes = n
		}
	}
}

func New(service Service, uploads Uploads, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, uploads: uploads, logger: logger, maxRequestBytes: DefaultMaxRequestBytes}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/eseva/apply", h.HandleApply)
	r.Get("/eseva/list", h.HandleList)
	r.Get("/eseva/details/{id}", h.HandleDetails)
	r.Put("/eseva/update-status/{id}", h.HandleUpdateStatus)
	r.Put("/eseva/process/{id}", h.HandleProcess)
	r.Get("/eseva/requirements", h.HandleRequirements)
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

type submitData struct {
	ApplicationID id.ApplicationID `json:"applicationId"`
}

func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.WarnContext(ctx, "apply body exceeds limit",
				"limit_bytes", tooLarge.Limit,
				"request_id", request.GetRequestID(ctx),
			)
			h.writeError(ctx, w, dErrors.New(dErrors.CodeFileTooLarge, "request body too large"), "request body too large")
			return
		}
		h.logger.WarnContext(ctx, "invalid multipart form",
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart form"), "invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	staged, err := h.stageFiles(ctx, r.MultipartForm)
	if err != nil {
		h.discard(ctx, staged)
		h.writeError(ctx, w, err, "failed to stage uploads")
		return
	}

	details, err := models.ParseApplicantDetails(r.FormValue("applicant_details"))
	if err != nil {
		h.discard(ctx, staged)
		h.writeError(ctx, w, err, "invalid applicant details")
		return
	}

	app, err := h.service.Submit(ctx, actorFrom(ctx), &models.SubmitRequest{
		ServiceType:      r.FormValue("service_type"),
		ApplicantName:    r.FormValue("applicant_name"),
		ApplicantDetails: details,
		Files:            staged,
	})
	if err != nil {
		h.writeError(ctx, w, err, "failed to submit application")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "Application submitted successfully",
		Data:    submitData{ApplicationID: app.ID},
	})
}

// stageFiles saves every file part in field-name order. On error the files
// staged so far are returned so the caller can discard them.
func (h *Handler) stageFiles(ctx context.Context, form *multipart.Form) ([]models.StagedFile, error) {
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var staged []models.StagedFile
	for _, field := range fields {
		for _, fh := range form.File[field] {
			f, err := fh.Open()
			if err != nil {
				return staged, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file part")
			}
			sf, err := h.uploads.Save(ctx, field, fh.Filename, f)
			_ = f.Close()
			if err != nil {
				return staged, err
			}
			staged = append(staged, *sf)
		}
	}
	return staged, nil
}

func (h *Handler) discard(ctx context.Context, staged []models.StagedFile) {
	if len(staged) == 0 {
		return
	}
	if err := h.uploads.DeleteAll(context.WithoutCancel(ctx), staged); err != nil {
		h.logger.ErrorContext(ctx, "failed to delete staged uploads",
			"error", err,
			"request_id", request.GetRequestID(ctx),
		)
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apps, err := h.service.List(ctx, actorFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, err, "failed to list applications")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, envelope{Success: true, Data: apps})
}

func (h *Handler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(ctx, w, r)
	if !ok {
		return
	}
	details, err := h.service.Details(ctx, actorFrom(ctx), appID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load application")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, envelope{Success: true, Data: details})
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(ctx, w, r)
	if !ok {
		return
	}
	var req models.UpdateStatusRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	app, err := h.service.UpdateStatus(ctx, actorFrom(ctx), appID, &req)
	if err != nil {
		h.writeError(ctx, w, err, "failed to update application status")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Application status updated successfully",
		Data:    app,
	})
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(ctx, w, r)
	if !ok {
		return
	}
	var req models.ProcessRequest
	if !h.decode(ctx, w, r, &req) {
		return
	}
	app, err := h.service.Process(ctx, actorFrom(ctx), appID, &req)
	if err != nil {
		h.writeError(ctx, w, err, "failed to process application")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Application processed successfully",
		Data:    app,
	})
}

func (h *Handler) HandleRequirements(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, envelope{Success: true, Data: h.service.Requirements()})
}

// decode reads an optional JSON body. Validation is left to the service so
// that authorization is checked before input.
func (h *Handler) decode(ctx context.Context, w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.logger.WarnContext(ctx, "invalid request body",
		"error", err,
		"request_id", request.GetRequestID(ctx),
	)
	h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"), "invalid request body")
	return false
}

// applicationID parses the {id} route parameter. A malformed id cannot name
// an application, so it is reported as not found.
func (h *Handler) applicationID(ctx context.Context, w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeNotFound, "Application not found"), "malformed application id")
		return id.ApplicationID{}, false
	}
	return appID, true
}

func actorFrom(ctx context.Context) models.Actor {
	role, _ := authmodels.ParseRole(requestcontext.Role(ctx))
	return models.Actor{
		UserID: requestcontext.UserID(ctx),
		Mobile: requestcontext.Mobile(ctx),
		Role:   role,
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	status, body := httputil.ErrorBody(err, h.exposeInternal)
	body["success"] = false
	attrs := []any{"error", err, "request_id", request.GetRequestID(ctx)}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteJSON(w, status, body)
}
