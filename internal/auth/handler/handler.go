package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"eseva/internal/auth/models"
	dErrors "eseva/pkg/domain-errors"
	"eseva/pkg/platform/httputil"
	authmw "eseva/pkg/platform/middleware/auth"
	request "eseva/pkg/platform/middleware/request"
)

// Service defines the login operations exposed over HTTP.
type Service interface {
	SendOTP(ctx context.Context, req *models.SendOTPRequest) error
	VerifyOTP(ctx context.Context, req *models.VerifyOTPRequest) (*models.VerifyResult, error)
	Logout(ctx context.Context, token string) error
}

// Handler serves the /auth routes.
type Handler struct {
	auth           Service
	logger         *slog.Logger
	exposeInternal bool
}

type Option func(*Handler)

// WithInternalErrors includes internal error details in responses. Never enable in production.
func WithInternalErrors() Option {
	return func(h *Handler) { h.exposeInternal = true }
}

func New(auth Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{auth: auth, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the public auth routes. Logout reads the bearer token
// itself so a stale token can still be logged out.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/send-otp", h.HandleSendOTP)
	r.Post("/auth/verify-otp", h.HandleVerifyOTP)
	r.Post("/auth/logout", h.HandleLogout)
}

type messageResponse struct {
	Message string `json:"message"`
}

type verifyResponse struct {
	Message   string       `json:"message"`
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (h *Handler) HandleSendOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SendOTPRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.auth.SendOTP(ctx, req); err != nil {
		h.writeError(ctx, w, err, "failed to send otp")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "OTP sent successfully"})
}

func (h *Handler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.VerifyOTPRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.auth.VerifyOTP(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err, "failed to verify otp")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{
		Message:   "Login successful",
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		User:      result.User,
	})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := authmw.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "token is required"), "logout without token")
		return
	}
	if err := h.auth.Logout(ctx, token); err != nil {
		h.writeError(ctx, w, err, "failed to logout")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	status, body := httputil.ErrorBody(err, h.exposeInternal)
	attrs := []any{"error", err, "request_id", request.GetRequestID(ctx)}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteJSON(w, status, body)
}
