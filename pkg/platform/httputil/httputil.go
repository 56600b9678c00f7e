// Package httputil centralizes JSON encoding of responses and domain-error
// translation so every handler produces the same envelopes.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "eseva/pkg/domain-errors"
)

// Validatable is implemented by request bodies that normalize and check themselves.
type Validatable interface {
	Validate() error
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorBody builds the error envelope for err. Internal error descriptions are
// only exposed when exposeInternal is set (non-production environments).
func ErrorBody(err error, exposeInternal bool) (int, map[string]any) {
	status := http.StatusInternalServerError
	code := dErrors.CodeInternal
	body := map[string]any{}

	de, ok := dErrors.As(err)
	if ok {
		status = dErrors.ToHTTPStatus(de.Code)
		code = de.Code
	}
	body["error"] = string(code)

	switch {
	case ok && status < http.StatusInternalServerError:
		body["error_description"] = de.Message
		for k, v := range de.Details {
			body[k] = v
		}
	case ok && code == dErrors.CodeUpstream:
		body["error_description"] = de.Message
		if exposeInternal && de.Err != nil {
			body["detail"] = de.Err.Error()
		}
	case exposeInternal && err != nil:
		body["error_description"] = err.Error()
	}
	return status, body
}

// WriteError translates err into the standard `{error, error_description}` envelope.
func WriteError(w http.ResponseWriter, err error) {
	status, body := ErrorBody(err, false)
	WriteJSON(w, status, body)
}

// WriteErrorVerbose is WriteError with internal details exposed.
func WriteErrorVerbose(w http.ResponseWriter, err error) {
	status, body := ErrorBody(err, true)
	WriteJSON(w, status, body)
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method.
// On failure it writes the error response and returns ok=false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if err := PT(&req).Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}
