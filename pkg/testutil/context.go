package testutil

import (
	"net/http"

	id "eseva/pkg/domain"
	"eseva/pkg/requestcontext"
)

// WithActor attaches an authenticated actor to the request context, as the
// auth middleware would after validating a token.
func WithActor(req *http.Request, userID id.UserID, mobile, role string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), userID, mobile, role))
}
