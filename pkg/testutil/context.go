package testutil

import (
	"net/http"

	"tunecast/internal/platform/middleware"
)

// WithUserID adds a user ID to the request context, simulating what the
// auth middleware does for authenticated requests.
func WithUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}
