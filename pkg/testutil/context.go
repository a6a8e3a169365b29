package testutil

import (
	"net/http"

	"nexus/pkg/platform/middleware/request"
	"nexus/pkg/requestcontext"
)

// WithCallerID adds a caller identity to the request context.
// This simulates what the CallerID middleware does for forwarded requests.
func WithCallerID(req *http.Request, callerID string) *http.Request {
	return req.WithContext(requestcontext.WithCallerID(req.Context(), callerID))
}

// WithCallerHeader sets the forwarded caller header, for tests that run the
// full middleware chain.
func WithCallerHeader(req *http.Request, callerID string) *http.Request {
	req.Header.Set(request.HeaderCallerID, callerID)
	return req
}

// WithRequestID adds a correlation id to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
