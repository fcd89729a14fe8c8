// Package middleware provides HTTP middleware for authentication,
// rate limiting, and request context handling.
package middleware

import (
	"context"
	"net/http"
)

// ContextKey is the type for context keys set by this package.
type ContextKey string

// Context keys.
const (
	// ContextKeyRequestID carries the request id assigned by RequestID.
	ContextKeyRequestID ContextKey = "request_id"
	// ContextKeyActor carries the authenticated actor name.
	ContextKeyActor ContextKey = "actor"
)

// GetRequestID returns the request id assigned to this request, or "".
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(ContextKeyRequestID).(string)
	return id
}

// GetActor returns the authenticated actor for this request, or "".
func GetActor(r *http.Request) string {
	actor, _ := r.Context().Value(ContextKeyActor).(string)
	return actor
}

// WithActor returns a copy of the request with the actor set. Exposed for
// handler tests.
func WithActor(r *http.Request, actor string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ContextKeyActor, actor))
}
