// Package context carries per-request metadata through a context.Context.
package context

import (
	"context"
	"time"
)

type requestKey struct{}

// Request describes the API call a context belongs to.
type Request struct {
	ID        string
	Method    string
	Route     string
	RemoteIP  string
	UserID    string
	UserEmail string
	StartedAt time.Time
}

// WithRequest attaches a copy of r to ctx.
func WithRequest(ctx context.Context, r Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFrom returns the request attached to ctx, or the zero value.
func RequestFrom(ctx context.Context) Request {
	r, _ := ctx.Value(requestKey{}).(Request)
	return r
}

// WithUser records the authenticated caller on the request attached to ctx.
func WithUser(ctx context.Context, userID, email string) context.Context {
	r := RequestFrom(ctx)
	r.UserID = userID
	if email != "" {
		r.UserEmail = email
	}
	return WithRequest(ctx, r)
}

func GetRequestID(ctx context.Context) string {
	return RequestFrom(ctx).ID
}

func GetUserID(ctx context.Context) string {
	return RequestFrom(ctx).UserID
}

func GetUserEmail(ctx context.Context) string {
	return RequestFrom(ctx).UserEmail
}

// Fields returns the non-empty request values as log fields.
func Fields(ctx context.Context) map[string]any {
	r := RequestFrom(ctx)
	fields := map[string]any{}
	for k, v := range map[string]string{
		"request_id": r.ID,
		"method":     r.Method,
		"route":      r.Route,
		"remote_ip":  r.RemoteIP,
		"user_id":    r.UserID,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}
