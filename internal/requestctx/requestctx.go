// Package requestctx carries per-request values (identity, trace ids) through
// context.Context instead of mutable globals. Nothing here outlives a request.
package requestctx

import (
	"context"

	"github.com/notify-gov/admin-portal/organizations"
	"github.com/notify-gov/admin-portal/services"
	"github.com/notify-gov/admin-portal/users"
)

type contextKey int

const (
	identityKey contextKey = iota
	traceKey
)

// Identity is the resolved caller for one request: the signed-in user plus
// the current service / organization picked out by the URL or session.
type Identity struct {
	User         *users.User
	Service      *services.Service
	Organization *organizations.Organization
}

// Authenticated reports whether a signed-in user is attached.
func (id *Identity) Authenticated() bool {
	return id != nil && id.User != nil
}

// PlatformAdmin reports whether the attached user has the platform-wide
// bypass.
func (id *Identity) PlatformAdmin() bool {
	return id != nil && id.User != nil && id.User.PlatformAdmin
}

// WithIdentity attaches the resolved identity to the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFrom returns the identity attached to ctx, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey).(*Identity)
	return identity
}

// Trace holds the zipkin ids propagated to upstream calls.
type Trace struct {
	TraceID string
	SpanID  string
}

// WithTrace attaches trace ids to the context.
func WithTrace(ctx context.Context, trace Trace) context.Context {
	return context.WithValue(ctx, traceKey, trace)
}

// TraceFrom returns the trace ids attached to ctx, zero when absent.
func TraceFrom(ctx context.Context) Trace {
	trace, _ := ctx.Value(traceKey).(Trace)
	return trace
}
