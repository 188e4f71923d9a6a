// Package identity decides who a request is from, for rate limiting and for
// handlers that need the caller.
//
// A verified bearer token yields a user identity. Anything else falls back to
// the client address, and when even that is missing the literal "unknown".
// Verification problems never fail the request.
package identity

import "context"

type Kind string

const (
	KindUser    Kind = "user"
	KindAddress Kind = "ip"
)

// Unknown is the address used when a request carries no usable address.
const Unknown = "unknown"

type Identity struct {
	Kind  Kind
	Value string
}

func User(subject string) Identity { return Identity{Kind: KindUser, Value: subject} }
func Address(addr string) Identity { return Identity{Kind: KindAddress, Value: addr} }

// Key is the counter-space key. Users and addresses never collide.
func (id Identity) Key() string { return string(id.Kind) + ":" + id.Value }

func (id Identity) IsUser() bool { return id.Kind == KindUser && id.Value != "" }

func (id Identity) String() string { return id.Key() }

type ctxKey struct{}

func WithContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by the rate limit middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
