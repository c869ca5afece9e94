// Package identity models the acting principal for every engine operation.
// Authentication itself happens upstream (the auth service issues tokens and
// the gateway verifies them); this package only converts the verified
// principal into a typed Actor so role checks are never ad-hoc string
// comparisons.
package identity

import (
	"context"
	"strconv"

	"go.uber.org/fx"

	"github.com/unipro/procurement/pkg/errorbank"
)

// Role is the authoritative role vocabulary. Approval stages bind to these
// values; free-form role strings from the edge are parsed exactly once.
type Role string

const (
	RolePurchasing  Role = "purchasing"
	RoleCostControl Role = "cost_control"
	RoleGM          Role = "gm"
	RoleDirector    Role = "director"
	RoleFieldTeam   Role = "tim_lapangan"
)

// ParseRole converts a raw role string into a Role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePurchasing, RoleCostControl, RoleGM, RoleDirector, RoleFieldTeam:
		return Role(s), true
	}
	return "", false
}

// Actor is the resolved principal behind a request.
type Actor struct {
	ID   int64
	Role Role
}

// Credentials carries the raw principal attributes the edge layer extracted
// from a verified request.
type Credentials struct {
	ActorID string
	Role    string
}

// Resolver turns edge credentials into a typed Actor.
type Resolver interface {
	Resolve(ctx context.Context, creds Credentials) (Actor, error)
}

// Module provides the default resolver.
var Module = fx.Provide(NewHeaderResolver)

// HeaderResolver trusts gateway-injected identity attributes. The gateway has
// already verified the bearer token; the service only validates shape.
type HeaderResolver struct{}

// NewHeaderResolver constructs the default Resolver.
func NewHeaderResolver() Resolver {
	return HeaderResolver{}
}

// Resolve validates and types the raw principal attributes.
func (HeaderResolver) Resolve(_ context.Context, creds Credentials) (Actor, error) {
	if creds.ActorID == "" || creds.Role == "" {
		return Actor{}, errorbank.Unauthenticated("missing actor identity")
	}
	id, err := strconv.ParseInt(creds.ActorID, 10, 64)
	if err != nil || id <= 0 {
		return Actor{}, errorbank.Unauthenticated("invalid actor id", errorbank.WithCause(err))
	}
	role, ok := ParseRole(creds.Role)
	if !ok {
		return Actor{}, errorbank.Unauthenticated("unknown actor role")
	}
	return Actor{ID: id, Role: role}, nil
}

type contextKey struct{}

// WithActor stores the actor on the request context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFromContext retrieves the actor placed by the transport middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(Actor)
	return actor, ok
}
