package actor

import (
	"context"
	"errors"
)

type contextKey string

const (
	actorIDKey   contextKey = "actorId"
	actorRoleKey contextKey = "actorRole"
)

// Errors for actor context operations
var (
	ErrMissingActor = errors.New("actor identity is required")
	ErrMissingRole  = errors.New("actor role is required")
)

// Identity is the authenticated caller of an operation. The role is kept as a
// plain string here; the domain decides what each role may do.
type Identity struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// FromContext extracts the Identity from ctx
func FromContext(ctx context.Context) (*Identity, error) {
	id, _ := ctx.Value(actorIDKey).(string)
	if id == "" {
		return nil, ErrMissingActor
	}
	role, _ := ctx.Value(actorRoleKey).(string)
	if role == "" {
		return nil, ErrMissingRole
	}
	return &Identity{ID: id, Role: role}, nil
}

// ToContext adds the Identity to ctx
func ToContext(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, actorIDKey, identity.ID)
	return context.WithValue(ctx, actorRoleKey, identity.Role)
}
