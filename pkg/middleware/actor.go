package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/actor"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/errors"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
)

// Actor headers set by the upstream gateway after authentication
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"

	ContextKeyActorID   = "actorId"
	ContextKeyActorRole = "actorRole"
)

// ActorAuthConfig holds configuration for the actor middleware
type ActorAuthConfig struct {
	// Roles lists the accepted role names; empty accepts any non-empty role
	Roles []string
}

// ActorAuth extracts the calling actor from headers and adds it to the request
// context. Requests without a known actor are rejected.
func ActorAuth(config *ActorAuthConfig) gin.HandlerFunc {
	allowed := make(map[string]bool)
	if config != nil {
		for _, r := range config.Roles {
			allowed[r] = true
		}
	}

	return func(c *gin.Context) {
		actorID := c.GetHeader(HeaderActorID)
		role := c.GetHeader(HeaderActorRole)

		if actorID == "" || role == "" {
			AbortWithAppError(c, errors.ErrUnauthorized("actor id and role headers are required"))
			return
		}
		if len(allowed) > 0 && !allowed[role] {
			AbortWithAppError(c, errors.ErrForbidden("unknown actor role").WithDetail("role", role))
			return
		}

		identity := &actor.Identity{ID: actorID, Role: role}
		ctx := actor.ToContext(c.Request.Context(), identity)
		ctx = logging.ContextWithActorID(ctx, actorID)
		c.Request = c.Request.WithContext(ctx)

		c.Set(ContextKeyActorID, actorID)
		c.Set(ContextKeyActorRole, role)

		c.Next()
	}
}

// RequireRoles rejects actors whose role is not listed
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		if !allowed[c.GetString(ContextKeyActorRole)] {
			AbortWithAppError(c, errors.ErrForbidden("role not permitted for this operation"))
			return
		}
		c.Next()
	}
}

// GetActor retrieves the actor identity from the Gin context
func GetActor(c *gin.Context) (*actor.Identity, bool) {
	identity, err := actor.FromContext(c.Request.Context())
	if err != nil {
		return nil, false
	}
	return identity, true
}
