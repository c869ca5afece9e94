package http

import (
	"github.com/labstack/echo/v4"

	"github.com/unipro/procurement/internal/identity"
	"github.com/unipro/procurement/internal/presentation/http/response"
)

const (
	actorIDHeader   = "X-Actor-Id"
	actorRoleHeader = "X-Actor-Role"
)

// NewActorMiddleware resolves the acting principal from gateway-injected
// headers and stores it on the request context. Requests without a valid
// principal never reach a handler.
func NewActorMiddleware(resolver identity.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			actor, err := resolver.Resolve(req.Context(), identity.Credentials{
				ActorID: req.Header.Get(actorIDHeader),
				Role:    req.Header.Get(actorRoleHeader),
			})
			if err != nil {
				return response.New(c).WithError(err).Build()
			}
			c.SetRequest(req.WithContext(identity.WithActor(req.Context(), actor)))
			return next(c)
		}
	}
}
