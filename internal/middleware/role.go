package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/iliyamo/campus-placement/internal/model"
)

// RequireRole returns a middleware function that enforces that the
// authenticated actor is one of the given kinds.  It assumes JWTAuth ran
// before it; a request without an actor gets 401, an actor of another kind
// gets 403.  Placement-level ownership is checked by the service, not here.
func RequireRole(kinds ...model.ActorKind) echo.MiddlewareFunc {
	allowed := make(map[model.ActorKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a, ok := ActorFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			if !allowed[a.Kind] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
