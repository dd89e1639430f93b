package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/campus-placement/internal/model"
	"github.com/iliyamo/campus-placement/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// resolves it into a model.Actor stored on the request context.  The provided
// secret must match the one used when issuing tokens.  Handlers read the
// caller with ActorFrom(c).
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header starts with "Bearer " followed by the JWT.
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			id, role, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			// Tokens carrying a role we do not know never resolve to an actor.
			kind, ok := model.KindFromRole(role)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			setActor(c, model.Actor{ID: id, Kind: kind})
			return next(c)
		}
	}
}
