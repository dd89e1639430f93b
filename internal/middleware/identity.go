package middleware

// identity.go holds the context keys shared by the middleware in this package
// and the handlers.  JWTAuth stores the resolved model.Actor under actorKey,
// together with the string forms used for rate-limit and cache keys.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-placement/internal/model"
)

const (
	actorKey  = "actor"
	userIDKey = "user_id"
	roleKey   = "role"
)

func setActor(c echo.Context, a model.Actor) {
	c.Set(actorKey, a)
	c.Set(userIDKey, strconv.FormatUint(a.ID, 10))
	c.Set(roleKey, a.Kind.Role())
}

// ActorFrom returns the actor resolved by JWTAuth.  ok is false on routes
// without authentication.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	a, ok := c.Get(actorKey).(model.Actor)
	if !ok || a.ID == 0 || a.Kind == model.ActorUnknown {
		return model.Actor{}, false
	}
	return a, true
}

// userID returns the caller's id as a string, or "guest" when the request
// is not authenticated.
func userID(c echo.Context) string {
	if v, ok := c.Get(userIDKey).(string); ok && v != "" {
		return v
	}
	return "guest"
}
