package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campus-placement/internal/handler"
	"github.com/iliyamo/campus-placement/internal/middleware"
	"github.com/iliyamo/campus-placement/internal/model"
)

// RegisterRoutes registers routes that do not require authentication: the
// liveness probe and a readiness probe that pings MySQL and Redis.
func RegisterRoutes(e *echo.Echo, db *sql.DB, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db, rdb))
}

// RegisterAuth registers the session endpoints.  Register, login, refresh
// and logout live under /v1/auth and need no access token; /v1/me does.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPlacements registers the placement endpoints under /v1.  Every
// route requires a valid JWT; rate limiting and caching run after JWTAuth
// so both can key on the caller.  Per-route role checks narrow access
// further, and the service enforces ownership.
func RegisterPlacements(e *echo.Echo, p *handler.PlacementHandler, jwtSecret string, mw ...echo.MiddlewareFunc) {
	chain := append([]echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret)}, mw...)
	g := e.Group("/v1", chain...)

	staff := middleware.RequireRole(model.ActorAdmin, model.ActorSuperAdmin)
	student := middleware.RequireRole(model.ActorStudent)
	super := middleware.RequireRole(model.ActorSuperAdmin)

	// ---- Listings ----
	// Static segments win over :id in Echo's router.
	g.GET("/placements/student", p.ListForStudent, student)
	g.GET("/placements/admin", p.ListForAdmin, staff)
	g.GET("/my-registrations", p.MyRegistrations, student)

	// ---- Lifecycle ----
	g.POST("/placements", p.Create, super)
	g.GET("/placements/:id", p.Details)
	g.PATCH("/placements/:id", p.SetPlacementStatus, staff)
	g.DELETE("/placements/:id", p.Delete, staff)
	g.POST("/placements/:id/admin", p.Delegate, super)
	g.POST("/placements/:id/updates", p.PostUpdate, staff)

	// ---- Registrations ----
	g.POST("/placements/:id/register", p.Register, student)
	g.POST("/placements/:id/status", p.SetStatus, staff)
	g.GET("/placements/:id/registrations", p.Registrations, staff)
	g.GET("/placements/:id/registrations/export", p.ExportRegistrations, staff)
}

// RegisterNotifications registers the caller's mailbox endpoints.
func RegisterNotifications(e *echo.Echo, n *handler.NotificationHandler, jwtSecret string, mw ...echo.MiddlewareFunc) {
	chain := append([]echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret)}, mw...)
	g := e.Group("/v1/notifications", chain...)
	g.GET("", n.List)
	g.PATCH("/:id/read", n.MarkRead)
}
