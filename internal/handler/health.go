package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"database/sql"
	"net/http" // net/http provides status codes and response helpers
	"time"

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
	"github.com/redis/go-redis/v9"
)

// Health is a simple liveness endpoint used by load balancers and
// monitoring systems.  It returns a plain text "ok".
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready reports whether the database (and Redis, when configured) answer a
// ping.  It returns 503 with the failing dependency otherwise.
func Ready(db *sql.DB, rdb *redis.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		checks := echo.Map{}
		ok := true
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = err.Error()
				ok = false
			} else {
				checks["database"] = "ok"
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = err.Error()
				ok = false
			} else {
				checks["redis"] = "ok"
			}
		}
		if !ok {
			return c.JSON(http.StatusServiceUnavailable, checks)
		}
		return c.JSON(http.StatusOK, checks)
	}
}
