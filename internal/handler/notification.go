package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/campus-placement/internal/middleware"
	"github.com/iliyamo/campus-placement/internal/model"
	"github.com/iliyamo/campus-placement/internal/repository"
)

// NotificationStore is the mailbox read side.
type NotificationStore interface {
	ListByUser(ctx context.Context, userID uint64, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, userID uint64) error
}

type NotificationHandler struct {
	Store NotificationStore
	Log   *zap.Logger
}

func NewNotificationHandler(store NotificationStore, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{Store: store, Log: log}
}

// List handles GET /v1/notifications?limit=N and returns the caller's
// mailbox, newest first.
func (h *NotificationHandler) List(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be between 1 and 200"})
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	list, err := h.Store.ListByUser(ctx, actor.ID, limit)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// MarkRead handles PATCH /v1/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "notification id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Store.MarkRead(ctx, id, actor.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "notification not found"})
		}
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
