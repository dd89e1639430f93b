package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/campus-placement/internal/model"
)

// NotificationRepo stores per-user notifications.  Rows are append-only
// apart from the read flag.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a NotificationRepo bound to db.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Create inserts n and populates its ID.  CreatedAt defaults to now when zero.
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO notifications (user_id, message, is_read, created_at) VALUES (?, ?, ?, ?)",
		n.UserID, n.Message, n.Read, n.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = uint64(id)
	return nil
}

// Notify writes a message straight into the recipient's mailbox.  It lets the
// repository act as the notification sink when no broker is configured.
func (r *NotificationRepo) Notify(ctx context.Context, recipientID uint64, message string) error {
	return r.Create(ctx, &model.Notification{UserID: recipientID, Message: message})
}

// ListByUser returns up to limit notifications for userID, newest first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, user_id, message, is_read, created_at FROM notifications
	           WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags a notification as read.  ErrNotFound is returned when the
// id does not exist or belongs to another user.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID uint64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = ? AND user_id = ?", id, userID)
	return affectedOrNotFound(res, err)
}
