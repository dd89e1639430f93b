package model

import "time"

// Notification is one entry in a user's mailbox (`notifications` table).
type Notification struct {
	ID        uint64    `json:"id"`
	UserID    uint64    `json:"user_id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
