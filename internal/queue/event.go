// Package queue defines message payloads exchanged over the message broker.
package queue

// NotificationQueue is the default durable queue carrying notification
// requests from the API to the mailbox writer.
const NotificationQueue = "notification.requested"

// NotificationRequestedEvent asks the consumer to append Message to the
// mailbox of RecipientID.
type NotificationRequestedEvent struct {
	RecipientID uint64 `json:"recipient_id"`
	Message     string `json:"message"`
	RequestedAt string `json:"requested_at"`
}
