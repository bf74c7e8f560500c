package models

import "time"

// Notification kinds emitted by the follow graph.
const (
	NotificationFollow        = "follow"
	NotificationFollowRequest = "follow_request"
	NotificationAccepted      = "follow_accepted"
)

// Notification represents a user notification (PostgreSQL)
type Notification struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Type        string    `json:"type" gorm:"size:30;index"` // follow, follow_request, follow_accepted
	ActorID     uint      `json:"actor_id" gorm:"index"`
	RecipientID uint      `json:"recipient_id" gorm:"index"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"is_read" gorm:"default:false;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}
