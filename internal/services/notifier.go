package services

import (
	"context"
	"log"

	"github.com/tanvirx/loopgram/backend/internal/models"
	"github.com/tanvirx/loopgram/backend/internal/repositories"
)

// Notifier emits follow-graph events to the notification collaborator.
// Emission is best-effort: a failure is logged and never propagated back
// into the graph mutation, which has already committed.
type Notifier interface {
	Emit(ctx context.Context, kind string, actor *models.User, recipientID uint)
}

type repoNotifier struct {
	notifications repositories.NotificationRepository
}

// NewRepoNotifier returns a Notifier backed by the notification store.
func NewRepoNotifier(notifications repositories.NotificationRepository) Notifier {
	return &repoNotifier{notifications: notifications}
}

func (n *repoNotifier) Emit(ctx context.Context, kind string, actor *models.User, recipientID uint) {
	var message string
	switch kind {
	case models.NotificationFollow:
		message = actor.DisplayName + " started following you"
	case models.NotificationFollowRequest:
		message = actor.DisplayName + " requested to follow you"
	case models.NotificationAccepted:
		message = actor.DisplayName + " accepted your follow request"
	default:
		message = actor.DisplayName
	}

	notif := &models.Notification{
		Type:        kind,
		ActorID:     actor.ID,
		RecipientID: recipientID,
		Message:     message,
	}
	if err := n.notifications.CreateNotification(ctx, notif); err != nil {
		log.Printf("notification emit failed (kind=%s recipient=%d): %v", kind, recipientID, err)
	}
}
