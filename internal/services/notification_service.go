package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sparktechagency/cleaning-service-backend-sub000/internal/models"
)

// Notifier is the fire-and-forget notification collaborator. Implementations
// must never let a delivery failure propagate into booking or payment state.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, kind models.NotificationType, title, message string, data models.BookingEventData)
}

type NotificationService struct {
	repo   models.NotificationRepo
	logger *slog.Logger
}

func NewNotificationService(repo models.NotificationRepo, logger *slog.Logger) *NotificationService {
	return &NotificationService{repo: repo, logger: logger}
}

func (ns *NotificationService) Notify(ctx context.Context, recipientID uuid.UUID, kind models.NotificationType, title, message string, data models.BookingEventData) {
	n := &models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Type:        kind,
		Title:       title,
		Message:     message,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
	if err := ns.repo.InsertNotification(ctx, n); err != nil {
		ns.logger.Error("failed to record notification",
			"recipient_id", recipientID,
			"type", kind,
			"error", err,
		)
	}
}

func (ns *NotificationService) ListForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Notification, error) {
	return ns.repo.ListNotificationsByRecipient(ctx, userID, offset, limit)
}
