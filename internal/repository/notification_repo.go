package repository

import (
	"context"

	"github.com/peppermint/listing-service/internal/domain/entity"
)

type ListNotificationsParams struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}

type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) (string, error)
	GetByID(ctx context.Context, notificationID string) (*entity.Notification, error)
	ListByUser(ctx context.Context, params ListNotificationsParams) ([]entity.Notification, error)

	// MarkRead flips the IsRead flag, the only mutation a notification
	// permits.
	MarkRead(ctx context.Context, notificationID, userID string) error
}
