package nats

import (
	"context"
	"fmt"

	"github.com/peppermint/listing-service/internal/domain/entity"
)

const notificationSubjectPrefix = "notification.created."

// NotificationChannel pushes persisted notifications onto the message bus so
// real-time consumers (socket gateway, push workers) can pick them up.
// Delivery here is best-effort; the dispatcher retries failures.
type NotificationChannel struct {
	publisher MessagePublisher
}

func NewNotificationChannel(publisher MessagePublisher) *NotificationChannel {
	return &NotificationChannel{publisher: publisher}
}

func (c *NotificationChannel) Name() string {
	return "nats"
}

func (c *NotificationChannel) Deliver(ctx context.Context, notification *entity.Notification) error {
	subject := notificationSubjectPrefix + string(notification.Kind)
	if err := c.publisher.Publish(ctx, subject, notification); err != nil {
		return fmt.Errorf("failed to deliver notification %s over NATS: %w", notification.ID, err)
	}
	return nil
}
