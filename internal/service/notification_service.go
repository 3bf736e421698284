package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/repository"
)

type NotificationService interface {
	ListForUser(ctx context.Context, params repository.ListNotificationsParams) ([]entity.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID string) error
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func (s *notificationService) ListForUser(ctx context.Context, params repository.ListNotificationsParams) ([]entity.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnavailable, err)
	}
	return notifications, nil
}

func (s *notificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	if err := s.repo.MarkRead(ctx, notificationID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return entity.ErrNotFound
		}
		return fmt.Errorf("%w: %s", entity.ErrUnavailable, err)
	}
	return nil
}
