package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/peppermint/listing-service/internal/app/config"
	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const notificationCollectionName = "notifications"

type notificationRepository struct {
	collection *mongo.Collection
}

func NewNotificationRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.NotificationRepository {
	return &notificationRepository{
		collection: client.Database(cfg.Database).Collection(notificationCollectionName),
	}
}

func (r *notificationRepository) Create(ctx context.Context, notification *entity.Notification) (string, error) {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if _, err := r.collection.InsertOne(ctx, notification); err != nil {
		return "", fmt.Errorf("failed to insert notification: %w", err)
	}
	return notification.ID, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, notificationID string) (*entity.Notification, error) {
	var notification entity.Notification
	err := r.collection.FindOne(ctx, bson.M{"_id": notificationID}).Decode(&notification)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification %s: %w", notificationID, err)
	}
	return &notification, nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, params repository.ListNotificationsParams) ([]entity.Notification, error) {
	filter := bson.M{"user_id": params.UserID}
	if params.UnreadOnly {
		filter["is_read"] = false
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if params.PageSize > 0 {
		if params.Page <= 0 {
			params.Page = 1
		}
		findOptions.SetSkip(int64((params.Page - 1) * params.PageSize))
		findOptions.SetLimit(int64(params.PageSize))
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for user %s: %w", params.UserID, err)
	}
	defer cursor.Close(ctx)

	var notifications []entity.Notification
	if err = cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications for user %s: %w", params.UserID, err)
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, notificationID, userID string) error {
	filter := bson.M{"_id": notificationID, "user_id": userID}
	update := bson.M{"$set": bson.M{"is_read": true}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", notificationID, err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
