package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/peppermint/listing-service/internal/app/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const usersCollection = "users"

// UserDirectory resolves user ids to email addresses from the shared users
// collection maintained by the identity service.
type UserDirectory struct {
	collection *mongo.Collection
}

func NewUserDirectory(client *mongo.Client, cfg config.MongoDBConfig) *UserDirectory {
	return &UserDirectory{
		collection: client.Database(cfg.Database).Collection(usersCollection),
	}
}

func (d *UserDirectory) EmailFor(ctx context.Context, userID string) (string, error) {
	var doc struct {
		Email string `bson:"email"`
	}
	err := d.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", fmt.Errorf("no email on record for user %s", userID)
		}
		return "", fmt.Errorf("failed to look up user %s: %w", userID, err)
	}
	if doc.Email == "" {
		return "", fmt.Errorf("user %s has no email address", userID)
	}
	return doc.Email, nil
}
