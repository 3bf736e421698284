package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/peppermint/listing-service/internal/app/config"
	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const offerCollectionName = "offers"

type offerRepository struct {
	collection *mongo.Collection
}

func NewOfferRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.OfferRepository {
	return &offerRepository{
		collection: client.Database(cfg.Database).Collection(offerCollectionName),
	}
}

func (r *offerRepository) Create(ctx context.Context, offer *entity.Offer) (string, error) {
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	if _, err := r.collection.InsertOne(ctx, offer); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", repository.ErrAlreadyExists
		}
		return "", fmt.Errorf("failed to insert offer: %w", err)
	}
	return offer.ID, nil
}

func (r *offerRepository) GetByID(ctx context.Context, offerID string) (*entity.Offer, error) {
	var offer entity.Offer
	err := r.collection.FindOne(ctx, bson.M{"_id": offerID}).Decode(&offer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get offer %s: %w", offerID, err)
	}
	return &offer, nil
}

func (r *offerRepository) FindOpenByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*entity.Offer, error) {
	filter := bson.M{
		"listing_id": listingID,
		"buyer_id":   buyerID,
		"status":     bson.M{"$in": entity.OpenOfferStatuses},
	}

	var offer entity.Offer
	err := r.collection.FindOne(ctx, filter).Decode(&offer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find open offer on %s by %s: %w", listingID, buyerID, err)
	}
	return &offer, nil
}

func (r *offerRepository) ListByListing(ctx context.Context, listingID string, statuses []entity.OfferStatus) ([]entity.Offer, error) {
	filter := bson.M{"listing_id": listingID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list offers for listing %s: %w", listingID, err)
	}
	defer cursor.Close(ctx)

	var offers []entity.Offer
	if err = cursor.All(ctx, &offers); err != nil {
		return nil, fmt.Errorf("failed to decode offers for listing %s: %w", listingID, err)
	}
	return offers, nil
}

func (r *offerRepository) UpdateStatus(ctx context.Context, params repository.UpdateOfferStatusParams) error {
	filter := bson.M{
		"_id":     params.OfferID,
		"version": params.Version,
	}

	set := bson.M{
		"status":     params.Status,
		"updated_at": params.UpdatedAt,
	}
	if params.SetAmount {
		set["amount"] = params.Amount
	}

	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update offer status for %s: %w", params.OfferID, err)
	}

	if result.MatchedCount == 0 {
		var existing entity.Offer
		errFind := r.collection.FindOne(ctx, bson.M{"_id": params.OfferID}).Decode(&existing)
		if errors.Is(errFind, mongo.ErrNoDocuments) {
			return repository.ErrNotFound
		}
		if errFind == nil && existing.Version != params.Version {
			return repository.ErrOptimisticLock
		}
		return repository.ErrUpdateFailed
	}
	return nil
}

// UpdateStatusByListing is the cascade write: one conditional UpdateMany so
// sibling rejection (or withdraw-on-purge) is a single logical unit.
func (r *offerRepository) UpdateStatusByListing(ctx context.Context, listingID string, from []entity.OfferStatus, to entity.OfferStatus, excludeID string, updatedAt time.Time) (int64, error) {
	filter := bson.M{
		"listing_id": listingID,
		"status":     bson.M{"$in": from},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}

	update := bson.M{
		"$set": bson.M{
			"status":     to,
			"updated_at": updatedAt,
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to cascade offer status on listing %s: %w", listingID, err)
	}
	return result.ModifiedCount, nil
}
