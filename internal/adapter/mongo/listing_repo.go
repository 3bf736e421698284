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

const listingCollectionName = "listings"

type listingRepository struct {
	collection *mongo.Collection
}

func NewListingRepository(client *mongo.Client, cfg config.MongoDBConfig) repository.ListingRepository {
	return &listingRepository{
		collection: client.Database(cfg.Database).Collection(listingCollectionName),
	}
}

func (r *listingRepository) Create(ctx context.Context, listing *entity.Listing) (string, error) {
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	if _, err := r.collection.InsertOne(ctx, listing); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", repository.ErrAlreadyExists
		}
		return "", fmt.Errorf("failed to insert listing: %w", err)
	}
	return listing.ID, nil
}

func (r *listingRepository) GetByID(ctx context.Context, listingID string) (*entity.Listing, error) {
	var listing entity.Listing
	err := r.collection.FindOne(ctx, bson.M{"_id": listingID}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing %s: %w", listingID, err)
	}
	return &listing, nil
}

// UpdateStatus is the single write path for status transitions. It matches on
// {_id, version} so a concurrent transition on the same listing loses with
// ErrOptimisticLock instead of overwriting newer state.
func (r *listingRepository) UpdateStatus(ctx context.Context, params repository.UpdateListingStatusParams) error {
	filter := bson.M{
		"_id":     params.ListingID,
		"version": params.Version,
	}

	set := bson.M{
		"status":     params.Status,
		"updated_at": params.UpdatedAt,
	}
	if params.ResetDates {
		set["expiration_date"] = params.ExpirationDate
		set["purge_date"] = params.PurgeDate
	}

	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update listing status for %s: %w", params.ListingID, err)
	}

	if result.MatchedCount == 0 {
		var existing entity.Listing
		errFind := r.collection.FindOne(ctx, bson.M{"_id": params.ListingID}).Decode(&existing)
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

func (r *listingRepository) List(ctx context.Context, params repository.ListListingsParams) (*repository.ListListingsResult, error) {
	filter := bson.M{}
	if params.AuthorID != "" {
		filter["author_id"] = params.AuthorID
	}
	if params.Status != "" {
		filter["status"] = params.Status
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
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []entity.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listed listings: %w", err)
	}

	totalCount, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}

	return &repository.ListListingsResult{Listings: listings, TotalCount: totalCount}, nil
}

func (r *listingRepository) FindDue(ctx context.Context, statuses []entity.ListingStatus, field repository.DueField, deadline time.Time, limit int) ([]entity.Listing, error) {
	filter := bson.M{
		"status":      bson.M{"$in": statuses},
		string(field): bson.M{"$lte": deadline},
	}

	findOptions := options.Find().SetSort(bson.D{{Key: string(field), Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to scan due listings: %w", err)
	}
	defer cursor.Close(ctx)

	var listings []entity.Listing
	if err = cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode due listings: %w", err)
	}
	return listings, nil
}
