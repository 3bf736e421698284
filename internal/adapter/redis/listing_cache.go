package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/repository"
	"github.com/redis/go-redis/v9"
)

const listingCacheKeyPrefix = "listing:"

// ListingCache is the cache-aside snapshot store the read path consults
// before Mongo. Transitions invalidate eagerly; the TTL is a backstop.
type ListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewListingCache(client *redis.Client, ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ListingCache{client: client, ttl: ttl}
}

func (c *ListingCache) Get(ctx context.Context, listingID string) (*entity.Listing, error) {
	data, err := c.client.Get(ctx, listingCacheKeyPrefix+listingID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read listing %s from cache: %w", listingID, err)
	}

	var listing entity.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached listing %s: %w", listingID, err)
	}
	return &listing, nil
}

func (c *ListingCache) Set(ctx context.Context, listing *entity.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to marshal listing %s for cache: %w", listing.ID, err)
	}
	return c.client.Set(ctx, listingCacheKeyPrefix+listing.ID, data, c.ttl).Err()
}

func (c *ListingCache) Delete(ctx context.Context, listingID string) error {
	return c.client.Del(ctx, listingCacheKeyPrefix+listingID).Err()
}
