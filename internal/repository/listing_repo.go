package repository

import (
	"context"
	"time"

	"github.com/peppermint/listing-service/internal/domain/entity"
)

// UpdateListingStatusParams is a conditional status write. The update only
// applies when the stored version still equals Version; a concurrent writer
// surfaces as ErrOptimisticLock.
type UpdateListingStatusParams struct {
	ListingID string
	Status    entity.ListingStatus
	UpdatedAt time.Time
	Version   int

	// ResetDates carries the recomputed lifecycle dates on a renewal.
	ResetDates     bool
	ExpirationDate time.Time
	PurgeDate      time.Time
}

// ListListingsParams filters the read-only feed scan.
type ListListingsParams struct {
	AuthorID string
	Status   entity.ListingStatus
	Page     int
	PageSize int
}

type ListListingsResult struct {
	Listings   []entity.Listing
	TotalCount int64
}

// DueField selects which lifecycle boundary a sweep scan compares against.
type DueField string

const (
	DueByExpiration DueField = "expiration_date"
	DueByPurge      DueField = "purge_date"
)

type ListingRepository interface {
	Create(ctx context.Context, listing *entity.Listing) (string, error)
	GetByID(ctx context.Context, listingID string) (*entity.Listing, error)
	UpdateStatus(ctx context.Context, params UpdateListingStatusParams) error
	List(ctx context.Context, params ListListingsParams) (*ListListingsResult, error)

	// FindDue returns up to limit listings in one of the given statuses whose
	// due field is at or before the deadline. Used by the lifecycle sweep.
	FindDue(ctx context.Context, statuses []entity.ListingStatus, field DueField, deadline time.Time, limit int) ([]entity.Listing, error)
}
