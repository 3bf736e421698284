package repository

import (
	"context"
	"time"

	"github.com/peppermint/listing-service/internal/domain/entity"
)

// UpdateOfferStatusParams is a conditional offer write keyed on version.
type UpdateOfferStatusParams struct {
	OfferID   string
	Status    entity.OfferStatus
	UpdatedAt time.Time
	Version   int

	// SetAmount updates the negotiated amount together with the status
	// (used by counter-offers).
	SetAmount bool
	Amount    int64
}

type OfferRepository interface {
	Create(ctx context.Context, offer *entity.Offer) (string, error)
	GetByID(ctx context.Context, offerID string) (*entity.Offer, error)

	// FindOpenByListingAndBuyer returns the buyer's pending or countered
	// offer on the listing, or ErrNotFound.
	FindOpenByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*entity.Offer, error)

	// ListByListing returns offers on a listing, optionally restricted to
	// the given statuses.
	ListByListing(ctx context.Context, listingID string, statuses []entity.OfferStatus) ([]entity.Offer, error)

	UpdateStatus(ctx context.Context, params UpdateOfferStatusParams) error

	// UpdateStatusByListing moves every offer on the listing whose status is
	// in from into to, except the offer with excludeID (empty means none).
	// Returns the number of offers changed. Used for the accept cascade and
	// the delete/purge cascade.
	UpdateStatusByListing(ctx context.Context, listingID string, from []entity.OfferStatus, to entity.OfferStatus, excludeID string, updatedAt time.Time) (int64, error)
}
