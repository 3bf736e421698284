package entity

import (
	"fmt"
	"time"
)

type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferCountered OfferStatus = "countered"
	OfferWithdrawn OfferStatus = "withdrawn"
	OfferExpired   OfferStatus = "expired"
)

// OpenOfferStatuses are the states in which an offer still awaits a decision.
// At most one offer per (listing, buyer) may be in one of these.
var OpenOfferStatuses = []OfferStatus{OfferPending, OfferCountered}

type Offer struct {
	ID        string      `bson:"_id,omitempty" json:"id"`
	ListingID string      `bson:"listing_id" json:"listingId"`
	BuyerID   string      `bson:"buyer_id" json:"buyerId"`
	// SellerID is denormalized from the listing at creation time so the
	// negotiation history stays stable even if the listing changes later.
	SellerID  string      `bson:"seller_id" json:"sellerId"`
	Amount    int64       `bson:"amount" json:"amount"`
	Message   string      `bson:"message,omitempty" json:"message,omitempty"`
	Status    OfferStatus `bson:"status" json:"status"`
	CreatedAt time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `bson:"updated_at" json:"updatedAt"`
	Version   int         `bson:"version" json:"-"`
}

var offerTransitions = map[OfferStatus][]OfferStatus{
	OfferPending:   {OfferAccepted, OfferRejected, OfferCountered, OfferWithdrawn, OfferExpired},
	OfferCountered: {OfferAccepted, OfferRejected, OfferWithdrawn, OfferExpired},
	OfferAccepted:  {},
	OfferRejected:  {},
	OfferWithdrawn: {},
	OfferExpired:   {},
}

// NewOffer builds a pending offer against the given listing.
func NewOffer(listing *Listing, buyerID string, amount int64, message string, now time.Time) (*Offer, error) {
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer is required", ErrValidationFailed)
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: offer amount cannot be negative", ErrValidationFailed)
	}
	if listing.IsOwner(buyerID) {
		return nil, ErrSelfOfferNotAllowed
	}

	now = now.UTC()
	return &Offer{
		ListingID: listing.ID,
		BuyerID:   buyerID,
		SellerID:  listing.AuthorID,
		Amount:    amount,
		Message:   message,
		Status:    OfferPending,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}, nil
}

// IsOpen reports whether the offer still awaits a decision.
func (o *Offer) IsOpen() bool {
	return o.Status == OfferPending || o.Status == OfferCountered
}

// CanTransitionTo checks the offer state machine.
func (o *Offer) CanTransitionTo(next OfferStatus) bool {
	for _, s := range offerTransitions[o.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// Transition moves the offer to next, enforcing the state machine.
func (o *Offer) Transition(next OfferStatus, now time.Time) error {
	if !o.CanTransitionTo(next) {
		return fmt.Errorf("%w: offer in status %q cannot become %q", ErrInvalidState, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now.UTC()
	return nil
}

// Counterparty returns the user on the other side of the negotiation from
// actorID.
func (o *Offer) Counterparty(actorID string) string {
	if actorID == o.BuyerID {
		return o.SellerID
	}
	return o.BuyerID
}
