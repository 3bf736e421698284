package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offerListing() *Listing {
	return &Listing{ID: "listing-1", AuthorID: "seller-1", Title: "Trek Marlin 7", Status: StatusActive}
}

func TestNewOffer(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	o, err := NewOffer(offerListing(), "buyer-1", 40000, "would you take 400?", now)
	require.NoError(t, err)

	assert.Equal(t, OfferPending, o.Status)
	assert.Equal(t, "seller-1", o.SellerID)
	assert.Equal(t, "buyer-1", o.BuyerID)
	assert.Equal(t, int64(40000), o.Amount)
	assert.Equal(t, 1, o.Version)
	assert.True(t, o.IsOpen())
}

func TestNewOfferRejectsSelfOffer(t *testing.T) {
	_, err := NewOffer(offerListing(), "seller-1", 40000, "", time.Now())
	assert.ErrorIs(t, err, ErrSelfOfferNotAllowed)
}

func TestNewOfferRejectsNegativeAmount(t *testing.T) {
	_, err := NewOffer(offerListing(), "buyer-1", -1, "", time.Now())
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestNewOfferRequiresBuyer(t *testing.T) {
	_, err := NewOffer(offerListing(), "", 100, "", time.Now())
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestOfferTransitions(t *testing.T) {
	now := time.Now()

	o, err := NewOffer(offerListing(), "buyer-1", 40000, "", now)
	require.NoError(t, err)

	// pending -> countered -> accepted is the negotiation round trip.
	require.NoError(t, o.Transition(OfferCountered, now))
	assert.True(t, o.IsOpen())
	require.NoError(t, o.Transition(OfferAccepted, now))
	assert.False(t, o.IsOpen())

	// accepted is terminal.
	for _, next := range []OfferStatus{OfferPending, OfferRejected, OfferCountered, OfferWithdrawn, OfferExpired} {
		assert.ErrorIs(t, o.Transition(next, now), ErrInvalidState)
	}
}

func TestCounteredOfferCannotBeCounteredAgain(t *testing.T) {
	o, err := NewOffer(offerListing(), "buyer-1", 40000, "", time.Now())
	require.NoError(t, err)

	require.NoError(t, o.Transition(OfferCountered, time.Now()))
	assert.ErrorIs(t, o.Transition(OfferCountered, time.Now()), ErrInvalidState)
}

func TestCounterparty(t *testing.T) {
	o, err := NewOffer(offerListing(), "buyer-1", 40000, "", time.Now())
	require.NoError(t, err)

	assert.Equal(t, "seller-1", o.Counterparty("buyer-1"))
	assert.Equal(t, "buyer-1", o.Counterparty("seller-1"))
}
