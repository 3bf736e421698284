package service

import (
	"context"
	"testing"
	"time"

	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/platform/clock"
	"github.com/peppermint/listing-service/internal/platform/logger"
	"github.com/peppermint/listing-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type offerFixture struct {
	offerRepo   *mockOfferRepo
	listingRepo *mockListingRepo
	notifier    *mockNotifier
	clock       *clock.Fixed
	listings    ListingService
	svc         OfferService
}

func newOfferFixture() *offerFixture {
	f := &offerFixture{
		offerRepo:   &mockOfferRepo{},
		listingRepo: &mockListingRepo{},
		notifier:    &mockNotifier{},
		clock:       clock.NewFixed(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.listings = NewListingService(f.listingRepo, f.offerRepo, nil, &mockAdmission{}, f.notifier, nil, logger.NewNop(), f.clock, nil)
	f.svc = NewOfferService(f.offerRepo, f.listingRepo, f.listings, f.notifier, logger.NewNop(), f.clock, nil)
	return f
}

func (f *offerFixture) listing(id, owner string, status entity.ListingStatus) *entity.Listing {
	l, err := entity.NewListing(owner, createInput(), f.clock.Now())
	if err != nil {
		panic(err)
	}
	l.ID = id
	l.Status = status
	return l
}

func (f *offerFixture) pendingOffer(id, buyer string) *entity.Offer {
	return &entity.Offer{
		ID:        id,
		ListingID: "listing-1",
		BuyerID:   buyer,
		SellerID:  "seller-1",
		Amount:    40000,
		Status:    entity.OfferPending,
		Version:   1,
	}
}

func TestOfferSubmit(t *testing.T) {
	f := newOfferFixture()

	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(f.listing("listing-1", "seller-1", entity.StatusActive), nil)
	f.offerRepo.On("FindOpenByListingAndBuyer", mock.Anything, "listing-1", "buyer-1").Return(nil, repository.ErrNotFound)
	f.offerRepo.On("Create", mock.Anything, mock.Anything).Return("offer-1", nil)
	f.notifier.On("Dispatch", mock.Anything, entity.NotificationOfferReceived, "seller-1", mock.Anything).Return(&entity.Notification{}, nil)

	offer, err := f.svc.Submit(context.Background(), "listing-1", "buyer-1", 40000, "deal?")
	require.NoError(t, err)

	assert.Equal(t, "offer-1", offer.ID)
	assert.Equal(t, entity.OfferPending, offer.Status)
	assert.Equal(t, "seller-1", offer.SellerID)
	f.notifier.AssertExpectations(t)
}

func TestOfferSubmitRequiresActiveListing(t *testing.T) {
	f := newOfferFixture()
	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(f.listing("listing-1", "seller-1", entity.StatusExpired), nil)

	_, err := f.svc.Submit(context.Background(), "listing-1", "buyer-1", 40000, "")
	assert.ErrorIs(t, err, entity.ErrInvalidState)
	f.offerRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOfferSubmitRejectsSelfOffer(t *testing.T) {
	f := newOfferFixture()
	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(f.listing("listing-1", "seller-1", entity.StatusActive), nil)

	_, err := f.svc.Submit(context.Background(), "listing-1", "seller-1", 40000, "")
	assert.ErrorIs(t, err, entity.ErrSelfOfferNotAllowed)
}

func TestOfferSubmitRejectsDuplicate(t *testing.T) {
	f := newOfferFixture()
	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(f.listing("listing-1", "seller-1", entity.StatusActive), nil)
	f.offerRepo.On("FindOpenByListingAndBuyer", mock.Anything, "listing-1", "buyer-1").
		Return(f.pendingOffer("offer-0", "buyer-1"), nil)

	_, err := f.svc.Submit(context.Background(), "listing-1", "buyer-1", 40000, "")
	assert.ErrorIs(t, err, entity.ErrDuplicateOffer)
	f.offerRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOfferAcceptSellsListingAndRejectsSiblings(t *testing.T) {
	f := newOfferFixture()
	accepted := f.pendingOffer("offer-1", "buyer-1")
	siblings := []entity.Offer{
		*f.pendingOffer("offer-1", "buyer-1"),
		*f.pendingOffer("offer-2", "buyer-2"),
		*f.pendingOffer("offer-3", "buyer-3"),
	}

	f.offerRepo.On("GetByID", mock.Anything, "offer-1").Return(accepted, nil)
	f.offerRepo.On("ListByListing", mock.Anything, "listing-1", entity.OpenOfferStatuses).Return(siblings, nil)
	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(f.listing("listing-1", "seller-1", entity.StatusActive), nil)
	f.listingRepo.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(p repository.UpdateListingStatusParams) bool {
		return p.Status == entity.StatusSold
	})).Return(nil)
	f.offerRepo.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(p repository.UpdateOfferStatusParams) bool {
		return p.OfferID == "offer-1" && p.Status == entity.OfferAccepted && p.Version == 1
	})).Return(nil)
	f.offerRepo.On("UpdateStatusByListing", mock.Anything, "listing-1", entity.OpenOfferStatuses,
		entity.OfferRejected, "offer-1", mock.Anything).Return(int64(2), nil)

	f.notifier.On("Dispatch", mock.Anything, entity.NotificationListingSold, "seller-1", mock.Anything).Return(&entity.Notification{}, nil)
	f.notifier.On("Dispatch", mock.Anything, entity.NotificationOfferRejected, "buyer-2", mock.Anything).Return(&entity.Notification{}, nil)
	f.notifier.On("Dispatch", mock.Anything, entity.NotificationOfferRejected, "buyer-3", mock.Anything).Return(&entity.Notification{}, nil)
	f.notifier.On("Dispatch", mock.Anything, entity.NotificationOfferAccepted, "buyer-1", mock.Anything).Return(&entity.Notification{}, nil)

	offer, err := f.svc.Accept(context.Background(), "offer-1", "seller-1")
	require.NoError(t, err)

	assert.Equal(t, entity.OfferAccepted, offer.Status)
	f.offerRepo.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestOfferAcceptFailsWhenListingNotActive(t *testing.T) {
	f := newOfferFixture()
	f.offerRepo.On("GetByID", mock.Anything, "offer-1").Return(f.pendingOffer("offer-1", "buyer-1"), nil)
	f.offerRepo.On("ListByListing", mock.Anything, "listing-1", entity.OpenOfferStatuses).
		Return([]entity.Offer{*f.pendingOffer("offer-1", "buyer-1")}, nil)
	// The listing was sold out from under the negotiation.
	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(f.listing("listing-1", "seller-1", entity.StatusSold), nil)

	_, err := f.svc.Accept(context.Background(), "offer-1", "seller-1")
	assert.ErrorIs(t, err, entity.ErrInvalidState)
	f.offerRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
}

func TestOfferAcceptAuthority(t *testing.T) {
	f := newOfferFixture()
	f.offerRepo.On("GetByID", mock.Anything, "offer-1").Return(f.pendingOffer("offer-1", "buyer-1"), nil)

	// A pending offer is the seller's to answer, not the buyer's.
	_, err := f.svc.Accept(context.Background(), "offer-1", "buyer-1")
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)

	_, err = f.svc.Accept(context.Background(), "offer-1", "stranger")
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)
}

func TestBuyerMayAcceptCounteredOffer(t *testing.T) {
	f := newOfferFixture()
	countered := f.pendingOffer("offer-1", "buyer-1")
	countered.Status = entity.OfferCountered

	f.offerRepo.On("GetByID", mock.Anything, "offer-1").Return(countered, nil)
	f.offerRepo.On("ListByListing", mock.Anything, "listing-1", entity.OpenOfferStatuses).
		Return([]entity.Offer{*countered}, nil)
	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(f.listing("listing-1", "seller-1", entity.StatusActive), nil)
	f.listingRepo.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	f.offerRepo.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	f.offerRepo.On("UpdateStatusByListing", mock.Anything, "listing-1", entity.OpenOfferStatuses,
		entity.OfferRejected, "offer-1", mock.Anything).Return(int64(0), nil)
	f.notifier.On("Dispatch", mock.Anything, entity.NotificationListingSold, "seller-1", mock.Anything).Return(&entity.Notification{}, nil)
	f.notifier.On("Dispatch", mock.Anything, entity.NotificationOfferAccepted, "seller-1", mock.Anything).Return(&entity.Notification{}, nil)

	offer, err := f.svc.Accept(context.Background(), "offer-1", "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, entity.OfferAccepted, offer.Status)
}

func TestOfferCounter(t *testing.T) {
	f := newOfferFixture()
	f.offerRepo.On("GetByID", mock.Anything, "offer-1").Return(f.pendingOffer("offer-1", "buyer-1"), nil)
	f.offerRepo.On("UpdateStatus", mock.Anything, mock.MatchedBy(func(p repository.UpdateOfferStatusParams) bool {
		return p.Status == entity.OfferCountered && p.SetAmount && p.Amount == 35000
	})).Return(nil)
	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(f.listing("listing-1", "seller-1", entity.StatusActive), nil)
	f.notifier.On("Dispatch", mock.Anything, entity.NotificationOfferCountered, "buyer-1", mock.Anything).Return(&entity.Notification{}, nil)

	offer, err := f.svc.Counter(context.Background(), "offer-1", "seller-1", 35000)
	require.NoError(t, err)
	assert.Equal(t, entity.OfferCountered, offer.Status)
	assert.Equal(t, int64(35000), offer.Amount)
}

func TestOfferCounterIsSellerOnly(t *testing.T) {
	f := newOfferFixture()
	f.offerRepo.On("GetByID", mock.Anything, "offer-1").Return(f.pendingOffer("offer-1", "buyer-1"), nil)

	_, err := f.svc.Counter(context.Background(), "offer-1", "buyer-1", 35000)
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)
}

func TestOfferCounterTwiceIsStateConflict(t *testing.T) {
	f := newOfferFixture()
	countered := f.pendingOffer("offer-1", "buyer-1")
	countered.Status = entity.OfferCountered

	f.offerRepo.On("GetByID", mock.Anything, "offer-1").Return(countered, nil)

	_, err := f.svc.Counter(context.Background(), "offer-1", "seller-1", 30000)
	assert.ErrorIs(t, err, entity.ErrInvalidState)
}

func TestOfferWithdrawIsBuyerOnly(t *testing.T) {
	f := newOfferFixture()
	f.offerRepo.On("GetByID", mock.Anything, "offer-1").Return(f.pendingOffer("offer-1", "buyer-1"), nil)

	_, err := f.svc.Withdraw(context.Background(), "offer-1", "seller-1")
	assert.ErrorIs(t, err, entity.ErrNotAuthorized)

	f.offerRepo.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(f.listing("listing-1", "seller-1", entity.StatusActive), nil)
	f.notifier.On("Dispatch", mock.Anything, entity.NotificationOfferWithdrawn, "seller-1", mock.Anything).Return(&entity.Notification{}, nil)

	offer, err := f.svc.Withdraw(context.Background(), "offer-1", "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, entity.OfferWithdrawn, offer.Status)
}

func TestRespondOnClosedOffer(t *testing.T) {
	f := newOfferFixture()
	closed := f.pendingOffer("offer-1", "buyer-1")
	closed.Status = entity.OfferRejected

	f.offerRepo.On("GetByID", mock.Anything, "offer-1").Return(closed, nil)

	_, err := f.svc.Accept(context.Background(), "offer-1", "seller-1")
	assert.ErrorIs(t, err, entity.ErrInvalidState)

	_, err = f.svc.Withdraw(context.Background(), "offer-1", "buyer-1")
	assert.ErrorIs(t, err, entity.ErrInvalidState)
}

func TestOfferListByListingScopesToActor(t *testing.T) {
	f := newOfferFixture()
	offers := []entity.Offer{
		*f.pendingOffer("offer-1", "buyer-1"),
		*f.pendingOffer("offer-2", "buyer-2"),
	}

	f.listingRepo.On("GetByID", mock.Anything, "listing-1").Return(f.listing("listing-1", "seller-1", entity.StatusActive), nil)
	f.offerRepo.On("ListByListing", mock.Anything, "listing-1", []entity.OfferStatus(nil)).Return(offers, nil)

	all, err := f.svc.ListByListing(context.Background(), "listing-1", "seller-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := f.svc.ListByListing(context.Background(), "listing-1", "buyer-2")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "offer-2", own[0].ID)
}
