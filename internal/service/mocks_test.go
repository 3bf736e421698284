package service

import (
	"context"
	"time"

	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/repository"
	"github.com/stretchr/testify/mock"
)

type mockListingRepo struct {
	mock.Mock
}

func (m *mockListingRepo) Create(ctx context.Context, listing *entity.Listing) (string, error) {
	args := m.Called(ctx, listing)
	return args.String(0), args.Error(1)
}

func (m *mockListingRepo) GetByID(ctx context.Context, listingID string) (*entity.Listing, error) {
	args := m.Called(ctx, listingID)
	if l, ok := args.Get(0).(*entity.Listing); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockListingRepo) UpdateStatus(ctx context.Context, params repository.UpdateListingStatusParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockListingRepo) List(ctx context.Context, params repository.ListListingsParams) (*repository.ListListingsResult, error) {
	args := m.Called(ctx, params)
	if r, ok := args.Get(0).(*repository.ListListingsResult); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockListingRepo) FindDue(ctx context.Context, statuses []entity.ListingStatus, field repository.DueField, deadline time.Time, limit int) ([]entity.Listing, error) {
	args := m.Called(ctx, statuses, field, deadline, limit)
	if l, ok := args.Get(0).([]entity.Listing); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockOfferRepo struct {
	mock.Mock
}

func (m *mockOfferRepo) Create(ctx context.Context, offer *entity.Offer) (string, error) {
	args := m.Called(ctx, offer)
	return args.String(0), args.Error(1)
}

func (m *mockOfferRepo) GetByID(ctx context.Context, offerID string) (*entity.Offer, error) {
	args := m.Called(ctx, offerID)
	if o, ok := args.Get(0).(*entity.Offer); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOfferRepo) FindOpenByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*entity.Offer, error) {
	args := m.Called(ctx, listingID, buyerID)
	if o, ok := args.Get(0).(*entity.Offer); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOfferRepo) ListByListing(ctx context.Context, listingID string, statuses []entity.OfferStatus) ([]entity.Offer, error) {
	args := m.Called(ctx, listingID, statuses)
	if o, ok := args.Get(0).([]entity.Offer); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOfferRepo) UpdateStatus(ctx context.Context, params repository.UpdateOfferStatusParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockOfferRepo) UpdateStatusByListing(ctx context.Context, listingID string, from []entity.OfferStatus, to entity.OfferStatus, excludeID string, updatedAt time.Time) (int64, error) {
	args := m.Called(ctx, listingID, from, to, excludeID, updatedAt)
	return args.Get(0).(int64), args.Error(1)
}

type mockNotificationRepo struct {
	mock.Mock
}

func (m *mockNotificationRepo) Create(ctx context.Context, notification *entity.Notification) (string, error) {
	args := m.Called(ctx, notification)
	return args.String(0), args.Error(1)
}

func (m *mockNotificationRepo) GetByID(ctx context.Context, notificationID string) (*entity.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, ok := args.Get(0).(*entity.Notification); ok {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, params repository.ListNotificationsParams) ([]entity.Notification, error) {
	args := m.Called(ctx, params)
	if n, ok := args.Get(0).([]entity.Notification); ok {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, notificationID, userID string) error {
	args := m.Called(ctx, notificationID, userID)
	return args.Error(0)
}

type mockAdmission struct {
	mock.Mock
}

func (m *mockAdmission) Allow(ctx context.Context, key string) (Decision, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(Decision), args.Error(1)
}

// mockNotifier records dispatched kinds and can be told to fail.
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Dispatch(ctx context.Context, kind entity.NotificationKind, recipientID string, listing *entity.Listing) (*entity.Notification, error) {
	args := m.Called(ctx, kind, recipientID, listing)
	if n, ok := args.Get(0).(*entity.Notification); ok {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

// mockChannel is a delivery target whose failure behavior the test controls.
type mockChannel struct {
	mock.Mock
	name string
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Deliver(ctx context.Context, notification *entity.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, listingID string) (*entity.Listing, error) {
	args := m.Called(ctx, listingID)
	if l, ok := args.Get(0).(*entity.Listing); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCache) Set(ctx context.Context, listing *entity.Listing) error {
	args := m.Called(ctx, listing)
	return args.Error(0)
}

func (m *mockCache) Delete(ctx context.Context, listingID string) error {
	args := m.Called(ctx, listingID)
	return args.Error(0)
}
