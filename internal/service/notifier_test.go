package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/platform/clock"
	"github.com/peppermint/listing-service/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func notifierListing() *entity.Listing {
	return &entity.Listing{ID: "listing-1", AuthorID: "seller-1", Title: "Trek Marlin 7"}
}

func TestDispatchPersistsAndDelivers(t *testing.T) {
	repo := &mockNotificationRepo{}
	ch := &mockChannel{name: "nats"}
	d := NewDispatcher(repo, []Channel{ch}, logger.NewNop(), clock.NewFixed(time.Now()), nil)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(n *entity.Notification) bool {
		return n.Kind == entity.NotificationListingLive && n.UserID == "seller-1"
	})).Return("n-1", nil)
	ch.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	n, err := d.Dispatch(context.Background(), entity.NotificationListingLive, "seller-1", notifierListing())
	require.NoError(t, err)
	assert.Equal(t, "n-1", n.ID)
	assert.Equal(t, 0, d.PendingDeliveries())
	ch.AssertExpectations(t)
}

func TestDispatchSurvivesChannelFailure(t *testing.T) {
	repo := &mockNotificationRepo{}
	broken := &mockChannel{name: "smtp"}
	healthy := &mockChannel{name: "nats"}
	d := NewDispatcher(repo, []Channel{broken, healthy}, logger.NewNop(), clock.NewFixed(time.Now()), nil)

	repo.On("Create", mock.Anything, mock.Anything).Return("n-1", nil)
	broken.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("relay down"))
	healthy.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	n, err := d.Dispatch(context.Background(), entity.NotificationOfferReceived, "seller-1", notifierListing())
	require.NoError(t, err, "a channel failure must not fail the dispatch")
	assert.NotNil(t, n)
	assert.Equal(t, 1, d.PendingDeliveries())
}

func TestDispatchFailsWhenPersistenceFails(t *testing.T) {
	repo := &mockNotificationRepo{}
	ch := &mockChannel{name: "nats"}
	d := NewDispatcher(repo, []Channel{ch}, logger.NewNop(), clock.NewFixed(time.Now()), nil)

	repo.On("Create", mock.Anything, mock.Anything).Return("", errors.New("mongo down"))

	_, err := d.Dispatch(context.Background(), entity.NotificationListingLive, "seller-1", notifierListing())
	require.Error(t, err)
	// No delivery may happen for a notification that was never stored.
	ch.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestRetryDrainsPending(t *testing.T) {
	repo := &mockNotificationRepo{}
	flaky := &mockChannel{name: "nats"}
	d := NewDispatcher(repo, []Channel{flaky}, logger.NewNop(), clock.NewFixed(time.Now()), nil)

	repo.On("Create", mock.Anything, mock.Anything).Return("n-1", nil)
	flaky.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("transient")).Once()
	flaky.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	_, err := d.Dispatch(context.Background(), entity.NotificationListingLive, "seller-1", notifierListing())
	require.NoError(t, err)
	require.Equal(t, 1, d.PendingDeliveries())

	d.retryPending(context.Background())
	assert.Equal(t, 0, d.PendingDeliveries())
}

func TestRetryDropsAfterMaxAttempts(t *testing.T) {
	repo := &mockNotificationRepo{}
	dead := &mockChannel{name: "smtp"}
	d := NewDispatcher(repo, []Channel{dead}, logger.NewNop(), clock.NewFixed(time.Now()), nil)

	repo.On("Create", mock.Anything, mock.Anything).Return("n-1", nil)
	dead.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("permanent"))

	_, err := d.Dispatch(context.Background(), entity.NotificationListingLive, "seller-1", notifierListing())
	require.NoError(t, err)

	for i := 0; i < maxDeliveryAttempts; i++ {
		d.retryPending(context.Background())
	}
	assert.Equal(t, 0, d.PendingDeliveries(), "the backlog must not grow without bound")
}
