package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/platform/clock"
	"github.com/peppermint/listing-service/internal/platform/logger"
	"github.com/peppermint/listing-service/internal/platform/metrics"
	"github.com/peppermint/listing-service/internal/repository"
)

// Notifier is the fan-out obligation every lifecycle and offer mutation
// carries: exactly one notification per event per recipient, persisted
// durably before any delivery attempt.
type Notifier interface {
	Dispatch(ctx context.Context, kind entity.NotificationKind, recipientID string, listing *entity.Listing) (*entity.Notification, error)
}

// Channel is a best-effort delivery target (message bus, email). A channel
// failure never fails the dispatch; the dispatcher retries in the background.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, notification *entity.Notification) error
}

const (
	defaultRetryInterval = 30 * time.Second
	maxDeliveryAttempts  = 5
)

type pendingDelivery struct {
	notification *entity.Notification
	channel      Channel
	attempts     int
}

type Dispatcher struct {
	repo     repository.NotificationRepository
	channels []Channel
	log      logger.Logger
	clock    clock.Clock
	metrics  *metrics.Manager

	retryInterval time.Duration

	mu      sync.Mutex
	pending []pendingDelivery
}

func NewDispatcher(repo repository.NotificationRepository, channels []Channel, log logger.Logger, clk clock.Clock, m *metrics.Manager) *Dispatcher {
	return &Dispatcher{
		repo:          repo,
		channels:      channels,
		log:           log,
		clock:         clk,
		metrics:       m,
		retryInterval: defaultRetryInterval,
	}
}

// Dispatch persists the notification and then pushes it to every channel.
// Persistence is the synchronous, durable step; channel failures are queued
// for retry and reported to the caller as success. A missing recipient is not
// an error: recipients are validated upstream and the inbox record is kept
// regardless.
func (d *Dispatcher) Dispatch(ctx context.Context, kind entity.NotificationKind, recipientID string, listing *entity.Listing) (*entity.Notification, error) {
	notification := entity.BuildNotification(kind, recipientID, listing, d.clock.Now())

	id, err := d.repo.Create(ctx, notification)
	if err != nil {
		return nil, fmt.Errorf("failed to persist notification for user %s: %w", recipientID, err)
	}
	notification.ID = id

	if d.metrics != nil {
		d.metrics.NotificationsTotal.WithLabelValues(string(kind)).Inc()
	}

	for _, ch := range d.channels {
		if err := ch.Deliver(ctx, notification); err != nil {
			d.log.Warnf("notification %s delivery over %s failed, queued for retry: %v", notification.ID, ch.Name(), err)
			d.enqueue(pendingDelivery{notification: notification, channel: ch, attempts: 1})
		}
	}

	return notification, nil
}

func (d *Dispatcher) enqueue(p pendingDelivery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, p)
}

// Run drains the retry queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.retryPending(ctx)
		}
	}
}

func (d *Dispatcher) retryPending(ctx context.Context) {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, p := range batch {
		if ctx.Err() != nil {
			d.enqueue(p)
			continue
		}

		if err := p.channel.Deliver(ctx, p.notification); err == nil {
			continue
		} else if p.attempts+1 >= maxDeliveryAttempts {
			d.log.Errorf("notification %s dropped from %s channel after %d attempts: %v",
				p.notification.ID, p.channel.Name(), p.attempts+1, err)
			continue
		} else {
			p.attempts++
			d.enqueue(p)
		}
	}
}

// PendingDeliveries reports the retry backlog size.
func (d *Dispatcher) PendingDeliveries() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
