package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/peppermint/listing-service/internal/adapter/nats"
	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/platform/clock"
	"github.com/peppermint/listing-service/internal/platform/logger"
	"github.com/peppermint/listing-service/internal/platform/metrics"
	"github.com/peppermint/listing-service/internal/repository"
	"go.opentelemetry.io/otel"
)

const (
	natsSubjectListingCreated       = "listing.created"
	natsSubjectListingStatusUpdated = "listing.status.updated"
)

// SystemActor is the identity the scheduler and internal cascades act under.
// Expire, purge and offer-driven transitions require it.
const SystemActor = "system:lifecycle"

const tracerName = "listing-service"

// ListingCache is the cache-aside snapshot store in front of the read path.
// The write path never trusts it: transitions always load from the
// repository, which carries the version the conditional write needs.
type ListingCache interface {
	Get(ctx context.Context, listingID string) (*entity.Listing, error)
	Set(ctx context.Context, listing *entity.Listing) error
	Delete(ctx context.Context, listingID string) error
}

type ListingService interface {
	Create(ctx context.Context, actorID string, input entity.CreateListingInput) (*entity.Listing, error)
	GetByID(ctx context.Context, listingID string) (*entity.Listing, error)
	Search(ctx context.Context, params repository.ListListingsParams) (*repository.ListListingsResult, error)
	Transition(ctx context.Context, listingID string, trigger entity.Trigger, actorID string) (*entity.Listing, error)
	Delete(ctx context.Context, listingID, actorID string) error
}

type listingService struct {
	listingRepo repository.ListingRepository
	offerRepo   repository.OfferRepository
	cache       ListingCache
	admission   AdmissionControl
	notifier    Notifier
	publisher   nats.MessagePublisher
	log         logger.Logger
	clock       clock.Clock
	metrics     *metrics.Manager
}

func NewListingService(
	listingRepo repository.ListingRepository,
	offerRepo repository.OfferRepository,
	cache ListingCache,
	admission AdmissionControl,
	notifier Notifier,
	publisher nats.MessagePublisher,
	log logger.Logger,
	clk clock.Clock,
	m *metrics.Manager,
) ListingService {
	return &listingService{
		listingRepo: listingRepo,
		offerRepo:   offerRepo,
		cache:       cache,
		admission:   admission,
		notifier:    notifier,
		publisher:   publisher,
		log:         log,
		clock:       clk,
		metrics:     m,
	}
}

// ownerTriggers are the transitions only the listing's author may drive. The
// remaining triggers belong to the system actor.
var ownerTriggers = map[entity.Trigger]bool{
	entity.TriggerMarkSold: true,
	entity.TriggerRenew:    true,
	entity.TriggerDelete:   true,
}

func (s *listingService) Create(ctx context.Context, actorID string, input entity.CreateListingInput) (*entity.Listing, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListingService.Create")
	defer span.End()

	listing, err := entity.NewListing(actorID, input, s.clock.Now())
	if err != nil {
		return nil, err
	}

	decision, err := s.admission.Allow(ctx, actorID)
	if err != nil {
		s.log.Errorf("admission check unavailable for actor %s: %v", actorID, err)
		return nil, fmt.Errorf("%w: admission check failed", entity.ErrUnavailable)
	}
	if !decision.Granted {
		if s.metrics != nil {
			s.metrics.AdmissionDeniedTotal.Inc()
		}
		s.log.Warnf("listing creation denied by rate limit for actor %s", actorID)
		return nil, entity.ErrAdmissionDenied
	}

	id, err := s.listingRepo.Create(ctx, listing)
	if err != nil {
		s.log.Errorf("failed to persist listing for actor %s: %v", actorID, err)
		return nil, fmt.Errorf("%w: %s", entity.ErrUnavailable, err)
	}
	listing.ID = id

	if s.metrics != nil {
		s.metrics.ListingsCreatedTotal.Inc()
	}
	s.log.Infof("listing %s created by %s, expires %s", listing.ID, actorID, listing.ExpirationDate.Format("2006-01-02"))

	// Everything past the insert is best-effort: the creation stands even if
	// cache, bus or notification fail.
	if s.cache != nil {
		if err := s.cache.Set(ctx, listing); err != nil {
			s.log.Warnf("failed to cache listing %s: %v", listing.ID, err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, natsSubjectListingCreated, listing); err != nil {
			s.log.Warnf("failed to publish created event for listing %s: %v", listing.ID, err)
		}
	}
	if _, err := s.notifier.Dispatch(ctx, entity.NotificationListingLive, listing.AuthorID, listing); err != nil {
		s.log.Warnf("failed to dispatch live notification for listing %s: %v", listing.ID, err)
	}

	return listing, nil
}

func (s *listingService) GetByID(ctx context.Context, listingID string) (*entity.Listing, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListingService.GetByID")
	defer span.End()

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, listingID); err == nil {
			if cached.Status == entity.StatusDeleted {
				return nil, entity.ErrNotFound
			}
			return cached, nil
		}
	}

	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}
	if listing.Status == entity.StatusDeleted {
		return nil, entity.ErrNotFound
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, listing); err != nil {
			s.log.Warnf("failed to cache listing %s: %v", listingID, err)
		}
	}
	return listing, nil
}

func (s *listingService) Search(ctx context.Context, params repository.ListListingsParams) (*repository.ListListingsResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListingService.Search")
	defer span.End()

	result, err := s.listingRepo.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnavailable, err)
	}
	return result, nil
}

// Transition is the single code path for every status change regardless of
// trigger: owner action, offer acceptance or scheduler sweep. Concurrent
// transitions on the same listing are serialized by the repository's
// version check; the loser observed stale state and gets
// ErrInvalidTransition.
func (s *listingService) Transition(ctx context.Context, listingID string, trigger entity.Trigger, actorID string) (*entity.Listing, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListingService.Transition")
	defer span.End()

	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}
	if listing.Status == entity.StatusDeleted {
		return nil, entity.ErrNotFound
	}

	if err := s.authorize(listing, trigger, actorID); err != nil {
		return nil, err
	}

	priorVersion := listing.Version
	if err := listing.ApplyTransition(trigger, s.clock.Now()); err != nil {
		return nil, err
	}

	params := repository.UpdateListingStatusParams{
		ListingID: listing.ID,
		Status:    listing.Status,
		UpdatedAt: listing.UpdatedAt,
		Version:   priorVersion,
	}
	if trigger == entity.TriggerRenew {
		params.ResetDates = true
		params.ExpirationDate = listing.ExpirationDate
		params.PurgeDate = listing.PurgeDate
	}

	if err := s.listingRepo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			if s.metrics != nil {
				s.metrics.TransitionConflictsTotal.Inc()
			}
			s.log.Warnf("transition %s on listing %s lost to a concurrent writer", trigger, listingID)
			return nil, fmt.Errorf("%w: listing %s changed concurrently", entity.ErrInvalidTransition, listingID)
		}
		return nil, s.mapRepoError(err)
	}
	listing.Version = priorVersion + 1

	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(string(trigger), string(listing.Status)).Inc()
	}
	s.log.Infof("listing %s transitioned to %s via %s by %s", listing.ID, listing.Status, trigger, actorID)

	if s.cache != nil {
		if err := s.cache.Delete(ctx, listing.ID); err != nil {
			s.log.Warnf("failed to invalidate cache for listing %s: %v", listing.ID, err)
		}
	}

	if listing.Status == entity.StatusDeleted {
		s.cascadeOfferWithdrawal(ctx, listing)
	}

	s.notifyTransition(ctx, trigger, listing)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, natsSubjectListingStatusUpdated, listing); err != nil {
			s.log.Warnf("failed to publish status event for listing %s: %v", listing.ID, err)
		}
	}

	return listing, nil
}

func (s *listingService) Delete(ctx context.Context, listingID, actorID string) error {
	_, err := s.Transition(ctx, listingID, entity.TriggerDelete, actorID)
	return err
}

func (s *listingService) authorize(listing *entity.Listing, trigger entity.Trigger, actorID string) error {
	if ownerTriggers[trigger] {
		if !listing.IsOwner(actorID) {
			s.log.Warnf("actor %s attempted %s on listing %s owned by %s", actorID, trigger, listing.ID, listing.AuthorID)
			return entity.ErrNotAuthorized
		}
		return nil
	}
	if actorID != SystemActor {
		s.log.Warnf("actor %s attempted system trigger %s on listing %s", actorID, trigger, listing.ID)
		return entity.ErrNotAuthorized
	}
	return nil
}

// cascadeOfferWithdrawal voids every still-open offer when a listing leaves
// the marketplace. Offers are withdrawn, never dropped, so the negotiation
// history stays auditable.
func (s *listingService) cascadeOfferWithdrawal(ctx context.Context, listing *entity.Listing) {
	open, err := s.offerRepo.ListByListing(ctx, listing.ID, entity.OpenOfferStatuses)
	if err != nil {
		s.log.Errorf("failed to list open offers for removed listing %s: %v", listing.ID, err)
		return
	}
	if len(open) == 0 {
		return
	}

	changed, err := s.offerRepo.UpdateStatusByListing(ctx, listing.ID, entity.OpenOfferStatuses, entity.OfferWithdrawn, "", s.clock.Now())
	if err != nil {
		s.log.Errorf("failed to withdraw open offers for removed listing %s: %v", listing.ID, err)
		return
	}
	s.log.Infof("withdrew %d open offers on removed listing %s", changed, listing.ID)

	for i := range open {
		if _, err := s.notifier.Dispatch(ctx, entity.NotificationListingRemoved, open[i].BuyerID, listing); err != nil {
			s.log.Warnf("failed to notify buyer %s about removed listing %s: %v", open[i].BuyerID, listing.ID, err)
		}
	}
}

func (s *listingService) notifyTransition(ctx context.Context, trigger entity.Trigger, listing *entity.Listing) {
	var kind entity.NotificationKind
	switch trigger {
	case entity.TriggerExpire:
		kind = entity.NotificationListingExpired
	case entity.TriggerRenew:
		kind = entity.NotificationListingRenewed
	case entity.TriggerMarkSold, entity.TriggerOfferAccepted:
		kind = entity.NotificationListingSold
	case entity.TriggerPurge:
		kind = entity.NotificationListingPurged
	default:
		// Owner-initiated deletes carry no notification.
		return
	}

	if _, err := s.notifier.Dispatch(ctx, kind, listing.AuthorID, listing); err != nil {
		s.log.Warnf("failed to dispatch %s notification for listing %s: %v", kind, listing.ID, err)
	}
}

func (s *listingService) mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return entity.ErrNotFound
	case errors.Is(err, repository.ErrOptimisticLock):
		return fmt.Errorf("%w: concurrent modification", entity.ErrInvalidTransition)
	default:
		return fmt.Errorf("%w: %s", entity.ErrUnavailable, err)
	}
}
