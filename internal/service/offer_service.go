package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/platform/clock"
	"github.com/peppermint/listing-service/internal/platform/logger"
	"github.com/peppermint/listing-service/internal/platform/metrics"
	"github.com/peppermint/listing-service/internal/repository"
	"go.opentelemetry.io/otel"
)

type OfferService interface {
	Submit(ctx context.Context, listingID, buyerID string, amount int64, message string) (*entity.Offer, error)
	ListByListing(ctx context.Context, listingID, actorID string) ([]entity.Offer, error)
	Accept(ctx context.Context, offerID, actorID string) (*entity.Offer, error)
	Reject(ctx context.Context, offerID, actorID string) (*entity.Offer, error)
	Counter(ctx context.Context, offerID, actorID string, amount int64) (*entity.Offer, error)
	Withdraw(ctx context.Context, offerID, actorID string) (*entity.Offer, error)
}

type offerService struct {
	offerRepo   repository.OfferRepository
	listingRepo repository.ListingRepository
	listings    ListingService
	notifier    Notifier
	log         logger.Logger
	clock       clock.Clock
	metrics     *metrics.Manager

	// locks serializes offer mutations per listing so the accept cascade is
	// a single critical section.
	locks *keyedMutex
}

func NewOfferService(
	offerRepo repository.OfferRepository,
	listingRepo repository.ListingRepository,
	listings ListingService,
	notifier Notifier,
	log logger.Logger,
	clk clock.Clock,
	m *metrics.Manager,
) OfferService {
	return &offerService{
		offerRepo:   offerRepo,
		listingRepo: listingRepo,
		listings:    listings,
		notifier:    notifier,
		log:         log,
		clock:       clk,
		metrics:     m,
		locks:       newKeyedMutex(),
	}
}

func (s *offerService) Submit(ctx context.Context, listingID, buyerID string, amount int64, message string) (*entity.Offer, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "OfferService.Submit")
	defer span.End()

	unlock := s.locks.Lock(listingID)
	defer unlock()

	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}
	if listing.Status == entity.StatusDeleted {
		return nil, entity.ErrNotFound
	}
	if listing.Status != entity.StatusActive {
		return nil, fmt.Errorf("%w: listing %s is %s, offers require an active listing", entity.ErrInvalidState, listingID, listing.Status)
	}

	offer, err := entity.NewOffer(listing, buyerID, amount, message, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if _, err := s.offerRepo.FindOpenByListingAndBuyer(ctx, listingID, buyerID); err == nil {
		return nil, fmt.Errorf("%w: buyer %s already has an open offer on listing %s", entity.ErrDuplicateOffer, buyerID, listingID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, s.mapRepoError(err)
	}

	id, err := s.offerRepo.Create(ctx, offer)
	if err != nil {
		s.log.Errorf("failed to persist offer on listing %s: %v", listingID, err)
		return nil, fmt.Errorf("%w: %s", entity.ErrUnavailable, err)
	}
	offer.ID = id

	if s.metrics != nil {
		s.metrics.OffersSubmittedTotal.Inc()
	}
	s.log.Infof("offer %s submitted on listing %s by %s for %d", offer.ID, listingID, buyerID, amount)

	if _, err := s.notifier.Dispatch(ctx, entity.NotificationOfferReceived, listing.AuthorID, listing); err != nil {
		s.log.Warnf("failed to notify seller about offer %s: %v", offer.ID, err)
	}

	return offer, nil
}

// ListByListing returns the seller's full view of the negotiation, or just
// the actor's own offers for anyone else.
func (s *offerService) ListByListing(ctx context.Context, listingID, actorID string) ([]entity.Offer, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "OfferService.ListByListing")
	defer span.End()

	listing, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}

	offers, err := s.offerRepo.ListByListing(ctx, listingID, nil)
	if err != nil {
		return nil, s.mapRepoError(err)
	}
	if listing.IsOwner(actorID) {
		return offers, nil
	}

	own := offers[:0]
	for _, o := range offers {
		if o.BuyerID == actorID {
			own = append(own, o)
		}
	}
	return own, nil
}

// Accept closes the negotiation. The listing moves to sold first, which is
// the linearization point: its version check decides any race with another
// accept, a sale or a sweep. Only then does the winning offer flip to
// accepted and every sibling to rejected.
func (s *offerService) Accept(ctx context.Context, offerID, actorID string) (*entity.Offer, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "OfferService.Accept")
	defer span.End()

	offer, err := s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}

	unlock := s.locks.Lock(offer.ListingID)
	defer unlock()

	// Reload under the lock; the offer may have moved while we waited.
	offer, err = s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}
	if err := s.authorizeResponse(offer, entity.OfferAccepted, actorID); err != nil {
		return nil, err
	}

	siblings, err := s.offerRepo.ListByListing(ctx, offer.ListingID, entity.OpenOfferStatuses)
	if err != nil {
		return nil, s.mapRepoError(err)
	}

	listing, err := s.listings.Transition(ctx, offer.ListingID, entity.TriggerOfferAccepted, SystemActor)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidTransition) || errors.Is(err, entity.ErrNotFound) {
			return nil, fmt.Errorf("%w: listing %s is no longer available", entity.ErrInvalidState, offer.ListingID)
		}
		return nil, err
	}

	if err := s.applyResponse(ctx, offer, entity.OfferAccepted, false, 0); err != nil {
		// The listing is already sold; surface the offer failure but do not
		// try to unwind the sale.
		s.log.Errorf("listing %s sold but offer %s failed to accept: %v", offer.ListingID, offerID, err)
		return nil, err
	}

	rejected, err := s.offerRepo.UpdateStatusByListing(ctx, offer.ListingID, entity.OpenOfferStatuses, entity.OfferRejected, offer.ID, s.clock.Now())
	if err != nil {
		s.log.Errorf("failed to reject sibling offers on listing %s: %v", offer.ListingID, err)
	} else if rejected > 0 {
		s.log.Infof("rejected %d sibling offers on sold listing %s", rejected, offer.ListingID)
	}
	for i := range siblings {
		if siblings[i].ID == offer.ID {
			continue
		}
		if _, err := s.notifier.Dispatch(ctx, entity.NotificationOfferRejected, siblings[i].BuyerID, listing); err != nil {
			s.log.Warnf("failed to notify buyer %s about rejected offer: %v", siblings[i].BuyerID, err)
		}
	}

	if _, err := s.notifier.Dispatch(ctx, entity.NotificationOfferAccepted, offer.Counterparty(actorID), listing); err != nil {
		s.log.Warnf("failed to notify counterparty about accepted offer %s: %v", offer.ID, err)
	}

	return offer, nil
}

func (s *offerService) Reject(ctx context.Context, offerID, actorID string) (*entity.Offer, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "OfferService.Reject")
	defer span.End()

	return s.respond(ctx, offerID, actorID, entity.OfferRejected, entity.NotificationOfferRejected, false, 0)
}

func (s *offerService) Counter(ctx context.Context, offerID, actorID string, amount int64) (*entity.Offer, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "OfferService.Counter")
	defer span.End()

	if amount < 0 {
		return nil, fmt.Errorf("%w: counter amount cannot be negative", entity.ErrValidationFailed)
	}
	return s.respond(ctx, offerID, actorID, entity.OfferCountered, entity.NotificationOfferCountered, true, amount)
}

func (s *offerService) Withdraw(ctx context.Context, offerID, actorID string) (*entity.Offer, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "OfferService.Withdraw")
	defer span.End()

	return s.respond(ctx, offerID, actorID, entity.OfferWithdrawn, entity.NotificationOfferWithdrawn, false, 0)
}

// respond handles the non-terminal-listing responses: reject, counter,
// withdraw. Accept has its own path because it also sells the listing.
func (s *offerService) respond(ctx context.Context, offerID, actorID string, next entity.OfferStatus, kind entity.NotificationKind, setAmount bool, amount int64) (*entity.Offer, error) {
	offer, err := s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}

	unlock := s.locks.Lock(offer.ListingID)
	defer unlock()

	offer, err = s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, s.mapRepoError(err)
	}
	if err := s.authorizeResponse(offer, next, actorID); err != nil {
		return nil, err
	}

	if err := s.applyResponse(ctx, offer, next, setAmount, amount); err != nil {
		return nil, err
	}

	listing, err := s.listingRepo.GetByID(ctx, offer.ListingID)
	if err != nil {
		s.log.Warnf("offer %s responded but listing %s could not be loaded for notification: %v", offer.ID, offer.ListingID, err)
		return offer, nil
	}
	if _, err := s.notifier.Dispatch(ctx, kind, offer.Counterparty(actorID), listing); err != nil {
		s.log.Warnf("failed to notify counterparty about offer %s: %v", offer.ID, err)
	}

	return offer, nil
}

// applyResponse moves the offer through its state machine and persists the
// change with a version check.
func (s *offerService) applyResponse(ctx context.Context, offer *entity.Offer, next entity.OfferStatus, setAmount bool, amount int64) error {
	priorVersion := offer.Version
	if err := offer.Transition(next, s.clock.Now()); err != nil {
		return err
	}
	if setAmount {
		offer.Amount = amount
	}

	params := repository.UpdateOfferStatusParams{
		OfferID:   offer.ID,
		Status:    offer.Status,
		UpdatedAt: offer.UpdatedAt,
		Version:   priorVersion,
		SetAmount: setAmount,
		Amount:    amount,
	}
	if err := s.offerRepo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			return fmt.Errorf("%w: offer %s changed concurrently", entity.ErrInvalidState, offer.ID)
		}
		return s.mapRepoError(err)
	}
	offer.Version = priorVersion + 1

	if s.metrics != nil {
		s.metrics.OfferResponsesTotal.WithLabelValues(string(next)).Inc()
	}
	s.log.Infof("offer %s on listing %s moved to %s", offer.ID, offer.ListingID, next)
	return nil
}

// authorizeResponse enforces who may drive each offer response. The seller
// decides on open offers; a countered offer returns the decision to the
// buyer, who may also accept or reject it. Withdrawal always belongs to the
// buyer, countering to the seller.
func (s *offerService) authorizeResponse(offer *entity.Offer, next entity.OfferStatus, actorID string) error {
	if !offer.IsOpen() {
		return fmt.Errorf("%w: offer %s is already %s", entity.ErrInvalidState, offer.ID, offer.Status)
	}

	var allowed bool
	switch next {
	case entity.OfferAccepted, entity.OfferRejected:
		allowed = actorID == offer.SellerID || (actorID == offer.BuyerID && offer.Status == entity.OfferCountered)
	case entity.OfferCountered:
		// Role only; a repeated counter fails the state machine instead.
		allowed = actorID == offer.SellerID
	case entity.OfferWithdrawn:
		allowed = actorID == offer.BuyerID
	}
	if !allowed {
		s.log.Warnf("actor %s may not move offer %s from %s to %s", actorID, offer.ID, offer.Status, next)
		return entity.ErrNotAuthorized
	}
	return nil
}

func (s *offerService) mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return entity.ErrNotFound
	case errors.Is(err, repository.ErrOptimisticLock):
		return fmt.Errorf("%w: concurrent modification", entity.ErrInvalidState)
	default:
		return fmt.Errorf("%w: %s", entity.ErrUnavailable, err)
	}
}
