package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/peppermint/listing-service/internal/domain/entity"
	"github.com/peppermint/listing-service/internal/platform/clock"
	"github.com/peppermint/listing-service/internal/platform/logger"
	"github.com/peppermint/listing-service/internal/platform/metrics"
	"github.com/peppermint/listing-service/internal/repository"
	"github.com/peppermint/listing-service/internal/service"
)

// Transitioner is the slice of the listing service the sweep drives.
type Transitioner interface {
	Transition(ctx context.Context, listingID string, trigger entity.Trigger, actorID string) (*entity.Listing, error)
}

// SweepResult summarizes one pass over the due listings.
type SweepResult struct {
	Expired     int
	SoldExpired int
	Purged      int
	Failures    int
}

// Scheduler walks listings past their lifecycle dates and drives them through
// the same transitions an owner would, acting as the system identity.
type Scheduler struct {
	repo         repository.ListingRepository
	transitioner Transitioner
	log          logger.Logger
	clock        clock.Clock
	metrics      *metrics.Manager
	interval     time.Duration
	batchSize    int
}

func New(
	repo repository.ListingRepository,
	transitioner Transitioner,
	log logger.Logger,
	clk clock.Clock,
	m *metrics.Manager,
	interval time.Duration,
	batchSize int,
) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Scheduler{
		repo:         repo,
		transitioner: transitioner,
		log:          log,
		clock:        clk,
		metrics:      m,
		interval:     interval,
		batchSize:    batchSize,
	}
}

// Run sweeps on a fixed interval until the context is canceled. The first
// sweep happens immediately so a restarted service catches up without waiting
// a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Infof("lifecycle scheduler started, interval %s, batch size %d", s.interval, s.batchSize)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Infof("lifecycle scheduler stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	started := time.Now()
	result, err := s.Sweep(ctx, s.clock.Now())
	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		s.log.Errorf("lifecycle sweep aborted: %v", err)
		return
	}
	s.log.Infof("lifecycle sweep done: %d expired, %d sold-expired, %d purged, %d failures",
		result.Expired, result.SoldExpired, result.Purged, result.Failures)
}

// Sweep runs the three lifecycle phases against the state as of now. Each
// listing transitions independently; one failure never stops the batch. A
// listing that a concurrent writer already moved simply fails its version
// check and is picked up correctly on the next sweep, so sweeping twice over
// the same state is harmless.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	expired, err := s.sweepPhase(ctx, sweepPhase{
		statuses: []entity.ListingStatus{entity.StatusActive},
		field:    repository.DueByExpiration,
		trigger:  entity.TriggerExpire,
		name:     "expire",
	}, now, &result)
	if err != nil {
		return result, err
	}
	result.Expired = expired

	soldExpired, err := s.sweepPhase(ctx, sweepPhase{
		statuses: []entity.ListingStatus{entity.StatusSold},
		field:    repository.DueByExpiration,
		trigger:  entity.TriggerExpire,
		name:     "sold_expire",
	}, now, &result)
	if err != nil {
		return result, err
	}
	result.SoldExpired = soldExpired

	purged, err := s.sweepPhase(ctx, sweepPhase{
		statuses: []entity.ListingStatus{entity.StatusActive, entity.StatusExpired, entity.StatusSold, entity.StatusSoldExpired},
		field:    repository.DueByPurge,
		trigger:  entity.TriggerPurge,
		name:     "purge",
	}, now, &result)
	if err != nil {
		return result, err
	}
	result.Purged = purged

	return result, nil
}

type sweepPhase struct {
	statuses []entity.ListingStatus
	field    repository.DueField
	trigger  entity.Trigger
	name     string
}

func (s *Scheduler) sweepPhase(ctx context.Context, phase sweepPhase, now time.Time, result *SweepResult) (int, error) {
	due, err := s.repo.FindDue(ctx, phase.statuses, phase.field, now, s.batchSize)
	if err != nil {
		return 0, err
	}

	transitioned := 0
	for i := range due {
		if err := ctx.Err(); err != nil {
			return transitioned, err
		}

		_, err := s.transitioner.Transition(ctx, due[i].ID, phase.trigger, service.SystemActor)
		switch {
		case err == nil:
			transitioned++
			if s.metrics != nil {
				s.metrics.SweepListingsTotal.WithLabelValues(phase.name).Inc()
			}
		case errors.Is(err, entity.ErrInvalidTransition), errors.Is(err, entity.ErrNotFound):
			// Someone else already moved this listing. Nothing to fix.
			s.log.Debugf("sweep %s skipped listing %s: %v", phase.name, due[i].ID, err)
		default:
			result.Failures++
			if s.metrics != nil {
				s.metrics.SweepFailuresTotal.Inc()
			}
			s.log.Warnf("sweep %s failed on listing %s: %v", phase.name, due[i].ID, err)
		}
	}
	return transitioned, nil
}
