package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pail-dev/pail/internal/models"
	"github.com/pail-dev/pail/internal/store"
	"github.com/pail-dev/pail/pkg/logger"
)

const pollInterval = 30 * time.Second

// RunFunc invokes a scheduled generation for a channel at the given tick
// instant and reports whether it produced an article (false, nil means
// "skipped: empty window").
type RunFunc func(ctx context.Context, channel *models.OutputChannel, tick time.Time) (bool, error)

// Scheduler wakes periodically, computes which channels are due, and fires
// bounded-concurrency generation runs through RunFunc.
type Scheduler struct {
	repo     store.Repository
	run      RunFunc
	tz       *time.Location
	gate     *semaphore.Weighted
	log      *logger.Logger

	mu        sync.Mutex
	inFlight  map[string]bool
}

// New builds a Scheduler. maxConcurrent is the size of the counting
// semaphore gating simultaneous generations across all channels.
func New(repo store.Repository, run RunFunc, tz *time.Location, maxConcurrent int, log *logger.Logger) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		repo:     repo,
		run:      run,
		tz:       tz,
		gate:     semaphore.NewWeighted(int64(maxConcurrent)),
		log:      log.WithComponent("scheduler"),
		inFlight: make(map[string]bool),
	}
}

// Run blocks, waking every 30 seconds, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Msg("scheduler started")
	defer s.log.Info().Msg("scheduler shutting down")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	channels, err := s.repo.ListEnabledOutputChannels(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load channels for scheduling")
		return
	}

	now := time.Now().UTC()

	for _, ch := range channels {
		if !s.markIfFree(ch.ID) {
			continue
		}

		due, tick, ok := s.evaluate(ctx, ch, now)
		if !ok || !due {
			s.clear(ch.ID)
			continue
		}

		go s.fire(ctx, ch, tick)
	}
}

// evaluate reports whether a channel is due, and if so the tick instant it
// is due at — the wall-clock moment the schedule fired, not the moment the
// run actually executes. Callers must still call clear() when this returns
// ok=false or due=false, since evaluate does not fire.
func (s *Scheduler) evaluate(ctx context.Context, ch *models.OutputChannel, now time.Time) (due bool, tick time.Time, ok bool) {
	if ch.Schedule == nil {
		return false, time.Time{}, false // CLI-only channel, never fires from the Scheduler
	}

	sched, err := Parse(*ch.Schedule)
	if err != nil {
		s.log.Warn().Err(err).Str("channel", ch.Slug).Msg("invalid schedule, skipping")
		return false, time.Time{}, false
	}

	var after time.Time
	if ch.LastGenerated != nil {
		after = *ch.LastGenerated
	} else {
		after, err = s.repo.GetOrCreateFirstSeen(ctx, ch.ID, now)
		if err != nil {
			s.log.Error().Err(err).Str("channel", ch.Slug).Msg("failed to load first-seen")
			return false, time.Time{}, false
		}
	}

	next := sched.NextTick(s.tz, after)
	if next.IsZero() || next.After(now) {
		return false, time.Time{}, true
	}
	return true, next, true
}

func (s *Scheduler) fire(ctx context.Context, ch *models.OutputChannel, tick time.Time) {
	defer s.clear(ch.ID)

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return // context cancelled while waiting for a permit
	}
	defer s.gate.Release(1)

	if ctx.Err() != nil {
		return
	}

	log := s.log.WithChannel(ch.Slug)
	log.Info().Msg("scheduled generation starting")

	produced, err := s.run(ctx, ch, tick)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("scheduled generation failed")
	case produced:
		log.Info().Msg("scheduled generation complete")
	default:
		log.Debug().Msg("scheduled generation skipped (no content)")
	}
}

// markIfFree marks a channel in-flight, returning false if it already was.
func (s *Scheduler) markIfFree(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[channelID] {
		return false
	}
	s.inFlight[channelID] = true
	return true
}

func (s *Scheduler) clear(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, channelID)
}
