package generation

import (
	"context"
	"time"

	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
)

// StaleMessage is stored as the error of records swept by the Sweeper.
const StaleMessage = "generation timed out"

// StaleMarker fails processing records older than a cut-off.
type StaleMarker interface {
	MarkStale(ctx context.Context, cutoff time.Time, message string) ([]string, error)
}

// Sweeper periodically fails records stuck in processing, e.g. after the
// process died mid-generation, so polling clients stop waiting.
type Sweeper struct {
	store    StaleMarker
	after    time.Duration
	interval time.Duration
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper. after must exceed the generation timeout.
func NewSweeper(store StaleMarker, after, interval time.Duration, notifier Notifier, log *logger.Logger) *Sweeper {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Sweeper{
		store:    store,
		after:    after,
		interval: interval,
		notifier: notifier,
		log:      log.With("component", "StaleSweeper"),
		now:      time.Now,
	}
}

// Start runs the sweep loop until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("Starting stale record sweeper", "after", s.after, "interval", s.interval)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("Sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.SweepOnce(ctx); err != nil {
					s.log.Warn("Sweep failed", "error", err)
				}
			}
		}
	}()
}

// SweepOnce fails every record processing for longer than the window.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]string, error) {
	swept, err := s.store.MarkStale(ctx, s.now().Add(-s.after), StaleMessage)
	if len(swept) > 0 {
		s.log.Warn("Marked stale generations as failed", "count", len(swept))
		s.notifier.StaleSwept(swept)
	}
	return swept, err
}
