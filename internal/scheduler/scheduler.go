package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/crop-prediction/internal/weather"
)

// warmTimeout bounds one location's prefetch; the weather download alone may
// take close to a minute.
const warmTimeout = 2 * time.Minute

// Warmer prefetches the data a location's predictions will need.
type Warmer interface {
	Warm(ctx context.Context, c weather.Coordinate) error
}

// Scheduler periodically warms the weather caches for configured locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    Warmer
	locations []weather.Coordinate
	interval  time.Duration
}

// New creates a new Scheduler.
func New(locations []weather.Coordinate, interval time.Duration, warmer Warmer) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		warmer:    warmer,
		locations: locations,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		slog.Info("scheduler: no warm-up locations configured; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	_, err := s.scheduler.Every(interval).Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce warms every location concurrently and waits for all of them.
func (s *Scheduler) RunOnce() {
	slog.Info("scheduler: running cache warm-up job", "locations", len(s.locations))

	var wg sync.WaitGroup
	for _, loc := range s.locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
			defer cancel()

			if err := s.warmer.Warm(ctx, loc); err != nil {
				slog.Warn("scheduler: warm-up failed", "location", loc.Key(), "err", err)
			}
		}()
	}
	wg.Wait()
	slog.Info("scheduler: completed cache warm-up job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
