package announce

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmylchreest/voiceclock/internal/clock"
	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/model"
	"github.com/jmylchreest/voiceclock/internal/schedule"
)

// ErrNotRunning is returned by AnnounceNow when the scheduler loop has stopped.
var ErrNotRunning = errors.New("scheduler is not running")

type forceResult struct {
	announcement *model.Announcement
	err          error
}

// Scheduler evaluates every tick against the current settings and hands
// due boundaries to the dispatcher. All evaluation happens on the Run
// goroutine.
type Scheduler struct {
	logger     *slog.Logger
	sampler    *clock.Sampler
	clock      clock.Clock
	settings   *config.Snapshot
	dispatcher *Dispatcher

	forceCh chan chan forceResult
	doneCh  chan struct{}
}

// NewScheduler creates a Scheduler.
func NewScheduler(sampler *clock.Sampler, clk clock.Clock, settings *config.Snapshot, dispatcher *Dispatcher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return &Scheduler{
		logger:     logger,
		sampler:    sampler,
		clock:      clk,
		settings:   settings,
		dispatcher: dispatcher,
		forceCh:    make(chan chan forceResult),
		doneCh:     make(chan struct{}),
	}
}

// Run processes ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.doneCh)

	ticks := s.sampler.Start(ctx)
	s.logger.Info("scheduler started", "cadence", s.sampler.Cadence())

	for {
		select {
		case <-ctx.Done():
			s.dispatcher.Wait()
			s.logger.Info("scheduler stopped")
			return ctx.Err()

		case tick, ok := <-ticks:
			if !ok {
				s.dispatcher.Wait()
				return ctx.Err()
			}
			s.HandleTick(tick)

		case reply := <-s.forceCh:
			a, err := s.announceNow()
			reply <- forceResult{announcement: a, err: err}
		}
	}
}

// HandleTick evaluates one tick and dispatches it if due.
// It returns true if an announcement was dispatched.
func (s *Scheduler) HandleTick(tick clock.Tick) bool {
	settings := s.settings.Load()

	dec := schedule.Evaluate(tick, settings.Interval, s.dispatcher.Last())
	if !dec.Due {
		return false
	}

	s.logger.Debug("boundary due", "slot", dec.Slot.String(), "interval", int(settings.Interval), "muted", settings.Muted)
	return s.dispatcher.Dispatch(dec, settings)
}

// AnnounceNow asks the Run loop to play the current time immediately.
func (s *Scheduler) AnnounceNow(ctx context.Context) (*model.Announcement, error) {
	reply := make(chan forceResult, 1)

	select {
	case s.forceCh <- reply:
	case <-s.doneCh:
		return nil, ErrNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.announcement, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) announceNow() (*model.Announcement, error) {
	now, err := s.clock.Now()
	if err != nil {
		return nil, err
	}
	return s.dispatcher.AnnounceNow(now, s.settings.Load())
}

// Dispatcher returns the scheduler's dispatcher.
func (s *Scheduler) Dispatcher() *Dispatcher {
	return s.dispatcher
}
