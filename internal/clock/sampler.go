// Package clock samples wall-clock time at a fixed cadence.
package clock

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock reads the current wall-clock time.
type Clock interface {
	Now() (time.Time, error)
}

// SystemClock reads the local system clock.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() (time.Time, error) {
	return time.Now(), nil
}

// Tick is one sampled observation of wall-clock time.
type Tick struct {
	At     time.Time
	Hour   int // 0-23
	Minute int // 0-59
	Second int

	// Jumped is set when wall time moved backwards or further forward
	// than the cadence allows since the previous sample (suspend/resume,
	// manual clock change).
	Jumped bool
}

// NewTick builds a Tick from t.
func NewTick(t time.Time) Tick {
	return Tick{
		At:     t,
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// MinuteStart returns the tick's time truncated to the start of its minute.
// Zone offsets are whole minutes, so truncating the instant keeps the two
// passes through a repeated DST hour distinct.
func (t Tick) MinuteStart() time.Time {
	return t.At.Truncate(time.Minute)
}

// Sampler produces Ticks at a fixed cadence.
type Sampler struct {
	mu      sync.Mutex
	logger  *slog.Logger
	clock   Clock
	cadence time.Duration

	// Wall time of the previous successful sample
	last time.Time

	wakeCh    chan struct{}
	cadenceCh chan struct{}
}

// NewSampler creates a Sampler reading from clock every cadence.
func NewSampler(clock Clock, cadence time.Duration, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = SystemClock{}
	}

	return &Sampler{
		logger:    logger,
		clock:     clock,
		cadence:   cadence,
		wakeCh:    make(chan struct{}, 1),
		cadenceCh: make(chan struct{}, 1),
	}
}

// Cadence returns the sampling cadence.
func (s *Sampler) Cadence() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cadence
}

// SetCadence changes the cadence. A running sampler resets its ticker.
func (s *Sampler) SetCadence(cadence time.Duration) {
	if cadence <= 0 {
		return
	}

	s.mu.Lock()
	s.cadence = cadence
	s.mu.Unlock()

	select {
	case s.cadenceCh <- struct{}{}:
	default:
	}
}

// Wake requests an immediate sample, e.g. after system resume.
// Does not block; repeated calls before the sample is taken coalesce.
func (s *Sampler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Start samples immediately, then every cadence, until ctx is cancelled.
// The returned channel is closed after the ticker has been released.
func (s *Sampler) Start(ctx context.Context) <-chan Tick {
	out := make(chan Tick)

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.Cadence())
		defer ticker.Stop()

		s.logger.Debug("clock sampler started", "cadence", s.Cadence())

		emit := func() bool {
			tick, ok := s.Sample()
			if !ok {
				return true
			}
			select {
			case out <- tick:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("clock sampler stopped")
				return
			case <-s.wakeCh:
				s.logger.Debug("clock sampler woken")
				if !emit() {
					return
				}
			case <-s.cadenceCh:
				ticker.Reset(s.Cadence())
				s.logger.Debug("clock sampler cadence changed", "cadence", s.Cadence())
			case <-ticker.C:
				if !emit() {
					return
				}
			}
		}
	}()

	return out
}

// Sample reads the clock once. Returns false if the clock could not be read.
func (s *Sampler) Sample() (Tick, bool) {
	now, err := s.clock.Now()
	if err != nil {
		s.logger.Warn("failed to read clock, skipping tick", "error", err)
		return Tick{}, false
	}

	tick := NewTick(now)

	s.mu.Lock()
	last := s.last
	cadence := s.cadence
	s.last = now
	s.mu.Unlock()

	if !last.IsZero() {
		// Round(0) strips the monotonic reading so the comparison uses
		// wall time, which keeps advancing while the system sleeps.
		elapsed := now.Round(0).Sub(last.Round(0))
		switch {
		case elapsed < 0:
			tick.Jumped = true
			s.logger.Info("clock moved backwards", "by", -elapsed, "now", now.Format("15:04:05"))
		case elapsed > 2*cadence:
			tick.Jumped = true
			s.logger.Info("clock jumped forward", "by", elapsed, "now", now.Format("15:04:05"))
		}
	}

	return tick, true
}
