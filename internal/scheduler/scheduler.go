package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the snapshot served by the scheduler status endpoint.
type Status struct {
	Running      bool      `json:"running"`
	Interval     string    `json:"interval"`
	Ticks        int64     `json:"ticks"`
	LastTickAt   time.Time `json:"lastTickAt,omitzero"`
	LastDuration string    `json:"lastDuration,omitempty"`
}

// Scheduler runs the queued-burst sweep on a fixed interval.
type Scheduler struct {
	interval time.Duration
	sweep    func(context.Context)

	running atomic.Bool
	ticks   atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastMu       sync.Mutex
	lastTickAt   time.Time
	lastDuration time.Duration
}

func New(interval time.Duration, sweep func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if sweep == nil {
		return nil, errors.New("sweep func must not be nil")
	}
	return &Scheduler{
		interval: interval,
		sweep:    sweep,
		done:     make(chan struct{}),
	}, nil
}

// Start runs one sweep immediately and then one per interval. It returns
// false when the scheduler is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler started", "interval", s.interval.String())

		s.safeSweep(ctx)

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeSweep(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	st := Status{
		Running:  s.running.Load(),
		Interval: s.interval.String(),
		Ticks:    s.ticks.Load(),
	}

	s.lastMu.Lock()
	st.LastTickAt = s.lastTickAt
	if !s.lastTickAt.IsZero() {
		st.LastDuration = s.lastDuration.String()
	}
	s.lastMu.Unlock()
	return st
}

func (s *Scheduler) safeSweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler sweep panic recovered", "panic", r)
		}
		s.record(start)
	}()

	s.sweep(ctx)
	slog.Info("scheduler sweep completed", "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) record(start time.Time) {
	s.ticks.Add(1)

	s.lastMu.Lock()
	s.lastTickAt = start
	s.lastDuration = time.Since(start)
	s.lastMu.Unlock()
}
