package service

import (
	"context"
	"time"
)

// Pacer enforces a fixed spacing between consecutive gateway calls.
type Pacer struct {
	spacing time.Duration
	sleep   func(ctx context.Context, d time.Duration)
}

func NewPacer(spacing time.Duration) *Pacer {
	return &Pacer{spacing: spacing, sleep: sleepCtx}
}

// WithSleep replaces the wait primitive, mainly so tests can count waits.
func (p *Pacer) WithSleep(fn func(ctx context.Context, d time.Duration)) *Pacer {
	p.sleep = fn
	return p
}

func (p *Pacer) Wait(ctx context.Context) {
	if p.spacing <= 0 {
		return
	}
	p.sleep(ctx, p.spacing)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
