package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glonboarding/hr-lambda-telnyx/internal/cache"
	"github.com/glonboarding/hr-lambda-telnyx/internal/model"
	"github.com/glonboarding/hr-lambda-telnyx/internal/repo"
)

// BurstSpacing is the fixed delay between two sends of one burst.
const BurstSpacing = 150 * time.Millisecond

var ErrBurstInProgress = errors.New("burst already in progress for org")

type Dispatcher struct {
	messages repo.MessageRepository
	sender   *Sender
	lock     cache.BurstLock
	pacer    *Pacer
}

func NewDispatcher(messages repo.MessageRepository, sender *Sender, lock cache.BurstLock) *Dispatcher {
	if lock == nil {
		lock = cache.NewLocalBurstLock()
	}
	return &Dispatcher{
		messages: messages,
		sender:   sender,
		lock:     lock,
		pacer:    NewPacer(BurstSpacing),
	}
}

func (d *Dispatcher) WithPacer(p *Pacer) *Dispatcher {
	d.pacer = p
	return d
}

// DispatchBurst sends every queued outbound record of orgID, one at a time.
// Per-record failures are counted, never returned; only a failure to take or
// keep the org lock or to query the queue aborts the run.
func (d *Dispatcher) DispatchBurst(ctx context.Context, orgID string) (model.BurstSummary, error) {
	var summary model.BurstSummary

	if orgID == "" {
		return summary, errors.New("org id must not be empty")
	}

	lease, ok, err := d.lock.Acquire(ctx, orgID)
	if err != nil {
		return summary, fmt.Errorf("acquire burst lock: %w", err)
	}
	if !ok {
		return summary, ErrBurstInProgress
	}
	defer lease.Release()

	slog.Info("burst start", "org_id", orgID)

	rows, err := d.messages.QueuedOutbound(ctx, orgID)
	if err != nil {
		return summary, fmt.Errorf("query queued texts: %w", err)
	}

	if len(rows) == 0 {
		slog.Info("no queued texts to send", "org_id", orgID, "count", 0)
		return summary, nil
	}

	slog.Info("queued rows found", "org_id", orgID, "count", len(rows))

	// Once sending starts the run completes; each call has its own timeout.
	run := context.WithoutCancel(ctx)

	for i, rec := range rows {
		// Records left queued after a lost lock belong to whoever took it over.
		if i > 0 {
			if err := lease.Extend(run); err != nil {
				slog.Error("burst stopped, lock not extended",
					"org_id", orgID, "processed", summary.Processed, "remaining", len(rows)-i, "error", err)
				return summary, fmt.Errorf("extend burst lock after %d records: %w", summary.Processed, err)
			}
		}

		outcome := d.sender.Deliver(run, rec)

		summary.Processed++
		if outcome.OK() {
			summary.Sent++
		} else {
			summary.Failed++
		}

		if i < len(rows)-1 {
			d.pacer.Wait(run)
		}
	}

	slog.Info("burst complete",
		"org_id", orgID,
		"processed", summary.Processed,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)
	return summary, nil
}

// DispatchAllQueued runs a burst for every org with queued outbound texts.
// It is the scheduler's tick; it stops between orgs once ctx is canceled.
func (d *Dispatcher) DispatchAllQueued(ctx context.Context) {
	orgs, err := d.messages.OrgsWithQueued(ctx)
	if err != nil {
		slog.Error("list orgs with queued texts failed", "error", err)
		return
	}

	for _, org := range orgs {
		if ctx.Err() != nil {
			return
		}
		if _, err := d.DispatchBurst(ctx, org); err != nil {
			if errors.Is(err, ErrBurstInProgress) {
				slog.Info("burst skipped, already running", "org_id", org)
				continue
			}
			slog.Error("burst failed", "org_id", org, "error", err)
		}
	}
}
