package cache

import (
	"context"
	"errors"
	"time"
)

var ErrLockLost = errors.New("burst lock lost")

type MessageCache interface {
	StoreSent(ctx context.Context, recordID, gatewayMessageID string, sentAt time.Time) error
}

// InboundDeduper remembers external message ids of processed webhook events.
// Forget drops an id again so a redelivery is processed after a failed attempt.
type InboundDeduper interface {
	FirstSeen(ctx context.Context, externalID string) (bool, error)
	Forget(ctx context.Context, externalID string) error
}

// BurstLock keeps two dispatch runs for the same organization from overlapping.
type BurstLock interface {
	Acquire(ctx context.Context, orgID string) (lease Lease, acquired bool, err error)
}

// Lease is one held burst lock. Extend pushes its expiry out again and
// fails with ErrLockLost once another holder may have taken over.
type Lease interface {
	Extend(ctx context.Context) error
	Release()
}
