package repo

import (
	"context"

	"github.com/glonboarding/hr-lambda-telnyx/internal/model"
)

type MessageRepository interface {
	QueuedOutbound(ctx context.Context, orgID string) ([]model.MessageRecord, error)
	Insert(ctx context.Context, rec *model.MessageRecord) (string, error)
	UpdateStatus(ctx context.Context, id string, outcome model.Outcome) error
	OrgsWithQueued(ctx context.Context) ([]string, error)
	ListSent(ctx context.Context, orgID string, limit, offset int) ([]model.MessageRecord, error)
}

type LeadRepository interface {
	// FindByPhone returns nil, nil when no lead has the number.
	FindByPhone(ctx context.Context, phone string) (*model.Lead, error)
	UpdateOptIn(ctx context.Context, id string, optIn model.OptIn) error
	// OptInIfUndecided flips opt_in to true only while it is still null.
	OptInIfUndecided(ctx context.Context, id string) (bool, error)
	UpdateMessageStatusIfQueued(ctx context.Context, id string, status model.LeadMessageStatus) (bool, error)
}

type PromptRepository interface {
	ReplyPrompt(ctx context.Context, orgID string) (string, bool, error)
}
