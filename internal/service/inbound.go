package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/glonboarding/hr-lambda-telnyx/internal/cache"
	"github.com/glonboarding/hr-lambda-telnyx/internal/model"
	"github.com/glonboarding/hr-lambda-telnyx/internal/repo"
)

var optOutKeywords = []string{"stop", "end"}

// IsOptOut reports whether text is exactly an opt-out keyword, ignoring case
// and surrounding whitespace. Only lowercasing applies, so fold-equivalent
// runes such as U+017F do not count.
func IsOptOut(text string) bool {
	t := cases.Lower(language.Und).String(strings.TrimSpace(text))
	for _, k := range optOutKeywords {
		if t == k {
			return true
		}
	}
	return false
}

type Ack struct {
	Received bool `json:"received"`
}

var ack = Ack{Received: true}

// InboundProcessor handles one Telnyx messaging webhook event: it stores the
// reply, applies opt-out/opt-in and sends at most one auto-reply per lead.
type InboundProcessor struct {
	messages repo.MessageRepository
	leads    repo.LeadRepository
	prompts  repo.PromptRepository
	sender   *Sender
	dedupe   cache.InboundDeduper
}

func NewInboundProcessor(
	messages repo.MessageRepository,
	leads repo.LeadRepository,
	prompts repo.PromptRepository,
	sender *Sender,
) *InboundProcessor {
	return &InboundProcessor{
		messages: messages,
		leads:    leads,
		prompts:  prompts,
		sender:   sender,
	}
}

func (p *InboundProcessor) WithDeduper(d cache.InboundDeduper) *InboundProcessor {
	p.dedupe = d
	return p
}

// ProcessInbound always acknowledges unless a store lookup or insert fails.
func (p *InboundProcessor) ProcessInbound(ctx context.Context, ev model.WebhookEvent) (Ack, error) {
	if ev.IsOutbound() {
		slog.Info("ignoring outbound message")
		return ack, nil
	}

	from := ev.SenderPhone()
	to := ev.RecipientPhone()
	text := ev.Data.Payload.Text
	messageID := ev.MessageID()

	slog.Info("webhook received",
		"event_type", ev.Data.EventType,
		"from", from,
		"to", to,
		"direction", ev.Data.Payload.Direction,
	)

	if ev.Data.EventType != model.EventMessageReceived {
		slog.Info("ignoring non-message event", "event_type", ev.Data.EventType)
		return ack, nil
	}

	if to == "" {
		slog.Warn("missing organization number (to), cannot route replies")
		return ack, nil
	}
	if from == "" {
		slog.Warn("missing sender number (from)")
		return ack, nil
	}

	lead, err := p.leads.FindByPhone(ctx, from)
	if err != nil {
		return Ack{}, fmt.Errorf("lead lookup: %w", err)
	}
	if lead == nil {
		slog.Warn("no lead found for number", "number", from)
		return ack, nil
	}

	if p.dedupe != nil {
		first, err := p.dedupe.FirstSeen(ctx, messageID)
		if err != nil {
			slog.Warn("inbound dedupe check failed", "error", err)
		} else if !first {
			slog.Info("duplicate inbound event", "lead_id", lead.ID, "message_id", messageID)
			return ack, nil
		}
	}

	leadID := lead.ID
	inbound := &model.MessageRecord{
		OrgID:      lead.OrgID,
		LeadID:     &leadID,
		Number:     from,
		FromNumber: to,
		Message:    text,
		Direction:  model.Inbound,
		Status:     model.Received,
	}
	if messageID != "" {
		inbound.GatewayMessageID = &messageID
	}
	if _, err := p.messages.Insert(ctx, inbound); err != nil {
		p.forget(ctx, messageID)
		return Ack{}, fmt.Errorf("insert inbound text: %w", err)
	}

	if IsOptOut(text) {
		if err := p.leads.UpdateOptIn(ctx, lead.ID, model.OptedOut); err != nil {
			slog.Error("opt-out update failed", "lead_id", lead.ID, "error", err)
		}
		slog.Info("opt-out processed", "lead_id", lead.ID)
		return ack, nil
	}

	if lead.OptIn.Decided() {
		slog.Info("lead already has opt_in set", "lead_id", lead.ID, "opt_in", lead.OptIn.String())
		return ack, nil
	}

	claimed, err := p.leads.OptInIfUndecided(ctx, lead.ID)
	if err != nil {
		slog.Error("opt-in update failed", "lead_id", lead.ID, "error", err)
		return ack, nil
	}
	if !claimed {
		slog.Info("opt-in already decided concurrently", "lead_id", lead.ID)
		return ack, nil
	}

	prompt, ok, err := p.prompts.ReplyPrompt(ctx, lead.OrgID)
	if err != nil {
		slog.Warn("reply prompt lookup failed", "org_id", lead.OrgID, "error", err)
		return ack, nil
	}
	if !ok {
		slog.Warn("no reply_message for org", "org_id", lead.OrgID)
		return ack, nil
	}

	reply := &model.MessageRecord{
		OrgID:      lead.OrgID,
		LeadID:     &leadID,
		Number:     from,
		FromNumber: to,
		Message:    prompt,
		Direction:  model.Outbound,
		Status:     model.Queued,
	}
	if _, err := p.messages.Insert(ctx, reply); err != nil {
		return Ack{}, fmt.Errorf("insert outbound text: %w", err)
	}

	outcome := p.sender.Deliver(context.WithoutCancel(ctx), *reply)
	if outcome.OK() {
		slog.Info("auto-reply sent", "lead_text_id", reply.ID, "gateway_message_id", deref(outcome.GatewayMessageID))
	} else {
		slog.Warn("auto-reply send failed", "lead_text_id", reply.ID, "error", deref(outcome.Error))
	}
	return ack, nil
}

// forget releases the dedupe mark so the carrier's retry is processed again.
func (p *InboundProcessor) forget(ctx context.Context, messageID string) {
	if p.dedupe == nil {
		return
	}
	if err := p.dedupe.Forget(context.WithoutCancel(ctx), messageID); err != nil {
		slog.Warn("inbound dedupe release failed", "message_id", messageID, "error", err)
	}
}
