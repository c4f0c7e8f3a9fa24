package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/glonboarding/hr-lambda-telnyx/internal/cache"
	"github.com/glonboarding/hr-lambda-telnyx/internal/client"
	"github.com/glonboarding/hr-lambda-telnyx/internal/model"
	"github.com/glonboarding/hr-lambda-telnyx/internal/repo"
)

type Gateway interface {
	Send(ctx context.Context, req client.SendRequest) (*client.Response, error)
}

// Sender delivers one outbound record and persists its outcome. The burst
// dispatcher and the inbound auto-reply both go through Deliver.
type Sender struct {
	gateway  Gateway
	messages repo.MessageRepository
	leads    repo.LeadRepository

	timeout    time.Duration
	contentMax int

	onSent func(ctx context.Context, recordID, gatewayMessageID string) error
}

func NewSender(gateway Gateway, messages repo.MessageRepository, leads repo.LeadRepository, timeout time.Duration) *Sender {
	return &Sender{
		gateway:  gateway,
		messages: messages,
		leads:    leads,
		timeout:  timeout,
	}
}

// WithContentMax rejects messages longer than n runes without calling the gateway.
func (s *Sender) WithContentMax(n int) *Sender {
	s.contentMax = n
	return s
}

// CacheSent is a sent hook that records each delivery in mc.
func CacheSent(mc cache.MessageCache) func(ctx context.Context, recordID, gatewayMessageID string) error {
	return func(ctx context.Context, recordID, gatewayMessageID string) error {
		return mc.StoreSent(ctx, recordID, gatewayMessageID, time.Now().UTC())
	}
}

func (s *Sender) WithSentHook(onSent func(ctx context.Context, recordID, gatewayMessageID string) error) *Sender {
	s.onSent = onSent
	return s
}

// SendOne hands rec to the gateway and normalizes whatever comes back.
func (s *Sender) SendOne(ctx context.Context, rec model.MessageRecord) model.Outcome {
	if s.contentMax > 0 && utf8.RuneCountInString(rec.Message) > s.contentMax {
		return model.FailedOutcome(fmt.Sprintf("content exceeds %d chars", s.contentMax))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.gateway.Send(ctx, client.SendRequest{
		To:   []string{rec.Number},
		From: rec.FromNumber,
		Text: rec.Message,
	})
	return Normalize(resp, err)
}

// Deliver sends rec and records the outcome on the record and its lead.
// Store update failures are logged; the returned outcome reflects the gateway.
func (s *Sender) Deliver(ctx context.Context, rec model.MessageRecord) model.Outcome {
	outcome := s.SendOne(ctx, rec)

	if err := s.messages.UpdateStatus(ctx, rec.ID, outcome); err != nil {
		slog.Error("lead text status update failed",
			"lead_text_id", rec.ID, "status", outcome.Status, "error", err)
	}

	if !outcome.OK() {
		slog.Warn("send failed", "lead_text_id", rec.ID, "to", rec.Number, "error", deref(outcome.Error))
		return outcome
	}

	slog.Info("sent", "lead_text_id", rec.ID, "to", rec.Number, "gateway_message_id", deref(outcome.GatewayMessageID))

	if rec.LeadID != nil {
		if _, err := s.leads.UpdateMessageStatusIfQueued(ctx, *rec.LeadID, model.LeadSent); err != nil {
			slog.Warn("lead message status update failed", "lead_id", *rec.LeadID, "error", err)
		}
	}

	if s.onSent != nil && outcome.GatewayMessageID != nil {
		if err := s.onSent(ctx, rec.ID, *outcome.GatewayMessageID); err != nil {
			slog.Warn("sent hook failed", "lead_text_id", rec.ID, "error", err)
		}
	}
	return outcome
}

// Normalize turns a gateway answer or transport fault into an Outcome.
func Normalize(resp *client.Response, err error) model.Outcome {
	if err != nil {
		reason := err.Error()
		if reason == "" {
			reason = "Request failed"
		}
		return model.FailedOutcome(reason)
	}
	if resp == nil {
		return model.FailedOutcome("Request failed")
	}
	if !resp.OK {
		reason := resp.Error
		if reason == "" {
			reason = "Unknown error"
		}
		return model.FailedOutcome(reason)
	}
	return model.SentOutcome(GatewayMessageID(resp.Body))
}

// GatewayMessageID finds the external id in a gateway body, trying data.id,
// then id, then messages[0].id.
func GatewayMessageID(body json.RawMessage) *string {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}

	if id := objectID(doc["data"]); id != "" {
		return &id
	}
	if id := stringValue(doc["id"]); id != "" {
		return &id
	}

	var messages []json.RawMessage
	if err := json.Unmarshal(doc["messages"], &messages); err == nil && len(messages) > 0 {
		if id := objectID(messages[0]); id != "" {
			return &id
		}
	}
	return nil
}

func objectID(raw json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return stringValue(obj["id"])
}

func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
