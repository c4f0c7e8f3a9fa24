package model

import (
	"encoding/json"
	"strings"
)

// EventMessageReceived is the only webhook event type the inbound flow acts on.
const EventMessageReceived = "message.received"

// WebhookEvent is the subset of the Telnyx messaging webhook we read.
type WebhookEvent struct {
	Data WebhookData `json:"data"`
}

type WebhookData struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Payload   WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	ID        string          `json:"id"`
	Direction string          `json:"direction"`
	From      json.RawMessage `json:"from"`
	To        json.RawMessage `json:"to"`
	Text      string          `json:"text"`
}

// SenderPhone is the lead's number.
func (e WebhookEvent) SenderPhone() string {
	return PhoneNumber(e.Data.Payload.From)
}

// RecipientPhone is the organization's number.
func (e WebhookEvent) RecipientPhone() string {
	return PhoneNumber(e.Data.Payload.To)
}

// MessageID prefers the payload id and falls back to the envelope id.
func (e WebhookEvent) MessageID() string {
	if e.Data.Payload.ID != "" {
		return e.Data.Payload.ID
	}
	return e.Data.ID
}

func (e WebhookEvent) IsOutbound() bool {
	return e.Data.Payload.Direction == string(Outbound)
}

type phoneField struct {
	PhoneNumber string `json:"phone_number"`
}

// PhoneNumber normalizes a from/to field that may be an object with a
// phone_number, an array of such objects (first one wins) or a bare string.
// It returns "" when no number can be found.
func PhoneNumber(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	switch trimmed[0] {
	case '{':
		var f phoneField
		if err := json.Unmarshal(raw, &f); err != nil {
			return ""
		}
		return f.PhoneNumber
	case '[':
		var fs []phoneField
		if err := json.Unmarshal(raw, &fs); err != nil || len(fs) == 0 {
			return ""
		}
		return fs[0].PhoneNumber
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	default:
		return ""
	}
}
