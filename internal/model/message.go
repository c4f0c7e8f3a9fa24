package model

import "time"

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

type Status string

const (
	Queued   Status = "queued"
	Sent     Status = "sent"
	Failed   Status = "failed"
	Received Status = "received"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s != Queued
}

// MessageRecord is one row of lead_texts: a single send or receive attempt.
type MessageRecord struct {
	ID               string    `json:"id"`
	OrgID            string    `json:"org_id"`
	LeadID           *string   `json:"lead_id"`
	Number           string    `json:"number"`
	FromNumber       string    `json:"from_number"`
	Message          string    `json:"message"`
	Direction        Direction `json:"direction"`
	Status           Status    `json:"status"`
	GatewayMessageID *string   `json:"telnyx_message_id"`
	Error            *string   `json:"error"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Outcome is the normalized result of handing one record to the gateway.
type Outcome struct {
	Status           Status
	GatewayMessageID *string
	Error            *string
}

func (o Outcome) OK() bool {
	return o.Status == Sent
}

func SentOutcome(gatewayMessageID *string) Outcome {
	return Outcome{Status: Sent, GatewayMessageID: gatewayMessageID}
}

func FailedOutcome(reason string) Outcome {
	return Outcome{Status: Failed, Error: &reason}
}

// BurstSummary aggregates one dispatch run. Sent+Failed always equals Processed.
type BurstSummary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}
