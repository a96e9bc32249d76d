// internal/types/delivery.go
package types

import "time"

/*
 * Domain types for campaign delivery tracking.
 *
 * A Message is one (campaign, recipient) send. Its State only moves forward
 * along the delivery lifecycle; Stamps records when each milestone was
 * reached and whether that time was observed or inferred from a later
 * receipt. A Receipt is a vendor callback; it is consumed, never stored.
 */

// Channel is the medium a message is sent through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// DeliveryState is a message's position in the delivery lifecycle.
type DeliveryState string

const (
	StateQueued       DeliveryState = "queued"
	StateSent         DeliveryState = "sent"
	StateDelivered    DeliveryState = "delivered"
	StateOpened       DeliveryState = "opened"
	StateClicked      DeliveryState = "clicked"
	StateBounced      DeliveryState = "bounced"
	StateFailed       DeliveryState = "failed"
	StateUnsubscribed DeliveryState = "unsubscribed"
)

// DeliveryStates lists every state in lifecycle order.
var DeliveryStates = []DeliveryState{
	StateQueued, StateSent, StateDelivered, StateOpened, StateClicked,
	StateBounced, StateFailed, StateUnsubscribed,
}

// Valid reports whether s is a known delivery state.
func (s DeliveryState) Valid() bool {
	switch s {
	case StateQueued, StateSent, StateDelivered, StateOpened, StateClicked,
		StateBounced, StateFailed, StateUnsubscribed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition can leave s.
// Clicked ends the success path but still permits unsubscribe, so it is not terminal.
func (s DeliveryState) Terminal() bool {
	return s == StateBounced || s == StateFailed || s == StateUnsubscribed
}

// Stamp records when a milestone was reached.
// Inferred stamps were filled in by catch-up from a later receipt.
type Stamp struct {
	At       time.Time `json:"at"`
	Inferred bool      `json:"inferred,omitempty"`
}

// Message is the per-recipient delivery record.
type Message struct {
	ID              MessageID               `json:"id"`
	CampaignID      CampaignID              `json:"campaignId"`
	CustomerID      CustomerID              `json:"customerId"`
	VendorMessageID VendorMessageID         `json:"vendorMessageId,omitempty"`
	Channel         Channel                 `json:"channel"`
	State           DeliveryState           `json:"state"`
	Stamps          map[DeliveryState]Stamp `json:"stamps,omitempty"`
	Version         int64                   `json:"version"`
	CreatedAt       time.Time               `json:"createdAt"`
}

// Clone returns a copy of m that shares no mutable state with it.
func (m Message) Clone() Message {
	out := m
	out.Stamps = make(map[DeliveryState]Stamp, len(m.Stamps))
	for k, v := range m.Stamps {
		out.Stamps[k] = v
	}
	return out
}

// Reached reports whether the message has a stamp for s.
func (m Message) Reached(s DeliveryState) bool {
	_, ok := m.Stamps[s]
	return ok
}

// Receipt is an inbound vendor delivery-status event.
type Receipt struct {
	VendorMessageID VendorMessageID `json:"vendorMessageId" validate:"required,max=255"`
	Status          DeliveryState   `json:"status" validate:"required,max=32"`
	OccurredAt      time.Time       `json:"occurredAt" validate:"required"`
	CampaignID      CampaignID      `json:"campaignId,omitempty" validate:"omitempty,max=64"`
	CustomerID      CustomerID      `json:"customerId,omitempty" validate:"omitempty,max=255"`
}

// ReceiptOutcome is the result of applying a receipt. Outcomes are values,
// not errors: every one of them is an expected result.
type ReceiptOutcome string

const (
	OutcomeApplied          ReceiptOutcome = "applied"
	OutcomeIgnoredStale     ReceiptOutcome = "ignored_stale"
	OutcomeIgnoredDuplicate ReceiptOutcome = "ignored_duplicate"
	OutcomeRejectedInvalid  ReceiptOutcome = "rejected_invalid_transition"
)
