// Package queue defines the message contract between the webhook service and
// the dispatch service. The webhook handler publishes envelopes and returns
// 200 to the carrier immediately; all processing happens on the consumer side.
package queue

import "github.com/renomarket/dispatch-be/internal/domain"

// Envelope type discriminators.
const (
	TypeInbound = "inbound"
	TypeStatus  = "status"
)

// Envelope wraps one carrier callback for transit through RabbitMQ.
// Exactly one of Inbound or Status is set, matching Type.
type Envelope struct {
	Type    string                 `json:"type"`
	Inbound *domain.InboundMessage `json:"inbound,omitempty"`
	Status  *DeliveryStatus        `json:"status,omitempty"`
}

// DeliveryStatus is a carrier status callback for an outbound message.
type DeliveryStatus struct {
	ProviderMessageID string `json:"provider_message_id"`
	Status            string `json:"status"`
}

// Valid reports whether the envelope type matches its payload.
func (e *Envelope) Valid() bool {
	switch e.Type {
	case TypeInbound:
		return e.Inbound != nil && e.Inbound.ProviderMessageID != ""
	case TypeStatus:
		return e.Status != nil && e.Status.ProviderMessageID != ""
	default:
		return false
	}
}
