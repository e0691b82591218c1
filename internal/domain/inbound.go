package domain

import "time"

// InboundMessage is one webhook payload from the carrier. ProviderMessageID is
// the idempotency key; the carrier delivers at least once, so the same id can
// arrive more than once and must be processed exactly once.
type InboundMessage struct {
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id"`
	FromPhone         string    `db:"from_phone" json:"from_phone"`
	Body              string    `db:"body" json:"body"`
	MediaCount        int       `db:"media_count" json:"media_count"`
	MediaURL          string    `db:"media_url" json:"media_url,omitempty"`
	MediaContentType  string    `db:"media_content_type" json:"media_content_type,omitempty"`
	ReceivedAt        time.Time `db:"received_at" json:"received_at"`
}

// Contractor is an external entity referenced by the dispatch core. The core
// reads identity and phone for message routing and writes no contractor fields.
type Contractor struct {
	ContractorID string `db:"contractor_id"`
	BusinessName string `db:"business_name"`
	Phone        string `db:"phone"`
}
