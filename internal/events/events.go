// internal/events/events.go
package events

import (
	"context"
	"time"
)

type Type string

const (
	ContactSent      Type = "contact.sent"
	ContactFailed    Type = "contact.failed"
	ContactDelivered Type = "contact.delivered"
	ContactRead      Type = "contact.read"
	ContactResponded Type = "contact.responded"
	ContactOptOut    Type = "contact.opt_out"
)

// Event is emitted on every campaign-contact status transition for metrics
// and UI collaborators.
type Event struct {
	Type              Type      `json:"type"`
	CampaignID        int       `json:"campaign_id"`
	CampaignContactID int       `json:"campaign_contact_id"`
	CustomerID        int       `json:"customer_id"`
	Error             string    `json:"error,omitempty"`
	// Terminal marks a failure that exhausted its retry budget.
	Terminal   bool      `json:"terminal,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Emitter publishes status-transition events. Emission failures are logged by
// callers, never allowed to block or fail dispatch.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
	Close() error
}
