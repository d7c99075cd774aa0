// internal/model/campaign_contact.go
package model

import "time"

type ContactStatus string

const (
	ContactPending   ContactStatus = "pending"
	ContactSending   ContactStatus = "sending"
	ContactSent      ContactStatus = "sent"
	ContactDelivered ContactStatus = "delivered"
	ContactRead      ContactStatus = "read"
	ContactFailed    ContactStatus = "failed"
	ContactResponded ContactStatus = "responded"
	ContactConverted ContactStatus = "converted"
	ContactOptOut    ContactStatus = "opt_out"
)

// CampaignContact is the per-customer unit of dispatch work within a campaign.
// A customer appears at most once per campaign; rows are never deleted, only
// superseded by status changes. The status column is the single source of
// truth for what gets dispatched next.
//
// A failed row stays claimable while attempt_count is below the configured
// ceiling; permanent provider rejections exhaust the budget immediately.
type CampaignContact struct {
	ID                int           `db:"id" json:"id"`
	CampaignID        int           `db:"campaign_id" json:"campaign_id"`
	CustomerID        int           `db:"customer_id" json:"customer_id"`
	ConversationID    *int          `db:"conversation_id" json:"conversation_id,omitempty"`
	Status            ContactStatus `db:"status" json:"status"`
	AttemptCount      int           `db:"attempt_count" json:"attempt_count"`
	LastAttemptAt     *time.Time    `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	LastError         string        `db:"last_error" json:"last_error,omitempty"`
	ProviderMessageID string        `db:"provider_message_id" json:"provider_message_id,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}
