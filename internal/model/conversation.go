// internal/model/conversation.go
package model

import "time"

// ConversationStatusInbox is the initial status of every conversation opened
// by campaign materialization ("entrada" in the operator UI).
const ConversationStatusInbox = "entrada"

// Conversation is created once per campaign contact at materialization time
// and owns the messages produced by the dispatcher.
type Conversation struct {
	ID         int       `db:"id" json:"id"`
	CompanyID  int       `db:"company_id" json:"company_id"`
	CustomerID int       `db:"customer_id" json:"customer_id"`
	CampaignID int       `db:"campaign_id" json:"campaign_id"`
	Channel    string    `db:"channel" json:"channel"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
