// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCanceled  CampaignStatus = "canceled"
)

// Campaign is a bounded outbound-messaging effort. Only active campaigns inside
// their date range are dispatched.
type Campaign struct {
	ID            int            `db:"id" json:"id"`
	CompanyID     int            `db:"company_id" json:"company_id"`
	Name          string         `db:"name" json:"name"`
	Description   string         `db:"description" json:"description,omitempty"`
	Channel       string         `db:"channel" json:"channel"`
	Status        CampaignStatus `db:"status" json:"status"`
	StartDate     *time.Time     `db:"start_date" json:"start_date,omitempty"`
	EndDate       *time.Time     `db:"end_date" json:"end_date,omitempty"`
	TotalContacts int            `db:"total_contacts" json:"total_contacts"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// CampaignTemplate is one message variant for a campaign. The dispatcher picks
// a variant at random per contact so consecutive sends are not byte-identical.
type CampaignTemplate struct {
	ID         int    `db:"id" json:"id"`
	CampaignID int    `db:"campaign_id" json:"campaign_id"`
	Body       string `db:"body" json:"body"`
}
