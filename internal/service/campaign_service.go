// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/zapleopard/campaign-dispatcher/internal/errors"
	"github.com/zapleopard/campaign-dispatcher/internal/events"
	"github.com/zapleopard/campaign-dispatcher/internal/model"
	"github.com/zapleopard/campaign-dispatcher/internal/repository"
)

type CampaignService struct {
	Campaigns repository.CampaignRepositoryInterface
	Customers repository.CustomerRepositoryInterface
	Contacts  repository.CampaignContactRepositoryInterface
	Emitter   events.Emitter
	Logger    zerolog.Logger
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

// CreateCampaign creates a standalone campaign in draft; it becomes
// dispatchable once resumed (draft -> active) or when contacts are imported.
func (s *CampaignService) CreateCampaign(ctx context.Context, companyID int, def CampaignDefinition) (*model.Campaign, error) {
	if def.Name == "" {
		return nil, appErrors.NewValidation("campaign name is required")
	}
	if len(def.Templates) == 0 {
		return nil, appErrors.NewValidation("at least one message template is required")
	}
	if def.StartDate != nil && def.EndDate != nil && def.EndDate.Before(*def.StartDate) {
		return nil, appErrors.NewValidation("campaign end date precedes start date")
	}

	c := &model.Campaign{
		CompanyID:   companyID,
		Name:        def.Name,
		Description: def.Description,
		StartDate:   def.StartDate,
		EndDate:     def.EndDate,
		Status:      model.CampaignDraft,
	}
	if err := s.Campaigns.Create(ctx, c, def.Templates); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, companyID, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.Campaigns.ListCampaigns(ctx, companyID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetDetailsWithStats(ctx context.Context, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.Campaigns.GetContactStats(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// Pause stops the campaign's pacing stream at its next suspension point; an
// in-flight send is never interrupted.
func (s *CampaignService) Pause(ctx context.Context, campaignID int) error {
	return s.transition(ctx, campaignID, model.CampaignPaused, model.CampaignActive)
}

// Resume activates a paused or draft campaign. Dispatch continues from the
// next pending contact; state lives in the rows, so nothing is skipped or
// restarted.
func (s *CampaignService) Resume(ctx context.Context, campaignID int) error {
	return s.transition(ctx, campaignID, model.CampaignActive, model.CampaignPaused, model.CampaignDraft)
}

// Cancel terminally stops a campaign. Remaining pending contacts keep their
// status for auditability; they are simply never claimed again.
func (s *CampaignService) Cancel(ctx context.Context, campaignID int) error {
	return s.transition(ctx, campaignID, model.CampaignCanceled,
		model.CampaignDraft, model.CampaignActive, model.CampaignPaused)
}

func (s *CampaignService) transition(ctx context.Context, campaignID int, to model.CampaignStatus, allowedFrom ...model.CampaignStatus) error {
	campaign, err := s.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	for _, from := range allowedFrom {
		if campaign.Status == from {
			return s.Campaigns.UpdateStatus(ctx, campaignID, to)
		}
	}
	return appErrors.NewInvalidTransition(string(campaign.Status), string(to))
}

// RenderPreview renders a campaign template against a real customer, for the
// operator UI.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID, customerID int, overrideTemplate *string) (string, error) {
	customer, err := s.Customers.GetByID(ctx, customerID)
	if err != nil {
		return "", err
	}
	if customer == nil {
		return "", appErrors.NewCustomerNotFound(customerID)
	}

	var template string
	if overrideTemplate != nil && strings.TrimSpace(*overrideTemplate) != "" {
		template = *overrideTemplate
	} else {
		templates, err := s.Campaigns.GetTemplates(ctx, campaignID)
		if err != nil {
			return "", err
		}
		if len(templates) == 0 {
			return "", appErrors.NewValidation(fmt.Sprintf("campaign %d has no templates", campaignID))
		}
		template = templates[0].Body
	}

	return RenderTemplate(template, CustomerData(customer))
}

func (s *CampaignService) ListContacts(ctx context.Context, campaignID int, status string, page, pageSize int) ([]*model.CampaignContact, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return s.Contacts.ListByCampaign(ctx, campaignID, status, pageSize, (page-1)*pageSize)
}

// channelStatusTransitions maps inbound provider callback statuses to contact
// statuses and the states they may be applied from. Status never regresses.
var channelStatusTransitions = map[string]struct {
	to        model.ContactStatus
	from      []model.ContactStatus
	eventType events.Type
}{
	"delivered": {model.ContactDelivered, []model.ContactStatus{model.ContactSent}, events.ContactDelivered},
	"read":      {model.ContactRead, []model.ContactStatus{model.ContactSent, model.ContactDelivered}, events.ContactRead},
	"responded": {model.ContactResponded, []model.ContactStatus{model.ContactSent, model.ContactDelivered, model.ContactRead}, events.ContactResponded},
	"opt_out":   {model.ContactOptOut, []model.ContactStatus{model.ContactPending, model.ContactSent, model.ContactDelivered, model.ContactRead, model.ContactResponded}, events.ContactOptOut},
}

// ApplyChannelStatus handles an inbound provider callback for a message the
// dispatcher sent earlier.
func (s *CampaignService) ApplyChannelStatus(ctx context.Context, providerMessageID, status string) (*model.CampaignContact, error) {
	transition, ok := channelStatusTransitions[status]
	if !ok {
		return nil, fmt.Errorf("unknown channel status %q", status)
	}

	contact, err := s.Contacts.GetByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, fmt.Errorf("no campaign contact for provider message %q", providerMessageID)
	}

	applicable := false
	for _, from := range transition.from {
		if contact.Status == from {
			applicable = true
			break
		}
	}
	if !applicable {
		// Out-of-order callback; keep the later status.
		s.Logger.Debug().
			Str("provider_message_id", providerMessageID).
			Str("current", string(contact.Status)).
			Str("incoming", status).
			Msg("ignoring stale channel status")
		return contact, nil
	}

	if err := s.Contacts.UpdateStatus(ctx, contact.ID, transition.to); err != nil {
		return nil, err
	}
	contact.Status = transition.to
	contact.UpdatedAt = time.Now()

	if err := s.Emitter.Emit(ctx, events.Event{
		Type:              transition.eventType,
		CampaignID:        contact.CampaignID,
		CampaignContactID: contact.ID,
		CustomerID:        contact.CustomerID,
	}); err != nil {
		s.Logger.Error().Err(err).Msg("emit channel status event failed")
	}

	return contact, nil
}
