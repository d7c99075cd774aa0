// internal/service/importer.go
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/zapleopard/campaign-dispatcher/internal/errors"
	"github.com/zapleopard/campaign-dispatcher/internal/ingest"
	"github.com/zapleopard/campaign-dispatcher/internal/model"
	"github.com/zapleopard/campaign-dispatcher/internal/repository"
)

// CampaignDefinition describes the campaign an import targets. When
// CampaignID is set the contacts are imported into that existing campaign;
// otherwise a new campaign is created from the remaining fields.
type CampaignDefinition struct {
	CampaignID  int
	Name        string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
	Templates   []string
}

// RecordResult is the per-row outcome surfaced to the operator.
type RecordResult struct {
	Row     int    `json:"row"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// ImportResult is returned synchronously from the import operation, even when
// some contacts errored. The invariant processed == created + duplicates +
// errors always holds; customer counts are informational.
type ImportResult struct {
	CampaignID       int            `json:"campaign_id"`
	Processed        int            `json:"processed"`
	Created          int            `json:"created"`
	Duplicates       int            `json:"duplicates"`
	Errors           int            `json:"errors"`
	CustomersCreated int            `json:"customers_created"`
	CustomersUpdated int            `json:"customers_updated"`
	Records          []RecordResult `json:"records"`
}

// Importer materializes a reconciled contact batch into a campaign: one
// customer upsert + campaign contact + conversation per contact, each contact
// in its own transaction.
type Importer struct {
	Campaigns  repository.CampaignRepositoryInterface
	Store      repository.MaterializerStore
	Reconciler *Reconciler
	Logger     zerolog.Logger
}

// contactSource is recorded on customers created by spreadsheet import.
const contactSource = "import"

// Import runs reconcile + materialize and returns aggregate statistics. A
// single contact's failure is isolated: it is counted under errors and the
// rest of the batch proceeds.
func (s *Importer) Import(ctx context.Context, companyID int, def CampaignDefinition, rows []ingest.RawContact) (*ImportResult, error) {
	campaign, err := s.resolveCampaign(ctx, companyID, def)
	if err != nil {
		return nil, err
	}

	reconciled, err := s.Reconciler.Reconcile(ctx, companyID, rows)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{CampaignID: campaign.ID}

	for _, res := range reconciled.Resolutions {
		record := RecordResult{Row: res.Row}
		result.Processed++

		switch res.Outcome {
		case OutcomeInvalid:
			record.Outcome = string(OutcomeInvalid)
			record.Reason = res.Reason
			result.Errors++

		case OutcomeDuplicate:
			record.Outcome = string(OutcomeDuplicate)
			record.Reason = "duplicate phone within batch"
			result.Duplicates++

		default:
			mat, err := s.Store.MaterializeContact(ctx, companyID, campaign.ID, campaign.Channel, repository.ContactInput{
				Phone:     res.Phone,
				Name:      res.Name,
				BirthDate: res.BirthDate,
				Source:    contactSource,
			})
			if err != nil {
				s.Logger.Error().Err(err).
					Int("campaign_id", campaign.ID).
					Int("row", res.Row).
					Msg("contact materialization failed")
				record.Outcome = "error"
				record.Reason = err.Error()
				result.Errors++
				break
			}
			if mat.Duplicate {
				record.Outcome = string(OutcomeDuplicate)
				record.Reason = "customer already in campaign"
				result.Duplicates++
				break
			}

			record.Outcome = string(res.Outcome) // created or updated
			result.Created++
			if res.Outcome == OutcomeCreated {
				result.CustomersCreated++
			} else {
				result.CustomersUpdated++
			}
		}

		result.Records = append(result.Records, record)
	}

	if err := s.updateTotalContacts(ctx, campaign.ID); err != nil {
		s.Logger.Error().Err(err).Int("campaign_id", campaign.ID).Msg("update total_contacts failed")
	}

	s.Logger.Info().
		Int("campaign_id", campaign.ID).
		Int("processed", result.Processed).
		Int("created", result.Created).
		Int("duplicates", result.Duplicates).
		Int("errors", result.Errors).
		Msg("import finished")

	return result, nil
}

func (s *Importer) resolveCampaign(ctx context.Context, companyID int, def CampaignDefinition) (*model.Campaign, error) {
	if def.CampaignID != 0 {
		campaign, err := s.Campaigns.GetByID(ctx, def.CampaignID)
		if err != nil {
			return nil, err
		}
		if campaign.CompanyID != companyID {
			// Another company's campaign is indistinguishable from a missing one.
			return nil, appErrors.NewCampaignNotFound(def.CampaignID)
		}
		if campaign.Status == model.CampaignCompleted || campaign.Status == model.CampaignCanceled {
			return nil, appErrors.NewCampaignFinished(campaign.ID, string(campaign.Status))
		}
		return campaign, nil
	}

	if def.Name == "" {
		return nil, appErrors.NewValidation("campaign name is required")
	}
	if len(def.Templates) == 0 {
		return nil, appErrors.NewValidation("at least one message template is required")
	}
	if def.StartDate != nil && def.EndDate != nil && def.EndDate.Before(*def.StartDate) {
		return nil, appErrors.NewValidation("campaign end date precedes start date")
	}

	campaign := &model.Campaign{
		CompanyID:   companyID,
		Name:        def.Name,
		Description: def.Description,
		StartDate:   def.StartDate,
		EndDate:     def.EndDate,
		Status:      model.CampaignActive,
	}
	if err := s.Campaigns.Create(ctx, campaign, def.Templates); err != nil {
		return nil, err
	}
	return campaign, nil
}

func (s *Importer) updateTotalContacts(ctx context.Context, campaignID int) error {
	stats, err := s.Campaigns.GetContactStats(ctx, campaignID)
	if err != nil {
		return err
	}
	return s.Campaigns.SetTotalContacts(ctx, campaignID, stats["total"])
}
