// internal/repository/campaign_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/zapleopard/campaign-dispatcher/internal/errors"
	"github.com/zapleopard/campaign-dispatcher/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign, templates []string) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, companyID, offset, limit int, status string) ([]*model.Campaign, int, error)
	ListDispatchable(ctx context.Context, now time.Time) ([]*model.Campaign, error)
	UpdateStatus(ctx context.Context, campaignID int, status model.CampaignStatus) error
	SetTotalContacts(ctx context.Context, campaignID, total int) error
	GetTemplates(ctx context.Context, campaignID int) ([]model.CampaignTemplate, error)
	GetContactStats(ctx context.Context, campaignID int) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, company_id, name, description, channel, status, start_date, end_date, total_contacts, created_at, updated_at`

// Create inserts the campaign and its template variants in one transaction.
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign, templates []string) error {
	if c.Status == "" {
		c.Status = model.CampaignActive
	}
	if c.Channel == "" {
		c.Channel = "whatsapp"
	}
	c.CreatedAt = time.Now()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO campaigns (company_id, name, description, channel, status, start_date, end_date, total_contacts, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
        RETURNING id
    `
	err = tx.QueryRowContext(ctx, query,
		c.CompanyID, c.Name, c.Description, c.Channel, c.Status, c.StartDate, c.EndDate, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return err
	}

	for _, body := range templates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO campaign_templates (campaign_id, body) VALUES ($1, $2)`,
			c.ID, body,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	var c model.Campaign
	var description sql.NullString
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.CompanyID, &c.Name, &description, &c.Channel, &c.Status,
		&c.StartDate, &c.EndDate, &c.TotalContacts, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	c.Description = description.String
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, companyID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE company_id=$1`
	args := []interface{}{companyID}
	argPos := 2

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		var description sql.NullString
		if err := rows.Scan(
			&c.ID, &c.CompanyID, &c.Name, &description, &c.Channel, &c.Status,
			&c.StartDate, &c.EndDate, &c.TotalContacts, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		c.Description = description.String
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE company_id=$1`
	countArgs := []interface{}{companyID}
	if status != "" {
		countQuery += ` AND status=$2`
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ListDispatchable returns active campaigns inside their date range. These are
// the only campaigns the pacing dispatcher walks.
func (r *CampaignRepository) ListDispatchable(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	query := `
        SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status = $1
          AND (start_date IS NULL OR start_date <= $2)
          AND (end_date IS NULL OR end_date >= $2)
        ORDER BY id
    `
	rows, err := r.DB.QueryContext(ctx, query, model.CampaignActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		var description sql.NullString
		if err := rows.Scan(
			&c.ID, &c.CompanyID, &c.Name, &description, &c.Channel, &c.Status,
			&c.StartDate, &c.EndDate, &c.TotalContacts, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		c.Description = description.String
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, campaignID int, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	res, err := r.DB.ExecContext(ctx, query, status, campaignID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	return nil
}

func (r *CampaignRepository) SetTotalContacts(ctx context.Context, campaignID, total int) error {
	query := `UPDATE campaigns SET total_contacts=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, total, campaignID)
	return err
}

func (r *CampaignRepository) GetTemplates(ctx context.Context, campaignID int) ([]model.CampaignTemplate, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, campaign_id, body FROM campaign_templates WHERE campaign_id=$1 ORDER BY id`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []model.CampaignTemplate{}
	for rows.Next() {
		var t model.CampaignTemplate
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.Body); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// GetContactStats returns per-status contact counts plus a total.
func (r *CampaignRepository) GetContactStats(ctx context.Context, campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM campaign_contacts WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"total":     0,
		"pending":   0,
		"sending":   0,
		"sent":      0,
		"delivered": 0,
		"read":      0,
		"failed":    0,
		"responded": 0,
		"converted": 0,
		"opt_out":   0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
