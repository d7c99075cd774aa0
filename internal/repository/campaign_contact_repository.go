// internal/repository/campaign_contact_repository.go
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/zapleopard/campaign-dispatcher/internal/model"
)

type CampaignContactRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.CampaignContact, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.CampaignContact, error)
	ListByCampaign(ctx context.Context, campaignID int, status string, limit, offset int) ([]*model.CampaignContact, error)
	ClaimNext(ctx context.Context, campaignID, maxAttempts int, staleAfter time.Duration) (*model.CampaignContact, error)
	ClaimableCount(ctx context.Context, campaignID, maxAttempts int) (int, error)
	MarkSent(ctx context.Context, id int, providerMessageID string) error
	MarkFailed(ctx context.Context, id int, lastError string) error
	MarkFailedPermanent(ctx context.Context, id int, lastError string, maxAttempts int) error
	UpdateStatus(ctx context.Context, id int, status model.ContactStatus) error
}

type CampaignContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, campaign_id, customer_id, conversation_id, status, attempt_count, last_attempt_at, last_error, provider_message_id, created_at, updated_at`

func scanContact(row interface{ Scan(...interface{}) error }) (*model.CampaignContact, error) {
	var c model.CampaignContact
	var lastError, providerMessageID sql.NullString
	err := row.Scan(
		&c.ID, &c.CampaignID, &c.CustomerID, &c.ConversationID, &c.Status,
		&c.AttemptCount, &c.LastAttemptAt, &lastError, &providerMessageID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.LastError = lastError.String
	c.ProviderMessageID = providerMessageID.String
	return &c, nil
}

func (r *CampaignContactRepository) GetByID(ctx context.Context, id int) (*model.CampaignContact, error) {
	query := `SELECT ` + contactColumns + ` FROM campaign_contacts WHERE id=$1`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *CampaignContactRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*model.CampaignContact, error) {
	query := `SELECT ` + contactColumns + ` FROM campaign_contacts WHERE provider_message_id=$1`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, providerMessageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (r *CampaignContactRepository) ListByCampaign(ctx context.Context, campaignID int, status string, limit, offset int) ([]*model.CampaignContact, error) {
	query := `SELECT ` + contactColumns + ` FROM campaign_contacts WHERE campaign_id=$1`
	args := []interface{}{campaignID}
	if status != "" {
		query += ` AND status=$2 ORDER BY id LIMIT $3 OFFSET $4`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY id LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []*model.CampaignContact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ClaimNext atomically claims the next dispatchable contact of a campaign and
// moves it to "sending". FOR UPDATE SKIP LOCKED makes the claim safe when
// several dispatcher processes walk the same campaign.
//
// Claim order is (attempt_count, created_at, id): fresh contacts keep strict
// creation order, failed-then-retried ones fall to the back of the pass so a
// flapping number cannot starve the rest. Rows stuck in "sending" longer than
// staleAfter are reclaimable; that is the documented at-least-once window
// after a crash between send and status write.
func (r *CampaignContactRepository) ClaimNext(ctx context.Context, campaignID, maxAttempts int, staleAfter time.Duration) (*model.CampaignContact, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
        SELECT ` + contactColumns + `
        FROM campaign_contacts
        WHERE campaign_id = $1
          AND (
                status = 'pending'
             OR (status = 'failed' AND attempt_count < $2)
             OR (status = 'sending' AND last_attempt_at < NOW() - $3::interval)
          )
        ORDER BY attempt_count ASC, created_at ASC, id ASC
        LIMIT 1
        FOR UPDATE SKIP LOCKED
    `
	c, err := scanContact(tx.QueryRowContext(ctx, query, campaignID, maxAttempts, staleAfter.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // nothing dispatchable
		}
		return nil, err
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE campaign_contacts SET status='sending', last_attempt_at=$1, updated_at=$1 WHERE id=$2`,
		now, c.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	c.Status = model.ContactSending
	c.LastAttemptAt = &now
	return c, nil
}

// ClaimableCount reports how many contacts of a campaign are still
// dispatchable (pending, retryable failed, or in flight).
func (r *CampaignContactRepository) ClaimableCount(ctx context.Context, campaignID, maxAttempts int) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM campaign_contacts
        WHERE campaign_id = $1
          AND (status IN ('pending', 'sending') OR (status = 'failed' AND attempt_count < $2))
    `
	var count int
	err := r.DB.QueryRowContext(ctx, query, campaignID, maxAttempts).Scan(&count)
	return count, err
}

func (r *CampaignContactRepository) MarkSent(ctx context.Context, id int, providerMessageID string) error {
	query := `
        UPDATE campaign_contacts
        SET status='sent', provider_message_id=$1, attempt_count=attempt_count+1, last_error='', updated_at=NOW()
        WHERE id=$2
    `
	_, err := r.DB.ExecContext(ctx, query, providerMessageID, id)
	return err
}

// MarkFailed records a transient failure; the row stays claimable while
// attempt_count is below the retry ceiling.
func (r *CampaignContactRepository) MarkFailed(ctx context.Context, id int, lastError string) error {
	query := `
        UPDATE campaign_contacts
        SET status='failed', last_error=$1, attempt_count=attempt_count+1, updated_at=NOW()
        WHERE id=$2
    `
	_, err := r.DB.ExecContext(ctx, query, lastError, id)
	return err
}

// MarkFailedPermanent exhausts the retry budget immediately (invalid or
// blocked numbers, unrenderable templates).
func (r *CampaignContactRepository) MarkFailedPermanent(ctx context.Context, id int, lastError string, maxAttempts int) error {
	query := `
        UPDATE campaign_contacts
        SET status='failed', last_error=$1, attempt_count=GREATEST(attempt_count+1, $2), updated_at=NOW()
        WHERE id=$3
    `
	_, err := r.DB.ExecContext(ctx, query, lastError, maxAttempts, id)
	return err
}

func (r *CampaignContactRepository) UpdateStatus(ctx context.Context, id int, status model.ContactStatus) error {
	query := `UPDATE campaign_contacts SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, status, id)
	return err
}

var _ CampaignContactRepositoryInterface = (*CampaignContactRepository)(nil)
