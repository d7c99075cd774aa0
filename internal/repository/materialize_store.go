// internal/repository/materialize_store.go
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/zapleopard/campaign-dispatcher/internal/model"
)

// ContactInput is one reconciled contact ready for materialization.
type ContactInput struct {
	Phone     string
	Name      string
	BirthDate *time.Time
	Source    string
}

// MaterializeResult reports what one contact's transaction produced.
type MaterializeResult struct {
	CustomerID     int
	ContactID      int
	ConversationID int
	// Duplicate is true when a campaign contact already existed for the pair;
	// nothing was written.
	Duplicate bool
}

// MaterializerStore runs the per-contact tri-write.
type MaterializerStore interface {
	MaterializeContact(ctx context.Context, companyID, campaignID int, channel string, in ContactInput) (*MaterializeResult, error)
}

// MaterializeStore writes customer + campaign contact + conversation as one
// transaction per contact. A failure anywhere rolls back all three writes for
// that contact only; other contacts in the import are unaffected.
type MaterializeStore struct {
	DB *sql.DB
}

func (s *MaterializeStore) MaterializeContact(ctx context.Context, companyID, campaignID int, channel string, in ContactInput) (*MaterializeResult, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Upsert the customer on the (company_id, phone) identity. Existing
	// non-empty fields are never overwritten by empty input.
	var customerID int
	err = tx.QueryRowContext(ctx, `
        INSERT INTO customers (company_id, phone, name, birth_date, source, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (company_id, phone) DO UPDATE SET
            name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE customers.name END,
            birth_date = COALESCE(EXCLUDED.birth_date, customers.birth_date),
            updated_at = NOW()
        RETURNING id
    `, companyID, in.Phone, in.Name, in.BirthDate, in.Source).Scan(&customerID)
	if err != nil {
		return nil, err
	}

	// Idempotent campaign contact insert: a conflict means this customer is
	// already materialized for the campaign.
	var contactID int
	err = tx.QueryRowContext(ctx, `
        INSERT INTO campaign_contacts (campaign_id, customer_id, status, attempt_count, created_at, updated_at)
        VALUES ($1, $2, 'pending', 0, NOW(), NOW())
        ON CONFLICT (campaign_id, customer_id) DO NOTHING
        RETURNING id
    `, campaignID, customerID).Scan(&contactID)
	if err == sql.ErrNoRows {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &MaterializeResult{CustomerID: customerID, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}

	var conversationID int
	err = tx.QueryRowContext(ctx, `
        INSERT INTO conversations (company_id, customer_id, campaign_id, channel, status, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING id
    `, companyID, customerID, campaignID, channel, model.ConversationStatusInbox).Scan(&conversationID)
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE campaign_contacts SET conversation_id=$1 WHERE id=$2`,
		conversationID, contactID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &MaterializeResult{
		CustomerID:     customerID,
		ContactID:      contactID,
		ConversationID: conversationID,
	}, nil
}

var _ MaterializerStore = (*MaterializeStore)(nil)
