// internal/repository/customer_repository.go
package repository

import (
	"context"
	"database/sql"

	"github.com/zapleopard/campaign-dispatcher/internal/model"
)

// CustomerRepositoryInterface defines methods used by services
type CustomerRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Customer, error)
	GetByPhone(ctx context.Context, companyID int, phone string) (*model.Customer, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sql.DB
}

const customerColumns = `id, company_id, phone, name, birth_date, source, external_id, created_at, updated_at`

// GetByID fetches a customer by ID, nil when not found
func (r *CustomerRepository) GetByID(ctx context.Context, id int) (*model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, id))
}

// GetByPhone looks up the dedup key (company_id, canonical phone)
func (r *CustomerRepository) GetByPhone(ctx context.Context, companyID int, phone string) (*model.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE company_id = $1 AND phone = $2`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, companyID, phone))
}

func (r *CustomerRepository) scanOne(row *sql.Row) (*model.Customer, error) {
	var c model.Customer
	var source, externalID sql.NullString
	err := row.Scan(&c.ID, &c.CompanyID, &c.Phone, &c.Name, &c.BirthDate, &source, &externalID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	c.Source = source.String
	c.ExternalID = externalID.String
	return &c, nil
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
