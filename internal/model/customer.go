// internal/model/customer.go
package model

import "time"

// Customer identity is the (company_id, phone) pair; phone is always stored in
// canonical international form. Customers are never deleted by the dispatcher.
type Customer struct {
	ID         int        `db:"id" json:"id"`
	CompanyID  int        `db:"company_id" json:"company_id"`
	Phone      string     `db:"phone" json:"phone"`
	Name       string     `db:"name" json:"name"`
	BirthDate  *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Source     string     `db:"source" json:"source,omitempty"`
	ExternalID string     `db:"external_id" json:"external_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// FirstName returns the first word of the customer name, used by template
// rendering for the {first_name} placeholder.
func (c *Customer) FirstName() string {
	for i := 0; i < len(c.Name); i++ {
		if c.Name[i] == ' ' {
			return c.Name[:i]
		}
	}
	return c.Name
}
