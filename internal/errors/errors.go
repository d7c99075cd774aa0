// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrCustomerNotFound signals a lookup miss on customers.
type ErrCustomerNotFound struct {
	CustomerID int
}

func (e *ErrCustomerNotFound) Error() string {
	return fmt.Sprintf("customer with ID %d not found", e.CustomerID)
}

func NewCustomerNotFound(id int) error {
	return &ErrCustomerNotFound{CustomerID: id}
}

// ErrValidation reports bad operator input on campaign or import requests.
type ErrValidation struct {
	Msg string
}

func (e *ErrValidation) Error() string { return e.Msg }

func NewValidation(msg string) error {
	return &ErrValidation{Msg: msg}
}

// ErrCampaignFinished rejects writes into a campaign that already reached a
// terminal status.
type ErrCampaignFinished struct {
	CampaignID int
	Status     string
}

func (e *ErrCampaignFinished) Error() string {
	return fmt.Sprintf("campaign %d is %s and no longer accepts contacts", e.CampaignID, e.Status)
}

func NewCampaignFinished(id int, status string) error {
	return &ErrCampaignFinished{CampaignID: id, Status: status}
}

// ErrInvalidPhone carries the per-record reason a raw phone failed
// normalization. It never aborts a batch.
type ErrInvalidPhone struct {
	Raw    string
	Reason string
}

func (e *ErrInvalidPhone) Error() string {
	return fmt.Sprintf("invalid phone %q: %s", e.Raw, e.Reason)
}

func NewInvalidPhone(raw, reason string) error {
	return &ErrInvalidPhone{Raw: raw, Reason: reason}
}

// ErrInvalidTransition rejects campaign status changes outside the allowed
// state machine (e.g. resuming a canceled campaign).
type ErrInvalidTransition struct {
	From string
	To   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot transition campaign from %s to %s", e.From, e.To)
}

func NewInvalidTransition(from, to string) error {
	return &ErrInvalidTransition{From: from, To: to}
}
