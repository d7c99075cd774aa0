// internal/service/reconciler.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/zapleopard/campaign-dispatcher/internal/errors"
	"github.com/zapleopard/campaign-dispatcher/internal/ingest"
	"github.com/zapleopard/campaign-dispatcher/internal/phone"
	"github.com/zapleopard/campaign-dispatcher/internal/repository"
)

type ReconcileOutcome string

const (
	OutcomeCreated   ReconcileOutcome = "created"
	OutcomeUpdated   ReconcileOutcome = "updated"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	OutcomeInvalid   ReconcileOutcome = "invalid"
)

// Resolution is the reconciler's verdict on one input row. The reconciler
// does not write; persistence happens per contact in the materializer so the
// customer upsert shares the contact's transaction.
type Resolution struct {
	Row        int              `json:"row"`
	Outcome    ReconcileOutcome `json:"outcome"`
	Reason     string           `json:"reason,omitempty"`
	Phone      string           `json:"phone,omitempty"` // canonical
	Name       string           `json:"-"`
	BirthDate  *time.Time       `json:"-"`
	CustomerID int              `json:"customer_id,omitempty"` // existing match, 0 for new
}

type ReconcileResult struct {
	Resolutions []Resolution
	Processed   int
	Created     int
	Updated     int
	Duplicates  int
	Invalid     int
}

// Reconciler normalizes and deduplicates a batch of raw contacts against
// existing customers of a company.
type Reconciler struct {
	Customers          repository.CustomerRepositoryInterface
	DefaultCountryCode string
	Logger             zerolog.Logger
}

const birthDateLayout = "2006-01-02"

// Reconcile classifies every row as created / updated / duplicate / invalid.
// Row-level problems never abort the batch; only a repository failure (a
// structural problem with the backing store) is returned as an error.
//
// In-batch duplicates are first-seen-wins: the earliest row owning a
// canonical phone is kept, later ones are marked duplicate. This is
// deterministic, so re-running the same file yields the same resolutions.
func (r *Reconciler) Reconcile(ctx context.Context, companyID int, rows []ingest.RawContact) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	seen := map[string]int{} // canonical phone -> customer id of first occurrence (0 if new)

	for _, row := range rows {
		res := Resolution{Row: row.Row, Name: row.Name}

		if row.Name == "" {
			res.Outcome = OutcomeInvalid
			res.Reason = "missing name"
			result.Resolutions = append(result.Resolutions, res)
			result.Invalid++
			result.Processed++
			continue
		}

		canonical, err := phone.Normalize(row.Phone, r.DefaultCountryCode)
		if err != nil {
			res.Outcome = OutcomeInvalid
			if ip, ok := err.(*appErrors.ErrInvalidPhone); ok {
				res.Reason = ip.Reason
			} else {
				res.Reason = err.Error()
			}
			result.Resolutions = append(result.Resolutions, res)
			result.Invalid++
			result.Processed++
			continue
		}
		res.Phone = canonical
		res.BirthDate = parseBirthDate(row.BirthDate)

		if firstID, dup := seen[canonical]; dup {
			res.Outcome = OutcomeDuplicate
			res.CustomerID = firstID
			result.Resolutions = append(result.Resolutions, res)
			result.Duplicates++
			result.Processed++
			continue
		}

		existing, err := r.Customers.GetByPhone(ctx, companyID, canonical)
		if err != nil {
			return nil, fmt.Errorf("lookup customer by phone: %w", err)
		}

		if existing != nil {
			res.Outcome = OutcomeUpdated
			res.CustomerID = existing.ID
			result.Updated++
		} else {
			res.Outcome = OutcomeCreated
			result.Created++
		}
		seen[canonical] = res.CustomerID

		result.Resolutions = append(result.Resolutions, res)
		result.Processed++
	}

	r.Logger.Debug().
		Int("company_id", companyID).
		Int("processed", result.Processed).
		Int("invalid", result.Invalid).
		Int("duplicates", result.Duplicates).
		Msg("batch reconciled")

	return result, nil
}

// parseBirthDate tolerates an empty or malformed date; a bad birthdate is not
// worth rejecting an otherwise valid contact.
func parseBirthDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(birthDateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
