// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zapleopard/campaign-dispatcher/internal/ingest"
	"github.com/zapleopard/campaign-dispatcher/internal/model"
	"github.com/zapleopard/campaign-dispatcher/internal/service"
)

// ImportService runs the reconcile + materialize pipeline.
type ImportService interface {
	Import(ctx context.Context, companyID int, def service.CampaignDefinition, rows []ingest.RawContact) (*service.ImportResult, error)
}

// CampaignManager covers campaign CRUD, operator gates and previews.
type CampaignManager interface {
	CreateCampaign(ctx context.Context, companyID int, def service.CampaignDefinition) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, companyID, page, pageSize int, status string) ([]model.Campaign, map[string]int, error)
	GetDetailsWithStats(ctx context.Context, campaignID int) (*service.CampaignDetails, error)
	Pause(ctx context.Context, campaignID int) error
	Resume(ctx context.Context, campaignID int) error
	Cancel(ctx context.Context, campaignID int) error
	RenderPreview(ctx context.Context, campaignID, customerID int, overrideTemplate *string) (string, error)
	ListContacts(ctx context.Context, campaignID int, status string, page, pageSize int) ([]*model.CampaignContact, error)
}

type CampaignController struct {
	Importer  ImportService
	Campaigns CampaignManager
	Logger    zerolog.Logger
}

const maxImportSize = 10 << 20 // 10 MiB spreadsheet upload cap

const dateLayout = "2006-01-02"

// ImportContacts handles the spreadsheet import. The response always carries
// the aggregate statistics, even when some contacts errored; only a
// structural problem (bad CSV, bad campaign definition) fails the request.
func (c *CampaignController) ImportContacts(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		badRequest(w, "invalid multipart form: "+err.Error())
		return
	}

	companyID, err := strconv.Atoi(r.FormValue("company_id"))
	if err != nil || companyID <= 0 {
		badRequest(w, "company_id is required")
		return
	}

	def, errMsg := campaignDefinitionFromForm(r)
	if errMsg != "" {
		badRequest(w, errMsg)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		campaignID, err := strconv.Atoi(id)
		if err != nil {
			badRequest(w, "invalid campaign id")
			return
		}
		def.CampaignID = campaignID
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "contact file is required")
		return
	}
	defer file.Close()

	rows, err := ingest.ReadContacts(file)
	if err != nil {
		badRequest(w, "unreadable contact file: "+err.Error())
		return
	}

	result, err := c.Importer.Import(r.Context(), companyID, def, rows)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func campaignDefinitionFromForm(r *http.Request) (service.CampaignDefinition, string) {
	def := service.CampaignDefinition{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
	}
	if r.MultipartForm != nil {
		def.Templates = r.MultipartForm.Value["templates"]
	}

	if v := r.FormValue("start_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return def, "invalid start_date, want YYYY-MM-DD"
		}
		def.StartDate = &t
	}
	if v := r.FormValue("end_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return def, "invalid end_date, want YYYY-MM-DD"
		}
		def.EndDate = &t
	}
	return def, ""
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompanyID   int      `json:"company_id"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		StartDate   *string  `json:"start_date"`
		EndDate     *string  `json:"end_date"`
		Templates   []string `json:"templates"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if body.CompanyID <= 0 {
		badRequest(w, "company_id is required")
		return
	}

	def := service.CampaignDefinition{
		Name:        body.Name,
		Description: body.Description,
		Templates:   body.Templates,
	}
	var err error
	if def.StartDate, err = parseDatePtr(body.StartDate); err != nil {
		badRequest(w, "invalid start_date, want YYYY-MM-DD")
		return
	}
	if def.EndDate, err = parseDatePtr(body.EndDate); err != nil {
		badRequest(w, "invalid end_date, want YYYY-MM-DD")
		return
	}

	campaign, err := c.Campaigns.CreateCampaign(r.Context(), body.CompanyID, def)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.Atoi(r.URL.Query().Get("company_id"))
	if companyID <= 0 {
		badRequest(w, "company_id is required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.Campaigns.ListCampaigns(r.Context(), companyID, page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		badRequest(w, "invalid campaign id")
		return
	}

	details, err := c.Campaigns.GetDetailsWithStats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.applyTransition(w, r, c.Campaigns.Pause, "paused")
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c.applyTransition(w, r, c.Campaigns.Resume, "active")
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c.applyTransition(w, r, c.Campaigns.Cancel, "canceled")
}

func (c *CampaignController) applyTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int) error, status string) {
	id, err := campaignID(r)
	if err != nil {
		badRequest(w, "invalid campaign id")
		return
	}
	if err := fn(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"campaign_id": id, "status": status})
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		badRequest(w, "invalid campaign id")
		return
	}

	var body struct {
		CustomerID       int     `json:"customer_id"`
		OverrideTemplate *string `json:"override_template"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid body")
		return
	}

	rendered, err := c.Campaigns.RenderPreview(r.Context(), id, body.CustomerID, body.OverrideTemplate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rendered_message": rendered,
		"customer_id":      body.CustomerID,
	})
}

func (c *CampaignController) ListContacts(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		badRequest(w, "invalid campaign id")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	contacts, err := c.Campaigns.ListContacts(r.Context(), id, status, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": contacts})
}

func campaignID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

func parseDatePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
