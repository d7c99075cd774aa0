// internal/controller/webhook_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zapleopard/campaign-dispatcher/internal/model"
)

// StatusApplier applies inbound channel callbacks to campaign contacts.
type StatusApplier interface {
	ApplyChannelStatus(ctx context.Context, providerMessageID, status string) (*model.CampaignContact, error)
}

type WebhookController struct {
	Campaigns StatusApplier
	Logger    zerolog.Logger
}

// ChannelCallback receives delivery receipts and inbound signals from the
// channel provider: delivered, read, responded, opt_out.
func (c *WebhookController) ChannelCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProviderMessageID string `json:"provider_message_id"`
		Status            string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if body.ProviderMessageID == "" || body.Status == "" {
		badRequest(w, "provider_message_id and status are required")
		return
	}

	contact, err := c.Campaigns.ApplyChannelStatus(r.Context(), body.ProviderMessageID, body.Status)
	if err != nil {
		c.Logger.Warn().Err(err).Str("status", body.Status).Msg("channel callback rejected")
		badRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_contact_id": contact.ID,
		"status":              contact.Status,
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
