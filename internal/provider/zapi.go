// internal/provider/zapi.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ZAPISender talks to a Z-API WhatsApp instance over its REST API. Z-API has
// no Go SDK, so this is a plain HTTP client.
type ZAPISender struct {
	BaseURL     string
	ClientToken string
	HTTPClient  *http.Client
}

func NewZAPISender(baseURL, clientToken string) *ZAPISender {
	return &ZAPISender{
		BaseURL:     baseURL,
		ClientToken: clientToken,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

type zapiSendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type zapiSendResponse struct {
	MessageID string `json:"messageId"`
	ZaapID    string `json:"zaapId"`
	Error     string `json:"error"`
}

func (z *ZAPISender) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	payload, err := json.Marshal(zapiSendRequest{Phone: req.To, Message: req.Body})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, z.BaseURL+"/send-text", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Client-Token", z.ClientToken)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := z.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err // network/timeout: retryable
	}
	defer resp.Body.Close()

	var body zapiSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("decode z-api response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		id := body.MessageID
		if id == "" {
			id = body.ZaapID
		}
		return &SendResult{ProviderMessageID: id}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Client errors (invalid number, not on WhatsApp) will not heal on retry.
		reason := body.Error
		if reason == "" {
			reason = resp.Status
		}
		return nil, &PermanentError{Reason: reason}
	default:
		return nil, fmt.Errorf("z-api send failed: %s", resp.Status)
	}
}

var _ Sender = (*ZAPISender)(nil)
