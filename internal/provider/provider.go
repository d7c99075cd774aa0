// internal/provider/provider.go
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/zapleopard/campaign-dispatcher/internal/config"
)

// SendRequest carries one rendered outbound message. To is a canonical phone
// digit string. The idempotency key lets providers that support it absorb the
// at-least-once resend window after a dispatcher crash.
type SendRequest struct {
	To             string
	Body           string
	IdempotencyKey string
}

type SendResult struct {
	ProviderMessageID string
}

// Sender is the only capability the pacing dispatcher depends on. One
// implementation per channel provider, selected by configuration at startup.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

// PermanentError marks rejections that must never be retried (invalid or
// blocked destination numbers).
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return "permanent send failure: " + e.Reason
}

// IsPermanent reports whether err is a non-retryable provider rejection.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// FromConfig builds the configured sender.
func FromConfig(cfg *config.Config) (Sender, error) {
	switch cfg.Provider {
	case "twilio":
		return NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber), nil
	case "zapi":
		return NewZAPISender(cfg.ZAPIBaseURL, cfg.ZAPIClientToken), nil
	case "mock":
		return NewMockSender(0), nil
	default:
		return nil, fmt.Errorf("unknown channel provider %q", cfg.Provider)
	}
}
