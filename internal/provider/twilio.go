// internal/provider/twilio.go
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender sends WhatsApp messages through the Twilio API.
type TwilioSender struct {
	FromNumber string
	Client     *twilio.RestClient
}

func NewTwilioSender(accountSID, authToken, fromNumber string) *TwilioSender {
	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})

	return &TwilioSender{
		FromNumber: fromNumber,
		Client:     client,
	}
}

func (t *TwilioSender) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	params := &api.CreateMessageParams{}
	params.SetBody(req.Body)
	params.SetFrom("whatsapp:+" + t.FromNumber)
	params.SetTo("whatsapp:+" + req.To)

	resp, err := t.Client.Api.CreateMessage(params)
	if err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) && isPermanentTwilioCode(restErr.Code) {
			return nil, &PermanentError{Reason: restErr.Message}
		}
		return nil, err
	}
	if resp.Sid == nil {
		return nil, fmt.Errorf("twilio returned no message sid")
	}
	return &SendResult{ProviderMessageID: *resp.Sid}, nil
}

// Twilio error codes for destinations that will never succeed.
func isPermanentTwilioCode(code int) bool {
	switch code {
	case 21211, // invalid 'To' number
		21408, // region not enabled
		21610, // recipient unsubscribed / blocked
		21614: // not a mobile number
		return true
	}
	return false
}

var _ Sender = (*TwilioSender)(nil)
