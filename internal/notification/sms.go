package notification

import (
	"context"
	"fmt"

	"github.com/jwillz7667/CropLens/internal/insights"
	"github.com/jwillz7667/CropLens/internal/utils"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSNotifier texts alerts through Twilio. Without credentials it logs a
// warning and skips delivery. Alerts below MinSeverity are not sent; an
// empty MinSeverity means high.
type SMSNotifier struct {
	MinSeverity insights.Severity

	api  messageCreator
	from string
	to   string
}

func NewSMSNotifier(accountSID, authToken, from, to string) *SMSNotifier {
	n := &SMSNotifier{MinSeverity: insights.SeverityHigh, from: from, to: to}
	if accountSID != "" && authToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		n.api = client.Api
	}
	return n
}

func (s *SMSNotifier) Notify(ctx context.Context, alert Alert) error {
	minimum := s.MinSeverity
	if minimum == "" {
		minimum = insights.SeverityHigh
	}
	if rank(alert.Severity) < rank(minimum) {
		return nil
	}
	if s.api == nil || s.from == "" || s.to == "" {
		utils.GetLogger().WarnContext(ctx, "Twilio credentials missing; skipping SMS send.")
		return nil
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(s.to)
	params.SetFrom(s.from)
	params.SetBody(alert.Subject + "\n" + alert.Body)

	if _, err := s.api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS alert: %w", err)
	}
	return nil
}
