package notify

import (
	"fmt"
	"strings"

	"chat-relay-service/config"
	"chat-relay-service/metrics"
	"chat-relay-service/models"

	"github.com/apex/log"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSNotifier tells an agent by text message that a customer is waiting in a conference
type SMSNotifier struct {
	accountSID string
	authToken  string
	from       string
	client     messageCreator
}

func NewSMSNotifier(cfg *config.Config) *SMSNotifier {
	n := &SMSNotifier{
		accountSID: cfg.TwilioAccountSID,
		authToken:  cfg.TwilioAuthToken,
		from:       cfg.TwilioPhoneNumber,
	}
	if n.accountSID != "" && n.authToken != "" {
		n.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: n.accountSID,
			Password: n.authToken,
		}).Api
	}
	return n
}

func (n *SMSNotifier) SendConferenceSMS(phoneNumber, conferenceURL string) (*models.NotificationResult, error) {
	log.WithFields(log.Fields{"phone_number": phoneNumber, "has_url": conferenceURL != ""}).Info("notify.sms.start")

	if missing := missingVars(map[string]string{
		"TWILIO_ACCOUNT_SID":  n.accountSID,
		"TWILIO_AUTH_TOKEN":   n.authToken,
		"TWILIO_PHONE_NUMBER": n.from,
	}, "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_PHONE_NUMBER"); missing != nil {
		metrics.NotificationsTotal.WithLabelValues("sms", "error").Inc()
		return nil, fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phoneNumber)
	params.SetFrom(n.from)
	params.SetBody("A customer is waiting for you in a conference. Join now: " + conferenceURL)

	resp, err := n.client.CreateMessage(params)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("sms", "error").Inc()
		return nil, fmt.Errorf("twilio send failed: %w", err)
	}

	var sid, status string
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	if resp.Status != nil {
		status = *resp.Status
	}

	metrics.NotificationsTotal.WithLabelValues("sms", "success").Inc()
	log.WithFields(log.Fields{"sid": sid, "status": status}).Info("notify.sms.sent")

	return &models.NotificationResult{
		Success: true,
		Message: "Conference SMS notification sent successfully",
		Details: map[string]interface{}{
			"sid":    sid,
			"status": status,
		},
	}, nil
}
