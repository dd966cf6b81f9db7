package notify

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"chat-relay-service/config"
	"chat-relay-service/metrics"
	"chat-relay-service/models"

	"github.com/apex/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const conferenceSubject = "Customer Waiting in Conference"

type mailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailNotifier tells an agent by email that a customer is waiting in a conference
type EmailNotifier struct {
	apiKey    string
	fromEmail string
	fromName  string
	client    mailSender
}

func NewEmailNotifier(cfg *config.Config) *EmailNotifier {
	n := &EmailNotifier{
		apiKey:    cfg.SendGridAPIKey,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
	if n.apiKey != "" {
		n.client = sendgrid.NewSendClient(n.apiKey)
	}
	return n
}

// SendConferenceNotification emails the conference link, with the conversation so far when given
func (n *EmailNotifier) SendConferenceNotification(email, conferenceURL string, transcript []models.TranscriptMessage) (*models.NotificationResult, error) {
	log.WithFields(log.Fields{"email": email, "has_url": conferenceURL != ""}).Info("notify.email.start")

	if missing := missingVars(map[string]string{
		"SENDGRID_API_KEY": n.apiKey,
		"FROM_EMAIL":       n.fromEmail,
		"FROM_NAME":        n.fromName,
	}, "SENDGRID_API_KEY", "FROM_EMAIL", "FROM_NAME"); missing != nil {
		metrics.NotificationsTotal.WithLabelValues("email", "error").Inc()
		return nil, fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(n.fromName, n.fromEmail))
	message.Subject = conferenceSubject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(email, email))
	message.AddPersonalizations(p)

	message.AddContent(mail.NewContent("text/plain", conferenceText(conferenceURL, transcript)))
	message.AddContent(mail.NewContent("text/html", conferenceHTML(conferenceURL, transcript)))

	response, err := n.client.Send(message)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("email", "error").Inc()
		return nil, fmt.Errorf("sendgrid send failed: %w", err)
	}
	if response.StatusCode != http.StatusAccepted {
		metrics.NotificationsTotal.WithLabelValues("email", "error").Inc()
		return nil, fmt.Errorf("SendGrid API error: %d", response.StatusCode)
	}

	metrics.NotificationsTotal.WithLabelValues("email", "success").Inc()
	log.Infof("Conference notification sent to %s, status %d", email, response.StatusCode)

	return &models.NotificationResult{
		Success: true,
		Message: "Conference notification sent successfully",
		Details: map[string]interface{}{
			"statusCode": response.StatusCode,
			"messageId":  firstHeader(response.Headers, "X-Message-Id"),
		},
	}, nil
}

func conferenceText(conferenceURL string, transcript []models.TranscriptMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A customer is waiting for you in a conference. Join now: %s", conferenceURL)
	if len(transcript) > 0 {
		b.WriteString("\n\nConversation so far:\n")
		for _, m := range transcript {
			fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp, m.Role, m.Content)
		}
	}
	return b.String()
}

func conferenceHTML(conferenceURL string, transcript []models.TranscriptMessage) string {
	link := html.EscapeString(conferenceURL)

	var b strings.Builder
	b.WriteString(`<div style="padding: 20px; max-width: 600px; margin: 0 auto; font-family: Arial, sans-serif;">`)
	b.WriteString(`<h2 style="color: #333; text-align: center;">Customer Waiting</h2>`)
	b.WriteString(`<p style="font-size: 18px; text-align: center; color: #555;">A customer is waiting for you in a conference</p>`)
	b.WriteString(`<div style="text-align: center; margin: 30px 0;">`)
	fmt.Fprintf(&b, `<a href="%s" style="display: inline-block; padding: 15px 30px; background-color: #4F46E5; color: white; text-decoration: none; border-radius: 5px; font-size: 18px; font-weight: bold;">Join Now</a>`, link)
	b.WriteString(`</div>`)
	if len(transcript) > 0 {
		b.WriteString(`<h3 style="color: #333;">Conversation so far</h3>`)
		for _, m := range transcript {
			fmt.Fprintf(&b, `<p style="color: #555;"><strong>%s</strong> <span style="color: #888; font-size: 12px;">%s</span><br>%s</p>`,
				html.EscapeString(m.Role), html.EscapeString(m.Timestamp), html.EscapeString(m.Content))
		}
	}
	b.WriteString(`<p style="text-align: center; color: #888; font-size: 12px; margin-top: 30px;">powered by BabaAI Conference!</p>`)
	b.WriteString(`</div>`)
	return b.String()
}

func firstHeader(headers map[string][]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// missingVars lists the names in order whose value is empty
func missingVars(values map[string]string, order ...string) []string {
	var missing []string
	for _, name := range order {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
