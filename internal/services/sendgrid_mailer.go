package services

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/models"
)

// ReviewNotifier tells moderators that accounts crossed the action-required level.
type ReviewNotifier interface {
	NotifyEscalations(ctx context.Context, accounts []models.SuspiciousAccount) error
}

type SendGridMailer struct {
	APIKey    string
	FromEmail string
	ToEmail   string
	client    *sendgrid.Client
}

// NewSendGridMailer returns nil when the key or either address is missing; callers treat
// a nil notifier as "email disabled".
func NewSendGridMailer(apiKey, fromEmail, toEmail string) *SendGridMailer {
	apiKey = strings.TrimSpace(apiKey)
	fromEmail = strings.TrimSpace(fromEmail)
	toEmail = strings.TrimSpace(toEmail)
	if apiKey == "" || fromEmail == "" || toEmail == "" {
		return nil
	}
	return &SendGridMailer{
		APIKey:    apiKey,
		FromEmail: fromEmail,
		ToEmail:   toEmail,
		client:    sendgrid.NewSendClient(apiKey),
	}
}

func (m *SendGridMailer) NotifyEscalations(ctx context.Context, accounts []models.SuspiciousAccount) error {
	if m == nil || len(accounts) == 0 {
		return nil
	}

	subject, plain, htmlBody := escalationEmail(accounts)
	from := mail.NewEmail("Moderation Console", m.FromEmail)
	to := mail.NewEmail("Moderators", m.ToEmail)
	message := mail.NewSingleEmail(from, subject, to, plain, htmlBody)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		zap.S().Errorw("failed to send review email", "error", err, "accounts", len(accounts))
		return err
	}
	if resp.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", resp.StatusCode, "body", resp.Body)
		return fmt.Errorf("sendgrid error: status %d", resp.StatusCode)
	}
	zap.S().Infow("review email sent", "to", m.ToEmail, "accounts", len(accounts))
	return nil
}

func escalationEmail(accounts []models.SuspiciousAccount) (subject, plain, htmlBody string) {
	subject = fmt.Sprintf("%d account(s) need review", len(accounts))

	var p, h strings.Builder
	p.WriteString("The following accounts reached the action-required suspicion level:\n\n")
	h.WriteString("<p>The following accounts reached the action-required suspicion level:</p><ul>")
	for _, a := range accounts {
		line := fmt.Sprintf("%s (level %d, device %s): %s", a.UserID, a.SuspicionLevel, a.DeviceID, strings.Join(a.Reasons, "; "))
		p.WriteString("- " + line + "\n")
		h.WriteString("<li>" + html.EscapeString(line) + "</li>")
	}
	h.WriteString("</ul>")
	return subject, p.String(), h.String()
}
