// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/models"
)

type NotificationService struct {
	config config.EmailConfig
	send   func(to, subject, body string) error
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(cfg config.EmailConfig) *NotificationService {
	s := &NotificationService{config: cfg}
	s.send = s.sendEmail
	return s
}

// Policy approval notifications go to the admin mailbox.
func (s *NotificationService) SendPolicyApprovalRequested(policy *models.CommissionPolicy) error {
	data := map[string]interface{}{
		"PolicyName":  policy.Name,
		"PolicyID":    policy.ID,
		"RequestedBy": policy.ApprovalRequestedBy,
		"Priority":    policy.Priority,
	}
	return s.deliver(s.config.AdminEmail, "policy_approval_requested", "Policy approval requested - "+policy.Name, data)
}

func (s *NotificationService) SendPolicyApprovalDecided(policy *models.CommissionPolicy) error {
	data := map[string]interface{}{
		"PolicyName": policy.Name,
		"PolicyID":   policy.ID,
		"Decision":   policy.ApprovalStatus,
		"DecidedBy":  policy.ApprovedBy,
		"Note":       policy.ApprovalNote,
	}
	subject := fmt.Sprintf("Policy %s - %s", policy.ApprovalStatus, policy.Name)
	return s.deliver(s.config.AdminEmail, "policy_approval_decided", subject, data)
}

// Settlement notifications
func (s *NotificationService) SendSettlementPaid(batch *models.PartnerSettlementBatch, partner *models.Partner) error {
	data := map[string]interface{}{
		"PartnerName": partner.Name,
		"PeriodKey":   batch.PeriodKey,
		"Amount":      batch.TotalAmount.String(),
		"Currency":    batch.Currency,
		"PayoutRef":   batch.PayoutRef,
	}
	return s.deliver(partner.Email, "settlement_paid", "Your commission payout for "+batch.PeriodKey, data)
}

func (s *NotificationService) SendSettlementFailed(batch *models.PartnerSettlementBatch, partner *models.Partner) error {
	data := map[string]interface{}{
		"PartnerName": partner.Name,
		"BatchID":     batch.ID,
		"PeriodKey":   batch.PeriodKey,
		"Amount":      batch.TotalAmount.String(),
		"Currency":    batch.Currency,
		"Reason":      batch.FailureReason,
	}
	return s.deliver(s.config.AdminEmail, "settlement_failed", "Settlement payout failed - "+batch.PeriodKey, data)
}

func (s *NotificationService) deliver(to, templateType, subject string, data map[string]interface{}) error {
	if to == "" {
		logrus.WithField("template", templateType).Debug("No recipient configured, skipping notification")
		return nil
	}
	tmpl := s.getEmailTemplate(templateType)
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return s.send(to, subject, body)
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.SMTPHost == "" {
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email not configured, notification logged only")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)
	from := s.config.FromEmail
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail)
	}
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", from, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.SMTPHost, s.config.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"policy_approval_requested": {
			Subject: "Policy approval requested",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Commission policy awaiting approval</h2>
	<p>{{.RequestedBy}} asked for approval of "{{.PolicyName}}" (priority {{.Priority}}).</p>
	<p>Policy id: {{.PolicyID}}</p>
</body>
</html>`,
		},
		"policy_approval_decided": {
			Subject: "Policy approval decided",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Policy "{{.PolicyName}}" is {{.Decision}}</h2>
	<p>Decided by {{.DecidedBy}}.</p>
	{{if .Note}}<p>Note: {{.Note}}</p>{{end}}
</body>
</html>`,
		},
		"settlement_paid": {
			Subject: "Commission payout",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.PartnerName}},</h2>
	<p>Your commissions for {{.PeriodKey}} were paid: {{.Amount}} {{.Currency}}.</p>
	<p>Payout reference: {{.PayoutRef}}</p>
</body>
</html>`,
		},
		"settlement_failed": {
			Subject: "Settlement payout failed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Payout failed for {{.PartnerName}}</h2>
	<p>Batch {{.BatchID}} ({{.PeriodKey}}, {{.Amount}} {{.Currency}}) could not be paid.</p>
	<p>Reason: {{.Reason}}</p>
</body>
</html>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
