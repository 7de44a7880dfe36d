package jobqueue

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/taskfoxapp/taskfox/internal/pkg/mail"
)

// Email template names accepted by the email job processor.
const (
	EmailTemplateActivation           = "activation"
	EmailTemplateWelcome              = "welcome"
	EmailTemplatePaymentFailed        = "payment_failed"
	EmailTemplateSubscriptionCanceled = "subscription_canceled"
	EmailTemplateExportReady          = "export_ready"
)

var emailTemplates = map[string]*template.Template{
	EmailTemplateActivation: template.Must(template.New(EmailTemplateActivation).Parse(
		`<p>Hi {{.Name}},</p>
<p>Welcome to Taskfox! Please confirm your email address by clicking the link below:</p>
<p><a href="{{.ActivationURL}}">Activate my account</a></p>
<p>If you did not sign up, you can ignore this email.</p>`)),

	EmailTemplateWelcome: template.Must(template.New(EmailTemplateWelcome).Parse(
		`<p>Hi {{.Name}},</p>
<p>Your email address is confirmed and your Taskfox account is ready.</p>
<p>Head over to your <a href="{{.DashboardURL}}">dashboard</a> and add your first todo.</p>`)),

	EmailTemplatePaymentFailed: template.Must(template.New(EmailTemplatePaymentFailed).Parse(
		`<p>Hi {{.Name}},</p>
<p>We could not collect the payment for your Taskfox subscription. Your plan is now marked past due.</p>
<p>Please update your payment method in the <a href="{{.BillingURL}}">billing portal</a> to keep your Pro features.</p>`)),

	EmailTemplateSubscriptionCanceled: template.Must(template.New(EmailTemplateSubscriptionCanceled).Parse(
		`<p>Hi {{.Name}},</p>
<p>Your Taskfox subscription has ended. Your account is back on the free plan.</p>
<p>You can resubscribe anytime from the <a href="{{.BillingURL}}">billing page</a>.</p>`)),

	EmailTemplateExportReady: template.Must(template.New(EmailTemplateExportReady).Parse(
		`<p>Hi {{.Name}},</p>
<p>Your data export is ready. The download link is valid for 24 hours:</p>
<p><a href="{{.DownloadURL}}">Download my data</a></p>`)),
}

// processEmailJob renders the named template and sends the mail via SMTP
func (q *Queue) processEmailJob(job *Job) error {
	payload, err := EmailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid email payload: %w", err)
	}
	if payload.To == "" {
		return fmt.Errorf("email payload has no recipient")
	}

	tmpl, ok := emailTemplates[payload.Template]
	if !ok {
		return fmt.Errorf("unknown email template: %s", payload.Template)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, payload.Data); err != nil {
		return fmt.Errorf("failed to render email template %s: %w", payload.Template, err)
	}

	return mail.SendMail(payload.To, payload.Subject, body.String())
}
