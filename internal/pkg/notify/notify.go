package notify

import (
	"github.com/gofiber/fiber/v2/log"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/internal/pkg/billing"
	"github.com/taskfoxapp/taskfox/internal/pkg/env"
	"github.com/taskfoxapp/taskfox/internal/pkg/jobqueue"
)

// EmailNotifier forwards billing lifecycle signals to the mail job queue so
// webhook processing never blocks on SMTP.
type EmailNotifier struct {
	queue *jobqueue.Queue
}

// NewEmailNotifier wires the notifier to a job queue.
func NewEmailNotifier(queue *jobqueue.Queue) *EmailNotifier {
	return &EmailNotifier{queue: queue}
}

var _ billing.Notifier = (*EmailNotifier)(nil)

func (n *EmailNotifier) PaymentFailed(user *models.User, invoice billing.InvoiceEvent) {
	n.enqueue(jobqueue.EmailJobPayload{
		To:       user.Email,
		Subject:  "Your Taskfox payment failed",
		Template: jobqueue.EmailTemplatePaymentFailed,
		Data: map[string]string{
			"Name":       user.Name,
			"BillingURL": billingURL(),
		},
	})
}

func (n *EmailNotifier) SubscriptionCanceled(user *models.User) {
	n.enqueue(jobqueue.EmailJobPayload{
		To:       user.Email,
		Subject:  "Your Taskfox subscription has ended",
		Template: jobqueue.EmailTemplateSubscriptionCanceled,
		Data: map[string]string{
			"Name":       user.Name,
			"BillingURL": billingURL(),
		},
	})
}

func (n *EmailNotifier) enqueue(payload jobqueue.EmailJobPayload) {
	if n.queue == nil {
		return
	}
	if _, err := n.queue.EnqueueJob(jobqueue.JobTypeEmail, payload.ToMap()); err != nil {
		log.Errorf("[Notify] Failed to enqueue %s email for %s: %v", payload.Template, payload.To, err)
	}
}

func billingURL() string {
	return env.GetEnv("PUBLIC_DOMAIN", "http://localhost:3000") + "/dashboard/billing"
}
