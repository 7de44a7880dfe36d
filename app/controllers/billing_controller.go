package controllers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/taskfoxapp/taskfox/internal/pkg/billing"
	"github.com/taskfoxapp/taskfox/internal/pkg/usercontext"
)

// BillingController exposes the checkout/portal flows and the Stripe webhook
// ingress. The billing service is injected, never constructed here.
type BillingController struct {
	svc           *billing.Service
	webhookSecret string
}

// NewBillingController wires the billing controller.
func NewBillingController(svc *billing.Service, webhookSecret string) *BillingController {
	return &BillingController{svc: svc, webhookSecret: webhookSecret}
}

// HandleBillingPage renders the billing dashboard with the subscription
// mirror, invoice history and the plan catalog.
func (bc *BillingController) HandleBillingPage(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	sub, err := bc.svc.GetSubscription(userID)
	if err != nil {
		return flashError(c, "Could not load your subscription", "/dashboard")
	}
	invoices, err := bc.svc.GetInvoices(userID)
	if err != nil {
		return flashError(c, "Could not load your invoices", "/dashboard")
	}
	plans, err := bc.svc.GetPlans()
	if err != nil {
		return flashError(c, "Could not load the plan catalog", "/dashboard")
	}

	// Checkout redirects back here with ?success=true. The webhook has
	// usually landed by then, so the cached plan is stale.
	if c.Query("success") == "true" {
		refreshPlanCache(c, sub)
	}

	return c.Render("billing/index", viewData(c, fiber.Map{
		"Title":        "Billing",
		"Subscription": sub,
		"Invoices":     invoices,
		"Plans":        plans,
	}))
}

// HandleCheckout starts a subscription checkout for the posted price id.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	priceID := c.FormValue("price_id")
	if priceID == "" {
		return flashError(c, "No plan selected", "/dashboard/billing")
	}

	url, err := bc.svc.CreateCheckoutSession(c.Context(), userID, priceID)
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			return flashError(c, "Billing is not configured on this instance", "/dashboard/billing")
		}
		log.Errorf("[Billing] checkout session for user %d failed: %v", userID, err)
		return flashError(c, "Could not start the checkout, please try again", "/dashboard/billing")
	}

	return c.Redirect(url, fiber.StatusSeeOther)
}

// HandlePortal redirects to the Stripe customer portal.
func (bc *BillingController) HandlePortal(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	url, err := bc.svc.CreatePortalSession(c.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrNoCustomer):
			return flashError(c, "You have no billing history yet", "/dashboard/billing")
		case errors.Is(err, billing.ErrNotConfigured):
			return flashError(c, "Billing is not configured on this instance", "/dashboard/billing")
		}
		log.Errorf("[Billing] portal session for user %d failed: %v", userID, err)
		return flashError(c, "Could not open the billing portal", "/dashboard/billing")
	}

	return c.Redirect(url, fiber.StatusSeeOther)
}

// HandleCancel flags the subscription to end at period end.
func (bc *BillingController) HandleCancel(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	if err := bc.svc.CancelAtPeriodEnd(c.Context(), userID); err != nil {
		if errors.Is(err, billing.ErrNoSubscription) {
			return flashError(c, "You have no active subscription", "/dashboard/billing")
		}
		log.Errorf("[Billing] cancel for user %d failed: %v", userID, err)
		return flashError(c, "Could not schedule the cancellation", "/dashboard/billing")
	}
	return flashSuccess(c, "Your subscription ends at the end of the billing period", "/dashboard/billing")
}

// HandleReactivate clears a pending cancellation.
func (bc *BillingController) HandleReactivate(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	if err := bc.svc.Reactivate(c.Context(), userID); err != nil {
		if errors.Is(err, billing.ErrNoSubscription) {
			return flashError(c, "You have no subscription to reactivate", "/dashboard/billing")
		}
		log.Errorf("[Billing] reactivate for user %d failed: %v", userID, err)
		return flashError(c, "Could not reactivate the subscription", "/dashboard/billing")
	}
	return flashSuccess(c, "Welcome back! Your subscription continues", "/dashboard/billing")
}

// HandleStripeWebhook is the ingress for Stripe event deliveries. Signature
// verification first, then idempotent store, then dispatch. A non-2xx reply
// makes Stripe redeliver, so persistence failures return 500 while unknown
// customers and stale events are acknowledged.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := c.BodyRaw()
	sigHeader := c.Get("Stripe-Signature")

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, bc.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Warnf("[Billing] webhook signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
	}

	created, stored, err := bc.svc.RecordWebhookEvent(billing.WebhookEventInput{
		StripeEventID:  event.ID,
		EventType:      string(event.Type),
		PayloadJSON:    string(payload),
		SignatureValid: true,
	})
	if err != nil {
		log.Errorf("[Billing] failed to store webhook event %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage failure"})
	}
	if !created {
		return c.JSON(fiber.Map{"received": true, "duplicate": true})
	}

	processErr := bc.dispatchEvent(c, &event)

	errMsg := ""
	if processErr != nil {
		errMsg = processErr.Error()
	}
	if err := bc.svc.MarkWebhookProcessed(stored.ID, errMsg); err != nil {
		log.Errorf("[Billing] failed to mark webhook event %s processed: %v", event.ID, err)
	}

	if processErr != nil {
		log.Errorf("[Billing] webhook event %s (%s) failed: %v", event.ID, event.Type, processErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing failure"})
	}
	return c.JSON(fiber.Map{"received": true})
}

func (bc *BillingController) dispatchEvent(c *fiber.Ctx, event *stripe.Event) error {
	occurredAt := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return err
		}
		ev := billing.CheckoutCompletedEvent{OccurredAt: occurredAt}
		if sess.Customer != nil {
			ev.StripeCustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			ev.StripeSubscriptionID = sess.Subscription.ID
		}
		return bc.svc.HandleCheckoutCompleted(c.Context(), ev)

	case "customer.subscription.updated":
		ev, err := subscriptionEventFromRaw(event.Data.Raw, occurredAt)
		if err != nil {
			return err
		}
		return bc.svc.HandleSubscriptionUpdated(ev)

	case "customer.subscription.deleted":
		ev, err := subscriptionEventFromRaw(event.Data.Raw, occurredAt)
		if err != nil {
			return err
		}
		return bc.svc.HandleSubscriptionDeleted(ev)

	case "invoice.payment_succeeded":
		ev, err := invoiceEventFromRaw(event.Data.Raw, occurredAt)
		if err != nil {
			return err
		}
		return bc.svc.HandleInvoicePaid(ev)

	case "invoice.payment_failed":
		ev, err := invoiceEventFromRaw(event.Data.Raw, occurredAt)
		if err != nil {
			return err
		}
		return bc.svc.HandleInvoiceFailed(ev)
	}

	// Unhandled event types are acknowledged without processing
	log.Debugf("[Billing] ignoring webhook event type %s", event.Type)
	return nil
}

func subscriptionEventFromRaw(raw json.RawMessage, occurredAt time.Time) (billing.SubscriptionEvent, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return billing.SubscriptionEvent{}, err
	}

	ev := billing.SubscriptionEvent{
		StripeSubscriptionID: sub.ID,
		Status:               string(sub.Status),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		OccurredAt:           occurredAt,
	}
	if sub.Customer != nil {
		ev.StripeCustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		ev.CurrentPeriodEnd = &end
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		ev.StripePriceID = sub.Items.Data[0].Price.ID
	}
	return ev, nil
}

func invoiceEventFromRaw(raw json.RawMessage, occurredAt time.Time) (billing.InvoiceEvent, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return billing.InvoiceEvent{}, err
	}

	ev := billing.InvoiceEvent{
		StripeInvoiceID:  inv.ID,
		AmountPaid:       inv.AmountPaid,
		Currency:         string(inv.Currency),
		Status:           string(inv.Status),
		HostedInvoiceURL: inv.HostedInvoiceURL,
		InvoicePDF:       inv.InvoicePDF,
		OccurredAt:       occurredAt,
	}
	if inv.Customer != nil {
		ev.StripeCustomerID = inv.Customer.ID
	}
	return ev, nil
}
