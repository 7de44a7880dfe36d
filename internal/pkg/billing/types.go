package billing

import (
	"errors"
	"time"
)

var (
	// ErrNotConfigured means the Stripe integration is missing its secret
	// key. Fatal precondition, surfaced as a server error, never retried.
	ErrNotConfigured = errors.New("billing: stripe is not configured")
	// ErrNoCustomer means the user has no Stripe customer id on record,
	// e.g. a free-tier user with no billing history.
	ErrNoCustomer = errors.New("billing: no stripe customer for user")
	// ErrNoSubscription means the user has no local subscription mirror row.
	ErrNoSubscription = errors.New("billing: no subscription for user")
)

// SubscriptionSnapshot is the authoritative subscription state fetched from
// or delivered by Stripe, reduced to the fields the local mirror keeps.
type SubscriptionSnapshot struct {
	StripeSubscriptionID string
	StripePriceID        string
	Status               string
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
}

// CheckoutCompletedEvent carries the identifiers from a
// checkout.session.completed delivery. The subscription state itself is
// re-fetched from the provider rather than trusted from the event payload.
type CheckoutCompletedEvent struct {
	StripeCustomerID     string
	StripeSubscriptionID string
	OccurredAt           time.Time
}

// SubscriptionEvent carries the mirror-relevant fields of a
// customer.subscription.updated or .deleted delivery.
type SubscriptionEvent struct {
	StripeCustomerID     string
	StripeSubscriptionID string
	StripePriceID        string
	Status               string
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	OccurredAt           time.Time
}

// InvoiceEvent carries the mirror-relevant fields of an invoice.* delivery.
type InvoiceEvent struct {
	StripeCustomerID string
	StripeInvoiceID  string
	AmountPaid       int64
	Currency         string
	Status           string
	HostedInvoiceURL string
	InvoicePDF       string
	OccurredAt       time.Time
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	StripeEventID  string
	EventType      string
	PayloadJSON    string
	SignatureValid bool
}

// Usage summarizes a user's consumption of quota-limited resources.
type Usage struct {
	Todos int64 `json:"todos"`
}
