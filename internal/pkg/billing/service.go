package billing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/internal/pkg/entitlements"
)

// Notifier receives billing lifecycle signals for user-facing messaging.
// Implementations must not block; failures are logged, never propagated.
type Notifier interface {
	PaymentFailed(user *models.User, invoice InvoiceEvent)
	SubscriptionCanceled(user *models.User)
}

// Service reconciles the local billing mirror with Stripe. All dependencies
// are injected; the service holds no package-level state.
type Service struct {
	repo     Repository
	provider ProviderClient
	notifier Notifier
	appURL   string
}

// NewService wires the billing service. provider may be nil when Stripe is
// not configured; operations that need it then fail with ErrNotConfigured.
// notifier may be nil to disable billing mail.
func NewService(repo Repository, provider ProviderClient, notifier Notifier, appURL string) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		notifier: notifier,
		appURL:   appURL,
	}
}

// EnsureCustomer returns the user's Stripe customer id, creating the remote
// customer on first use. Safe to call repeatedly; an existing id is reused.
func (s *Service) EnsureCustomer(ctx context.Context, userID uint) (string, error) {
	if s.provider == nil {
		return "", ErrNotConfigured
	}

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return "", fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, user.Email, user.ID)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetUserStripeCustomerID(user.ID, customerID); err != nil {
		return "", fmt.Errorf("failed to persist stripe customer id: %w", err)
	}
	return customerID, nil
}

// CreateCheckoutSession opens a subscription checkout for the given price and
// returns the hosted URL to redirect the user to.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uint, priceID string) (string, error) {
	if s.provider == nil {
		return "", ErrNotConfigured
	}

	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return "", err
	}

	successURL := s.appURL + "/dashboard/billing?success=true"
	cancelURL := s.appURL + "/dashboard/billing?canceled=true"
	return s.provider.CreateCheckoutSession(ctx, customerID, priceID, successURL, cancelURL)
}

// CreatePortalSession opens the Stripe customer portal. Users without a
// customer id have no billing history to manage and get ErrNoCustomer.
func (s *Service) CreatePortalSession(ctx context.Context, userID uint) (string, error) {
	if s.provider == nil {
		return "", ErrNotConfigured
	}

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return "", fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	return s.provider.CreatePortalSession(ctx, *user.StripeCustomerID, s.appURL+"/dashboard/billing")
}

// CancelAtPeriodEnd flags the user's subscription to end when the paid period
// runs out. The local mirror is updated optimistically; the authoritative
// state still arrives via customer.subscription.updated.
func (s *Service) CancelAtPeriodEnd(ctx context.Context, userID uint) error {
	return s.setCancelFlag(ctx, userID, true)
}

// Reactivate clears a pending cancellation before the period ends.
func (s *Service) Reactivate(ctx context.Context, userID uint) error {
	return s.setCancelFlag(ctx, userID, false)
}

func (s *Service) setCancelFlag(ctx context.Context, userID uint, cancel bool) error {
	if s.provider == nil {
		return ErrNotConfigured
	}

	sub, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil {
		if IsNotFound(err) {
			return ErrNoSubscription
		}
		return fmt.Errorf("failed to load subscription for user %d: %w", userID, err)
	}

	if err := s.provider.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, cancel); err != nil {
		return err
	}

	sub.CancelAtPeriodEnd = cancel
	if err := s.repo.SaveSubscription(sub); err != nil {
		// Stripe already accepted the change; the next webhook heals the mirror.
		return fmt.Errorf("failed to save cancellation flag locally: %w", err)
	}
	return nil
}

// RecordWebhookEvent persists a delivery for idempotent processing. It
// reports created=false for a Stripe event id that was stored before.
func (s *Service) RecordWebhookEvent(input WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	event := &models.BillingWebhookEvent{
		StripeEventID:  input.StripeEventID,
		EventType:      input.EventType,
		PayloadJSON:    input.PayloadJSON,
		SignatureValid: input.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed stamps the stored event with the processing outcome.
func (s *Service) MarkWebhookProcessed(eventID uint, processingError string) error {
	return s.repo.MarkWebhookProcessed(eventID, processingError)
}

// HandleCheckoutCompleted reacts to checkout.session.completed. The event
// only proves that checkout finished; the subscription state is re-fetched
// from Stripe so the mirror starts from an authoritative snapshot.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, ev CheckoutCompletedEvent) error {
	user, err := s.repo.GetUserByStripeCustomerID(ev.StripeCustomerID)
	if err != nil {
		if IsNotFound(err) {
			log.Printf("[Billing] checkout completed for unknown customer %s, skipping", ev.StripeCustomerID)
			return nil
		}
		return fmt.Errorf("failed to resolve customer %s: %w", ev.StripeCustomerID, err)
	}
	if ev.StripeSubscriptionID == "" {
		return nil
	}
	if s.provider == nil {
		return ErrNotConfigured
	}

	snap, err := s.provider.RetrieveSubscription(ctx, ev.StripeSubscriptionID)
	if err != nil {
		return err
	}

	occurredAt := ev.OccurredAt
	sub := &models.Subscription{
		UserID:               user.ID,
		StripeSubscriptionID: snap.StripeSubscriptionID,
		StripePriceID:        snap.StripePriceID,
		Status:               snap.Status,
		CurrentPeriodEnd:     snap.CurrentPeriodEnd,
		CancelAtPeriodEnd:    snap.CancelAtPeriodEnd,
		LastEventAt:          &occurredAt,
	}
	return s.repo.UpsertSubscription(sub)
}

// HandleSubscriptionUpdated reacts to customer.subscription.updated. Events
// older than the mirror's last applied event are dropped so out-of-order
// delivery cannot roll the subscription state backwards.
func (s *Service) HandleSubscriptionUpdated(ev SubscriptionEvent) error {
	sub, err := s.repo.GetSubscriptionByStripeID(ev.StripeSubscriptionID)
	if err != nil {
		if IsNotFound(err) {
			log.Printf("[Billing] update for unknown subscription %s, skipping", ev.StripeSubscriptionID)
			return nil
		}
		return fmt.Errorf("failed to load subscription %s: %w", ev.StripeSubscriptionID, err)
	}

	if sub.LastEventAt != nil && ev.OccurredAt.Before(*sub.LastEventAt) {
		log.Printf("[Billing] stale update for subscription %s (%s < %s), skipping",
			ev.StripeSubscriptionID, ev.OccurredAt.Format(time.RFC3339), sub.LastEventAt.Format(time.RFC3339))
		return nil
	}

	occurredAt := ev.OccurredAt
	sub.Status = ev.Status
	if ev.StripePriceID != "" {
		sub.StripePriceID = ev.StripePriceID
	}
	sub.CurrentPeriodEnd = ev.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	sub.LastEventAt = &occurredAt
	return s.repo.SaveSubscription(sub)
}

// HandleSubscriptionDeleted reacts to customer.subscription.deleted. Deletion
// is terminal and always wins, regardless of event ordering.
func (s *Service) HandleSubscriptionDeleted(ev SubscriptionEvent) error {
	sub, err := s.repo.GetSubscriptionByStripeID(ev.StripeSubscriptionID)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load subscription %s: %w", ev.StripeSubscriptionID, err)
	}

	occurredAt := ev.OccurredAt
	sub.Status = models.SubscriptionStatusCanceled
	sub.CancelAtPeriodEnd = false
	sub.LastEventAt = &occurredAt
	if err := s.repo.SaveSubscription(sub); err != nil {
		return err
	}

	if s.notifier != nil {
		if user, err := s.repo.GetUserByID(sub.UserID); err == nil {
			s.notifier.SubscriptionCanceled(user)
		}
	}
	return nil
}

// HandleInvoicePaid reacts to invoice.payment_succeeded by upserting the
// local invoice mirror keyed by the Stripe invoice id.
func (s *Service) HandleInvoicePaid(ev InvoiceEvent) error {
	user, err := s.repo.GetUserByStripeCustomerID(ev.StripeCustomerID)
	if err != nil {
		if IsNotFound(err) {
			log.Printf("[Billing] invoice for unknown customer %s, skipping", ev.StripeCustomerID)
			return nil
		}
		return fmt.Errorf("failed to resolve customer %s: %w", ev.StripeCustomerID, err)
	}

	inv := &models.Invoice{
		UserID:           user.ID,
		StripeInvoiceID:  ev.StripeInvoiceID,
		AmountPaid:       ev.AmountPaid,
		Currency:         ev.Currency,
		Status:           models.InvoiceStatusPaid,
		HostedInvoiceURL: ev.HostedInvoiceURL,
		InvoicePDF:       ev.InvoicePDF,
	}
	if ev.Status != "" {
		inv.Status = ev.Status
	}
	return s.repo.UpsertInvoice(inv)
}

// HandleInvoiceFailed reacts to invoice.payment_failed by flagging the
// subscription past_due and notifying the user.
func (s *Service) HandleInvoiceFailed(ev InvoiceEvent) error {
	user, err := s.repo.GetUserByStripeCustomerID(ev.StripeCustomerID)
	if err != nil {
		if IsNotFound(err) {
			log.Printf("[Billing] failed invoice for unknown customer %s, skipping", ev.StripeCustomerID)
			return nil
		}
		return fmt.Errorf("failed to resolve customer %s: %w", ev.StripeCustomerID, err)
	}

	sub, err := s.repo.GetSubscriptionByUserID(user.ID)
	if err == nil {
		// Same ordering guard as subscription updates: a re-delivered old
		// payment failure must not overwrite a newer recovered status.
		if sub.LastEventAt != nil && ev.OccurredAt.Before(*sub.LastEventAt) {
			log.Printf("[Billing] stale failed invoice for subscription %s (%s < %s), skipping",
				sub.StripeSubscriptionID, ev.OccurredAt.Format(time.RFC3339), sub.LastEventAt.Format(time.RFC3339))
			return nil
		}
		occurredAt := ev.OccurredAt
		sub.Status = models.SubscriptionStatusPastDue
		sub.LastEventAt = &occurredAt
		if err := s.repo.SaveSubscription(sub); err != nil {
			return err
		}
	} else if !IsNotFound(err) {
		return fmt.Errorf("failed to load subscription for user %d: %w", user.ID, err)
	}

	if s.notifier != nil {
		s.notifier.PaymentFailed(user, ev)
	}
	return nil
}

// GetSubscription returns the user's subscription mirror, or nil when the
// user never subscribed.
func (s *Service) GetSubscription(userID uint) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// GetPlans returns the active product catalog, cheapest first.
func (s *Service) GetPlans() ([]models.Product, error) {
	return s.repo.ListActiveProducts()
}

// GetInvoices returns the user's invoice history, newest first.
func (s *Service) GetInvoices(userID uint) ([]models.Invoice, error) {
	return s.repo.ListInvoicesByUser(userID)
}

// GetUsage returns the user's current quota consumption.
func (s *Service) GetUsage(userID uint) (Usage, error) {
	count, err := s.repo.CountTodosByUser(userID)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Todos: count}, nil
}

// HasFeature resolves the user's subscription and product row and checks the
// feature against the entitlement rules.
func (s *Service) HasFeature(userID uint, feature entitlements.Feature) (bool, error) {
	sub, product, err := s.subscriptionContext(userID)
	if err != nil {
		return false, err
	}
	return entitlements.HasFeature(sub, product, feature), nil
}

// CanCreateTodo checks the todo quota for the user.
func (s *Service) CanCreateTodo(userID uint) (bool, error) {
	sub, product, err := s.subscriptionContext(userID)
	if err != nil {
		return false, err
	}
	count, err := s.repo.CountTodosByUser(userID)
	if err != nil {
		return false, err
	}
	return entitlements.CanCreateTodo(sub, product, count), nil
}

func (s *Service) subscriptionContext(userID uint) (*models.Subscription, *models.Product, error) {
	sub, err := s.GetSubscription(userID)
	if err != nil {
		return nil, nil, err
	}
	if sub == nil {
		return nil, nil, nil
	}

	product, err := s.repo.GetProductByPriceID(sub.StripePriceID)
	if err != nil {
		if IsNotFound(err) {
			return sub, nil, nil
		}
		return nil, nil, err
	}
	return sub, product, nil
}
