package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/taskfoxapp/taskfox/app/models"
)

type fakeRepo struct {
	users         map[uint]*models.User
	subscriptions map[string]*models.Subscription
	invoices      map[string]*models.Invoice
	products      map[string]*models.Product
	webhookEvents map[string]*models.BillingWebhookEvent
	todoCounts    map[uint]int64
	nextEventID   uint

	savedSubscriptions int
	upsertedInvoices   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         make(map[uint]*models.User),
		subscriptions: make(map[string]*models.Subscription),
		invoices:      make(map[string]*models.Invoice),
		products:      make(map[string]*models.Product),
		webhookEvents: make(map[string]*models.BillingWebhookEvent),
		todoCounts:    make(map[uint]int64),
	}
}

func (r *fakeRepo) GetUserByID(userID uint) (*models.User, error) {
	if user, ok := r.users[userID]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetUserByStripeCustomerID(customerID string) (*models.User, error) {
	for _, user := range r.users {
		if user.StripeCustomerID != nil && *user.StripeCustomerID == customerID {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) SetUserStripeCustomerID(userID uint, customerID string) error {
	user, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	user.StripeCustomerID = &customerID
	return nil
}

func (r *fakeRepo) GetSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	for _, sub := range r.subscriptions {
		if sub.UserID == userID {
			return sub, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetSubscriptionByStripeID(subscriptionID string) (*models.Subscription, error) {
	if sub, ok := r.subscriptions[subscriptionID]; ok {
		return sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) UpsertSubscription(sub *models.Subscription) error {
	for id, existing := range r.subscriptions {
		if existing.UserID == sub.UserID {
			delete(r.subscriptions, id)
		}
	}
	r.subscriptions[sub.StripeSubscriptionID] = sub
	return nil
}

func (r *fakeRepo) SaveSubscription(sub *models.Subscription) error {
	r.savedSubscriptions++
	r.subscriptions[sub.StripeSubscriptionID] = sub
	return nil
}

func (r *fakeRepo) UpsertInvoice(inv *models.Invoice) error {
	r.upsertedInvoices++
	r.invoices[inv.StripeInvoiceID] = inv
	return nil
}

func (r *fakeRepo) ListInvoicesByUser(userID uint) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, inv := range r.invoices {
		if inv.UserID == userID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListActiveProducts() ([]models.Product, error) {
	var out []models.Product
	for _, p := range r.products {
		if p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetProductByPriceID(priceID string) (*models.Product, error) {
	if p, ok := r.products[priceID]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) CountTodosByUser(userID uint) (int64, error) {
	return r.todoCounts[userID], nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	if existing, ok := r.webhookEvents[event.StripeEventID]; ok {
		return false, existing, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	r.webhookEvents[event.StripeEventID] = event
	return true, event, nil
}

func (r *fakeRepo) MarkWebhookProcessed(eventID uint, processingError string) error {
	for _, event := range r.webhookEvents {
		if event.ID == eventID {
			now := time.Now()
			event.ProcessedAt = &now
			event.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeProvider struct {
	createdCustomers int
	cancelCalls      []bool
	snapshot         *SubscriptionSnapshot
	retrieveErr      error
}

func (p *fakeProvider) CreateCustomer(ctx context.Context, email string, userID uint) (string, error) {
	p.createdCustomers++
	return fmt.Sprintf("cus_%d", userID), nil
}

func (p *fakeProvider) RetrieveSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error) {
	if p.retrieveErr != nil {
		return nil, p.retrieveErr
	}
	if p.snapshot != nil {
		return p.snapshot, nil
	}
	end := time.Now().Add(30 * 24 * time.Hour)
	return &SubscriptionSnapshot{
		StripeSubscriptionID: subscriptionID,
		StripePriceID:        "price_pro_monthly",
		Status:               models.SubscriptionStatusActive,
		CurrentPeriodEnd:     &end,
	}, nil
}

func (p *fakeProvider) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error {
	p.cancelCalls = append(p.cancelCalls, cancel)
	return nil
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (string, error) {
	return "https://checkout.stripe.test/" + priceID, nil
}

func (p *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.stripe.test/" + customerID, nil
}

type fakeNotifier struct {
	paymentFailed        int
	subscriptionCanceled int
}

func (n *fakeNotifier) PaymentFailed(user *models.User, invoice InvoiceEvent) { n.paymentFailed++ }
func (n *fakeNotifier) SubscriptionCanceled(user *models.User)                { n.subscriptionCanceled++ }

func newTestService() (*Service, *fakeRepo, *fakeProvider, *fakeNotifier) {
	repo := newFakeRepo()
	provider := &fakeProvider{}
	notifier := &fakeNotifier{}
	return NewService(repo, provider, notifier, "http://localhost:3000"), repo, provider, notifier
}

func seedUser(repo *fakeRepo, id uint, customerID string) *models.User {
	user := &models.User{ID: id, Email: fmt.Sprintf("user%d@example.com", id)}
	if customerID != "" {
		user.StripeCustomerID = &customerID
	}
	repo.users[id] = user
	return user
}

func TestEnsureCustomer_CreatesOnce(t *testing.T) {
	svc, repo, provider, _ := newTestService()
	seedUser(repo, 1, "")

	first, err := svc.EnsureCustomer(context.Background(), 1)
	if err != nil {
		t.Fatalf("EnsureCustomer: %v", err)
	}
	second, err := svc.EnsureCustomer(context.Background(), 1)
	if err != nil {
		t.Fatalf("EnsureCustomer second call: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable customer id, got %q then %q", first, second)
	}
	if provider.createdCustomers != 1 {
		t.Fatalf("expected exactly one remote customer creation, got %d", provider.createdCustomers)
	}
}

func TestCreatePortalSession_WithoutCustomer(t *testing.T) {
	svc, repo, _, _ := newTestService()
	seedUser(repo, 1, "")

	if _, err := svc.CreatePortalSession(context.Background(), 1); !errors.Is(err, ErrNoCustomer) {
		t.Fatalf("expected ErrNoCustomer, got %v", err)
	}
}

func TestSessionIssuers_WithoutProvider(t *testing.T) {
	repo := newFakeRepo()
	seedUser(repo, 1, "cus_1")
	svc := NewService(repo, nil, nil, "http://localhost:3000")

	if _, err := svc.CreateCheckoutSession(context.Background(), 1, "price_pro_monthly"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for checkout, got %v", err)
	}
	if _, err := svc.CreatePortalSession(context.Background(), 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for portal, got %v", err)
	}
}

func TestCheckoutCompleted_InsertsAuthoritativeSnapshot(t *testing.T) {
	svc, repo, _, _ := newTestService()
	seedUser(repo, 1, "cus_1")

	ev := CheckoutCompletedEvent{
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		OccurredAt:           time.Now(),
	}
	if err := svc.HandleCheckoutCompleted(context.Background(), ev); err != nil {
		t.Fatalf("HandleCheckoutCompleted: %v", err)
	}

	sub, err := repo.GetSubscriptionByStripeID("sub_1")
	if err != nil {
		t.Fatalf("expected subscription mirror row: %v", err)
	}
	if sub.UserID != 1 || sub.Status != models.SubscriptionStatusActive || sub.StripePriceID != "price_pro_monthly" {
		t.Fatalf("unexpected mirror state: %+v", sub)
	}
	if sub.LastEventAt == nil {
		t.Fatalf("expected last event timestamp to be recorded")
	}
}

func TestCheckoutCompleted_UnknownCustomerIsNoop(t *testing.T) {
	svc, repo, _, _ := newTestService()

	ev := CheckoutCompletedEvent{StripeCustomerID: "cus_ghost", StripeSubscriptionID: "sub_1", OccurredAt: time.Now()}
	if err := svc.HandleCheckoutCompleted(context.Background(), ev); err != nil {
		t.Fatalf("expected unknown customer to be a silent no-op, got %v", err)
	}
	if len(repo.subscriptions) != 0 {
		t.Fatalf("expected no subscription rows, got %d", len(repo.subscriptions))
	}
}

func TestCheckoutCompleted_ProviderFailureSurfaces(t *testing.T) {
	svc, repo, provider, _ := newTestService()
	seedUser(repo, 1, "cus_1")
	provider.retrieveErr = errors.New("stripe down")

	ev := CheckoutCompletedEvent{StripeCustomerID: "cus_1", StripeSubscriptionID: "sub_1", OccurredAt: time.Now()}
	if err := svc.HandleCheckoutCompleted(context.Background(), ev); err == nil {
		t.Fatalf("expected provider failure to surface for webhook retry")
	}
}

func TestSubscriptionUpdated_StaleEventDropped(t *testing.T) {
	svc, repo, _, _ := newTestService()
	seedUser(repo, 1, "cus_1")

	applied := time.Now()
	repo.subscriptions["sub_1"] = &models.Subscription{
		UserID:               1,
		StripeSubscriptionID: "sub_1",
		StripePriceID:        "price_pro_monthly",
		Status:               models.SubscriptionStatusActive,
		LastEventAt:          &applied,
	}

	stale := SubscriptionEvent{
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusPastDue,
		OccurredAt:           applied.Add(-time.Hour),
	}
	if err := svc.HandleSubscriptionUpdated(stale); err != nil {
		t.Fatalf("HandleSubscriptionUpdated: %v", err)
	}
	if repo.subscriptions["sub_1"].Status != models.SubscriptionStatusActive {
		t.Fatalf("expected stale event to be dropped, status is %q", repo.subscriptions["sub_1"].Status)
	}

	fresh := stale
	fresh.OccurredAt = applied.Add(time.Hour)
	if err := svc.HandleSubscriptionUpdated(fresh); err != nil {
		t.Fatalf("HandleSubscriptionUpdated fresh: %v", err)
	}
	if repo.subscriptions["sub_1"].Status != models.SubscriptionStatusPastDue {
		t.Fatalf("expected fresh event to apply, status is %q", repo.subscriptions["sub_1"].Status)
	}
}

func TestSubscriptionDeleted_AlwaysWins(t *testing.T) {
	svc, repo, _, notifier := newTestService()
	seedUser(repo, 1, "cus_1")

	applied := time.Now()
	repo.subscriptions["sub_1"] = &models.Subscription{
		UserID:               1,
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusActive,
		CancelAtPeriodEnd:    true,
		LastEventAt:          &applied,
	}

	// Deletion delivered out of order, older than the last applied event.
	ev := SubscriptionEvent{StripeSubscriptionID: "sub_1", OccurredAt: applied.Add(-time.Hour)}
	if err := svc.HandleSubscriptionDeleted(ev); err != nil {
		t.Fatalf("HandleSubscriptionDeleted: %v", err)
	}

	sub := repo.subscriptions["sub_1"]
	if sub.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled status, got %q", sub.Status)
	}
	if sub.CancelAtPeriodEnd {
		t.Fatalf("expected cancel flag to be cleared on terminal deletion")
	}
	if notifier.subscriptionCanceled != 1 {
		t.Fatalf("expected one cancellation notification, got %d", notifier.subscriptionCanceled)
	}
}

func TestInvoicePaid_RedeliveryIsIdempotent(t *testing.T) {
	svc, repo, _, _ := newTestService()
	seedUser(repo, 1, "cus_1")

	ev := InvoiceEvent{
		StripeCustomerID: "cus_1",
		StripeInvoiceID:  "in_1",
		AmountPaid:       1999,
		Currency:         "usd",
		Status:           models.InvoiceStatusPaid,
		OccurredAt:       time.Now(),
	}
	if err := svc.HandleInvoicePaid(ev); err != nil {
		t.Fatalf("HandleInvoicePaid: %v", err)
	}
	if err := svc.HandleInvoicePaid(ev); err != nil {
		t.Fatalf("HandleInvoicePaid redelivery: %v", err)
	}

	invoices, _ := repo.ListInvoicesByUser(1)
	if len(invoices) != 1 {
		t.Fatalf("expected exactly one invoice row after redelivery, got %d", len(invoices))
	}
	if invoices[0].AmountPaid != 1999 {
		t.Fatalf("unexpected invoice amount %d", invoices[0].AmountPaid)
	}
}

func TestInvoiceFailed_FlagsPastDueAndNotifies(t *testing.T) {
	svc, repo, _, notifier := newTestService()
	seedUser(repo, 1, "cus_1")
	repo.subscriptions["sub_1"] = &models.Subscription{
		UserID:               1,
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusActive,
	}

	ev := InvoiceEvent{StripeCustomerID: "cus_1", StripeInvoiceID: "in_2", OccurredAt: time.Now()}
	if err := svc.HandleInvoiceFailed(ev); err != nil {
		t.Fatalf("HandleInvoiceFailed: %v", err)
	}
	if repo.subscriptions["sub_1"].Status != models.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due status, got %q", repo.subscriptions["sub_1"].Status)
	}
	if notifier.paymentFailed != 1 {
		t.Fatalf("expected one payment-failed notification, got %d", notifier.paymentFailed)
	}
}

func TestInvoiceFailed_StaleEventDropped(t *testing.T) {
	svc, repo, _, notifier := newTestService()
	seedUser(repo, 1, "cus_1")

	// Payment already recovered, the mirror carries a newer applied event.
	recovered := time.Now()
	repo.subscriptions["sub_1"] = &models.Subscription{
		UserID:               1,
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusActive,
		LastEventAt:          &recovered,
	}

	stale := InvoiceEvent{
		StripeCustomerID: "cus_1",
		StripeInvoiceID:  "in_old",
		OccurredAt:       recovered.Add(-time.Hour),
	}
	if err := svc.HandleInvoiceFailed(stale); err != nil {
		t.Fatalf("HandleInvoiceFailed: %v", err)
	}
	if repo.subscriptions["sub_1"].Status != models.SubscriptionStatusActive {
		t.Fatalf("expected stale failure to be dropped, status is %q", repo.subscriptions["sub_1"].Status)
	}
	if notifier.paymentFailed != 0 {
		t.Fatalf("expected no notification for a stale failure, got %d", notifier.paymentFailed)
	}
}

func TestRecordWebhookEvent_Deduplicates(t *testing.T) {
	svc, _, _, _ := newTestService()

	input := WebhookEventInput{StripeEventID: "evt_1", EventType: "invoice.payment_succeeded", PayloadJSON: "{}", SignatureValid: true}
	created, first, err := svc.RecordWebhookEvent(input)
	if err != nil || !created {
		t.Fatalf("expected first delivery to create, got created=%v err=%v", created, err)
	}
	created, second, err := svc.RecordWebhookEvent(input)
	if err != nil {
		t.Fatalf("RecordWebhookEvent duplicate: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate delivery to be detected")
	}
	if first.ID != second.ID {
		t.Fatalf("expected duplicate to return the stored row")
	}
}

func TestCancelAndReactivate(t *testing.T) {
	svc, repo, provider, _ := newTestService()
	seedUser(repo, 1, "cus_1")
	repo.subscriptions["sub_1"] = &models.Subscription{
		UserID:               1,
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusActive,
	}

	if err := svc.CancelAtPeriodEnd(context.Background(), 1); err != nil {
		t.Fatalf("CancelAtPeriodEnd: %v", err)
	}
	if !repo.subscriptions["sub_1"].CancelAtPeriodEnd {
		t.Fatalf("expected local cancel flag to be set")
	}
	if err := svc.Reactivate(context.Background(), 1); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if repo.subscriptions["sub_1"].CancelAtPeriodEnd {
		t.Fatalf("expected local cancel flag to be cleared")
	}
	if len(provider.cancelCalls) != 2 || !provider.cancelCalls[0] || provider.cancelCalls[1] {
		t.Fatalf("unexpected provider calls: %v", provider.cancelCalls)
	}

	if err := svc.CancelAtPeriodEnd(context.Background(), 2); !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription for user without mirror row, got %v", err)
	}
}

func TestSignupCheckoutActivationScenario(t *testing.T) {
	svc, repo, _, _ := newTestService()
	seedUser(repo, 7, "")

	url, err := svc.CreateCheckoutSession(context.Background(), 7, "price_pro_monthly")
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if url == "" {
		t.Fatalf("expected a checkout URL")
	}

	user := repo.users[7]
	if user.StripeCustomerID == nil {
		t.Fatalf("expected checkout to bind a stripe customer id")
	}

	ev := CheckoutCompletedEvent{
		StripeCustomerID:     *user.StripeCustomerID,
		StripeSubscriptionID: "sub_7",
		OccurredAt:           time.Now(),
	}
	if err := svc.HandleCheckoutCompleted(context.Background(), ev); err != nil {
		t.Fatalf("HandleCheckoutCompleted: %v", err)
	}

	sub, err := svc.GetSubscription(7)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub == nil || !sub.IsActive() {
		t.Fatalf("expected an active subscription after checkout, got %+v", sub)
	}

	ok, err := svc.HasFeature(7, "unlimited_todos")
	if err != nil {
		t.Fatalf("HasFeature: %v", err)
	}
	if !ok {
		t.Fatalf("expected pro entitlement after activation")
	}
}

func TestHasFeature_YearlyProPrice(t *testing.T) {
	svc, repo, _, _ := newTestService()
	seedUser(repo, 11, "cus_11")

	product := &models.Product{
		StripePriceID: "price_pro_yearly",
		Name:          "Pro",
		Price:         19990,
		Interval:      models.ProductIntervalYear,
		Active:        true,
	}
	if err := product.SetFeatures([]string{"unlimited_todos", "export_data"}); err != nil {
		t.Fatalf("SetFeatures: %v", err)
	}
	repo.products["price_pro_yearly"] = product

	repo.subscriptions["sub_11"] = &models.Subscription{
		UserID:               11,
		StripeSubscriptionID: "sub_11",
		StripePriceID:        "price_pro_yearly",
		Status:               models.SubscriptionStatusActive,
	}

	ok, err := svc.HasFeature(11, "export_data")
	if err != nil {
		t.Fatalf("HasFeature: %v", err)
	}
	if !ok {
		t.Fatalf("expected the yearly pro price to grant pro entitlements")
	}
}
