package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/internal/pkg/billing"
)

const testWebhookSecret = "whsec_test"

type stubBillingRepo struct {
	users         map[string]*models.User
	webhookEvents map[string]*models.BillingWebhookEvent
	invoices      map[string]*models.Invoice
	nextID        uint
}

func newStubBillingRepo() *stubBillingRepo {
	return &stubBillingRepo{
		users:         make(map[string]*models.User),
		webhookEvents: make(map[string]*models.BillingWebhookEvent),
		invoices:      make(map[string]*models.Invoice),
	}
}

func (r *stubBillingRepo) GetUserByID(userID uint) (*models.User, error) {
	for _, u := range r.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) GetUserByStripeCustomerID(customerID string) (*models.User, error) {
	if u, ok := r.users[customerID]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) SetUserStripeCustomerID(userID uint, customerID string) error { return nil }

func (r *stubBillingRepo) GetSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) GetSubscriptionByStripeID(subscriptionID string) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) UpsertSubscription(sub *models.Subscription) error { return nil }
func (r *stubBillingRepo) SaveSubscription(sub *models.Subscription) error   { return nil }

func (r *stubBillingRepo) UpsertInvoice(inv *models.Invoice) error {
	r.invoices[inv.StripeInvoiceID] = inv
	return nil
}

func (r *stubBillingRepo) ListInvoicesByUser(userID uint) ([]models.Invoice, error) {
	return nil, nil
}

func (r *stubBillingRepo) ListActiveProducts() ([]models.Product, error) { return nil, nil }

func (r *stubBillingRepo) GetProductByPriceID(priceID string) (*models.Product, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) CountTodosByUser(userID uint) (int64, error) { return 0, nil }

func (r *stubBillingRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	if existing, ok := r.webhookEvents[event.StripeEventID]; ok {
		return false, existing, nil
	}
	r.nextID++
	event.ID = r.nextID
	r.webhookEvents[event.StripeEventID] = event
	return true, event, nil
}

func (r *stubBillingRepo) MarkWebhookProcessed(eventID uint, processingError string) error {
	for _, ev := range r.webhookEvents {
		if ev.ID == eventID {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
		}
	}
	return nil
}

func newWebhookTestApp(repo *stubBillingRepo) *fiber.App {
	svc := billing.NewService(repo, nil, nil, "http://localhost:3000")
	ctrl := NewBillingController(svc, testWebhookSecret)

	app := fiber.New()
	app.Post("/webhooks/stripe", ctrl.HandleStripeWebhook)
	return app
}

// signPayload produces a Stripe-Signature header value for the test secret.
func signPayload(payload string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func webhookPayload(eventID, eventType, dataObject string) string {
	return fmt.Sprintf(`{"id":%q,"type":%q,"created":%d,"data":{"object":%s}}`,
		eventID, eventType, time.Now().Unix(), dataObject)
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	app := newWebhookTestApp(newStubBillingRepo())

	payload := webhookPayload("evt_bad", "invoice.payment_succeeded", `{}`)
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStripeWebhook_UnknownCustomerIsAcknowledged(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo)

	payload := webhookPayload("evt_1", "invoice.payment_succeeded",
		`{"id":"in_1","customer":{"id":"cus_ghost"},"amount_paid":1999,"currency":"usd","status":"paid"}`)
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload(payload))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, repo.invoices)

	stored := repo.webhookEvents["evt_1"]
	require.NotNil(t, stored)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Empty(t, stored.ProcessingError)
}

func TestStripeWebhook_DuplicateDelivery(t *testing.T) {
	repo := newStubBillingRepo()
	repo.users["cus_1"] = &models.User{ID: 1, Email: "user@example.com"}
	app := newWebhookTestApp(repo)

	payload := webhookPayload("evt_2", "invoice.payment_succeeded",
		`{"id":"in_2","customer":{"id":"cus_1"},"amount_paid":1999,"currency":"usd","status":"paid"}`)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(payload))
		req.Header.Set("Stripe-Signature", signPayload(payload))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		if i == 1 {
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), "duplicate")
		}
	}

	assert.Len(t, repo.invoices, 1)
}

func TestStripeWebhook_UnhandledEventTypeIsAcknowledged(t *testing.T) {
	repo := newStubBillingRepo()
	app := newWebhookTestApp(repo)

	payload := webhookPayload("evt_3", "customer.created", `{"id":"cus_new"}`)
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload(payload))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
