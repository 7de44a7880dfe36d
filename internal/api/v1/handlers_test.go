package apiv1

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/taskfoxapp/taskfox/app/models"
	"github.com/taskfoxapp/taskfox/internal/pkg/billing"
	"github.com/taskfoxapp/taskfox/internal/pkg/usercontext"
)

type stubBillingRepo struct {
	users         map[uint]*models.User
	subscriptions map[uint]*models.Subscription
	products      map[string]*models.Product
	todoCounts    map[uint]int64
}

func newStubBillingRepo() *stubBillingRepo {
	return &stubBillingRepo{
		users:         make(map[uint]*models.User),
		subscriptions: make(map[uint]*models.Subscription),
		products:      make(map[string]*models.Product),
		todoCounts:    make(map[uint]int64),
	}
}

func (r *stubBillingRepo) GetUserByID(userID uint) (*models.User, error) {
	if u, ok := r.users[userID]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) GetUserByStripeCustomerID(customerID string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) SetUserStripeCustomerID(userID uint, customerID string) error { return nil }

func (r *stubBillingRepo) GetSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	if s, ok := r.subscriptions[userID]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) GetSubscriptionByStripeID(subscriptionID string) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) UpsertSubscription(sub *models.Subscription) error { return nil }
func (r *stubBillingRepo) SaveSubscription(sub *models.Subscription) error   { return nil }
func (r *stubBillingRepo) UpsertInvoice(inv *models.Invoice) error           { return nil }

func (r *stubBillingRepo) ListInvoicesByUser(userID uint) ([]models.Invoice, error) {
	return nil, nil
}

func (r *stubBillingRepo) ListActiveProducts() ([]models.Product, error) { return nil, nil }

func (r *stubBillingRepo) GetProductByPriceID(priceID string) (*models.Product, error) {
	if p, ok := r.products[priceID]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubBillingRepo) CountTodosByUser(userID uint) (int64, error) {
	return r.todoCounts[userID], nil
}

func (r *stubBillingRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	return true, event, nil
}

func (r *stubBillingRepo) MarkWebhookProcessed(eventID uint, processingError string) error {
	return nil
}

type stubUserRepo struct {
	users map[uint]*models.User
}

func (r *stubUserRepo) Create(user *models.User) error { return nil }

func (r *stubUserRepo) GetByID(id uint) (*models.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUserRepo) GetByEmail(email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUserRepo) GetByActivationToken(token string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUserRepo) GetByProviderAccount(provider, providerUserID string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *stubUserRepo) LinkProviderAccount(account *models.ProviderAccount) error { return nil }
func (r *stubUserRepo) Update(user *models.User) error                            { return nil }
func (r *stubUserRepo) Delete(id uint) error                                      { return nil }
func (r *stubUserRepo) Count() (int64, error)                                     { return 0, nil }

// newExportTestApp mounts the export endpoint behind a middleware that fakes
// an authenticated session for the given user.
func newExportTestApp(repo *stubBillingRepo, userID uint) *fiber.App {
	svc := billing.NewService(repo, nil, nil, "http://localhost:3000")
	server := NewAPIServer(svc, nil, &stubUserRepo{users: repo.users}, nil)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{
			UserID:     userID,
			IsLoggedIn: true,
		})
		return c.Next()
	})
	app.Post("/api/v1/me/export", server.RequestExport)
	return app
}

func TestRequestExport_FreePlanIsRejected(t *testing.T) {
	repo := newStubBillingRepo()
	repo.users[1] = &models.User{ID: 1, Email: "free@example.com"}

	app := newExportTestApp(repo, 1)

	req := httptest.NewRequest("POST", "/api/v1/me/export", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "feature_required")
}

func TestRequestExport_PastDueSubscriptionIsRejected(t *testing.T) {
	repo := newStubBillingRepo()
	repo.users[2] = &models.User{ID: 2, Email: "pastdue@example.com"}
	repo.subscriptions[2] = &models.Subscription{
		UserID:               2,
		StripeSubscriptionID: "sub_2",
		StripePriceID:        "price_pro_monthly",
		Status:               models.SubscriptionStatusPastDue,
	}

	app := newExportTestApp(repo, 2)

	req := httptest.NewRequest("POST", "/api/v1/me/export", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
