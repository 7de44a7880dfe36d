package billing

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taskfoxapp/taskfox/app/models"
)

// Repository abstracts the persistence the billing service needs. The GORM
// implementation below is the production one; tests inject an in-memory fake.
type Repository interface {
	GetUserByID(userID uint) (*models.User, error)
	GetUserByStripeCustomerID(customerID string) (*models.User, error)
	SetUserStripeCustomerID(userID uint, customerID string) error

	GetSubscriptionByUserID(userID uint) (*models.Subscription, error)
	GetSubscriptionByStripeID(subscriptionID string) (*models.Subscription, error)
	UpsertSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error

	UpsertInvoice(inv *models.Invoice) error
	ListInvoicesByUser(userID uint) ([]models.Invoice, error)

	ListActiveProducts() ([]models.Product, error)
	GetProductByPriceID(priceID string) (*models.Product, error)

	CountTodosByUser(userID uint) (int64, error)

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (created bool, existing *models.BillingWebhookEvent, err error)
	MarkWebhookProcessed(eventID uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository returns the GORM-backed billing repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByID(userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetUserByStripeCustomerID(customerID string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("stripe_customer_id = ?", customerID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) SetUserStripeCustomerID(userID uint, customerID string) error {
	result := r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("stripe_customer_id", customerID)
	if result.Error != nil {
		return fmt.Errorf("failed to set stripe customer id: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) GetSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByStripeID(subscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("stripe_subscription_id = ?", subscriptionID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription inserts the mirror row or, when the user already has
// one, replaces it in place. A user keeps at most one subscription row, so a
// re-subscribe after cancellation reuses the row under a new Stripe id.
func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_subscription_id",
			"stripe_price_id",
			"status",
			"current_period_end",
			"cancel_at_period_end",
			"last_event_at",
			"updated_at",
		}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	if err := r.db.Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// UpsertInvoice makes invoice.* deliveries idempotent: re-delivery of the
// same Stripe invoice id updates the existing row instead of duplicating it.
func (r *gormRepository) UpsertInvoice(inv *models.Invoice) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_invoice_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"amount_paid",
			"currency",
			"status",
			"hosted_invoice_url",
			"invoice_pdf",
			"updated_at",
		}),
	}).Create(inv).Error
	if err != nil {
		return fmt.Errorf("failed to upsert invoice: %w", err)
	}
	return nil
}

func (r *gormRepository) ListInvoicesByUser(userID uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *gormRepository) ListActiveProducts() ([]models.Product, error) {
	var products []models.Product
	if err := r.db.Where("active = ?", true).Order("price ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *gormRepository) GetProductByPriceID(priceID string) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("stripe_price_id = ?", priceID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *gormRepository) CountTodosByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Todo{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// CreateWebhookEventIfNotExists inserts the event keyed by its Stripe event
// id. When the id was seen before it reports created=false and returns the
// stored row, so handlers can acknowledge duplicates without reprocessing.
func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, nil, fmt.Errorf("failed to store webhook event: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, event, nil
	}

	var existing models.BillingWebhookEvent
	if err := r.db.Where("stripe_event_id = ?", event.StripeEventID).First(&existing).Error; err != nil {
		return false, nil, fmt.Errorf("failed to load duplicate webhook event: %w", err)
	}
	return false, &existing, nil
}

func (r *gormRepository) MarkWebhookProcessed(eventID uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	if err := r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", eventID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is the repository's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
