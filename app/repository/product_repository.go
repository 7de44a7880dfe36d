package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taskfoxapp/taskfox/app/models"
)

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository instance
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// Upsert inserts or refreshes a catalog row keyed by the Stripe price id,
// used by the seeder and catalog sync.
func (r *productRepository) Upsert(product *models.Product) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_price_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_product_id",
			"name",
			"description",
			"price",
			"interval",
			"features",
			"active",
			"updated_at",
		}),
	}).Create(product).Error
}

func (r *productRepository) GetByPriceID(priceID string) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("stripe_price_id = ?", priceID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetActive() ([]models.Product, error) {
	var products []models.Product
	err := r.db.Where("active = ?", true).Order("price ASC").Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}
