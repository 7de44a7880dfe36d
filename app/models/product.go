package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	ProductIntervalMonth = "month"
	ProductIntervalYear  = "year"
)

// Product is a locally mirrored price plan from the Stripe catalog. It is not
// user-owned; active products are globally readable on the pricing page.
type Product struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	StripePriceID   string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_price_id"`
	StripeProductID string    `gorm:"type:varchar(191);not null;index" json:"stripe_product_id"`
	Name            string    `gorm:"type:varchar(150);not null" json:"name"`
	Description     string    `gorm:"type:text" json:"description"`
	Price           int64     `gorm:"not null" json:"price"`
	Interval        string    `gorm:"type:varchar(16);not null;default:'month'" json:"interval"`
	FeaturesJSON    string    `gorm:"type:text;column:features" json:"-"`
	Active          bool      `gorm:"default:true;index" json:"active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Features decodes the stored JSON feature list. A missing or malformed
// column yields an empty list, never an error; the entitlements fallback
// handles products without features.
func (p Product) Features() []string {
	if p.FeaturesJSON == "" {
		return nil
	}
	var features []string
	if err := json.Unmarshal([]byte(p.FeaturesJSON), &features); err != nil {
		return nil
	}
	return features
}

// PriceDisplay formats the cent amount for templates, e.g. "$19.99".
func (p Product) PriceDisplay() string {
	if p.Price == 0 {
		return "Free"
	}
	return fmt.Sprintf("$%d.%02d", p.Price/100, p.Price%100)
}

// SetFeatures encodes the feature list into the JSON column.
func (p *Product) SetFeatures(features []string) error {
	data, err := json.Marshal(features)
	if err != nil {
		return err
	}
	p.FeaturesJSON = string(data)
	return nil
}
