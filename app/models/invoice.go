package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	InvoiceStatusDraft         = "draft"
	InvoiceStatusOpen          = "open"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusUncollectible = "uncollectible"
	InvoiceStatusVoid          = "void"
)

// Invoice is an append-only record of a billing outcome, unique on the Stripe
// invoice id so webhook re-delivery can never duplicate a row.
type Invoice struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	StripeInvoiceID  string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_invoice_id"`
	AmountPaid       int64     `gorm:"not null" json:"amount_paid"`
	Currency         string    `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	Status           string    `gorm:"type:varchar(20);not null;index" json:"status"`
	HostedInvoiceURL string    `gorm:"type:varchar(512)" json:"hosted_invoice_url"`
	InvoicePDF       string    `gorm:"type:varchar(512)" json:"invoice_pdf"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AmountDisplay formats the cent amount for templates, e.g. "19.99 USD".
func (i Invoice) AmountDisplay() string {
	return fmt.Sprintf("%d.%02d %s", i.AmountPaid/100, i.AmountPaid%100, strings.ToUpper(i.Currency))
}
