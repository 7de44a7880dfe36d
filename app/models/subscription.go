package models

import "time"

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusUnpaid     = "unpaid"
)

// Subscription mirrors exactly one Stripe subscription per user. Rows are
// created on checkout completion, mutated by webhook deliveries and never
// deleted locally; a provider-side deletion only forces status to canceled.
//
// LastEventAt carries the timestamp of the provider event that last wrote the
// row. Updates carrying an older event timestamp are rejected so an
// out-of-order subscription.updated cannot resurrect a canceled mirror.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_subscription_id"`
	StripePriceID        string     `gorm:"type:varchar(191);not null" json:"stripe_price_id"`
	Status               string     `gorm:"type:varchar(32);not null;index" json:"status"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	LastEventAt          *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the subscription currently entitles paid features.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}
