package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Todo is a user-owned task item. The per-user count feeds the free-tier
// creation quota enforced by the entitlements package.
type Todo struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title" validate:"required,min=1,max=200"`
	Description string    `gorm:"type:text" json:"description" validate:"max=2000"`
	Done        bool      `gorm:"default:false;index" json:"done"`
	Position    int       `gorm:"default:0" json:"position"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *Todo) Validate() error {
	v := validator.New()

	return v.Struct(t)
}
