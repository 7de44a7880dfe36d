package repository

import (
	"github.com/taskfoxapp/taskfox/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByProviderAccount(provider, providerUserID string) (*models.User, error)
	LinkProviderAccount(account *models.ProviderAccount) error
	Update(user *models.User) error
	Delete(id uint) error
	Count() (int64, error)
}

// TodoRepository defines the interface for todo-related database operations
type TodoRepository interface {
	Create(todo *models.Todo) error
	GetByID(id uint) (*models.Todo, error)
	GetByUserID(userID uint) ([]models.Todo, error)
	Update(todo *models.Todo) error
	Delete(id uint) error
	CountByUserID(userID uint) (int64, error)
	MaxPositionByUserID(userID uint) (int, error)
}

// ProductRepository defines the interface for the plan catalog
type ProductRepository interface {
	Upsert(product *models.Product) error
	GetByPriceID(priceID string) (*models.Product, error)
	GetActive() ([]models.Product, error)
}

// Repositories bundles all repository instances
type Repositories struct {
	User    UserRepository
	Todo    TodoRepository
	Product ProductRepository
}
