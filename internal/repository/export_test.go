package repository

import (
	"testing"

	"order-fulfillment/internal/domain"

	"github.com/jmoiron/sqlx"
)

// Hooks for the repository_test package, which drives the services over the
// container database.

func IntegrationDB() *sqlx.DB { return testDBx }

func CreateUser(t *testing.T, role domain.Role) *domain.User { return createUser(t, role) }

func CreateProduct(t *testing.T, price int64, stock int) *domain.Product {
	return createProduct(t, price, stock)
}

func NewOrder(buyer *domain.User, status domain.Status, lines ...*domain.Product) *domain.Order {
	return newOrder(buyer, status, lines...)
}

func CreateOrder(t *testing.T, o *domain.Order) *domain.Order { return createOrder(t, o) }

func StockOf(t *testing.T, p *domain.Product) int { return stockOf(t, p.ID) }
