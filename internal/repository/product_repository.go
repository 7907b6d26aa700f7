package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"order-fulfillment/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrProductNotFound = fmt.Errorf("product %w", domain.ErrNotFound)
)

// ProductRepository defines the interface for product data access. LockStock
// and DecrementStock are only meaningful inside a transaction.
type ProductRepository interface {
	UpsertByName(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context) ([]*domain.Product, error)
	LockStock(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error)
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error)
}

type productRepository struct {
	db Querier
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db Querier) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, name, price, stock, thumbnail_url, created_at, updated_at`

// UpsertByName inserts the product or refreshes price and stock of the
// product with the same name. The stored id is written back into product.
func (r *productRepository) UpsertByName(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE
		SET price = EXCLUDED.price, stock = EXCLUDED.stock,
		    thumbnail_url = EXCLUDED.thumbnail_url, updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := sqlx.GetContext(ctx, r.db, &product.ID, query,
		product.ID, product.Name, product.Price, product.Stock,
		product.ThumbnailURL, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	return nil
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product := &domain.Product{}
	err := sqlx.GetContext(ctx, r.db, product,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// List returns the whole catalog ordered by name
func (r *productRepository) List(ctx context.Context) ([]*domain.Product, error) {
	products := []*domain.Product{}
	err := sqlx.SelectContext(ctx, r.db, &products,
		`SELECT `+productColumns+` FROM products ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return products, nil
}

// LockStock reads the given products with row locks held until the
// transaction ends. Rows are locked in id order so concurrent reservations
// touching overlapping products cannot deadlock.
func (r *productRepository) LockStock(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+productColumns+` FROM products WHERE id IN (?) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build stock lock query: %w", err)
	}

	var products []domain.Product
	if err := sqlx.SelectContext(ctx, r.db, &products, rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to lock product stock: %w", err)
	}

	return products, nil
}

// DecrementStock subtracts quantity if enough stock remains. It reports
// false without error when the guard rejected the update.
func (r *productRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`,
		quantity, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}
