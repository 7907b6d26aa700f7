package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"order-fulfillment/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CartRepository reads and mutates a buyer's cart lines.
type CartRepository interface {
	// Snapshot returns the cart joined with current product price and stock.
	Snapshot(ctx context.Context, buyerID uuid.UUID) ([]domain.CartLine, error)
	// SnapshotForUpdate is Snapshot holding the cart line locks until the
	// transaction ends, so two checkouts of one cart cannot both read it.
	SnapshotForUpdate(ctx context.Context, buyerID uuid.UUID) ([]domain.CartLine, error)
	Quantity(ctx context.Context, buyerID, productID uuid.UUID) (int, bool, error)
	CountLines(ctx context.Context, buyerID uuid.UUID) (int, error)
	SetQuantity(ctx context.Context, buyerID, productID uuid.UUID, quantity int, at time.Time) error
	RemoveLine(ctx context.Context, buyerID, productID uuid.UUID) error
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type cartRepository struct {
	db Querier
}

func NewCartRepository(db Querier) CartRepository {
	return &cartRepository{db: db}
}

const cartSnapshotQuery = `
	SELECT ci.product_id, p.name AS product_name, ci.quantity,
	       p.price AS unit_price, p.stock AS available_stock
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	WHERE ci.user_id = $1
	ORDER BY ci.created_at ASC, ci.product_id ASC
`

func (r *cartRepository) Snapshot(ctx context.Context, buyerID uuid.UUID) ([]domain.CartLine, error) {
	return r.snapshot(ctx, cartSnapshotQuery, buyerID)
}

// SnapshotForUpdate locks only the cart rows. A second reader blocks until the
// first transaction ends and then no longer sees lines it deleted.
func (r *cartRepository) SnapshotForUpdate(ctx context.Context, buyerID uuid.UUID) ([]domain.CartLine, error) {
	return r.snapshot(ctx, cartSnapshotQuery+` FOR UPDATE OF ci`, buyerID)
}

func (r *cartRepository) snapshot(ctx context.Context, query string, buyerID uuid.UUID) ([]domain.CartLine, error) {
	lines := []domain.CartLine{}
	if err := sqlx.SelectContext(ctx, r.db, &lines, query, buyerID); err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	return lines, nil
}

func (r *cartRepository) Quantity(ctx context.Context, buyerID, productID uuid.UUID) (int, bool, error) {
	var quantity int
	err := sqlx.GetContext(ctx, r.db, &quantity,
		`SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2 FOR UPDATE`,
		buyerID, productID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read cart line: %w", err)
	}

	return quantity, true, nil
}

func (r *cartRepository) CountLines(ctx context.Context, buyerID uuid.UUID) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.db, &count,
		`SELECT COUNT(*) FROM cart_items WHERE user_id = $1`, buyerID); err != nil {
		return 0, fmt.Errorf("failed to count cart lines: %w", err)
	}

	return count, nil
}

func (r *cartRepository) SetQuantity(ctx context.Context, buyerID, productID uuid.UUID, quantity int, at time.Time) error {
	query := `
		INSERT INTO cart_items (id, user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, uuid.New(), buyerID, productID, quantity, at); err != nil {
		return fmt.Errorf("failed to set cart quantity: %w", err)
	}

	return nil
}

func (r *cartRepository) RemoveLine(ctx context.Context, buyerID, productID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, buyerID, productID); err != nil {
		return fmt.Errorf("failed to remove cart line: %w", err)
	}

	return nil
}

func (r *cartRepository) Clear(ctx context.Context, buyerID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, buyerID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}
