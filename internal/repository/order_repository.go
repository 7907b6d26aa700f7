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

var (
	ErrOrderNotFound = fmt.Errorf("order %w", domain.ErrNotFound)
	// ErrStatusConflict means the order left the expected source status
	// between read and write.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// StatusPatch carries the optional columns written together with a status change.
type StatusPatch struct {
	PaymentProofURL *string
	CancelReason    *string
}

// OrderRepository owns orders and their items.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*domain.Order, error)
	ListByStatus(ctx context.Context, statuses []domain.Status, sort SortOrder) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, patch StatusPatch, at time.Time) (*domain.Order, error)
	CancelExpired(ctx context.Context, cutoff, at time.Time) ([]domain.ExpiredOrder, error)
}

type orderRepository struct {
	db Querier
}

func NewOrderRepository(db Querier) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, buyer_id, status, buyer_name, buyer_phone, buyer_address,
	total_price, payment_proof_url, cancel_reason, created_at, updated_at`

// Create inserts the order row and all of its items.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (:id, :buyer_id, :status, :buyer_name, :buyer_phone, :buyer_address,
		        :total_price, :payment_proof_url, :cancel_reason, :created_at, :updated_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, order); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	if len(order.Items) == 0 {
		return nil
	}

	itemsQuery := `
		INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price)
		VALUES (:id, :order_id, :product_id, :product_name, :quantity, :price)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.db, itemsQuery, order.Items); err != nil {
		return fmt.Errorf("failed to create order items: %w", err)
	}

	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// FindByIDForUpdate reads the order and holds its row lock until the transaction ends.
func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *orderRepository) findOne(ctx context.Context, query string, args ...interface{}) (*domain.Order, error) {
	order := &domain.Order{}
	if err := sqlx.GetContext(ctx, r.db, order, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// ListByBuyer returns the buyer's orders newest first.
func (r *orderRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC, id`
	return r.list(ctx, query, buyerID)
}

// ListByStatus returns orders in any of the given statuses ordered by creation time.
func (r *orderRepository) ListByStatus(ctx context.Context, statuses []domain.Status, sort SortOrder) ([]*domain.Order, error) {
	if len(statuses) == 0 {
		return []*domain.Order{}, nil
	}
	if sort != SortOrderDesc {
		sort = SortOrderAsc
	}

	query, args, err := sqlx.In(
		`SELECT `+orderColumns+` FROM orders WHERE status IN (?) ORDER BY created_at `+string(sort)+`, id`,
		statuses,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build order list query: %w", err)
	}

	return r.list(ctx, rebind(query), args...)
}

func (r *orderRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	orders := []*domain.Order{}
	if err := sqlx.SelectContext(ctx, r.db, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []domain.OrderItem{}
	}

	query, args, err := sqlx.In(
		`SELECT id, order_id, product_id, product_name, quantity, price
		 FROM order_items WHERE order_id IN (?) ORDER BY product_name, id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("failed to build order items query: %w", err)
	}

	var items []domain.OrderItem
	if err := sqlx.SelectContext(ctx, r.db, &items, rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return nil
}

// UpdateStatus moves the order from one status to another. The write only
// applies while the row is still in from; otherwise ErrStatusConflict is
// returned and nothing changes.
func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, patch StatusPatch, at time.Time) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET status = $1,
		    updated_at = $2,
		    payment_proof_url = COALESCE($3, payment_proof_url),
		    cancel_reason = COALESCE($4, cancel_reason)
		WHERE id = $5 AND status = $6
		RETURNING ` + orderColumns

	order := &domain.Order{}
	err := sqlx.GetContext(ctx, r.db, order, query,
		to, at, patch.PaymentProofURL, patch.CancelReason, id, from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// CancelExpired cancels, in one statement, every order still awaiting proof
// that was created before cutoff and every order awaiting verification whose
// last update is before cutoff.
func (r *orderRepository) CancelExpired(ctx context.Context, cutoff, at time.Time) ([]domain.ExpiredOrder, error) {
	query := `
		UPDATE orders
		SET status = $1, cancel_reason = $2, updated_at = $3
		WHERE (status = $4 AND created_at < $5)
		   OR (status = $6 AND updated_at < $5)
		RETURNING id, buyer_id, status, cancel_reason
	`

	expired := []domain.ExpiredOrder{}
	err := sqlx.SelectContext(ctx, r.db, &expired, query,
		domain.StatusCancelled, domain.CancelReasonExpired, at,
		domain.StatusAwaitingProof, cutoff,
		domain.StatusAwaitingCS1Verification,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel expired orders: %w", err)
	}

	return expired, nil
}
