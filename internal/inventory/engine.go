// Package inventory validates and decrements product stock when payment is
// approved. It is the only writer of stock decrements.
package inventory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"order-fulfillment/internal/domain"
	"order-fulfillment/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockStore is the transactional view of product stock the engine needs.
// LockStock must hold row locks until the surrounding transaction ends.
type StockStore interface {
	LockStock(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error)
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error)
}

type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Reserve checks every line against current stock and decrements all of them,
// or returns a *domain.StockExhaustedError naming the first short line. It
// must run inside the same transaction as the order status write; on error
// the caller rolls the whole transaction back.
func (e *Engine) Reserve(ctx context.Context, store StockStore, orderID uuid.UUID, items []domain.OrderItem) error {
	start := time.Now()
	defer func() {
		metrics.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	required, ids := demand(items)

	products, err := store.LockStock(ctx, ids)
	if err != nil {
		return err
	}
	available := make(map[uuid.UUID]int, len(products))
	for _, p := range products {
		available[p.ID] = p.Stock
	}

	seen := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		if seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true

		if have := available[item.ProductID]; have < required[item.ProductID] {
			e.logger.Info("Stock exhausted at approval",
				zap.String("order_id", orderID.String()),
				zap.String("product_id", item.ProductID.String()),
				zap.Int("available", have),
				zap.Int("required", required[item.ProductID]),
			)
			return exhausted(item, have, required[item.ProductID])
		}
	}

	for _, id := range ids {
		ok, err := store.DecrementStock(ctx, id, required[id])
		if err != nil {
			return fmt.Errorf("failed to reserve stock: %w", err)
		}
		if !ok {
			return exhausted(lineFor(items, id), available[id], required[id])
		}
	}

	e.logger.Debug("Stock reserved",
		zap.String("order_id", orderID.String()),
		zap.Int("products", len(ids)),
	)
	return nil
}

// demand sums quantities per product and returns the product ids in lock order.
func demand(items []domain.OrderItem) (map[uuid.UUID]int, []uuid.UUID) {
	required := make(map[uuid.UUID]int, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := required[item.ProductID]; !ok {
			ids = append(ids, item.ProductID)
		}
		required[item.ProductID] += item.Quantity
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return required, ids
}

func lineFor(items []domain.OrderItem, id uuid.UUID) domain.OrderItem {
	for _, item := range items {
		if item.ProductID == id {
			return item
		}
	}
	return domain.OrderItem{ProductID: id}
}

func exhausted(item domain.OrderItem, available, required int) error {
	return &domain.StockExhaustedError{StockShortage: domain.StockShortage{
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
		Available:   available,
		Required:    required,
	}}
}
