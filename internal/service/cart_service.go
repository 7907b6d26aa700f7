package service

import (
	"context"
	"time"

	"order-fulfillment/internal/domain"
	"order-fulfillment/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartService manages the buyer's cart ahead of checkout.
type CartService interface {
	AddItem(ctx context.Context, buyerID, productID uuid.UUID, delta int) (*domain.Cart, error)
	GetCart(ctx context.Context, buyerID uuid.UUID) (*domain.Cart, error)
}

type cartService struct {
	uow    repository.UnitOfWork
	logger *zap.Logger
}

func NewCartService(uow repository.UnitOfWork, logger *zap.Logger) CartService {
	return &cartService{uow: uow, logger: logger}
}

// AddItem applies a signed quantity delta. A resulting quantity of zero or
// less removes the line; a new line beyond MaxCartLines fails with ErrCartFull.
func (s *cartService) AddItem(ctx context.Context, buyerID, productID uuid.UUID, delta int) (*domain.Cart, error) {
	var lines []domain.CartLine
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.Products().FindByID(ctx, productID); err != nil {
			return err
		}

		current, exists, err := tx.Carts().Quantity(ctx, buyerID, productID)
		if err != nil {
			return err
		}

		next := current + delta
		switch {
		case next <= 0:
			if exists {
				if err := tx.Carts().RemoveLine(ctx, buyerID, productID); err != nil {
					return err
				}
			}
		default:
			if !exists {
				count, err := tx.Carts().CountLines(ctx, buyerID)
				if err != nil {
					return err
				}
				if count >= domain.MaxCartLines {
					return domain.ErrCartFull
				}
			}
			if err := tx.Carts().SetQuantity(ctx, buyerID, productID, next, time.Now().UTC()); err != nil {
				return err
			}
		}

		lines, err = tx.Carts().Snapshot(ctx, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Cart updated",
		zap.String("buyer_id", buyerID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("delta", delta),
	)
	return domain.NewCart(buyerID, lines), nil
}

func (s *cartService) GetCart(ctx context.Context, buyerID uuid.UUID) (*domain.Cart, error) {
	var lines []domain.CartLine
	err := s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		lines, err = tx.Carts().Snapshot(ctx, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return domain.NewCart(buyerID, lines), nil
}
