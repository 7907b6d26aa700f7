package service

import (
	"context"
	"errors"
	"time"

	"order-fulfillment/internal/domain"
	"order-fulfillment/internal/inventory"
	"order-fulfillment/internal/metrics"
	"order-fulfillment/internal/repository"
	"order-fulfillment/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Notifier receives committed order changes. Implementations must not block.
type Notifier interface {
	NotifyTransition(order *domain.Order)
	NotifyExpired(order domain.ExpiredOrder)
}

// Reserver decrements stock for every line of an order inside the caller's transaction.
type Reserver interface {
	Reserve(ctx context.Context, store inventory.StockStore, orderID uuid.UUID, items []domain.OrderItem) error
}

// OrderService defines the order lifecycle operations.
type OrderService interface {
	Checkout(ctx context.Context, buyerID uuid.UUID, info domain.BuyerInfo) (*domain.Order, error)
	UploadProof(ctx context.Context, orderID, buyerID uuid.UUID, proofURL string) (*domain.Order, error)
	ConfirmReceipt(ctx context.Context, orderID, buyerID uuid.UUID) (*domain.Order, error)
	Approve(ctx context.Context, orderID uuid.UUID, actor domain.Actor) (*domain.Order, error)
	Reject(ctx context.Context, orderID uuid.UUID, actor domain.Actor) (*domain.Order, error)
	SetStatus(ctx context.Context, orderID uuid.UUID, actor domain.Actor, status domain.Status) (*domain.Order, error)

	History(ctx context.Context, buyerID uuid.UUID) ([]*domain.Order, error)
	GetByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	GetForActor(ctx context.Context, orderID uuid.UUID, actor domain.Actor) (*domain.Order, error)
	PendingVerification(ctx context.Context) ([]*domain.Order, error)
	PendingProcessing(ctx context.Context) ([]*domain.Order, error)
	CS1History(ctx context.Context) ([]*domain.Order, error)
	CS2History(ctx context.Context) ([]*domain.Order, error)
}

// OrderServiceOption customizes an order service.
type OrderServiceOption func(*orderService)

// WithClock replaces time.Now for timestamps written by the service.
func WithClock(now func() time.Time) OrderServiceOption {
	return func(s *orderService) { s.now = now }
}

type orderService struct {
	uow      repository.UnitOfWork
	orders   repository.OrderRepository
	reserver Reserver
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrderService creates a new instance of OrderService. orders is used for
// reads outside transactions.
func NewOrderService(
	uow repository.UnitOfWork,
	orders repository.OrderRepository,
	reserver Reserver,
	notifier Notifier,
	logger *zap.Logger,
	opts ...OrderServiceOption,
) OrderService {
	s := &orderService{
		uow:      uow,
		orders:   orders,
		reserver: reserver,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout turns the buyer's cart into an order awaiting payment proof and
// clears the cart in the same transaction.
func (s *orderService) Checkout(ctx context.Context, buyerID uuid.UUID, info domain.BuyerInfo) (order *domain.Order, err error) {
	ctx, span := telemetry.StartSpan(ctx, "order.checkout", attribute.String("buyer_id", buyerID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	err = s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		lines, err := tx.Carts().SnapshotForUpdate(ctx, buyerID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return domain.ErrEmptyCart
		}

		order = s.newOrder(buyerID, info, lines)
		for _, line := range lines {
			if line.Quantity > line.AvailableStock {
				return &domain.InsufficientStockError{StockShortage: domain.StockShortage{
					ProductID:   line.ProductID,
					ProductName: line.ProductName,
					Available:   line.AvailableStock,
					Required:    line.Quantity,
				}}
			}
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		return tx.Carts().Clear(ctx, buyerID)
	})
	if err != nil {
		s.recordFailure("checkout", err)
		return nil, err
	}

	metrics.OrdersCheckoutTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("buyer_id", buyerID.String()),
		zap.Int64("total_price", order.TotalPrice),
		zap.Int("count", len(order.Items)),
	)
	return order, nil
}

func (s *orderService) newOrder(buyerID uuid.UUID, info domain.BuyerInfo, lines []domain.CartLine) *domain.Order {
	now := s.now().UTC()
	order := &domain.Order{
		BuyerInfo: info,
		ID:        uuid.New(),
		BuyerID:   buyerID,
		Status:    domain.StatusAwaitingProof,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     make([]domain.OrderItem, 0, len(lines)),
	}
	for _, line := range lines {
		item := domain.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Price:       line.UnitPrice,
		}
		order.TotalPrice += item.Subtotal()
		order.Items = append(order.Items, item)
	}
	return order
}

func (s *orderService) UploadProof(ctx context.Context, orderID, buyerID uuid.UUID, proofURL string) (*domain.Order, error) {
	actor := domain.Actor{ID: buyerID, Role: domain.RoleBuyer}
	return s.transition(ctx, orderID, actor, domain.TriggerUploadProof, "",
		func(ctx context.Context, tx repository.Tx, order *domain.Order) (repository.StatusPatch, error) {
			return repository.StatusPatch{PaymentProofURL: &proofURL}, nil
		})
}

func (s *orderService) ConfirmReceipt(ctx context.Context, orderID, buyerID uuid.UUID) (*domain.Order, error) {
	// No queue follows Completed; the status_update only syncs the buyer's other sessions.
	actor := domain.Actor{ID: buyerID, Role: domain.RoleBuyer}
	return s.transition(ctx, orderID, actor, domain.TriggerConfirmReceipt, "", nil)
}

// Approve advances the order to CS2 and reserves its stock as one unit. A
// stock shortage rolls back both.
func (s *orderService) Approve(ctx context.Context, orderID uuid.UUID, actor domain.Actor) (*domain.Order, error) {
	return s.transition(ctx, orderID, actor, domain.TriggerApprove, "",
		func(ctx context.Context, tx repository.Tx, order *domain.Order) (repository.StatusPatch, error) {
			return repository.StatusPatch{}, s.reserver.Reserve(ctx, tx.Products(), order.ID, order.Items)
		})
}

func (s *orderService) Reject(ctx context.Context, orderID uuid.UUID, actor domain.Actor) (*domain.Order, error) {
	reason := domain.CancelReasonRejected
	return s.transition(ctx, orderID, actor, domain.TriggerReject, "",
		func(ctx context.Context, tx repository.Tx, order *domain.Order) (repository.StatusPatch, error) {
			return repository.StatusPatch{CancelReason: &reason}, nil
		})
}

func (s *orderService) SetStatus(ctx context.Context, orderID uuid.UUID, actor domain.Actor, status domain.Status) (*domain.Order, error) {
	return s.transition(ctx, orderID, actor, domain.TriggerSetStatus, status, nil)
}

type sideEffect func(ctx context.Context, tx repository.Tx, order *domain.Order) (repository.StatusPatch, error)

// transition runs one guarded status change: lock the order, check
// ownership, consult the transition table, apply the side effect and write
// the new status conditionally on the old one. Subscribers are notified only
// after commit.
func (s *orderService) transition(
	ctx context.Context,
	orderID uuid.UUID,
	actor domain.Actor,
	trigger domain.Trigger,
	requested domain.Status,
	effect sideEffect,
) (updated *domain.Order, err error) {
	ctx, span := telemetry.StartSpan(ctx, "order."+string(trigger),
		attribute.String("order_id", orderID.String()),
		attribute.String("actor_role", string(actor.Role)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	var from domain.Status
	err = s.uow.WithinTx(ctx, func(tx repository.Tx) error {
		order, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if actor.Role == domain.RoleBuyer && !order.OwnedBy(actor.ID) {
			return repository.ErrOrderNotFound
		}

		from = order.Status
		to, err := domain.Transition(from, trigger, actor.Role, requested)
		if err != nil {
			return err
		}

		var patch repository.StatusPatch
		if effect != nil {
			if patch, err = effect(ctx, tx, order); err != nil {
				return err
			}
		}

		updated, err = tx.Orders().UpdateStatus(ctx, orderID, from, to, patch, s.now().UTC())
		if errors.Is(err, repository.ErrStatusConflict) {
			return &domain.TransitionError{From: from, To: to, Trigger: trigger}
		}
		return err
	})
	if err != nil {
		s.recordFailure(string(trigger), err)
		s.logger.Debug("Order transition rejected",
			zap.String("order_id", orderID.String()),
			zap.String("trigger", string(trigger)),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.OrderTransitionsTotal.WithLabelValues(string(trigger), string(updated.Status)).Inc()
	s.logger.Info("Order status changed",
		zap.String("order_id", updated.ID.String()),
		zap.String("trigger", string(trigger)),
		zap.String("from", string(from)),
		zap.String("status", string(updated.Status)),
	)
	s.notifier.NotifyTransition(updated)
	return updated, nil
}

func (s *orderService) recordFailure(trigger string, err error) {
	metrics.OrderTransitionFailuresTotal.WithLabelValues(trigger, FailureReason(err)).Inc()
}

// FailureReason maps an order error to a short metric label.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrActorNotAllowed):
		return "actor_not_allowed"
	case errors.Is(err, domain.ErrStockExhausted):
		return "stock_exhausted"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	default:
		return "error"
	}
}

// History returns the buyer's orders newest first.
func (s *orderService) History(ctx context.Context, buyerID uuid.UUID) ([]*domain.Order, error) {
	return s.orders.ListByBuyer(ctx, buyerID)
}

func (s *orderService) GetByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.orders.FindByID(ctx, orderID)
}

// GetForActor hides orders from buyers who do not own them.
func (s *orderService) GetForActor(ctx context.Context, orderID uuid.UUID, actor domain.Actor) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleBuyer && !order.OwnedBy(actor.ID) {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) PendingVerification(ctx context.Context) ([]*domain.Order, error) {
	return s.orders.ListByStatus(ctx, []domain.Status{domain.StatusAwaitingCS1Verification}, repository.SortOrderAsc)
}

func (s *orderService) PendingProcessing(ctx context.Context) ([]*domain.Order, error) {
	return s.orders.ListByStatus(ctx, []domain.Status{domain.StatusAwaitingCS2Processing}, repository.SortOrderAsc)
}

// CS1History lists every order that reached payment review.
func (s *orderService) CS1History(ctx context.Context) ([]*domain.Order, error) {
	return s.orders.ListByStatus(ctx, []domain.Status{
		domain.StatusAwaitingCS1Verification,
		domain.StatusAwaitingCS2Processing,
		domain.StatusProcessing,
		domain.StatusShipped,
		domain.StatusCompleted,
		domain.StatusCancelled,
	}, repository.SortOrderDesc)
}

// CS2History lists every order that passed payment approval.
func (s *orderService) CS2History(ctx context.Context) ([]*domain.Order, error) {
	return s.orders.ListByStatus(ctx, []domain.Status{
		domain.StatusAwaitingCS2Processing,
		domain.StatusProcessing,
		domain.StatusShipped,
		domain.StatusCompleted,
	}, repository.SortOrderDesc)
}
