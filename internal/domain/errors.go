package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound covers both absent entities and entities the caller does not own.
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrActorNotAllowed   = errors.New("actor not allowed")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrCartFull          = errors.New("cart is full")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockExhausted    = errors.New("stock exhausted")
)

// TransitionError reports an illegal state change.
type TransitionError struct {
	From    Status
	To      Status
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	if e.To != "" {
		return fmt.Sprintf("invalid status transition: cannot %s from %s to %s", e.Trigger, e.From, e.To)
	}
	return fmt.Sprintf("invalid status transition: cannot %s from %s", e.Trigger, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// StockShortage carries the product that could not satisfy a line.
type StockShortage struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Required    int
}

// InsufficientStockError is the soft check raised at checkout.
type InsufficientStockError struct {
	StockShortage
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, required %d", e.ProductName, e.Available, e.Required)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// StockExhaustedError is the authoritative check raised at approval.
type StockExhaustedError struct {
	StockShortage
}

func (e *StockExhaustedError) Error() string {
	return fmt.Sprintf("stock exhausted for %q: available %d, required %d", e.ProductName, e.Available, e.Required)
}

func (e *StockExhaustedError) Unwrap() error { return ErrStockExhausted }

// ShortageOf extracts the stock shortage from either stock error.
func ShortageOf(err error) (StockShortage, bool) {
	var ins *InsufficientStockError
	if errors.As(err, &ins) {
		return ins.StockShortage, true
	}
	var exh *StockExhaustedError
	if errors.As(err, &exh) {
		return exh.StockShortage, true
	}
	return StockShortage{}, false
}
