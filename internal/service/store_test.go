package service

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"order-fulfillment/internal/domain"
	"order-fulfillment/internal/repository"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for Postgres. Transactions are
// serialized by one mutex and roll back by restoring a snapshot.
type memStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]domain.Product
	carts    map[uuid.UUID][]cartRow
	orders   map[uuid.UUID]domain.Order

	failClear bool
}

type cartRow struct {
	productID uuid.UUID
	quantity  int
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[uuid.UUID]domain.Product),
		carts:    make(map[uuid.UUID][]cartRow),
		orders:   make(map[uuid.UUID]domain.Order),
	}
}

type memSnapshot struct {
	products map[uuid.UUID]domain.Product
	carts    map[uuid.UUID][]cartRow
	orders   map[uuid.UUID]domain.Order
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		products: make(map[uuid.UUID]domain.Product, len(s.products)),
		carts:    make(map[uuid.UUID][]cartRow, len(s.carts)),
		orders:   make(map[uuid.UUID]domain.Order, len(s.orders)),
	}
	for k, v := range s.products {
		snap.products[k] = v
	}
	for k, v := range s.carts {
		snap.carts[k] = append([]cartRow(nil), v...)
	}
	for k, v := range s.orders {
		snap.orders[k] = copyOrder(v)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.products = snap.products
	s.carts = snap.carts
	s.orders = snap.orders
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// reader returns an order repository usable outside transactions.
func (s *memStore) reader() repository.OrderRepository {
	return &memOrders{s: s, locking: true}
}

func (s *memStore) addProduct(name string, price int64, stock int) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := domain.Product{ID: uuid.New(), Name: name, Price: price, Stock: stock}
	s.products[p.ID] = p
	return p
}

func (s *memStore) setStock(id uuid.UUID, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.Stock = stock
	s.products[id] = p
}

func (s *memStore) stockOf(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) putInCart(buyerID, productID uuid.UUID, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[buyerID] = append(s.carts[buyerID], cartRow{productID: productID, quantity: qty})
}

func (s *memStore) cartLen(buyerID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts[buyerID])
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) statusOf(id uuid.UUID) domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

func (s *memStore) backdate(id uuid.UUID, created, updated time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	o.CreatedAt = created
	o.UpdatedAt = updated
	s.orders[id] = o
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

type memTx struct {
	s *memStore
}

func (t *memTx) Orders() repository.OrderRepository     { return &memOrders{s: t.s} }
func (t *memTx) Carts() repository.CartRepository       { return &memCarts{s: t.s} }
func (t *memTx) Products() repository.ProductRepository { return &memProducts{s: t.s} }

type memOrders struct {
	s       *memStore
	locking bool
}

func (r *memOrders) lock() func() {
	if !r.locking {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *memOrders) Create(ctx context.Context, order *domain.Order) error {
	defer r.lock()()
	r.s.orders[order.ID] = copyOrder(*order)
	return nil
}

func (r *memOrders) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	defer r.lock()()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	c := copyOrder(o)
	return &c, nil
}

func (r *memOrders) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *memOrders) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*domain.Order, error) {
	defer r.lock()()
	out := []*domain.Order{}
	for _, o := range r.s.orders {
		if o.BuyerID == buyerID {
			c := copyOrder(o)
			out = append(out, &c)
		}
	}
	sortByCreated(out, repository.SortOrderDesc)
	return out, nil
}

func (r *memOrders) ListByStatus(ctx context.Context, statuses []domain.Status, order repository.SortOrder) ([]*domain.Order, error) {
	defer r.lock()()
	want := make(map[domain.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	out := []*domain.Order{}
	for _, o := range r.s.orders {
		if want[o.Status] {
			c := copyOrder(o)
			out = append(out, &c)
		}
	}
	sortByCreated(out, order)
	return out, nil
}

func sortByCreated(orders []*domain.Order, order repository.SortOrder) {
	sort.Slice(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if order == repository.SortOrderDesc {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

func (r *memOrders) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.Status, patch repository.StatusPatch, at time.Time) (*domain.Order, error) {
	defer r.lock()()
	o, ok := r.s.orders[id]
	if !ok || o.Status != from {
		return nil, repository.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	if patch.PaymentProofURL != nil {
		o.PaymentProofURL = patch.PaymentProofURL
	}
	if patch.CancelReason != nil {
		o.CancelReason = patch.CancelReason
	}
	r.s.orders[id] = o
	c := copyOrder(o)
	return &c, nil
}

func (r *memOrders) CancelExpired(ctx context.Context, cutoff, at time.Time) ([]domain.ExpiredOrder, error) {
	defer r.lock()()
	var out []domain.ExpiredOrder
	for id, o := range r.s.orders {
		stale := (o.Status == domain.StatusAwaitingProof && o.CreatedAt.Before(cutoff)) ||
			(o.Status == domain.StatusAwaitingCS1Verification && o.UpdatedAt.Before(cutoff))
		if !stale {
			continue
		}
		reason := domain.CancelReasonExpired
		o.Status = domain.StatusCancelled
		o.CancelReason = &reason
		o.UpdatedAt = at
		r.s.orders[id] = o
		out = append(out, domain.ExpiredOrder{ID: id, BuyerID: o.BuyerID, Status: o.Status, Reason: reason})
	}
	return out, nil
}

type memCarts struct {
	s *memStore
}

func (r *memCarts) Snapshot(ctx context.Context, buyerID uuid.UUID) ([]domain.CartLine, error) {
	lines := []domain.CartLine{}
	for _, row := range r.s.carts[buyerID] {
		p := r.s.products[row.productID]
		lines = append(lines, domain.CartLine{
			ProductID:      row.productID,
			ProductName:    p.Name,
			Quantity:       row.quantity,
			UnitPrice:      p.Price,
			AvailableStock: p.Stock,
		})
	}
	return lines, nil
}

// SnapshotForUpdate needs no extra locking; memStore serializes transactions.
func (r *memCarts) SnapshotForUpdate(ctx context.Context, buyerID uuid.UUID) ([]domain.CartLine, error) {
	return r.Snapshot(ctx, buyerID)
}

func (r *memCarts) Quantity(ctx context.Context, buyerID, productID uuid.UUID) (int, bool, error) {
	for _, row := range r.s.carts[buyerID] {
		if row.productID == productID {
			return row.quantity, true, nil
		}
	}
	return 0, false, nil
}

func (r *memCarts) CountLines(ctx context.Context, buyerID uuid.UUID) (int, error) {
	return len(r.s.carts[buyerID]), nil
}

func (r *memCarts) SetQuantity(ctx context.Context, buyerID, productID uuid.UUID, quantity int, at time.Time) error {
	rows := r.s.carts[buyerID]
	for i := range rows {
		if rows[i].productID == productID {
			rows[i].quantity = quantity
			return nil
		}
	}
	r.s.carts[buyerID] = append(rows, cartRow{productID: productID, quantity: quantity})
	return nil
}

func (r *memCarts) RemoveLine(ctx context.Context, buyerID, productID uuid.UUID) error {
	rows := r.s.carts[buyerID]
	for i := range rows {
		if rows[i].productID == productID {
			r.s.carts[buyerID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *memCarts) Clear(ctx context.Context, buyerID uuid.UUID) error {
	if r.s.failClear {
		return errors.New("connection lost")
	}
	delete(r.s.carts, buyerID)
	return nil
}

type memProducts struct {
	s *memStore
}

func (r *memProducts) UpsertByName(ctx context.Context, p *domain.Product) error {
	for id, existing := range r.s.products {
		if existing.Name == p.Name {
			p.ID = id
		}
	}
	r.s.products[p.ID] = *p
	return nil
}

func (r *memProducts) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := r.s.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (r *memProducts) List(ctx context.Context) ([]*domain.Product, error) {
	out := []*domain.Product{}
	for _, p := range r.s.products {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memProducts) LockStock(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error) {
	var out []domain.Product
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memProducts) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	p, ok := r.s.products[id]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	r.s.products[id] = p
	return true, nil
}

// recordingNotifier captures notifications in call order.
type recordingNotifier struct {
	mu          sync.Mutex
	transitions []domain.Order
	expired     []domain.ExpiredOrder
}

func (n *recordingNotifier) NotifyTransition(order *domain.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, copyOrder(*order))
}

func (n *recordingNotifier) NotifyExpired(order domain.ExpiredOrder) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, order)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.transitions)
}
