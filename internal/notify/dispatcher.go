package notify

import (
	"context"
	"sync"
	"time"

	"order-fulfillment/internal/domain"
	"order-fulfillment/internal/metrics"

	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Message is one queued delivery.
type Message struct {
	Key     string
	Event   string
	Payload any
}

// ExpiredPayload is sent to buyers whose order was cancelled by the sweeper.
type ExpiredPayload struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
	Reason string        `json:"reason"`
}

// Dispatcher fans order events out to subscribers through a bounded queue
// drained by a single goroutine. Enqueueing never blocks; a full queue drops
// the message.
type Dispatcher struct {
	publisher Publisher
	logger    *zap.Logger
	inbox     chan Message

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(publisher Publisher, buffer int, logger *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		publisher: publisher,
		logger:    logger,
		inbox:     make(chan Message, buffer),
		done:      make(chan struct{}),
	}
}

// Start launches the delivery goroutine. It exits once Close has been called
// and the queue is drained.
func (d *Dispatcher) Start() {
	go func() {
		defer close(d.done)
		for m := range d.inbox {
			d.deliver(m)
		}
	}()
}

func (d *Dispatcher) deliver(m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, m.Key, m.Event, m.Payload); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		d.logger.Warn("Notification delivery failed",
			zap.String("subscriber", m.Key),
			zap.String("event", m.Event),
			zap.Error(err),
		)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
}

// Enqueue queues m and reports whether it was accepted.
func (d *Dispatcher) Enqueue(m Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.inbox <- m:
		return true
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		d.logger.Warn("Notification queue full, dropping",
			zap.String("subscriber", m.Key),
			zap.String("event", m.Event),
		)
		return false
	}
}

// NotifyTransition tells the buyer about the new status and, when the order
// enters a reviewer queue, tells that role there is a new task.
func (d *Dispatcher) NotifyTransition(order *domain.Order) {
	d.Enqueue(Message{
		Key:     domain.UserChannel(order.BuyerID),
		Event:   domain.EventStatusUpdate,
		Payload: order,
	})

	if role, ok := domain.QueueRoleFor(order.Status); ok {
		d.Enqueue(Message{
			Key:     domain.RoleChannel(role),
			Event:   domain.EventNewTask,
			Payload: order,
		})
	}
}

// NotifyExpired tells the buyer their order was cancelled by the sweeper.
func (d *Dispatcher) NotifyExpired(order domain.ExpiredOrder) {
	d.Enqueue(Message{
		Key:   domain.UserChannel(order.BuyerID),
		Event: domain.EventStatusUpdate,
		Payload: ExpiredPayload{
			ID:     order.ID.String(),
			Status: order.Status,
			Reason: order.Reason,
		},
	})
}

// Close stops accepting messages and waits for queued ones to be delivered
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.inbox)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return d.publisher.Close()
}
