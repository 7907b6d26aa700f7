package transport

import (
	"net/http"

	"order-fulfillment/internal/domain"
	"order-fulfillment/internal/middleware"
	"order-fulfillment/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CheckoutRequest carries the shipping snapshot stored on the order.
type CheckoutRequest struct {
	Name    string `json:"buyer_name" validate:"required,max=100"`
	Phone   string `json:"buyer_phone" validate:"required,min=6,max=20"`
	Address string `json:"buyer_address" validate:"required,max=500"`
}

type UploadProofRequest struct {
	PaymentProofURL string `json:"payment_proof_url" validate:"required,url"`
}

type SetStatusRequest struct {
	Status domain.Status `json:"status" validate:"required,oneof=PROCESSING SHIPPED"`
}

// OrderHandler exposes the order lifecycle to buyers and reviewers.
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(h.logger, domain.RoleBuyer))
			r.Post("/checkout", h.Checkout)
			r.Get("/history", h.History)
			r.Patch("/{id}/upload-proof", h.UploadProof)
			r.Patch("/{id}/complete", h.ConfirmReceipt)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(h.logger, domain.RoleCS1))
			r.Get("/pending/verification", h.PendingVerification)
			r.Get("/cs1/history", h.CS1History)
			r.Patch("/{id}/approve", h.Approve)
			r.Patch("/{id}/reject", h.Reject)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(h.logger, domain.RoleCS2))
			r.Get("/pending/processing", h.PendingProcessing)
			r.Get("/cs2/history", h.CS2History)
			r.Patch("/{id}/status", h.SetStatus)
		})

		r.Get("/{id}", h.Get)
	})
}

func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	order, err := h.orders.Checkout(r.Context(), actor.ID, domain.BuyerInfo{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.History(r.Context(), actor.ID)
	h.respondList(w, orders, err)
}

func (h *OrderHandler) UploadProof(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req UploadProofRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	order, err := h.orders.UploadProof(r.Context(), id, actor.ID, req.PaymentProofURL)
	h.respondOrder(w, order, err)
}

func (h *OrderHandler) ConfirmReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.ConfirmReceipt(r.Context(), id, actor.ID)
	h.respondOrder(w, order, err)
}

func (h *OrderHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.Approve(r.Context(), id, actor)
	h.respondOrder(w, order, err)
}

func (h *OrderHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.Reject(r.Context(), id, actor)
	h.respondOrder(w, order, err)
}

func (h *OrderHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req SetStatusRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	order, err := h.orders.SetStatus(r.Context(), id, actor, req.Status)
	h.respondOrder(w, order, err)
}

func (h *OrderHandler) PendingVerification(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.PendingVerification(r.Context())
	h.respondList(w, orders, err)
}

func (h *OrderHandler) PendingProcessing(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.PendingProcessing(r.Context())
	h.respondList(w, orders, err)
}

func (h *OrderHandler) CS1History(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.CS1History(r.Context())
	h.respondList(w, orders, err)
}

func (h *OrderHandler) CS2History(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.CS2History(r.Context())
	h.respondList(w, orders, err)
}

// Get returns one order. Buyers only see their own.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetForActor(r.Context(), id, actor)
	h.respondOrder(w, order, err)
}

func (h *OrderHandler) respondOrder(w http.ResponseWriter, order *domain.Order, err error) {
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) respondList(w http.ResponseWriter, orders []*domain.Order, err error) {
	if err != nil {
		middleware.RespondWithDomainError(w, err, h.logger)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}
