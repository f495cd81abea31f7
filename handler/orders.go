package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/model"
	"storefront/service"
)

type checkoutResp struct {
	ID                  int64             `json:"id"`
	TotalAmount         decimal.Decimal   `json:"total_amount"`
	Status              model.OrderStatus `json:"status"`
	EstimatedDeliveryAt time.Time         `json:"estimated_delivery_at"`
}

func summary(o model.Order) checkoutResp {
	return checkoutResp{ID: o.ID, TotalAmount: o.TotalAmount, Status: o.Status, EstimatedDeliveryAt: o.EstimatedDeliveryAt}
}

// Checkout handles POST /checkout/order
// body: { "customer": {...}, "payment_method": "UPI" }
// Lines and prices come from the server-side cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if !decode(w, r, &req) {
		return
	}
	uid := userID(r)
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" || h.idem == nil {
		h.placeOrder(w, r, uid, req)
		return
	}

	orderID, done, err := h.idem.Begin(r.Context(), uid, key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if done {
		o, err := h.svc.GetOrder(r.Context(), uid, orderID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusCreated, summary(o))
		return
	}

	o, err := h.svc.PlaceOrder(r.Context(), uid, req)
	if err != nil {
		if rerr := h.idem.Release(r.Context(), uid, key); rerr != nil {
			h.log.Warn("releasing idempotency key", "key", key, "error", rerr)
		}
		h.writeError(w, r, err)
		return
	}
	if err := h.idem.Complete(r.Context(), uid, key, o.ID); err != nil {
		h.log.Error("recording idempotency key", "key", key, "order_id", o.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, summary(o))
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, uid string, req service.CheckoutRequest) {
	o, err := h.svc.PlaceOrder(r.Context(), uid, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary(o))
}

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /orders/{id}; only the owner sees it.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, err := h.svc.GetOrder(r.Context(), userID(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// AdminGetOrder handles GET /admin/orders/{id}
func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, err := h.svc.GetOrderAdmin(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// UpdateOrderStatus handles PATCH /admin/orders/{id}/status
// body: { "status": "confirmed" }
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	o, err := h.svc.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
