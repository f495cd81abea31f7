package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"storefront/model"
	"storefront/service"
)

// IdempotencyStore deduplicates checkout requests carrying an Idempotency-Key.
type IdempotencyStore interface {
	Begin(ctx context.Context, userID, key string) (orderID int64, done bool, err error)
	Complete(ctx context.Context, userID, key string, orderID int64) error
	Release(ctx context.Context, userID, key string) error
}

// Handler is the HTTP layer that talks to service.Service
type Handler struct {
	svc      service.ServiceInterface
	log      *slog.Logger
	adminKey string
	idem     IdempotencyStore
}

// NewHandler returns a Handler instance. idem may be nil, which disables
// Idempotency-Key handling.
func NewHandler(log *slog.Logger, s service.ServiceInterface, adminKey string, idem IdempotencyStore) *Handler {
	return &Handler{svc: s, log: log, adminKey: adminKey, idem: idem}
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(middleware.RequestID, middleware.RealIP, h.accessLog, middleware.Recoverer, middleware.Timeout(30*time.Second))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Products
	r.Handle("/products", h.requireAdmin(http.HandlerFunc(h.CreateProduct))).Methods(http.MethodPost)
	r.HandleFunc("/products/list", h.ListProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id:[0-9]+}", h.GetProduct).Methods(http.MethodGet)

	// Cart
	cart := r.PathPrefix("/cart").Subrouter()
	cart.Use(h.requireUser)
	cart.HandleFunc("/list", h.ListCart).Methods(http.MethodGet)
	cart.HandleFunc("/add", h.AddToCart).Methods(http.MethodPost)
	cart.HandleFunc("/update", h.UpdateCart).Methods(http.MethodPatch)
	cart.HandleFunc("/remove", h.RemoveFromCart).Methods(http.MethodPost)
	cart.HandleFunc("/clear", h.ClearCart).Methods(http.MethodDelete)

	// Checkout and order history
	r.Handle("/checkout/order", h.requireUser(http.HandlerFunc(h.Checkout))).Methods(http.MethodPost)
	orders := r.PathPrefix("/orders").Subrouter()
	orders.Use(h.requireUser)
	orders.HandleFunc("", h.ListOrders).Methods(http.MethodGet)
	orders.HandleFunc("/{id:[0-9]+}", h.GetOrder).Methods(http.MethodGet)

	// Admin
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.requireAdmin)
	admin.HandleFunc("/products/{id:[0-9]+}/stock", h.UpdateStock).Methods(http.MethodPut)
	admin.HandleFunc("/products/{id:[0-9]+}/restock", h.Restock).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id:[0-9]+}", h.AdminGetOrder).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id:[0-9]+}/status", h.UpdateOrderStatus).Methods(http.MethodPatch)
}

// --- request / response shapes ---
type createProductReq struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Image       string          `json:"image,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type updateStockReq struct {
	Stock *int `json:"stock"`
}

type restockReq struct {
	Quantity int `json:"quantity"`
}

type cartReq struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity,omitempty"` // optional for remove
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// --- Handler ---

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateProduct handles POST /products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if !decode(w, r, &req) {
		return
	}
	id, err := h.svc.CreateProduct(r.Context(), model.Product{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Image:       req.Image,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// ListProducts handles GET /products/list
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// GetProduct handles GET /products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AddToCart handles POST /cart/add
// body: { "product_id": 1, "quantity": 2 }
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.AddToCart(r.Context(), userID(r), req.ProductID, req.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// UpdateCart handles PATCH /cart/update
func (h *Handler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateCartItem(r.Context(), userID(r), req.ProductID, req.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// RemoveFromCart handles POST /cart/remove
// body: { "product_id": 1 }
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req cartReq
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.RemoveFromCart(r.Context(), userID(r), req.ProductID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCart(r.Context(), userID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// ListCart handles GET /cart/list
func (h *Handler) ListCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.GetCart(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID(r), "items": cart.Items, "total": cart.Total})
}

// UpdateStock handles PUT /admin/products/{id}/stock
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateStockReq
	if !decode(w, r, &req) {
		return
	}
	if req.Stock == nil {
		writeErr(w, http.StatusBadRequest, "stock required")
		return
	}
	p, err := h.svc.UpdateStock(r.Context(), id, *req.Stock)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Restock handles POST /admin/products/{id}/restock
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req restockReq
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
