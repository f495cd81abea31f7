package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"storefront/idempotency"
	"storefront/model"
)

type ctxKey int

const userKey ctxKey = iota

// requireUser trusts X-User-ID as set by the authentication proxy in front of us.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if uid == "" {
			writeErr(w, http.StatusUnauthorized, "X-User-ID header required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, uid)))
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userKey).(string)
	return uid
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.adminKey)) != 1 {
			writeErr(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

type stockErrorResp struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available"`
}

// writeError maps the model error taxonomy to HTTP statuses. Storage faults
// are logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var le *model.LineError
	if errors.As(err, &le) && le.ProductID != 0 {
		code := http.StatusBadRequest
		switch {
		case errors.Is(err, model.ErrInsufficientStock), errors.Is(err, model.ErrProductUnavailable):
			code = http.StatusConflict
		case errors.Is(err, model.ErrProductNotFound):
			code = http.StatusNotFound
		}
		writeJSON(w, code, stockErrorResp{Error: le.Error(), ProductID: le.ProductID, Name: le.Name, Requested: le.Requested, Available: le.Available})
		return
	}

	switch {
	case errors.Is(err, model.ErrMissingUser):
		writeErr(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, model.ErrProductNotFound), errors.Is(err, model.ErrOrderNotFound), errors.Is(err, model.ErrCartItemNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrOrderFinalized), errors.Is(err, idempotency.ErrInFlight),
		errors.Is(err, model.ErrInsufficientStock), errors.Is(err, model.ErrProductUnavailable):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInvalidStatus), model.IsValidation(err):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("request failed", "request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
