package model

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrMissingCustomerDetails = errors.New("all customer details are required")
	ErrProductNotFound        = errors.New("product not found")
	ErrProductUnavailable     = errors.New("product is not available")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidQuantity        = errors.New("quantity must be > 0")
	ErrNegativeStock          = errors.New("stock cannot be negative")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrOrderNotFound          = errors.New("order not found")
	ErrCartItemNotFound       = errors.New("item not found in cart")
	ErrTotalMismatch          = errors.New("order total does not match line subtotals")
	ErrMissingUser            = errors.New("user id required")
	ErrInvalidProduct         = errors.New("product needs a name and a non-negative price and stock")

	// ErrOrderFinalized is returned when a status change targets a delivered or cancelled order.
	ErrOrderFinalized = fmt.Errorf("%w: order is already in a terminal status", ErrInvalidStatus)

	// ErrConflict marks a transient serialization or deadlock failure; the whole unit of work may be retried.
	ErrConflict = errors.New("transaction conflict")

	// ErrStorageFailure wraps infrastructure faults. Nothing was committed when it is returned from checkout.
	ErrStorageFailure = errors.New("storage failure")
)

// LineError names the order line a product-level failure belongs to.
type LineError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
	Err       error
}

func (e *LineError) Error() string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	switch {
	case errors.Is(e.Err, ErrInsufficientStock):
		return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
	case errors.Is(e.Err, ErrProductUnavailable):
		return fmt.Sprintf("%s is not available", name)
	case errors.Is(e.Err, ErrProductNotFound):
		return fmt.Sprintf("%s not found", name)
	}
	return fmt.Sprintf("%s: %v", name, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// InsufficientStock builds the stock failure for one line.
func InsufficientStock(p Product, requested int) *LineError {
	return &LineError{ProductID: p.ID, Name: p.Name, Requested: requested, Available: p.Stock, Err: ErrInsufficientStock}
}

// IsValidation reports whether err requires caller action rather than a retry.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyCart, ErrMissingCustomerDetails, ErrProductNotFound, ErrProductUnavailable,
		ErrInsufficientStock, ErrInvalidQuantity, ErrNegativeStock, ErrInvalidPaymentMethod,
		ErrInvalidProduct,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
