package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

var orderStatuses = []OrderStatus{
	StatusPending, StatusConfirmed, StatusPreparing, StatusOutForDelivery, StatusDelivered, StatusCancelled,
}

// ParseOrderStatus accepts only the six enumerated statuses.
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range orderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Transition checks a move from s to next. Skipping steps is allowed;
// leaving a terminal status is not.
func (s OrderStatus) Transition(next OrderStatus) error {
	if _, err := ParseOrderStatus(string(next)); err != nil {
		return err
	}
	if s.Terminal() {
		return ErrOrderFinalized
	}
	return nil
}

type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "Credit Card"
	PaymentDebitCard      PaymentMethod = "Debit Card"
	PaymentUPI            PaymentMethod = "UPI"
	PaymentNetBanking     PaymentMethod = "Net Banking"
	PaymentCashOnDelivery PaymentMethod = "Cash on Delivery"
)

// ParsePaymentMethod defaults an empty value to cash on delivery.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PaymentCashOnDelivery, nil
	}
	switch pm := PaymentMethod(s); pm {
	case PaymentCreditCard, PaymentDebitCard, PaymentUPI, PaymentNetBanking, PaymentCashOnDelivery:
		return pm, nil
	}
	return "", ErrInvalidPaymentMethod
}

// Customer holds shipping and contact details. Phone is optional.
type Customer struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Phone      string `json:"phone,omitempty"`
}

// Validate returns ErrMissingCustomerDetails when a required field is blank.
func (c Customer) Validate() error {
	for _, f := range []string{c.Name, c.Email, c.Address, c.City, c.PostalCode} {
		if strings.TrimSpace(f) == "" {
			return ErrMissingCustomerDetails
		}
	}
	return nil
}

// OrderLine is a snapshot of the product taken when the order was created.
type OrderLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID                  int64           `json:"id"`
	UserID              string          `json:"user_id"`
	Items               []OrderLine     `json:"items"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	Customer            Customer        `json:"customer"`
	PaymentMethod       PaymentMethod   `json:"payment_method"`
	Status              OrderStatus     `json:"status"`
	EstimatedDeliveryAt time.Time       `json:"estimated_delivery_at"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// LinesTotal sums the line subtotals.
func LinesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// CheckTotal enforces TotalAmount == sum of line subtotals.
func (o Order) CheckTotal() error {
	if !o.TotalAmount.Equal(LinesTotal(o.Items)) {
		return ErrTotalMismatch
	}
	return nil
}
