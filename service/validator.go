package service

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront/model"
	"storefront/store"
)

// CheckoutRequest is what the client supplies at checkout. Lines and prices
// always come from the server side.
type CheckoutRequest struct {
	Customer      model.Customer `json:"customer"`
	PaymentMethod string         `json:"payment_method"`
}

// ValidatedOrder is the outcome of a successful validation pass.
type ValidatedOrder struct {
	Lines         []model.OrderLine
	Total         decimal.Decimal
	Customer      model.Customer
	PaymentMethod model.PaymentMethod
}

// Validator checks a cart snapshot against the ledger without mutating it.
// The commit re-checks every line, so a passing result is only advisory.
type Validator struct {
	products store.ProductReader
}

func NewValidator(products store.ProductReader) Validator {
	return Validator{products: products}
}

func (v Validator) Validate(ctx context.Context, lines []model.CartLine, req CheckoutRequest) (ValidatedOrder, error) {
	if len(lines) == 0 {
		return ValidatedOrder{}, model.ErrEmptyCart
	}
	if err := req.Customer.Validate(); err != nil {
		return ValidatedOrder{}, err
	}
	pm, err := model.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return ValidatedOrder{}, err
	}

	merged, err := mergeLines(lines)
	if err != nil {
		return ValidatedOrder{}, err
	}

	out := ValidatedOrder{
		Lines:         make([]model.OrderLine, 0, len(merged)),
		Customer:      req.Customer,
		PaymentMethod: pm,
	}
	for _, l := range merged {
		p, err := v.products.GetProduct(ctx, l.ProductID)
		if err != nil {
			return ValidatedOrder{}, err
		}
		if !p.Available {
			return ValidatedOrder{}, &model.LineError{ProductID: p.ID, Name: p.Name, Requested: l.Quantity, Available: p.Stock, Err: model.ErrProductUnavailable}
		}
		if p.Stock < l.Quantity {
			return ValidatedOrder{}, model.InsufficientStock(p, l.Quantity)
		}
		out.Lines = append(out.Lines, snapshot(p, l.Quantity))
	}
	out.Total = model.LinesTotal(out.Lines)
	return out, nil
}

// mergeLines folds repeated products into the first line that names them.
func mergeLines(lines []model.CartLine) ([]model.CartLine, error) {
	pos := make(map[int64]int, len(lines))
	out := make([]model.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, &model.LineError{ProductID: l.ProductID, Requested: l.Quantity, Err: model.ErrInvalidQuantity}
		}
		if i, ok := pos[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		pos[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out, nil
}

func snapshot(p model.Product, qty int) model.OrderLine {
	return model.OrderLine{ProductID: p.ID, Name: p.Name, UnitPrice: p.Price, Quantity: qty, Image: p.Image}
}
