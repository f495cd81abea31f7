package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/model"
	"storefront/outbox"
	"storefront/store"
)

type attemptState int

const (
	stateValidating attemptState = iota
	stateReserving
	stateCompensating
	stateCommitting
	stateCommitted
	stateAborted
)

func (s attemptState) String() string {
	switch s {
	case stateValidating:
		return "validating"
	case stateReserving:
		return "reserving"
	case stateCompensating:
		return "compensating"
	case stateCommitting:
		return "committing"
	case stateCommitted:
		return "committed"
	case stateAborted:
		return "aborted"
	}
	return "unknown"
}

// attempt tracks one checkout attempt from validation to commit or abort.
type attempt struct {
	id    string
	log   *slog.Logger
	span  trace.Span
	state attemptState
}

func (a *attempt) enter(st attemptState, args ...any) {
	a.state = st
	a.span.AddEvent(st.String())
	a.log.Debug("checkout "+st.String(), args...)
}

type orderPlaced struct {
	OrderID       int64               `json:"order_id"`
	UserID        string              `json:"user_id"`
	Items         []model.OrderLine   `json:"items"`
	TotalAmount   string              `json:"total_amount"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	Status        model.OrderStatus   `json:"status"`
}

// PlaceOrder converts the user's cart into an order. The cart is cleared only
// after the order has been committed.
func (s *Service) PlaceOrder(ctx context.Context, userID string, req CheckoutRequest) (model.Order, error) {
	if userID == "" {
		return model.Order{}, model.ErrMissingUser
	}
	lines, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return model.Order{}, err
	}

	o, err := s.Checkout(ctx, userID, lines, req)
	if err != nil {
		return model.Order{}, err
	}

	// Only what was ordered leaves the cart; lines added meanwhile stay.
	// The order stands even if the cart cannot be updated.
	ordered := make([]model.CartLine, len(o.Items))
	for i, it := range o.Items {
		ordered[i] = model.CartLine{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	if err := s.carts.RemoveOrdered(ctx, userID, ordered); err != nil {
		s.log.Error("removing ordered lines from cart", "user_id", userID, "order_id", o.ID, "error", err)
	}
	return o, nil
}

// Checkout validates lines and then commits the order and every stock
// reservation in one unit of work. On failure nothing is left behind.
func (s *Service) Checkout(ctx context.Context, userID string, lines []model.CartLine, req CheckoutRequest) (model.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.Int("lines", len(lines)),
	))
	defer span.End()

	a := &attempt{id: uuid.NewString(), span: span}
	a.log = s.log.With("attempt_id", a.id, "user_id", userID)
	span.SetAttributes(attribute.String("attempt_id", a.id))

	o, err := s.checkout(ctx, a, userID, lines, req)
	if err != nil {
		a.enter(stateAborted)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if model.IsValidation(err) {
			a.log.Info("checkout rejected", "error", err)
		} else {
			a.log.Error("checkout failed", "error", err)
		}
		return model.Order{}, err
	}
	a.enter(stateCommitted, "order_id", o.ID)
	a.log.Info("order placed", "order_id", o.ID, "total", o.TotalAmount.StringFixed(2), "lines", len(o.Items))
	return o, nil
}

func (s *Service) checkout(ctx context.Context, a *attempt, userID string, lines []model.CartLine, req CheckoutRequest) (model.Order, error) {
	a.enter(stateValidating)
	v, err := s.validator.Validate(ctx, lines, req)
	if err != nil {
		return model.Order{}, err
	}

	for n := 1; ; n++ {
		o, err := s.commit(ctx, a, userID, v)
		switch {
		case err == nil:
			return o, nil
		case errors.Is(err, model.ErrConflict) && n < s.opts.MaxAttempts:
			a.log.Warn("checkout conflict, retrying", "try", n, "error", err)
			continue
		case model.IsValidation(err), errors.Is(err, model.ErrStorageFailure):
			return model.Order{}, err
		case errors.Is(err, model.ErrConflict):
			return model.Order{}, fmt.Errorf("%w: gave up after %d attempts: %w", model.ErrStorageFailure, n, err)
		default:
			return model.Order{}, fmt.Errorf("%w: %w", model.ErrStorageFailure, err)
		}
	}
}

// commit runs the reserving and committing steps in one unit of work.
func (s *Service) commit(ctx context.Context, a *attempt, userID string, v ValidatedOrder) (model.Order, error) {
	var o model.Order
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		a.enter(stateReserving)
		granted, reserved, err := reserveAll(ctx, tx, v.Lines)
		if err != nil {
			s.compensate(ctx, a, tx, granted)
			return err
		}

		a.enter(stateCommitting)
		// Lines carry the ledger's prices as of the reservation.
		items := make([]model.OrderLine, len(v.Lines))
		for i, l := range v.Lines {
			items[i] = snapshot(reserved[l.ProductID], l.Quantity)
		}
		total := model.LinesTotal(items)
		if !total.Equal(v.Total) {
			a.log.Warn("prices changed since validation", "validated_total", v.Total.StringFixed(2), "total", total.StringFixed(2))
		}

		now := s.now()
		o = model.Order{
			UserID:              userID,
			Items:               items,
			TotalAmount:         total,
			Customer:            v.Customer,
			PaymentMethod:       v.PaymentMethod,
			Status:              s.opts.InitialStatus,
			EstimatedDeliveryAt: now.Add(s.opts.DeliveryETA),
		}
		if err := tx.CreateOrder(ctx, &o); err != nil {
			s.compensate(ctx, a, tx, granted)
			return err
		}

		ev, err := outbox.NewEvent(ctx, "order", strconv.FormatInt(o.ID, 10), outbox.TypeOrderPlaced, orderPlaced{
			OrderID:       o.ID,
			UserID:        userID,
			Items:         o.Items,
			TotalAmount:   o.TotalAmount.StringFixed(2),
			PaymentMethod: o.PaymentMethod,
			Status:        o.Status,
		})
		if err == nil {
			err = tx.AppendEvent(ctx, ev)
		}
		if err != nil {
			s.compensate(ctx, a, tx, granted)
			return err
		}
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// reserveAll reserves lines in ascending product id so concurrent checkouts
// lock rows in the same order. It returns the lines granted so far.
func reserveAll(ctx context.Context, tx store.Ledger, lines []model.OrderLine) ([]model.OrderLine, map[int64]model.Product, error) {
	ordered := append([]model.OrderLine(nil), lines...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	granted := make([]model.OrderLine, 0, len(ordered))
	reserved := make(map[int64]model.Product, len(ordered))
	for _, l := range ordered {
		p, err := tx.Reserve(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return granted, nil, err
		}
		granted = append(granted, l)
		reserved[l.ProductID] = p
	}
	return granted, reserved, nil
}

// compensate releases granted reservations in reverse order. The unit of work
// is rolled back afterwards regardless, so a failed release is only logged.
func (s *Service) compensate(ctx context.Context, a *attempt, tx store.Ledger, granted []model.OrderLine) {
	if len(granted) == 0 {
		return
	}
	a.enter(stateCompensating, "granted", len(granted))
	for i := len(granted) - 1; i >= 0; i-- {
		l := granted[i]
		if _, err := tx.Release(ctx, l.ProductID, l.Quantity); err != nil {
			a.log.Warn("release failed", "product_id", l.ProductID, "quantity", l.Quantity, "error", err)
		}
	}
}
