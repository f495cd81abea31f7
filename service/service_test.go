package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront/model"
	"storefront/outbox"
	"storefront/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---- faultyStore wraps the in-memory store so tests can fail individual steps ----
type faultyStore struct {
	*store.MemoryStore
	ReserveFn       func(n int, productID int64) error
	CreateOrderFn   func(o *model.Order) error
	AfterGetProduct func(p model.Product)
	releases        atomic.Int32
	creates         atomic.Int32
}

func (f *faultyStore) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	p, err := f.MemoryStore.GetProduct(ctx, productID)
	if err == nil && f.AfterGetProduct != nil {
		f.AfterGetProduct(p)
	}
	return p, err
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.MemoryStore.WithTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, f: f})
	})
}

type faultyTx struct {
	store.Tx
	f        *faultyStore
	reserves int
}

func (t *faultyTx) Reserve(ctx context.Context, productID int64, qty int) (model.Product, error) {
	t.reserves++
	if t.f.ReserveFn != nil {
		if err := t.f.ReserveFn(t.reserves, productID); err != nil {
			return model.Product{}, err
		}
	}
	return t.Tx.Reserve(ctx, productID, qty)
}

func (t *faultyTx) Release(ctx context.Context, productID int64, qty int) (model.Product, error) {
	t.f.releases.Add(1)
	return t.Tx.Release(ctx, productID, qty)
}

func (t *faultyTx) CreateOrder(ctx context.Context, o *model.Order) error {
	t.f.creates.Add(1)
	if t.f.CreateOrderFn != nil {
		if err := t.f.CreateOrderFn(o); err != nil {
			return err
		}
	}
	return t.Tx.CreateOrder(ctx, o)
}

// ---- fakeCarts lets a test fail or interleave cart updates ----
type fakeCarts struct {
	*store.MemoryCartStore
	RemoveOrderedFn func(userID string, ordered []model.CartLine) error
	AfterGetCart    func(userID string)
}

func (f *fakeCarts) GetCart(ctx context.Context, userID string) ([]model.CartLine, error) {
	lines, err := f.MemoryCartStore.GetCart(ctx, userID)
	if err == nil && f.AfterGetCart != nil {
		f.AfterGetCart(userID)
	}
	return lines, err
}

func (f *fakeCarts) RemoveOrdered(ctx context.Context, userID string, ordered []model.CartLine) error {
	if f.RemoveOrderedFn != nil {
		return f.RemoveOrderedFn(userID, ordered)
	}
	return f.MemoryCartStore.RemoveOrdered(ctx, userID, ordered)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *faultyStore, *fakeCarts) {
	t.Helper()
	fs := &faultyStore{MemoryStore: store.NewMemoryStore()}
	carts := &fakeCarts{MemoryCartStore: store.NewMemoryCartStore()}
	return NewService(discardLogger(), fs, carts, DefaultOptions()), fs, carts
}

func seed(t *testing.T, s store.Store, name string, price string, stock int) int64 {
	t.Helper()
	id, err := s.CreateProduct(context.Background(), model.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock, Image: name + ".png"})
	require.NoError(t, err)
	return id
}

func stockOf(t *testing.T, s store.Store, id int64) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func validRequest() CheckoutRequest {
	return CheckoutRequest{Customer: model.Customer{
		Name: "Asha", Email: "asha@example.com", Address: "1 Main St", City: "Pune", PostalCode: "411001",
	}}
}

// ---- Tests ----

func TestCheckout_TwoConcurrentCheckoutsForLastUnits(t *testing.T) {
	svc, fs, _ := newTestService(t)
	p := seed(t, fs, "Tea", "10", 5)

	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		errs   = make([]error, 2)
		orders = make([]model.Order, 2)
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			orders[i], errs[i] = svc.Checkout(context.Background(), "user", []model.CartLine{{ProductID: p, Quantity: 3}}, validRequest())
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, failed int
	for i, err := range errs {
		if err == nil {
			ok++
			assert.Equal(t, 3, orders[i].Items[0].Quantity)
			continue
		}
		failed++
		require.ErrorIs(t, err, model.ErrInsufficientStock)
		var le *model.LineError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, 2, le.Available)
		assert.Equal(t, p, le.ProductID)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, stockOf(t, fs, p))
}

func TestCheckout_ManyConcurrentCheckoutsNeverOversell(t *testing.T) {
	svc, fs, _ := newTestService(t)
	p := seed(t, fs, "Tea", "1", 17)

	var (
		wg   sync.WaitGroup
		sold atomic.Int32
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			_, err := svc.Checkout(context.Background(), "user", []model.CartLine{{ProductID: p, Quantity: qty}}, validRequest())
			if err == nil {
				sold.Add(int32(qty))
			}
		}(i%3 + 1)
	}
	wg.Wait()

	left := stockOf(t, fs, p)
	assert.GreaterOrEqual(t, left, 0)
	assert.Equal(t, 17, int(sold.Load())+left)
}

func TestCheckout_TotalFromLedgerPricesAndLineOrder(t *testing.T) {
	svc, fs, _ := newTestService(t)
	a := seed(t, fs, "A", "100", 5)
	b := seed(t, fs, "B", "50", 3)

	// B first in the cart: lines keep cart order even though A is reserved first.
	o, err := svc.Checkout(context.Background(), "user", []model.CartLine{{ProductID: b, Quantity: 1}, {ProductID: a, Quantity: 2}}, validRequest())
	require.NoError(t, err)

	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(250)), "total %s", o.TotalAmount)
	require.Len(t, o.Items, 2)
	assert.Equal(t, b, o.Items[0].ProductID)
	assert.Equal(t, "B.png", o.Items[0].Image)
	assert.Equal(t, a, o.Items[1].ProductID)
	assert.Equal(t, model.StatusPending, o.Status)
	assert.Equal(t, model.PaymentCashOnDelivery, o.PaymentMethod)
	assert.WithinDuration(t, o.CreatedAt.Add(45*time.Minute), o.EstimatedDeliveryAt, time.Second)
	assert.Equal(t, 3, stockOf(t, fs, a))
	assert.Equal(t, 2, stockOf(t, fs, b))

	stored, err := fs.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.NoError(t, stored.CheckTotal())

	events := fs.Events()
	require.Len(t, events, 1)
	assert.Equal(t, outbox.TypeOrderPlaced, events[0].Type)
	assert.Contains(t, string(events[0].Payload), `"total_amount":"250.00"`)
}

func TestCheckout_FailureAtEachReservationStepLeavesNoTrace(t *testing.T) {
	for k := 1; k <= 3; k++ {
		svc, fs, _ := newTestService(t)
		ids := []int64{seed(t, fs, "A", "1", 4), seed(t, fs, "B", "2", 4), seed(t, fs, "C", "3", 4)}
		fail := k
		fs.ReserveFn = func(n int, _ int64) error {
			if n == fail {
				return errors.New("disk failure")
			}
			return nil
		}

		lines := []model.CartLine{{ProductID: ids[0], Quantity: 1}, {ProductID: ids[1], Quantity: 2}, {ProductID: ids[2], Quantity: 3}}
		_, err := svc.Checkout(context.Background(), "user", lines, validRequest())
		require.ErrorIs(t, err, model.ErrStorageFailure, "step %d", k)

		for _, id := range ids {
			assert.Equal(t, 4, stockOf(t, fs, id), "step %d product %d", k, id)
		}
		assert.EqualValues(t, k-1, fs.releases.Load(), "step %d compensations", k)
		assert.Zero(t, fs.creates.Load())
		orders, _ := fs.ListOrdersByUser(context.Background(), "user")
		assert.Empty(t, orders)
		assert.Empty(t, fs.Events())
	}
}

func TestCheckout_LateStockRaceCompensatesAndNamesLine(t *testing.T) {
	svc, fs, _ := newTestService(t)
	a := seed(t, fs, "A", "1", 5)
	b := seed(t, fs, "B", "1", 2)

	// another checkout takes the last B units right after validation read them
	var once sync.Once
	fs.AfterGetProduct = func(p model.Product) {
		if p.ID != b {
			return
		}
		once.Do(func() {
			_, err := fs.MemoryStore.Reserve(context.Background(), b, 2)
			require.NoError(t, err)
		})
	}

	_, err := svc.Checkout(context.Background(), "user", []model.CartLine{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 2}}, validRequest())
	require.ErrorIs(t, err, model.ErrInsufficientStock)
	assert.NotErrorIs(t, err, model.ErrProductUnavailable)
	assert.EqualError(t, err, "insufficient stock for B: requested 2, available 0")
	var le *model.LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, b, le.ProductID)
	assert.EqualValues(t, 1, fs.releases.Load())
	assert.Equal(t, 5, stockOf(t, fs, a))
	assert.Equal(t, 0, stockOf(t, fs, b))
	assert.Zero(t, fs.creates.Load())
}

func TestCheckout_CreateOrderFailureCompensatesEveryReservation(t *testing.T) {
	svc, fs, _ := newTestService(t)
	a := seed(t, fs, "A", "1", 5)
	b := seed(t, fs, "B", "1", 5)
	fs.CreateOrderFn = func(*model.Order) error { return errors.New("connection reset") }

	_, err := svc.Checkout(context.Background(), "user", []model.CartLine{{ProductID: a, Quantity: 1}, {ProductID: b, Quantity: 1}}, validRequest())
	require.ErrorIs(t, err, model.ErrStorageFailure)
	assert.EqualValues(t, 2, fs.releases.Load())
	assert.Equal(t, 5, stockOf(t, fs, a))
	assert.Equal(t, 5, stockOf(t, fs, b))
	assert.Empty(t, fs.Events())
}

func TestCheckout_RetriesTransientConflict(t *testing.T) {
	svc, fs, _ := newTestService(t)
	a := seed(t, fs, "A", "1", 5)
	var calls atomic.Int32
	fs.CreateOrderFn = func(*model.Order) error {
		if calls.Add(1) == 1 {
			return model.ErrConflict
		}
		return nil
	}

	o, err := svc.Checkout(context.Background(), "user", []model.CartLine{{ProductID: a, Quantity: 2}}, validRequest())
	require.NoError(t, err)
	assert.NotZero(t, o.ID)
	assert.Equal(t, 3, stockOf(t, fs, a))
	assert.Len(t, fs.Events(), 1)
}

func TestCheckout_GivesUpAfterMaxAttempts(t *testing.T) {
	svc, fs, _ := newTestService(t)
	a := seed(t, fs, "A", "1", 5)
	fs.CreateOrderFn = func(*model.Order) error { return model.ErrConflict }

	_, err := svc.Checkout(context.Background(), "user", []model.CartLine{{ProductID: a, Quantity: 2}}, validRequest())
	require.ErrorIs(t, err, model.ErrStorageFailure)
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.EqualValues(t, 3, fs.creates.Load())
	assert.Equal(t, 5, stockOf(t, fs, a))
}

func TestCheckout_RetryAfterFailureDecrementsOnce(t *testing.T) {
	svc, fs, _ := newTestService(t)
	a := seed(t, fs, "A", "1", 5)
	lines := []model.CartLine{{ProductID: a, Quantity: 2}}

	fs.CreateOrderFn = func(*model.Order) error { return errors.New("timeout") }
	_, err := svc.Checkout(context.Background(), "user", lines, validRequest())
	require.Error(t, err)

	fs.CreateOrderFn = nil
	_, err = svc.Checkout(context.Background(), "user", lines, validRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, stockOf(t, fs, a))
}

func TestCheckout_ValidationFailures(t *testing.T) {
	svc, fs, _ := newTestService(t)
	a := seed(t, fs, "A", "1", 2)
	gone := seed(t, fs, "Gone", "1", 0)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, "user", nil, validRequest())
	assert.ErrorIs(t, err, model.ErrEmptyCart)

	req := validRequest()
	req.Customer.City = " "
	_, err = svc.Checkout(ctx, "user", []model.CartLine{{ProductID: a, Quantity: 1}}, req)
	assert.ErrorIs(t, err, model.ErrMissingCustomerDetails)

	req = validRequest()
	req.PaymentMethod = "Bitcoin"
	_, err = svc.Checkout(ctx, "user", []model.CartLine{{ProductID: a, Quantity: 1}}, req)
	assert.ErrorIs(t, err, model.ErrInvalidPaymentMethod)

	_, err = svc.Checkout(ctx, "user", []model.CartLine{{ProductID: 999, Quantity: 1}}, validRequest())
	assert.ErrorIs(t, err, model.ErrProductNotFound)

	_, err = svc.Checkout(ctx, "user", []model.CartLine{{ProductID: gone, Quantity: 1}}, validRequest())
	assert.ErrorIs(t, err, model.ErrProductUnavailable)

	// duplicates are merged before the stock check
	_, err = svc.Checkout(ctx, "user", []model.CartLine{{ProductID: a, Quantity: 1}, {ProductID: a, Quantity: 2}}, validRequest())
	var le *model.LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 3, le.Requested)
	assert.Equal(t, 2, le.Available)

	_, err = svc.Checkout(ctx, "user", []model.CartLine{{ProductID: a, Quantity: 0}}, validRequest())
	assert.ErrorIs(t, err, model.ErrInvalidQuantity)

	assert.Equal(t, 2, stockOf(t, fs, a))
	assert.Zero(t, fs.creates.Load())
}

func TestPlaceOrder_ClearsCartOnlyAfterCommit(t *testing.T) {
	svc, fs, carts := newTestService(t)
	ctx := context.Background()
	a := seed(t, fs, "A", "20", 3)

	require.NoError(t, svc.AddToCart(ctx, "user", a, 2))

	fs.CreateOrderFn = func(*model.Order) error { return errors.New("boom") }
	_, err := svc.PlaceOrder(ctx, "user", validRequest())
	require.Error(t, err)
	lines, _ := carts.GetCart(ctx, "user")
	assert.Len(t, lines, 1, "cart must survive a failed checkout")

	fs.CreateOrderFn = nil
	o, err := svc.PlaceOrder(ctx, "user", CheckoutRequest{Customer: validRequest().Customer, PaymentMethod: "UPI"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentUPI, o.PaymentMethod)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(40)))
	lines, _ = carts.GetCart(ctx, "user")
	assert.Empty(t, lines)
}

func TestPlaceOrder_CartClearFailureStillSucceeds(t *testing.T) {
	svc, fs, carts := newTestService(t)
	ctx := context.Background()
	a := seed(t, fs, "A", "20", 3)
	require.NoError(t, svc.AddToCart(ctx, "user", a, 1))
	carts.RemoveOrderedFn = func(string, []model.CartLine) error { return errors.New("redis down") }

	o, err := svc.PlaceOrder(ctx, "user", validRequest())
	require.NoError(t, err)
	assert.NotZero(t, o.ID)

	_, err = svc.PlaceOrder(ctx, "", validRequest())
	assert.ErrorIs(t, err, model.ErrMissingUser)
}

func TestPlaceOrder_KeepsLinesAddedDuringCheckout(t *testing.T) {
	svc, fs, carts := newTestService(t)
	ctx := context.Background()
	a := seed(t, fs, "A", "20", 10)
	b := seed(t, fs, "B", "5", 10)
	require.NoError(t, svc.AddToCart(ctx, "user", a, 2))

	// the user adds more while the order is being placed
	var once sync.Once
	carts.AfterGetCart = func(userID string) {
		once.Do(func() {
			require.NoError(t, carts.MemoryCartStore.AddToCart(ctx, userID, a, 1))
			require.NoError(t, carts.MemoryCartStore.AddToCart(ctx, userID, b, 4))
		})
	}

	o, err := svc.PlaceOrder(ctx, "user", validRequest())
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)

	lines, err := carts.MemoryCartStore.GetCart(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, []model.CartLine{{ProductID: a, Quantity: 1}, {ProductID: b, Quantity: 4}}, lines)
}

func TestPlaceOrder_InitialStatusOption(t *testing.T) {
	fs := &faultyStore{MemoryStore: store.NewMemoryStore()}
	carts := &fakeCarts{MemoryCartStore: store.NewMemoryCartStore()}
	opts := DefaultOptions()
	opts.InitialStatus = model.StatusConfirmed
	svc := NewService(discardLogger(), fs, carts, opts)
	a := seed(t, fs, "A", "1", 1)

	o, err := svc.Checkout(context.Background(), "user", []model.CartLine{{ProductID: a, Quantity: 1}}, validRequest())
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, o.Status)
	assert.Equal(t, 0, stockOf(t, fs, a))
	p, _ := fs.GetProduct(context.Background(), a)
	assert.False(t, p.Available)
}

func TestUpdateOrderStatus_Lifecycle(t *testing.T) {
	svc, fs, _ := newTestService(t)
	ctx := context.Background()
	a := seed(t, fs, "A", "1", 5)
	o, err := svc.Checkout(ctx, "user", []model.CartLine{{ProductID: a, Quantity: 1}}, validRequest())
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, o.ID, "shipped")
	assert.ErrorIs(t, err, model.ErrInvalidStatus)

	for _, st := range []string{"confirmed", "preparing", "out_for_delivery", "delivered"} {
		got, err := svc.UpdateOrderStatus(ctx, o.ID, st)
		require.NoError(t, err, st)
		assert.Equal(t, model.OrderStatus(st), got.Status)
	}

	_, err = svc.UpdateOrderStatus(ctx, o.ID, "cancelled")
	assert.ErrorIs(t, err, model.ErrOrderFinalized)
	assert.ErrorIs(t, err, model.ErrInvalidStatus)

	got, err := svc.GetOrderAdmin(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, got.Status)

	_, err = svc.UpdateOrderStatus(ctx, 999, "confirmed")
	assert.ErrorIs(t, err, model.ErrOrderNotFound)

	// one placed event plus four status changes
	assert.Len(t, fs.Events(), 5)
}

func TestUpdateOrderStatus_CancelDoesNotRestock(t *testing.T) {
	svc, fs, _ := newTestService(t)
	ctx := context.Background()
	a := seed(t, fs, "A", "1", 5)
	o, err := svc.Checkout(ctx, "user", []model.CartLine{{ProductID: a, Quantity: 2}}, validRequest())
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, o.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, 3, stockOf(t, fs, a))

	_, err = svc.UpdateOrderStatus(ctx, o.ID, "pending")
	assert.ErrorIs(t, err, model.ErrOrderFinalized)
}

func TestGetOrder_IsScopedToOwner(t *testing.T) {
	svc, fs, _ := newTestService(t)
	ctx := context.Background()
	a := seed(t, fs, "A", "1", 5)
	first, err := svc.Checkout(ctx, "alice", []model.CartLine{{ProductID: a, Quantity: 1}}, validRequest())
	require.NoError(t, err)
	second, err := svc.Checkout(ctx, "alice", []model.CartLine{{ProductID: a, Quantity: 1}}, validRequest())
	require.NoError(t, err)

	got, err := svc.GetOrder(ctx, "alice", first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = svc.GetOrder(ctx, "bob", first.ID)
	assert.ErrorIs(t, err, model.ErrOrderNotFound)

	list, err := svc.ListOrders(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	list, err = svc.ListOrders(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCartOperations(t *testing.T) {
	svc, fs, _ := newTestService(t)
	ctx := context.Background()
	a := seed(t, fs, "A", "2.50", 3)
	b := seed(t, fs, "B", "10", 1)
	off := seed(t, fs, "Off", "1", 0)

	assert.ErrorIs(t, svc.AddToCart(ctx, "u", a, 0), model.ErrInvalidQuantity)
	assert.ErrorIs(t, svc.AddToCart(ctx, "u", 999, 1), model.ErrProductNotFound)
	assert.ErrorIs(t, svc.AddToCart(ctx, "u", off, 1), model.ErrProductUnavailable)

	require.NoError(t, svc.AddToCart(ctx, "u", a, 2))
	err := svc.AddToCart(ctx, "u", a, 2)
	require.ErrorIs(t, err, model.ErrInsufficientStock)
	var le *model.LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 4, le.Requested)
	assert.Equal(t, 3, le.Available)

	require.NoError(t, svc.AddToCart(ctx, "u", b, 1))
	assert.ErrorIs(t, svc.UpdateCartItem(ctx, "u", a, 4), model.ErrInsufficientStock)
	require.NoError(t, svc.UpdateCartItem(ctx, "u", a, 3))
	assert.ErrorIs(t, svc.UpdateCartItem(ctx, "other", a, 1), model.ErrCartItemNotFound)

	cart, err := svc.GetCart(ctx, "u")
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.True(t, cart.Total.Equal(decimal.RequireFromString("17.5")), "total %s", cart.Total)

	// B goes off sale: it drops out of the view
	_, err = svc.UpdateStock(ctx, b, 0)
	require.NoError(t, err)
	cart, err = svc.GetCart(ctx, "u")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.True(t, cart.Total.Equal(decimal.RequireFromString("7.5")))

	assert.ErrorIs(t, svc.RemoveFromCart(ctx, "u", 999), model.ErrCartItemNotFound)
	require.NoError(t, svc.RemoveFromCart(ctx, "u", a))
	require.NoError(t, svc.ClearCart(ctx, "u"))
	cart, err = svc.GetCart(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	// cart operations never touch stock
	assert.Equal(t, 3, stockOf(t, fs, a))
	assert.ErrorIs(t, svc.AddToCart(ctx, "", a, 1), model.ErrMissingUser)
}

func TestAdminInventory(t *testing.T) {
	svc, fs, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, model.Product{Name: " ", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, model.ErrInvalidProduct)
	_, err = svc.CreateProduct(ctx, model.Product{Name: "x", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, model.ErrInvalidProduct)

	id, err := svc.CreateProduct(ctx, model.Product{Name: "Chai", Price: decimal.NewFromInt(5), Stock: 0})
	require.NoError(t, err)
	p, err := svc.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.False(t, p.Available)

	_, err = svc.Restock(ctx, id, 0)
	assert.ErrorIs(t, err, model.ErrInvalidQuantity)
	p, err = svc.Restock(ctx, id, 4)
	require.NoError(t, err)
	assert.True(t, p.Available)

	_, err = svc.UpdateStock(ctx, id, -3)
	assert.ErrorIs(t, err, model.ErrNegativeStock)

	list, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 4, stockOf(t, fs, id))
}
