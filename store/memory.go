package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/model"
	"storefront/outbox"
)

// MemoryStore is a single-process Store for development and tests. A unit of
// work holds the store lock until it commits or rolls back, so transactions
// are serializable.
type MemoryStore struct {
	mu            sync.Mutex
	products      map[int64]model.Product
	orders        map[int64]model.Order
	events        []outbox.Event
	nextProductID int64
	nextOrderID   int64
	nextEventID   int64
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: map[int64]model.Product{},
		orders:   map[int64]model.Order{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Close() error { return nil }

// WithTx applies fn's writes atomically; on error every write is undone.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return fmt.Errorf("%w: %w", model.ErrStorageFailure, err)
	}
	return nil
}

type memTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	return t.s.getProductLocked(productID)
}

func (t *memTx) Reserve(ctx context.Context, productID int64, qty int) (model.Product, error) {
	before := t.s.products[productID]
	p, err := t.s.reserveLocked(productID, qty)
	if err == nil {
		t.undo = append(t.undo, func() { t.s.products[productID] = before })
	}
	return p, err
}

func (t *memTx) Release(ctx context.Context, productID int64, qty int) (model.Product, error) {
	before := t.s.products[productID]
	p, err := t.s.adjustLocked(productID, qty)
	if err == nil {
		t.undo = append(t.undo, func() { t.s.products[productID] = before })
	}
	return p, err
}

func (t *memTx) CreateOrder(ctx context.Context, o *model.Order) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStorageFailure, err)
	}
	if err := o.CheckTotal(); err != nil {
		return err
	}
	t.s.nextOrderID++
	o.ID = t.s.nextOrderID
	o.CreatedAt = t.s.now()
	o.UpdatedAt = o.CreatedAt
	o.Items = append([]model.OrderLine(nil), o.Items...)
	t.s.orders[o.ID] = *o

	id := o.ID
	t.undo = append(t.undo, func() { delete(t.s.orders, id) })
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, orderID int64) (model.Order, error) {
	o, ok := t.s.orders[orderID]
	if !ok {
		return model.Order{}, model.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (t *memTx) SetOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (model.Order, error) {
	before, ok := t.s.orders[orderID]
	if !ok {
		return model.Order{}, model.ErrOrderNotFound
	}
	o := before
	o.Status = status
	o.UpdatedAt = t.s.now()
	t.s.orders[orderID] = o
	t.undo = append(t.undo, func() { t.s.orders[orderID] = before })
	return copyOrder(o), nil
}

func (t *memTx) AppendEvent(ctx context.Context, ev outbox.Event) error {
	t.s.nextEventID++
	ev.ID = t.s.nextEventID
	ev.Status = outbox.StatusPending
	ev.CreatedAt = t.s.now()
	t.s.events = append(t.s.events, ev)

	n := len(t.s.events) - 1
	t.undo = append(t.undo, func() { t.s.events = t.s.events[:n] })
	return nil
}

func (s *MemoryStore) getProductLocked(productID int64) (model.Product, error) {
	p, ok := s.products[productID]
	if !ok {
		return model.Product{}, &model.LineError{ProductID: productID, Err: model.ErrProductNotFound}
	}
	return p, nil
}

func (s *MemoryStore) reserveLocked(productID int64, qty int) (model.Product, error) {
	if qty <= 0 {
		return model.Product{}, model.ErrInvalidQuantity
	}
	p, err := s.getProductLocked(productID)
	if err != nil {
		return model.Product{}, err
	}
	if p.Stock < qty {
		return model.Product{}, model.InsufficientStock(p, qty)
	}
	if !p.Available {
		return model.Product{}, &model.LineError{ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.Stock, Err: model.ErrProductUnavailable}
	}
	p.Stock -= qty
	p.Available = model.Availability(p.Stock)
	p.UpdatedAt = s.now()
	s.products[productID] = p
	return p, nil
}

func (s *MemoryStore) adjustLocked(productID int64, qty int) (model.Product, error) {
	if qty <= 0 {
		return model.Product{}, model.ErrInvalidQuantity
	}
	p, err := s.getProductLocked(productID)
	if err != nil {
		return model.Product{}, err
	}
	p.Stock += qty
	p.Available = model.Availability(p.Stock)
	p.UpdatedAt = s.now()
	s.products[productID] = p
	return p, nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getProductLocked(productID)
}

func (s *MemoryStore) Reserve(ctx context.Context, productID int64, qty int) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked(productID, qty)
}

func (s *MemoryStore) Release(ctx context.Context, productID int64, qty int) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustLocked(productID, qty)
}

func (s *MemoryStore) Restock(ctx context.Context, productID int64, qty int) (model.Product, error) {
	return s.Release(ctx, productID, qty)
}

func (s *MemoryStore) UpdateStock(ctx context.Context, productID int64, newStock int) (model.Product, error) {
	if newStock < 0 {
		return model.Product{}, model.ErrNegativeStock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.getProductLocked(productID)
	if err != nil {
		return model.Product{}, err
	}
	p.Stock = newStock
	p.Available = model.Availability(newStock)
	p.UpdatedAt = s.now()
	s.products[productID] = p
	return p, nil
}

func (s *MemoryStore) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextProductID++
	p.ID = s.nextProductID
	p.Available = model.Availability(p.Stock)
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = p
	return p.ID, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID int64) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, model.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *MemoryStore) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Events returns a copy of the outbox.
func (s *MemoryStore) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}

// LockBatch claims up to batchSize pending or failed events, oldest first.
func (s *MemoryStore) LockBatch(ctx context.Context, batchSize int) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Event
	for i := range s.events {
		if len(out) == batchSize {
			break
		}
		ev := &s.events[i]
		if ev.Status != outbox.StatusPending && ev.Status != outbox.StatusFailed {
			continue
		}
		if ev.RetryCount >= maxOutboxRetries {
			continue
		}
		ev.Status = outbox.StatusInProgress
		out = append(out, *ev)
	}
	return out, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if ev := s.eventLocked(id); ev != nil {
			ev.Status = outbox.StatusSent
		}
	}
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev := s.eventLocked(id); ev != nil {
		ev.Status = outbox.StatusFailed
		ev.LastError = errMsg
		ev.RetryCount++
	}
	return nil
}

// event ids are assigned in order, so the slice is sorted by id
func (s *MemoryStore) eventLocked(id int64) *outbox.Event {
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].ID >= id })
	if i < len(s.events) && s.events[i].ID == id {
		return &s.events[i]
	}
	return nil
}

func copyOrder(o model.Order) model.Order {
	o.Items = append([]model.OrderLine(nil), o.Items...)
	return o
}

// MemoryCartStore keeps carts in process memory, in insertion order.
type MemoryCartStore struct {
	mu    sync.Mutex
	carts map[string][]model.CartLine
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: map[string][]model.CartLine{}}
}

func (c *MemoryCartStore) AddToCart(ctx context.Context, userID string, productID int64, qty int) error {
	if qty <= 0 {
		return model.ErrInvalidQuantity
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.carts[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity += qty
			return nil
		}
	}
	c.carts[userID] = append(lines, model.CartLine{ProductID: productID, Quantity: qty})
	return nil
}

func (c *MemoryCartStore) SetCartQuantity(ctx context.Context, userID string, productID int64, qty int) error {
	if qty <= 0 {
		return model.ErrInvalidQuantity
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, l := range c.carts[userID] {
		if l.ProductID == productID {
			c.carts[userID][i].Quantity = qty
			return nil
		}
	}
	return model.ErrCartItemNotFound
}

func (c *MemoryCartStore) RemoveFromCart(ctx context.Context, userID string, productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.carts[userID]
	for i, l := range lines {
		if l.ProductID == productID {
			c.carts[userID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return model.ErrCartItemNotFound
}

func (c *MemoryCartStore) GetCart(ctx context.Context, userID string) ([]model.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.CartLine{}, c.carts[userID]...), nil
}

func (c *MemoryCartStore) ClearCart(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, userID)
	return nil
}

func (c *MemoryCartStore) RemoveOrdered(ctx context.Context, userID string, ordered []model.CartLine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	taken := make(map[int64]int, len(ordered))
	for _, l := range ordered {
		taken[l.ProductID] += l.Quantity
	}
	kept := c.carts[userID][:0:0]
	for _, l := range c.carts[userID] {
		l.Quantity -= taken[l.ProductID]
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(c.carts, userID)
		return nil
	}
	c.carts[userID] = kept
	return nil
}
