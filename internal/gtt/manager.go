// Package gtt keeps good-till-triggered orders in memory and fires them
// against observed prices. Orders live until triggered, cancelled, or
// expired; grouped orders are mutually exclusive.
package gtt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/types"
)

// Status is the lifecycle state of a GTT order.
type Status int

const (
	StatusCancelled Status = 1
	StatusTriggered Status = 2
	StatusPending   Status = 3
	StatusExpired   Status = 4
	StatusError     Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusCancelled:
		return "CANCELLED"
	case StatusTriggered:
		return "TRIGGERED"
	case StatusPending:
		return "PENDING"
	case StatusExpired:
		return "EXPIRED"
	case StatusError:
		return "ERROR"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Order is a stored GTT order. ID is a ULID, so lexicographic order is
// placement order.
type Order struct {
	ID           string    `json:"order_id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Qty          int       `json:"qty"`
	TriggerPrice float64   `json:"trigger_price"`
	LimitPrice   float64   `json:"price"`
	Product      string    `json:"product_type"`
	Tag          string    `json:"tag"`
	GroupID      string    `json:"group_id,omitempty"`
	Status       Status    `json:"status_code"`
	CreatedAt    time.Time `json:"created_at"`
	TriggeredAt  time.Time `json:"triggered_at,omitempty"`
	CancelledAt  time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt    time.Time `json:"expired_at,omitempty"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	Err          string    `json:"error,omitempty"`
}

// Request describes a GTT order to place.
type Request struct {
	Symbol       string
	Side         string // types.SideBuy or types.SideSell
	Qty          int
	TriggerPrice float64
	LimitPrice   float64 // trigger price when zero
	Product      string  // INTRADAY when empty
	Tag          string
	GroupID      string // orders sharing a group cancel each other on trigger
}

// Manager owns the GTT order book. All methods are safe for concurrent
// use; group cancellation on trigger happens in the same Check pass as
// the trigger itself.
type Manager struct {
	expiry time.Duration

	mu     sync.Mutex
	orders map[string]*Order
	groups map[string]map[string]struct{}
}

func NewManager(expiry time.Duration) *Manager {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Manager{
		expiry: expiry,
		orders: map[string]*Order{},
		groups: map[string]map[string]struct{}{},
	}
}

// Place records a pending GTT order and returns it.
func (m *Manager) Place(ctx context.Context, req Request) (Order, error) {
	if req.Symbol == "" {
		return Order{}, fmt.Errorf("gtt: empty symbol")
	}
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return Order{}, fmt.Errorf("gtt: invalid side %q", req.Side)
	}
	if req.Qty <= 0 {
		return Order{}, fmt.Errorf("gtt: invalid qty %d", req.Qty)
	}
	if req.TriggerPrice <= 0 {
		return Order{}, fmt.Errorf("gtt: invalid trigger price %.2f", req.TriggerPrice)
	}

	order := &Order{
		ID:           ulid.Make().String(),
		Symbol:       req.Symbol,
		Side:         req.Side,
		Qty:          req.Qty,
		TriggerPrice: req.TriggerPrice,
		LimitPrice:   req.LimitPrice,
		Product:      req.Product,
		Tag:          req.Tag,
		GroupID:      req.GroupID,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}
	if order.LimitPrice == 0 {
		order.LimitPrice = req.TriggerPrice
	}
	if order.Product == "" {
		order.Product = "INTRADAY"
	}

	m.mu.Lock()
	m.orders[order.ID] = order
	if order.GroupID != "" {
		group, ok := m.groups[order.GroupID]
		if !ok {
			group = map[string]struct{}{}
			m.groups[order.GroupID] = group
		}
		group[order.ID] = struct{}{}
	}
	m.mu.Unlock()

	logger.Info(ctx, "GTT order placed",
		"order_id", order.ID,
		"symbol", order.Symbol,
		"side", order.Side,
		"qty", order.Qty,
		"trigger_price", order.TriggerPrice,
		"group_id", order.GroupID,
	)
	return *order, nil
}

// Lookup returns a copy of the order.
func (m *Manager) Lookup(id string) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return Order{}, false
	}
	return *order, true
}

// Cancel marks a pending order cancelled. Orders in any other state are
// left alone and an error is returned.
func (m *Manager) Cancel(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	err := m.cancelLocked(ctx, id, reason, time.Now())
	m.mu.Unlock()
	return err
}

// CancelGroup cancels every pending order in a group except one.
func (m *Manager) CancelGroup(ctx context.Context, groupID, exceptID, reason string) {
	m.mu.Lock()
	m.cancelGroupLocked(ctx, groupID, exceptID, reason, time.Now())
	m.mu.Unlock()
}

// Fail marks a pending order errored, for when acting on a trigger
// fails downstream.
func (m *Manager) Fail(ctx context.Context, id, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.Status != StatusPending && order.Status != StatusTriggered {
		return
	}
	order.Status = StatusError
	order.Err = msg
	logger.Error(ctx, "GTT order errored", "order_id", id, "symbol", order.Symbol, "error", msg)
}

// Check walks pending orders in placement order, expiring aged ones and
// triggering those whose price condition holds. A triggered order
// cancels its group siblings in the same pass. Returns copies of the
// newly triggered orders.
func (m *Manager) Check(ctx context.Context, now time.Time, price func(symbol string) (float64, bool)) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var triggered []Order
	for _, id := range m.pendingIDsLocked() {
		order, ok := m.orders[id]
		if !ok || order.Status != StatusPending {
			continue
		}

		if now.Sub(order.CreatedAt) > m.expiry {
			order.Status = StatusExpired
			order.ExpiredAt = now
			logger.Info(ctx, "GTT order expired", "order_id", id, "symbol", order.Symbol)
			continue
		}

		ltp, ok := price(order.Symbol)
		if !ok {
			logger.Warn(ctx, "Skipping GTT trigger check, no price", "symbol", order.Symbol)
			continue
		}

		hit := order.Side == types.SideBuy && ltp >= order.TriggerPrice ||
			order.Side == types.SideSell && ltp <= order.TriggerPrice
		if !hit {
			continue
		}

		order.Status = StatusTriggered
		order.TriggeredAt = now
		triggered = append(triggered, *order)
		logger.Info(ctx, "GTT order triggered",
			"order_id", id,
			"symbol", order.Symbol,
			"side", order.Side,
			"ltp", ltp,
			"trigger_price", order.TriggerPrice,
		)
		if order.GroupID != "" {
			m.cancelGroupLocked(ctx, order.GroupID, id, "Mutual exclusivity", now)
		}
	}
	return triggered
}

// OrdersByStatus returns copies of orders in the given state.
func (m *Manager) OrdersByStatus(status Status) []Order {
	return m.filter(func(o *Order) bool { return o.Status == status })
}

// OrdersBySymbol returns copies of orders for a symbol.
func (m *Manager) OrdersBySymbol(symbol string) []Order {
	return m.filter(func(o *Order) bool { return o.Symbol == symbol })
}

// OrdersByTag returns copies of orders carrying a tag.
func (m *Manager) OrdersByTag(tag string) []Order {
	return m.filter(func(o *Order) bool { return o.Tag == tag })
}

// Cleanup drops cancelled, expired, and errored orders and reports how
// many were removed. Triggered orders stay for the day's records.
func (m *Manager) Cleanup(ctx context.Context) int {
	m.mu.Lock()
	var removed int
	for id, order := range m.orders {
		switch order.Status {
		case StatusCancelled, StatusExpired, StatusError:
			delete(m.orders, id)
			m.dropFromGroupLocked(order.GroupID, id)
			removed++
		}
	}
	m.mu.Unlock()

	logger.Info(ctx, "Cleaned up terminal GTT orders", "removed", removed)
	return removed
}

// Reset clears the whole order book.
func (m *Manager) Reset(ctx context.Context) {
	m.mu.Lock()
	m.orders = map[string]*Order{}
	m.groups = map[string]map[string]struct{}{}
	m.mu.Unlock()
	logger.Info(ctx, "GTT order book reset")
}

func (m *Manager) cancelLocked(ctx context.Context, id, reason string, now time.Time) error {
	order, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("gtt: order %s not found", id)
	}
	if order.Status != StatusPending {
		return fmt.Errorf("gtt: order %s not pending (%s)", id, order.Status)
	}
	order.Status = StatusCancelled
	order.CancelledAt = now
	order.CancelReason = reason
	m.dropFromGroupLocked(order.GroupID, id)
	logger.Info(ctx, "GTT order cancelled", "order_id", id, "symbol", order.Symbol, "reason", reason)
	return nil
}

func (m *Manager) cancelGroupLocked(ctx context.Context, groupID, exceptID, reason string, now time.Time) {
	group, ok := m.groups[groupID]
	if !ok {
		return
	}
	ids := make([]string, 0, len(group))
	for id := range group {
		if id != exceptID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if err := m.cancelLocked(ctx, id, reason, now); err != nil {
			logger.Warn(ctx, "Group cancel skipped order", "order_id", id, "error", err)
		}
	}
}

func (m *Manager) dropFromGroupLocked(groupID, id string) {
	if groupID == "" {
		return
	}
	group, ok := m.groups[groupID]
	if !ok {
		return
	}
	delete(group, id)
	if len(group) == 0 {
		delete(m.groups, groupID)
	}
}

// pendingIDsLocked returns pending order IDs sorted by placement time,
// which for ULIDs is plain string order.
func (m *Manager) pendingIDsLocked() []string {
	ids := make([]string, 0, len(m.orders))
	for id, order := range m.orders {
		if order.Status == StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) filter(keep func(*Order) bool) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, id := range m.sortedIDsLocked() {
		if order := m.orders[id]; keep(order) {
			out = append(out, *order)
		}
	}
	return out
}

func (m *Manager) sortedIDsLocked() []string {
	ids := make([]string, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
