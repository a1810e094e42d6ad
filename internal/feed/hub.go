// Package feed owns the live price table. Ticks enter through Ingest,
// a single goroutine folds them into per-symbol records, and consumers
// read through snapshot requests or buffered subscriptions. No price
// state is shared across goroutines.
package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/types"
)

// Params bound what the hub accepts and when records go stale.
type Params struct {
	MaxLTP       float64 // reject ticks above this outright
	MaxOptionLTP float64 // tighter bound for CE/PE symbols
	StaleAfter   time.Duration
	DropAfter    time.Duration
}

type subscriber struct {
	name    string
	ch      chan types.Tick
	symbols map[string]struct{} // empty means all symbols
	dropped uint64
}

type latestReq struct {
	symbol string
	resp   chan latestResp
}

type latestResp struct {
	rec types.PriceRecord
	ok  bool
}

type snapshotReq struct {
	resp chan map[string]types.PriceRecord
}

type healthReq struct {
	symbols []string
	resp    chan map[string]string
}

// Hub fans ticks out to subscribers and answers price queries.
type Hub struct {
	params Params

	in        chan types.Tick
	latests   chan latestReq
	snapshots chan snapshotReq
	healths   chan healthReq

	mu   sync.RWMutex
	subs []*subscriber

	// Owned by the Run goroutine.
	records map[string]*types.PriceRecord

	droppedIngest uint64
	droppedFanout uint64
	rejected      uint64
}

func NewHub(params Params) *Hub {
	if params.StaleAfter <= 0 {
		params.StaleAfter = 10 * time.Second
	}
	if params.DropAfter <= 0 {
		params.DropAfter = 30 * time.Second
	}
	return &Hub{
		params:    params,
		in:        make(chan types.Tick, 256),
		latests:   make(chan latestReq),
		snapshots: make(chan snapshotReq),
		healths:   make(chan healthReq),
		records:   map[string]*types.PriceRecord{},
	}
}

// Ingest hands a tick to the hub without blocking. Broker tick callbacks
// call this; a full hub drops the tick and counts it.
func (h *Hub) Ingest(tick types.Tick) {
	select {
	case h.in <- tick:
	default:
		atomic.AddUint64(&h.droppedIngest, 1)
	}
}

// Subscribe registers a buffered tick channel. With symbols given, only
// ticks for those symbols are delivered; otherwise all ticks are.
func (h *Hub) Subscribe(name string, buf int, symbols ...string) <-chan types.Tick {
	if buf <= 0 {
		buf = 16
	}
	sub := &subscriber{
		name:    name,
		ch:      make(chan types.Tick, buf),
		symbols: map[string]struct{}{},
	}
	for _, s := range symbols {
		sub.symbols[s] = struct{}{}
	}
	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()
	return sub.ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (h *Hub) Unsubscribe(ch <-chan types.Tick) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subs {
		if sub.ch == ch {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Latest returns the current record for a symbol.
func (h *Hub) Latest(ctx context.Context, symbol string) (types.PriceRecord, bool) {
	req := latestReq{symbol: symbol, resp: make(chan latestResp, 1)}
	select {
	case h.latests <- req:
	case <-ctx.Done():
		return types.PriceRecord{}, false
	}
	select {
	case resp := <-req.resp:
		return resp.rec, resp.ok
	case <-ctx.Done():
		return types.PriceRecord{}, false
	}
}

// Snapshot returns a copy of the whole price table.
func (h *Hub) Snapshot(ctx context.Context) map[string]types.PriceRecord {
	req := snapshotReq{resp: make(chan map[string]types.PriceRecord, 1)}
	select {
	case h.snapshots <- req:
	case <-ctx.Done():
		return nil
	}
	select {
	case snap := <-req.resp:
		return snap
	case <-ctx.Done():
		return nil
	}
}

// Health reports feed freshness for the given symbols, or for every
// known symbol when none are given. A symbol that never ticked reports
// "No data received".
func (h *Hub) Health(ctx context.Context, symbols ...string) map[string]string {
	req := healthReq{symbols: symbols, resp: make(chan map[string]string, 1)}
	select {
	case h.healths <- req:
	case <-ctx.Done():
		return nil
	}
	select {
	case health := <-req.resp:
		return health
	case <-ctx.Done():
		return nil
	}
}

// DroppedIngest reports ticks dropped because the intake was full.
func (h *Hub) DroppedIngest() uint64 { return atomic.LoadUint64(&h.droppedIngest) }

// DroppedFanout reports ticks dropped on slow subscribers.
func (h *Hub) DroppedFanout() uint64 { return atomic.LoadUint64(&h.droppedFanout) }

// Rejected reports ticks that failed validation.
func (h *Hub) Rejected() uint64 { return atomic.LoadUint64(&h.rejected) }

// Run owns the price table until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	cleanupTicker := time.NewTicker(h.params.DropAfter)
	defer cleanupTicker.Stop()
	statsTicker := time.NewTicker(60 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeSubs()
			return ctx.Err()
		case tick := <-h.in:
			if !h.apply(ctx, tick) {
				continue
			}
			h.fanout(tick)
		case req := <-h.latests:
			rec, ok := h.records[req.symbol]
			if ok {
				req.resp <- latestResp{rec: *rec, ok: true}
			} else {
				req.resp <- latestResp{}
			}
		case req := <-h.snapshots:
			req.resp <- h.snapshot()
		case req := <-h.healths:
			req.resp <- h.healthMap(time.Now(), req.symbols)
		case <-cleanupTicker.C:
			for _, symbol := range h.removeStale(time.Now()) {
				logger.Info(ctx, "Removed stale data for symbol", "symbol", symbol)
			}
		case <-statsTicker.C:
			h.logStats(ctx)
		}
	}
}

// apply validates a tick and folds it into the table. Invalid ticks are
// logged and counted, never stored.
func (h *Hub) apply(ctx context.Context, tick types.Tick) bool {
	if tick.Symbol == "" || tick.LTP <= 0 || (h.params.MaxLTP > 0 && tick.LTP > h.params.MaxLTP) {
		atomic.AddUint64(&h.rejected, 1)
		logger.Warn(ctx, "Invalid symbol or price", "symbol", tick.Symbol, "ltp", tick.LTP)
		return false
	}

	if optType, isOption := optionType(tick.Symbol); isOption {
		if !strings.HasSuffix(tick.Symbol, optType) {
			atomic.AddUint64(&h.rejected, 1)
			logger.Warn(ctx, "Option symbol missing type suffix, skipping update",
				"symbol", tick.Symbol, "type", optType)
			return false
		}
		if h.params.MaxOptionLTP > 0 && tick.LTP >= h.params.MaxOptionLTP {
			atomic.AddUint64(&h.rejected, 1)
			logger.Warn(ctx, "Ignored LTP out of option price range", "symbol", tick.Symbol, "ltp", tick.LTP)
			return false
		}
	}

	ts := tick.Ts
	if ts.IsZero() {
		ts = time.Now()
	}

	rec, ok := h.records[tick.Symbol]
	if !ok {
		rec = &types.PriceRecord{Symbol: tick.Symbol}
		h.records[tick.Symbol] = rec
	}
	rec.LTP = tick.LTP
	if tick.PrevClose > 0 {
		rec.PrevClose = tick.PrevClose
	}
	rec.UpdatedAt = ts
	rec.Ticks++
	return true
}

func (h *Hub) fanout(tick types.Tick) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if len(sub.symbols) > 0 {
			if _, ok := sub.symbols[tick.Symbol]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- tick:
		default:
			// Drop when subscriber is slow; the hub must not block.
			atomic.AddUint64(&sub.dropped, 1)
			atomic.AddUint64(&h.droppedFanout, 1)
		}
	}
}

func (h *Hub) snapshot() map[string]types.PriceRecord {
	snap := make(map[string]types.PriceRecord, len(h.records))
	for symbol, rec := range h.records {
		snap[symbol] = *rec
	}
	return snap
}

func (h *Hub) healthMap(now time.Time, symbols []string) map[string]string {
	if len(symbols) == 0 {
		symbols = make([]string, 0, len(h.records))
		for symbol := range h.records {
			symbols = append(symbols, symbol)
		}
	}
	health := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		rec, ok := h.records[symbol]
		if !ok {
			health[symbol] = "No data received"
			continue
		}
		if age := now.Sub(rec.UpdatedAt); age > h.params.StaleAfter {
			health[symbol] = fmt.Sprintf("Data stale (%.1f seconds old)", age.Seconds())
		} else {
			health[symbol] = "Healthy"
		}
	}
	return health
}

func (h *Hub) removeStale(now time.Time) []string {
	var stale []string
	for symbol, rec := range h.records {
		if now.Sub(rec.UpdatedAt) > h.params.DropAfter {
			stale = append(stale, symbol)
		}
	}
	for _, symbol := range stale {
		delete(h.records, symbol)
	}
	return stale
}

func (h *Hub) logStats(ctx context.Context) {
	logger.Debug(ctx, "Feed hub stats",
		"symbols", len(h.records),
		"dropped_ingest", atomic.LoadUint64(&h.droppedIngest),
		"dropped_fanout", atomic.LoadUint64(&h.droppedFanout),
		"rejected", atomic.LoadUint64(&h.rejected),
	)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if n := atomic.LoadUint64(&sub.dropped); n > 0 {
			logger.Warn(ctx, "Subscriber dropping ticks", "subscriber", sub.name, "dropped", n)
		}
	}
}

func (h *Hub) closeSubs() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		close(sub.ch)
	}
	h.subs = nil
}

// optionType classifies a symbol as a call or put by marker substring.
// Non-option symbols, the index spot included, report false.
func optionType(symbol string) (string, bool) {
	switch {
	case strings.Contains(symbol, "CE"):
		return "CE", true
	case strings.Contains(symbol, "PE"):
		return "PE", true
	}
	return "", false
}
