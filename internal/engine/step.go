package engine

import (
	"context"
	"time"

	"oi-breakout-bot/internal/decision"
	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/market"
	"oi-breakout-bot/internal/types"
)

// Step states reported to the main loop.
const (
	StateIdle    = "idle"
	StateScan    = "scan"
	StateMonitor = "monitor"
	StateEntered = "entered"
	StateExited  = "exited"
)

// Step runs one cycle. While in a position it monitors every
// monitor_seconds; while flat with an armed setup it scans breakout
// triggers every breakout_scan_seconds; otherwise it idles.
func (e *engine) Step(ctx context.Context) (*types.StepResult, error) {
	now := market.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos != nil {
		if now.Before(e.nextMonitor) {
			return idleResult(now), nil
		}
		e.nextMonitor = now.Add(time.Duration(e.p.Config.Feed.MonitorSeconds) * time.Second)
		return e.monitorLocked(ctx, now)
	}

	if e.setup != nil && sameISTDay(e.setup.Date, now) && !e.tradeTakenLocked(now) {
		if now.Before(e.nextScan) {
			return idleResult(now), nil
		}
		e.nextScan = now.Add(time.Duration(e.p.Config.Feed.BreakoutScanSeconds) * time.Second)
		return e.scanLocked(ctx, now)
	}

	return idleResult(now), nil
}

// scanLocked checks both armed legs against their breakout levels and
// enters on the first trigger. The sibling trigger is cancelled by the
// order group in the same pass.
func (e *engine) scanLocked(ctx context.Context, now time.Time) (*types.StepResult, error) {
	setup := e.setup

	price := func(symbol string) (float64, bool) {
		rec, ok := e.p.Prices.Latest(ctx, symbol)
		if !ok || rec.LTP <= 0 {
			return 0, false
		}
		return rec.LTP, true
	}

	for _, leg := range []types.LegSetup{setup.Put, setup.Call} {
		if leg.Symbol == "" {
			continue
		}
		if ltp, ok := price(leg.Symbol); ok {
			logger.Debug(ctx, "Breakout scan",
				"symbol", leg.Symbol, "ltp", ltp, "trigger", leg.Trigger)
		}
	}

	triggered := e.p.Orders.Check(ctx, now, price)
	if len(triggered) == 0 {
		return &types.StepResult{State: StateScan, Time: now.Unix()}, nil
	}

	var result *types.StepResult
	for _, ord := range triggered {
		if e.tradeTakenLocked(now) {
			logger.Decision(ctx, ord.Symbol, "SKIP", "daily trade limit reached", "order_id", ord.ID)
			continue
		}
		leg, ok := legForSymbol(setup, ord.Symbol)
		if !ok {
			logger.Warn(ctx, "Triggered order for unknown leg", "symbol", ord.Symbol, "order_id", ord.ID)
			continue
		}
		res, err := e.enterLocked(ctx, now, leg)
		if err != nil {
			logger.ErrorWithErr(ctx, "Entry failed", err, "symbol", ord.Symbol, "order_id", ord.ID)
			continue
		}
		if res != nil {
			result = res
		}
	}
	e.p.Orders.Cleanup(ctx)

	if result == nil {
		return &types.StepResult{State: StateScan, Time: now.Unix(), Note: "trigger without entry"}, nil
	}
	return result, nil
}

// monitorLocked runs one position check: excursion stats first, then the
// trailing stop, then exits in their fixed order, then the session gate.
func (e *engine) monitorLocked(ctx context.Context, now time.Time) (*types.StepResult, error) {
	pos := e.pos
	price := e.currentPrice(ctx, pos)

	pos.state = decision.Excursion(pos.state, price)

	if upd := e.p.Rules.Trail(ctx, pos.state, price); upd.Raised {
		logger.Risk(ctx, pos.state.Symbol, "TRAILING_STOP_RAISED",
			"old_stop", pos.state.StopLoss,
			"new_stop", upd.NewStop,
			"price", price,
		)
		pos.state.StopLoss = upd.NewStop
	}

	pnl := (price - pos.state.EntryPrice) * float64(pos.state.Qty)
	var pnlPct float64
	if pos.state.EntryPrice > 0 {
		pnlPct = (price - pos.state.EntryPrice) / pos.state.EntryPrice * 100
	}
	logger.Debug(ctx, "Position update",
		"symbol", pos.state.Symbol,
		"entry", pos.state.EntryPrice,
		"ltp", price,
		"stop", pos.state.StopLoss,
		"target", pos.state.Target,
		"pnl", pnl,
		"pnl_pct", pnlPct,
		"max_up", pos.state.MaxUp,
		"max_down", pos.state.MaxDown,
	)

	if dec := e.p.Rules.CheckExit(ctx, pos.state, price, now); dec.Exit {
		return e.exitLocked(ctx, now, dec.Reason, dec.Price)
	}
	if open, status := e.p.Calendar.Status(now); !open {
		logger.Info(ctx, "Session ended with open position", "status", status)
		return e.exitLocked(ctx, now, types.ExitMarketClose, price)
	}

	return &types.StepResult{
		State:  StateMonitor,
		Symbol: pos.state.Symbol,
		Price:  price,
		Time:   now.Unix(),
	}, nil
}

// currentPrice resolves the freshest usable price: live feed, then last
// known, then the entry price.
func (e *engine) currentPrice(ctx context.Context, pos *position) float64 {
	if rec, ok := e.p.Prices.Latest(ctx, pos.state.Symbol); ok && rec.LTP > 0 {
		pos.lastKnown = rec.LTP
		return rec.LTP
	}
	if pos.lastKnown > 0 {
		return pos.lastKnown
	}
	return pos.state.EntryPrice
}

func (e *engine) tradeTakenLocked(now time.Time) bool {
	return e.tradeDay != "" && e.tradeDay == istDate(now)
}

func legForSymbol(setup *types.DaySetup, symbol string) (types.LegSetup, bool) {
	if symbol == "" {
		return types.LegSetup{}, false
	}
	if setup.Put.Symbol == symbol {
		return setup.Put, true
	}
	if setup.Call.Symbol == symbol {
		return setup.Call, true
	}
	return types.LegSetup{}, false
}

func idleResult(now time.Time) *types.StepResult {
	return &types.StepResult{State: StateIdle, Time: now.Unix()}
}
