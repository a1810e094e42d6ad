package engine

import (
	"context"
	"fmt"
	"time"

	"oi-breakout-bot/internal/charges"
	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/tradelog"
	"oi-breakout-bot/internal/types"
)

// position is the live trade. state is what the decision rules see;
// record mirrors it into the persisted history row at recordIdx.
type position struct {
	state     types.PositionState
	leg       types.LegSetup
	record    types.TradeRecord
	recordIdx int
	lastKnown float64
	orderID   string
}

// enterLocked executes a breakout entry for a triggered leg. A nil
// result without error means the entry was rejected by the rules; the
// trigger is already consumed either way.
func (e *engine) enterLocked(ctx context.Context, now time.Time, leg types.LegSetup) (*types.StepResult, error) {
	price := leg.Trigger
	if rec, ok := e.p.Prices.Latest(ctx, leg.Symbol); ok && rec.LTP > 0 {
		price = rec.LTP
	}

	plan := e.p.Rules.PlanEntry(ctx, leg, price)
	if !plan.Enter {
		logger.Decision(ctx, leg.Symbol, "SKIP", plan.Reason, "price", price, "trigger", leg.Trigger)
		_ = tradelog.AppendDecision(tradelog.DecisionEntry{
			Symbol: leg.Symbol,
			Action: "SKIP",
			Reason: plan.Reason,
			Price:  price,
			Levels: map[string]float64{"baseline": leg.Baseline, "trigger": leg.Trigger},
		})
		return nil, nil
	}

	logger.Decision(ctx, leg.Symbol, types.SideBuy, "breakout",
		"price", price,
		"baseline", leg.Baseline,
		"trigger", leg.Trigger,
		"oi", leg.OI,
	)
	_ = tradelog.AppendDecision(tradelog.DecisionEntry{
		Symbol: leg.Symbol,
		Action: types.SideBuy,
		Reason: "breakout",
		Price:  price,
		Levels: map[string]float64{
			"baseline": leg.Baseline,
			"trigger":  leg.Trigger,
			"stop":     plan.StopLoss,
			"target":   plan.Target,
		},
	})

	resp, err := e.p.Broker.PlaceOrder(ctx, types.OrderReq{
		Symbol: leg.Symbol,
		Side:   types.SideBuy,
		Qty:    plan.Qty,
		Tag:    "breakout",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place entry order: %w", err)
	}

	state := types.PositionState{
		Symbol:       leg.Symbol,
		EntryPrice:   price,
		EntryTime:    now,
		Qty:          plan.Qty,
		StopLoss:     plan.StopLoss,
		OriginalStop: plan.StopLoss,
		Target:       plan.Target,
		Deadline:     e.p.Rules.Deadline(now),
	}
	rec := types.TradeRecord{
		EntryTime:  now,
		Index:      e.p.Config.Index.Name,
		Symbol:     leg.Symbol,
		Direction:  types.SideBuy,
		EntryPrice: price,
		StopLoss:   plan.StopLoss,
		Target:     plan.Target,
		Qty:        plan.Qty,
		Margin:     plan.Margin,
	}
	idx, err := e.p.History.Append(rec)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist trade history", err, "symbol", leg.Symbol)
	}
	_ = tradelog.Append(tradelog.Entry{
		Symbol:  leg.Symbol,
		Side:    types.SideBuy,
		Qty:     plan.Qty,
		Price:   price,
		OrderID: resp.OrderID,
		Reason:  "breakout",
	})

	logger.Trade(ctx, leg.Symbol, types.SideBuy, plan.Qty, price, resp.OrderID,
		"stop", plan.StopLoss,
		"target", plan.Target,
		"deadline", state.Deadline.Format("15:04:05"),
		"margin", plan.Margin,
	)

	e.pos = &position{
		state:     state,
		leg:       leg,
		record:    rec,
		recordIdx: idx,
		lastKnown: price,
		orderID:   resp.OrderID,
	}
	e.tradeDay = istDate(now)
	e.nextMonitor = now
	logger.Info(ctx, "Daily trade limit reached, no further entries today", "symbol", leg.Symbol)

	e.unsubscribeSiblingLocked(ctx, leg.Symbol)

	return &types.StepResult{
		State:  StateEntered,
		Symbol: leg.Symbol,
		Price:  price,
		Time:   now.Unix(),
		Orders: []types.OrderResp{resp},
	}, nil
}

// exitLocked closes the position: market SELL, statutory charges, net
// P&L, history row completion, journal entry, feed unsubscribe. Exits at
// the defined level are passed in; a non-positive exitPrice falls back
// to the last known price.
func (e *engine) exitLocked(ctx context.Context, now time.Time, reason string, exitPrice float64) (*types.StepResult, error) {
	pos := e.pos
	if pos == nil {
		logger.Warn(ctx, "No active trade to exit")
		return &types.StepResult{State: StateIdle, Time: now.Unix(), Note: "no active trade"}, nil
	}
	if exitPrice <= 0 {
		exitPrice = e.currentPrice(ctx, pos)
		logger.Info(ctx, "No explicit exit price, using last known", "price", exitPrice)
	}

	st := pos.state
	resp, err := e.p.Broker.PlaceOrder(ctx, types.OrderReq{
		Symbol: st.Symbol,
		Side:   types.SideSell,
		Qty:    st.Qty,
		Tag:    reason,
	})
	if err != nil {
		// Position stays open; the next monitor cycle retries the exit.
		return nil, fmt.Errorf("failed to place exit order: %w", err)
	}

	total, breakdown := charges.RoundTrip(st.EntryPrice, exitPrice, st.Qty, e.p.Config.Charges.State)
	gross := (exitPrice - st.EntryPrice) * float64(st.Qty)
	net := gross - total

	rec := pos.record
	rec.ExitTime = now
	rec.ExitPrice = exitPrice
	rec.TrailingSL = st.StopLoss
	rec.Brokerage = total
	rec.PnL = roundTo(net, 2)
	if st.EntryPrice > 0 && st.Qty > 0 {
		rec.PctGain = roundTo(net/(st.EntryPrice*float64(st.Qty))*100, 2)
	}
	rec.MaxUp = roundTo(st.MaxUp, 2)
	rec.MaxDown = roundTo(st.MaxDown, 2)
	rec.MaxUpPct = roundTo(st.MaxUpPct, 2)
	rec.MaxDownPct = roundTo(st.MaxDownPct, 2)
	rec.ExitReason = reason
	if pos.recordIdx >= 0 {
		if err := e.p.History.Update(pos.recordIdx, rec); err != nil {
			logger.ErrorWithErr(ctx, "Failed to persist trade exit", err, "symbol", st.Symbol)
		}
	}

	_ = tradelog.Append(tradelog.Entry{
		Symbol:  st.Symbol,
		Side:    types.SideSell,
		Qty:     st.Qty,
		Price:   exitPrice,
		OrderID: resp.OrderID,
		Reason:  reason,
	})
	logger.Trade(ctx, st.Symbol, types.SideSell, st.Qty, exitPrice, resp.OrderID,
		"reason", reason,
		"entry", st.EntryPrice,
		"gross_pnl", gross,
		"charges", total,
		"stt", breakdown.STT.InexactFloat64(),
		"net_pnl", rec.PnL,
		"pct_gain", rec.PctGain,
		"max_up", rec.MaxUp,
		"max_down", rec.MaxDown,
		"trailing_sl", st.StopLoss,
	)

	if err := e.p.Ticker.Unsubscribe(ctx, []string{st.Symbol}); err != nil {
		logger.ErrorWithErr(ctx, "Failed to unsubscribe position symbol", err, "symbol", st.Symbol)
	}
	e.pos = nil

	return &types.StepResult{
		State:  StateExited,
		Symbol: st.Symbol,
		Price:  exitPrice,
		Time:   now.Unix(),
		Orders: []types.OrderResp{resp},
		Note:   reason,
	}, nil
}

// unsubscribeSiblingLocked drops the non-triggered leg from the feed
// after an entry; only the position symbol stays live.
func (e *engine) unsubscribeSiblingLocked(ctx context.Context, entered string) {
	var other string
	if s := e.setup; s != nil {
		if s.Put.Symbol != "" && s.Put.Symbol != entered {
			other = s.Put.Symbol
		}
		if s.Call.Symbol != "" && s.Call.Symbol != entered {
			other = s.Call.Symbol
		}
	}
	if other == "" {
		return
	}
	if err := e.p.Ticker.Unsubscribe(ctx, []string{other}); err != nil {
		logger.ErrorWithErr(ctx, "Failed to unsubscribe sibling leg", err, "symbol", other)
		return
	}
	logger.Info(ctx, "Unsubscribed sibling leg", "symbol", other)
}
