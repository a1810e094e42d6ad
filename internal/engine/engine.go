// Package engine orchestrates the trading day: the 9:20 open-interest
// analysis, breakout scanning while flat, position monitoring while in a
// trade, and the daily reset.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"oi-breakout-bot/internal/chain"
	"oi-breakout-bot/internal/gtt"
	"oi-breakout-bot/internal/interfaces"
	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/market"
	"oi-breakout-bot/internal/nsedata"
	"oi-breakout-bot/internal/store"
	"oi-breakout-bot/internal/tradelog"
	"oi-breakout-bot/internal/types"
)

// ChainFetcher supplies option-chain rows for the analysis run.
type ChainFetcher interface {
	OptionChain(ctx context.Context, index string) (*nsedata.Chain, error)
}

// PriceSource answers latest-price queries for monitored symbols.
type PriceSource interface {
	Latest(ctx context.Context, symbol string) (types.PriceRecord, bool)
}

// SessionGate reports whether the market is trading.
type SessionGate interface {
	IsTradingDay(t time.Time) (bool, string)
	Status(t time.Time) (bool, string)
}

type Params struct {
	Config   *store.Config
	Broker   interfaces.Broker
	Ticker   interfaces.TickerManager
	Rules    interfaces.Rules
	Prices   PriceSource
	Orders   *gtt.Manager
	Chain    ChainFetcher
	Calendar SessionGate
	History  *tradelog.History

	// ForceOpen skips the session gate in PrepareDay. Honored only in
	// DRY_RUN mode, for out-of-hours rehearsals.
	ForceOpen bool
}

// engine state is serialized by mu: Step runs on the main-loop ticker
// while PrepareDay and ResetDay fire from cron jobs.
type engine struct {
	p Params

	mu          sync.Mutex
	setup       *types.DaySetup
	pos         *position
	tradeDay    string // IST date of the day's trade, "" when none taken
	groupID     string
	nextScan    time.Time
	nextMonitor time.Time
}

var _ interfaces.Engine = (*engine)(nil)

// PrepareDay runs the morning analysis: spot price, option chain, per-leg
// strike selection, contract resolution, ticker subscription, and a
// mutually exclusive pair of breakout triggers.
func (e *engine) PrepareDay(ctx context.Context) (*types.DaySetup, error) {
	now := market.Now()

	if ok, reason := e.p.Calendar.IsTradingDay(now); !ok {
		return nil, fmt.Errorf("not a trading day: %s", reason)
	}
	if open, status := e.p.Calendar.Status(now); !open {
		if !(e.p.ForceOpen && e.p.Config.Mode == "DRY_RUN") {
			return nil, fmt.Errorf("market closed: %s", status)
		}
		logger.Warn(ctx, "Session gate overridden for dry run", "status", status)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos != nil {
		return nil, fmt.Errorf("position open in %s, analysis skipped", e.pos.state.Symbol)
	}
	if e.setup != nil && sameISTDay(e.setup.Date, now) {
		logger.Info(ctx, "Day setup already armed, skipping analysis", "atm", e.setup.ATMStrike)
		return e.setup, nil
	}

	spot := e.spotPrice(ctx)

	chainData, err := e.p.Chain.OptionChain(ctx, e.p.Config.Index.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch option chain: %w", err)
	}

	sel, err := chain.Select(ctx, chainData, spot, chain.Params{
		StrikeStep:        e.p.Config.Index.StrikeStep,
		MaxStrikeDistance: e.p.Config.Strategy.MaxStrikeDistance,
		MinPremium:        e.p.Config.Strategy.MinPremiumThreshold,
		BreakoutPct:       e.p.Config.Strategy.BreakoutPct,
		ExpiryLookahead:   e.p.Config.Strategy.ExpiryLookahead,
	})
	if err != nil {
		return nil, err
	}

	put := e.resolveLeg(ctx, sel.Put)
	call := e.resolveLeg(ctx, sel.Call)
	if put == nil && call == nil {
		return nil, fmt.Errorf("no selected leg resolves to a tradable contract")
	}

	var symbols []string
	for _, leg := range []*types.LegSetup{put, call} {
		if leg != nil {
			symbols = append(symbols, leg.Symbol)
		}
	}
	if err := e.p.Ticker.Subscribe(ctx, symbols); err != nil {
		return nil, fmt.Errorf("failed to subscribe selected legs: %w", err)
	}

	group := "breakout-" + istDate(now)
	for _, leg := range []*types.LegSetup{put, call} {
		if leg == nil {
			continue
		}
		ord, err := e.p.Orders.Place(ctx, gtt.Request{
			Symbol:       leg.Symbol,
			Side:         types.SideBuy,
			Qty:          e.p.Config.Strategy.LotSize,
			TriggerPrice: leg.Trigger,
			Tag:          "breakout",
			GroupID:      group,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to arm %s breakout trigger: %w", leg.OptionType, err)
		}
		logger.Info(ctx, "Armed breakout trigger",
			"symbol", leg.Symbol,
			"order_id", ord.ID,
			"baseline", leg.Baseline,
			"trigger", leg.Trigger,
			"oi", leg.OI,
		)
	}

	setup := &types.DaySetup{
		Date:      now,
		SpotPrice: sel.Spot,
		ATMStrike: sel.ATMStrike,
	}
	if put != nil {
		setup.Put = *put
		setup.Expiry = put.Expiry.Format("2006-01-02")
	}
	if call != nil {
		setup.Call = *call
		if setup.Expiry == "" {
			setup.Expiry = call.Expiry.Format("2006-01-02")
		}
	}

	e.setup = setup
	e.groupID = group
	e.nextScan = now

	logger.Info(ctx, "Day setup armed",
		"spot", sel.Spot,
		"atm", sel.ATMStrike,
		"expiry", setup.Expiry,
		"put", setup.Put.Symbol,
		"call", setup.Call.Symbol,
	)
	return setup, nil
}

// spotPrice fetches the index LTP. A failure falls back to the chain's
// own underlying value via strike selection.
func (e *engine) spotPrice(ctx context.Context) float64 {
	spot, err := e.p.Broker.LTP(ctx, e.p.Config.Index.SpotSymbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch spot price, falling back to chain underlying", err,
			"symbol", e.p.Config.Index.SpotSymbol)
		return 0
	}
	return spot
}

// resolveLeg fills in the broker symbol and instrument token for a
// selected strike. A leg with no tradable contract is dropped.
func (e *engine) resolveLeg(ctx context.Context, leg *types.LegSetup) *types.LegSetup {
	if leg == nil {
		return nil
	}
	inst, err := e.p.Broker.LookupOption(ctx, e.p.Config.Index.Name, leg.Expiry, leg.Strike, leg.OptionType)
	if err != nil {
		logger.ErrorWithErr(ctx, "Dropping leg, no tradable contract", err,
			"strike", leg.Strike,
			"option_type", leg.OptionType,
			"expiry", leg.Expiry.Format("2006-01-02"),
		)
		return nil
	}
	if inst.LotSize > 0 && inst.LotSize != e.p.Config.Strategy.LotSize {
		logger.Warn(ctx, "Configured lot size differs from instrument dump",
			"symbol", inst.Symbol,
			"configured", e.p.Config.Strategy.LotSize,
			"instrument", inst.LotSize,
		)
	}
	out := *leg
	out.Symbol = inst.Symbol
	out.Token = inst.Token
	return &out
}

// ResetDay clears the daily flag and armed triggers at IST midnight. An
// open position is never cleared here; the monitor owns its lifecycle.
func (e *engine) ResetDay(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos != nil {
		logger.Warn(ctx, "Daily reset with open position, keeping position state",
			"symbol", e.pos.state.Symbol)
	}
	e.setup = nil
	e.tradeDay = ""
	e.groupID = ""
	e.p.Orders.Reset(ctx)
	logger.Info(ctx, "Daily state reset, trading re-enabled")
}

// Shutdown reports open state on the way out. Positions are left to the
// broker's intraday auto square-off rather than force-closed here.
func (e *engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos != nil {
		logger.Warn(ctx, "Shutting down with open position",
			"symbol", e.pos.state.Symbol,
			"entry", e.pos.state.EntryPrice,
			"stop", e.pos.state.StopLoss,
			"target", e.pos.state.Target,
		)
	}
	logger.Info(ctx, "Engine shut down")
}

func sameISTDay(a, b time.Time) bool {
	ai, bi := a.In(market.IST), b.In(market.IST)
	return ai.Year() == bi.Year() && ai.YearDay() == bi.YearDay()
}

func istDate(t time.Time) string {
	return t.In(market.IST).Format("2006-01-02")
}

func roundTo(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(x*p) / p
}
