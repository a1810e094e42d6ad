package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oi-breakout-bot/internal/charges"
	"oi-breakout-bot/internal/decision"
	"oi-breakout-bot/internal/gtt"
	"oi-breakout-bot/internal/nsedata"
	"oi-breakout-bot/internal/store"
	"oi-breakout-bot/internal/tradelog"
	"oi-breakout-bot/internal/types"
)

const (
	callSym = "NIFTY25SEP24800CE"
	putSym  = "NIFTY25SEP24600PE"
)

type fakeBroker struct {
	spot   float64
	orders []types.OrderReq
}

func (b *fakeBroker) LTP(context.Context, string) (float64, error) { return b.spot, nil }

func (b *fakeBroker) LookupOption(_ context.Context, _ string, expiry time.Time, strike int, optionType string) (types.OptionInstrument, error) {
	return types.OptionInstrument{
		Symbol:  fmt.Sprintf("NIFTY25SEP%d%s", strike, optionType),
		Token:   uint32(strike),
		LotSize: 75,
		Strike:  strike,
		Expiry:  expiry,
	}, nil
}

func (b *fakeBroker) PlaceOrder(_ context.Context, req types.OrderReq) (types.OrderResp, error) {
	b.orders = append(b.orders, req)
	return types.OrderResp{OrderID: fmt.Sprintf("SIM-%d", len(b.orders)), Status: "COMPLETE"}, nil
}

func (b *fakeBroker) Start(context.Context) error { return nil }
func (b *fakeBroker) Stop(context.Context)        {}

type fakeTicker struct {
	subs   [][]string
	unsubs [][]string
}

func (tk *fakeTicker) Start(context.Context) error { return nil }
func (tk *fakeTicker) Stop(context.Context)        {}

func (tk *fakeTicker) Subscribe(_ context.Context, symbols []string) error {
	tk.subs = append(tk.subs, symbols)
	return nil
}

func (tk *fakeTicker) Unsubscribe(_ context.Context, symbols []string) error {
	tk.unsubs = append(tk.unsubs, symbols)
	return nil
}

type fakePrices struct {
	ltps map[string]float64
}

func (p *fakePrices) set(symbol string, ltp float64) { p.ltps[symbol] = ltp }

func (p *fakePrices) Latest(_ context.Context, symbol string) (types.PriceRecord, bool) {
	ltp, ok := p.ltps[symbol]
	if !ok {
		return types.PriceRecord{}, false
	}
	return types.PriceRecord{Symbol: symbol, LTP: ltp, UpdatedAt: time.Now()}, true
}

type fakeChain struct {
	chain *nsedata.Chain
	err   error
}

func (c *fakeChain) OptionChain(context.Context, string) (*nsedata.Chain, error) {
	return c.chain, c.err
}

type fakeGate struct {
	tradingDay bool
	open       bool
}

func (g *fakeGate) IsTradingDay(time.Time) (bool, string) { return g.tradingDay, "weekend" }
func (g *fakeGate) Status(time.Time) (bool, string)       { return g.open, "market closed" }

func testChain() *nsedata.Chain {
	exp := time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC)
	return &nsedata.Chain{
		Underlying:  24712.5,
		ExpiryDates: []time.Time{exp},
		Rows: []nsedata.Row{
			{Strike: 24800, Expiry: exp, OptionType: "CE", LastPrice: 104.6, OpenInterest: 5_000_000},
			{Strike: 24900, Expiry: exp, OptionType: "CE", LastPrice: 61.3, OpenInterest: 3_200_000},
			{Strike: 24600, Expiry: exp, OptionType: "PE", LastPrice: 110.2, OpenInterest: 4_500_000},
			{Strike: 24500, Expiry: exp, OptionType: "PE", LastPrice: 72.4, OpenInterest: 2_100_000},
		},
		FetchedAt: time.Now(),
	}
}

func rulesFromConfig(cfg *store.Config) decision.Params {
	return decision.Params{
		StoplossPct:       cfg.Strategy.StoplossPct,
		RiskRewardRatio:   cfg.Strategy.RiskRewardRatio,
		MaxHoldingMinutes: cfg.Strategy.MaxHoldingMinutes,
		MinPremium:        cfg.Strategy.MinPremiumThreshold,
		Qty:               cfg.Strategy.LotSize,
		Trailing: decision.TrailingParams{
			Enabled:             cfg.Strategy.Trailing.Enabled,
			Mode:                cfg.Strategy.Trailing.Mode,
			Pct:                 cfg.Strategy.Trailing.Pct,
			ActivationProfitPct: cfg.Strategy.Trailing.ActivationProfitPct,
			LockFraction:        cfg.Strategy.Trailing.LockFraction,
		},
	}
}

type rig struct {
	cfg     *store.Config
	broker  *fakeBroker
	ticker  *fakeTicker
	prices  *fakePrices
	gate    *fakeGate
	orders  *gtt.Manager
	history *tradelog.History
	eng     *engine
}

func newRig(t *testing.T, mutate ...func(*Params)) *rig {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())

	cfg := store.Default()
	cfg.Feed.BreakoutScanSeconds = 0
	cfg.Feed.MonitorSeconds = 0

	history, err := tradelog.NewHistory(filepath.Join(t.TempDir(), "trade_history.csv"))
	require.NoError(t, err)

	r := &rig{
		cfg:     cfg,
		broker:  &fakeBroker{spot: 24712.5},
		ticker:  &fakeTicker{},
		prices:  &fakePrices{ltps: map[string]float64{}},
		gate:    &fakeGate{tradingDay: true, open: true},
		orders:  gtt.NewManager(24 * time.Hour),
		history: history,
	}
	p := Params{
		Config:   cfg,
		Broker:   r.broker,
		Ticker:   r.ticker,
		Rules:    decision.New(rulesFromConfig(cfg)),
		Prices:   r.prices,
		Orders:   r.orders,
		Chain:    &fakeChain{chain: testChain()},
		Calendar: r.gate,
		History:  history,
	}
	for _, m := range mutate {
		m(&p)
	}
	eng, err := New(p)
	require.NoError(t, err)
	r.eng = eng.(*engine)
	return r
}

// arm runs the morning analysis; enter pushes the call leg through its
// breakout level and steps once.
func (r *rig) arm(t *testing.T) *types.DaySetup {
	t.Helper()
	setup, err := r.eng.PrepareDay(context.Background())
	require.NoError(t, err)
	require.NotNil(t, setup)
	return setup
}

func (r *rig) enter(t *testing.T) *types.StepResult {
	t.Helper()
	r.arm(t)
	r.prices.set(callSym, 116.0)
	res, err := r.eng.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateEntered, res.State)
	return res
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
}

func TestPrepareDayArmsBothLegs(t *testing.T) {
	r := newRig(t)
	setup := r.arm(t)

	assert.Equal(t, 24712.5, setup.SpotPrice)
	assert.Equal(t, 24700, setup.ATMStrike)
	assert.Equal(t, "2025-09-30", setup.Expiry)

	assert.Equal(t, callSym, setup.Call.Symbol)
	assert.Equal(t, 104.6, setup.Call.Baseline)
	assert.Equal(t, 115.1, setup.Call.Trigger)
	assert.Equal(t, putSym, setup.Put.Symbol)
	assert.Equal(t, 110.2, setup.Put.Baseline)
	assert.Equal(t, 121.2, setup.Put.Trigger)

	require.Len(t, r.ticker.subs, 1)
	assert.Equal(t, []string{putSym, callSym}, r.ticker.subs[0])

	pending := r.orders.OrdersByStatus(gtt.StatusPending)
	require.Len(t, pending, 2)
	for _, ord := range pending {
		assert.Equal(t, types.SideBuy, ord.Side)
		assert.Equal(t, 75, ord.Qty)
		assert.True(t, strings.HasPrefix(ord.GroupID, "breakout-"))
	}
}

func TestPrepareDayIsIdempotentWithinDay(t *testing.T) {
	r := newRig(t)
	first := r.arm(t)
	second := r.arm(t)

	assert.Same(t, first, second)
	assert.Len(t, r.orders.OrdersByStatus(gtt.StatusPending), 2)
	assert.Len(t, r.ticker.subs, 1)
}

func TestPrepareDayRefusesNonTradingDay(t *testing.T) {
	r := newRig(t)
	r.gate.tradingDay = false

	_, err := r.eng.PrepareDay(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a trading day")
}

func TestPrepareDayClosedMarketNeedsForce(t *testing.T) {
	r := newRig(t)
	r.gate.open = false
	_, err := r.eng.PrepareDay(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market closed")

	forced := newRig(t, func(p *Params) { p.ForceOpen = true })
	forced.gate.open = false
	setup, err := forced.eng.PrepareDay(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, setup)
}

func TestStepIdlesWithoutSetup(t *testing.T) {
	r := newRig(t)
	res, err := r.eng.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, res.State)
}

func TestStepScansWithoutTrigger(t *testing.T) {
	r := newRig(t)
	r.arm(t)
	r.prices.set(callSym, 110.0) // below the 115.1 breakout level
	r.prices.set(putSym, 100.0)

	res, err := r.eng.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateScan, res.State)
	assert.Empty(t, r.broker.orders)
	assert.Len(t, r.orders.OrdersByStatus(gtt.StatusPending), 2)
}

func TestStepEntersOnCallBreakout(t *testing.T) {
	r := newRig(t)
	res := r.enter(t)

	assert.Equal(t, callSym, res.Symbol)
	assert.Equal(t, 116.0, res.Price)

	require.Len(t, r.broker.orders, 1)
	assert.Equal(t, types.OrderReq{Symbol: callSym, Side: types.SideBuy, Qty: 75, Tag: "breakout"}, r.broker.orders[0])

	// The sibling trigger is cancelled by the group and pruned.
	assert.Len(t, r.orders.OrdersByStatus(gtt.StatusTriggered), 1)
	assert.Empty(t, r.orders.OrdersByStatus(gtt.StatusPending))
	require.Len(t, r.ticker.unsubs, 1)
	assert.Equal(t, []string{putSym}, r.ticker.unsubs[0])

	require.Equal(t, 1, r.history.Len())
	rec := r.history.Records()[0]
	assert.Equal(t, "NIFTY", rec.Index)
	assert.Equal(t, callSym, rec.Symbol)
	assert.Equal(t, types.SideBuy, rec.Direction)
	assert.Equal(t, 116.0, rec.EntryPrice)
	assert.Equal(t, 92.8, rec.StopLoss)
	assert.Equal(t, 162.4, rec.Target)
	assert.Equal(t, 75, rec.Qty)
	assert.Equal(t, 8700.0, rec.Margin)
	assert.True(t, rec.ExitTime.IsZero())

	next, err := r.eng.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateMonitor, next.State)
}

func TestStepExitsAtTarget(t *testing.T) {
	r := newRig(t)
	r.enter(t)

	r.prices.set(callSym, 163.0)
	res, err := r.eng.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateExited, res.State)
	assert.Equal(t, types.ExitTarget, res.Note)
	assert.Equal(t, 162.4, res.Price)

	require.Len(t, r.broker.orders, 2)
	assert.Equal(t, types.SideSell, r.broker.orders[1].Side)
	assert.Equal(t, types.ExitTarget, r.broker.orders[1].Tag)

	rec := r.history.Records()[0]
	assert.Equal(t, 162.4, rec.ExitPrice)
	assert.Equal(t, types.ExitTarget, rec.ExitReason)
	assert.False(t, rec.ExitTime.IsZero())

	// The stop trailed to entry + half the open profit before the target hit.
	assert.Equal(t, 139.5, rec.TrailingSL)
	assert.InDelta(t, 3525.0, rec.MaxUp, 0.005)
	assert.InDelta(t, 40.52, rec.MaxUpPct, 0.005)
	assert.Zero(t, rec.MaxDown)

	total, _ := charges.RoundTrip(116.0, 162.4, 75, r.cfg.Charges.State)
	gross := (162.4 - 116.0) * 75
	assert.InDelta(t, gross-total, rec.PnL, 0.01)
	assert.InDelta(t, (gross-total)/8700*100, rec.PctGain, 0.01)

	// The position symbol is dropped from the feed after the exit.
	require.Len(t, r.ticker.unsubs, 2)
	assert.Equal(t, []string{callSym}, r.ticker.unsubs[1])
}

func TestStepExitsAtStoploss(t *testing.T) {
	r := newRig(t)
	r.enter(t)

	r.prices.set(callSym, 90.0)
	res, err := r.eng.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateExited, res.State)
	assert.Equal(t, types.ExitStoploss, res.Note)
	assert.Equal(t, 92.8, res.Price)

	rec := r.history.Records()[0]
	assert.Equal(t, 92.8, rec.ExitPrice)
	assert.Equal(t, types.ExitStoploss, rec.ExitReason)
	assert.InDelta(t, -1950.0, rec.MaxDown, 0.005)
	assert.InDelta(t, -22.41, rec.MaxDownPct, 0.005)
	assert.Zero(t, rec.MaxUp)
	assert.Less(t, rec.PnL, 0.0)
}

func TestStepExitsOnSessionEnd(t *testing.T) {
	r := newRig(t)
	r.enter(t)

	r.gate.open = false
	res, err := r.eng.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateExited, res.State)
	assert.Equal(t, types.ExitMarketClose, res.Note)
	assert.Equal(t, 116.0, res.Price)

	rec := r.history.Records()[0]
	assert.Equal(t, types.ExitMarketClose, rec.ExitReason)
	assert.Equal(t, 116.0, rec.ExitPrice)
}

func TestDailyLimitBlocksSecondEntry(t *testing.T) {
	r := newRig(t)
	r.enter(t)

	r.prices.set(callSym, 163.0)
	_, err := r.eng.Step(context.Background())
	require.NoError(t, err)

	// Flat again, but the daily flag holds until the midnight reset.
	r.prices.set(putSym, 130.0)
	res, err := r.eng.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, res.State)
	assert.Len(t, r.broker.orders, 2)
}

func TestResetDayReenablesTrading(t *testing.T) {
	r := newRig(t)
	r.enter(t)
	r.prices.set(callSym, 163.0)
	_, err := r.eng.Step(context.Background())
	require.NoError(t, err)

	r.eng.ResetDay(context.Background())
	assert.Empty(t, r.eng.tradeDay)
	assert.Nil(t, r.eng.setup)
	assert.Empty(t, r.orders.OrdersByStatus(gtt.StatusTriggered))

	r.arm(t)
	assert.Len(t, r.orders.OrdersByStatus(gtt.StatusPending), 2)
}

func TestPrepareDayRefusesWithOpenPosition(t *testing.T) {
	r := newRig(t)
	r.enter(t)

	_, err := r.eng.PrepareDay(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position open")
}

func TestRejectedEntryConsumesTrigger(t *testing.T) {
	r := newRig(t, func(p *Params) {
		params := rulesFromConfig(store.Default())
		params.MinPremium = 150
		p.Rules = decision.New(params)
	})
	r.arm(t)
	r.prices.set(callSym, 116.0)

	res, err := r.eng.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateScan, res.State)
	assert.Equal(t, "trigger without entry", res.Note)

	assert.Empty(t, r.broker.orders)
	assert.Zero(t, r.history.Len())
	assert.Empty(t, r.eng.tradeDay)

	// Both triggers are gone: one fired and was rejected, the sibling was
	// cancelled by the group. The day stays flat.
	assert.Empty(t, r.orders.OrdersByStatus(gtt.StatusPending))
	res, err = r.eng.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateScan, res.State)
}

func TestShutdownLeavesOpenPositionAlone(t *testing.T) {
	r := newRig(t)
	r.enter(t)

	r.eng.Shutdown(context.Background())
	assert.NotNil(t, r.eng.pos)
	assert.Len(t, r.broker.orders, 1)
}

func TestExcursionTracksBothSides(t *testing.T) {
	r := newRig(t)
	r.enter(t)

	// Down first, then up: both extremes are kept independently.
	r.prices.set(callSym, 110.0)
	_, err := r.eng.Step(context.Background())
	require.NoError(t, err)

	r.prices.set(callSym, 130.0)
	_, err = r.eng.Step(context.Background())
	require.NoError(t, err)

	st := r.eng.pos.state
	assert.InDelta(t, -450.0, st.MaxDown, 0.005)
	assert.InDelta(t, 1050.0, st.MaxUp, 0.005)
	assert.InDelta(t, -5.17, st.MaxDownPct, 0.01)
}
