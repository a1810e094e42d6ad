// Package decision holds the strategy's entry, exit and trailing-stop
// rules as pure functions of price and position state.
package decision

import (
	"context"
	"fmt"
	"math"
	"time"

	"oi-breakout-bot/internal/interfaces"
	"oi-breakout-bot/internal/types"
)

// TrailingParams selects and tunes the trailing-stop variant.
//
// PCT trails the stop a fixed percentage below price, never below the
// original stop. STEP waits for the activation profit, then locks in a
// fraction of the open profit.
type TrailingParams struct {
	Enabled             bool
	Mode                string // "PCT" or "STEP"
	Pct                 float64
	ActivationProfitPct float64
	LockFraction        float64
}

type Params struct {
	StoplossPct       float64
	RiskRewardRatio   float64
	MaxHoldingMinutes int
	MinPremium        float64
	Qty               int
	Trailing          TrailingParams
}

type rules struct {
	p Params
}

var _ interfaces.Rules = (*rules)(nil)

// New returns the rule set for the given parameters.
func New(p Params) interfaces.Rules {
	return &rules{p: p}
}

// Levels derives the stop-loss and target from an entry price: the stop
// sits stoplossPct below entry, the target rewards the risked amount
// riskReward times. Both are rounded to one decimal, matching exchange
// tick granularity on option premiums.
func Levels(entry, stoplossPct, riskReward float64) (stop, target float64) {
	stop = roundTo(entry*(1-stoplossPct/100), 1)
	target = roundTo(entry+(entry-stop)*riskReward, 1)
	return stop, target
}

// BreakoutLevel is the premium that arms a leg: baseline grown by
// breakoutPct, rounded to one decimal.
func BreakoutLevel(baseline, breakoutPct float64) float64 {
	return roundTo(baseline*(1+breakoutPct/100), 1)
}

func (r *rules) PlanEntry(_ context.Context, leg types.LegSetup, price float64) types.EntryPlan {
	if price < leg.Trigger {
		return types.EntryPlan{
			Reason: fmt.Sprintf("premium %.2f below breakout level %.2f", price, leg.Trigger),
		}
	}
	if price < r.p.MinPremium {
		return types.EntryPlan{
			Reason: fmt.Sprintf("premium %.2f below threshold %.2f", price, r.p.MinPremium),
		}
	}
	stop, target := Levels(price, r.p.StoplossPct, r.p.RiskRewardRatio)
	return types.EntryPlan{
		Enter:    true,
		Qty:      r.p.Qty,
		StopLoss: stop,
		Target:   target,
		Margin:   price * float64(r.p.Qty),
	}
}

func (r *rules) CheckExit(_ context.Context, pos types.PositionState, price float64, now time.Time) types.ExitDecision {
	// Exits fire at the defined level, not the observed price.
	if price <= pos.StopLoss {
		return types.ExitDecision{Exit: true, Reason: types.ExitStoploss, Price: pos.StopLoss}
	}
	if price >= pos.Target {
		return types.ExitDecision{Exit: true, Reason: types.ExitTarget, Price: pos.Target}
	}
	if !now.Before(pos.Deadline) {
		return types.ExitDecision{Exit: true, Reason: types.ExitTime, Price: price}
	}
	return types.ExitDecision{}
}

func (r *rules) Trail(_ context.Context, pos types.PositionState, price float64) types.StopUpdate {
	t := r.p.Trailing
	if !t.Enabled {
		return types.StopUpdate{}
	}

	switch t.Mode {
	case "PCT":
		potential := price * (1 - t.Pct/100)
		// Never trail below the original stop, and only ever upward.
		if potential > pos.StopLoss && potential > pos.OriginalStop {
			return types.StopUpdate{Raised: true, NewStop: roundTo(potential, 3)}
		}
	case "STEP":
		if pos.EntryPrice <= 0 {
			return types.StopUpdate{}
		}
		pnlPct := (price - pos.EntryPrice) / pos.EntryPrice * 100
		if pnlPct < t.ActivationProfitPct {
			return types.StopUpdate{}
		}
		if price-pos.EntryPrice*(1+t.ActivationProfitPct/100) <= 0 {
			return types.StopUpdate{}
		}
		newStop := pos.EntryPrice + t.LockFraction*(price-pos.EntryPrice)
		if newStop > pos.StopLoss {
			return types.StopUpdate{Raised: true, NewStop: roundTo(newStop, 2)}
		}
	}
	return types.StopUpdate{}
}

// Excursion folds one price observation into the position's running
// max-favourable and max-adverse stats. Values only ever widen. Amounts
// are position-level rupees; percentages are taken at the same moment.
func Excursion(pos types.PositionState, price float64) types.PositionState {
	if pos.EntryPrice <= 0 || pos.Qty <= 0 {
		return pos
	}
	pnl := (price - pos.EntryPrice) * float64(pos.Qty)
	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if pnl > 0 && pnl > pos.MaxUp {
		pos.MaxUp = pnl
		pos.MaxUpPct = pnlPct
	}
	if pnl < 0 && pnl < pos.MaxDown {
		pos.MaxDown = pnl
		pos.MaxDownPct = pnlPct
	}
	return pos
}

// Deadline computes the holding-time limit for an entry.
func (r *rules) Deadline(entryTime time.Time) time.Time {
	return entryTime.Add(time.Duration(r.p.MaxHoldingMinutes) * time.Minute)
}

func roundTo(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(x*p) / p
}
