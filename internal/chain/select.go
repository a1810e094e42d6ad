// Package chain turns an option chain snapshot into the day's leg
// setup: for each side, the strike carrying the most open interest near
// ATM whose premium clears the minimum threshold.
package chain

import (
	"context"
	"fmt"
	"math"
	"sort"

	"oi-breakout-bot/internal/decision"
	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/nsedata"
	"oi-breakout-bot/internal/types"
)

// Params control strike selection.
type Params struct {
	StrikeStep        int     // strike grid, 100 for NIFTY
	MaxStrikeDistance int     // strikes further than this from ATM are ignored
	MinPremium        float64 // legs below this premium are skipped
	BreakoutPct       float64
	ExpiryLookahead   int // how many expiries to walk before giving up
}

// Selection is the outcome of the morning analysis. A nil leg means no
// qualifying strike was found on that side.
type Selection struct {
	Spot      float64
	ATMStrike int
	Put       *types.LegSetup
	Call      *types.LegSetup
}

// ATMStrike rounds the spot price to the strike grid. Midpoints round
// to the even strike.
func ATMStrike(spot float64, step int) int {
	return int(math.RoundToEven(spot/float64(step))) * step
}

// Select picks the put and call legs from a chain snapshot. Each side
// walks expiries independently until a qualifying strike appears. An
// error is returned only when neither side qualifies.
func Select(ctx context.Context, c *nsedata.Chain, spot float64, p Params) (*Selection, error) {
	if spot <= 0 {
		spot = c.Underlying
	}
	sel := &Selection{
		Spot:      spot,
		ATMStrike: ATMStrike(spot, p.StrikeStep),
	}
	logger.Info(ctx, "Analyzing option chain",
		"spot", sel.Spot,
		"atm_strike", sel.ATMStrike,
		"max_distance", p.MaxStrikeDistance,
		"min_premium", p.MinPremium,
	)

	sel.Put = selectLeg(ctx, c, "PE", sel.ATMStrike, p)
	sel.Call = selectLeg(ctx, c, "CE", sel.ATMStrike, p)

	if sel.Put == nil && sel.Call == nil {
		return nil, fmt.Errorf("no strikes within %d of ATM %d with premium >= %.2f",
			p.MaxStrikeDistance, sel.ATMStrike, p.MinPremium)
	}
	return sel, nil
}

// selectLeg walks expiries for one side, returning the highest-OI
// qualifying strike of the first expiry that has one.
func selectLeg(ctx context.Context, c *nsedata.Chain, optionType string, atm int, p Params) *types.LegSetup {
	lookahead := p.ExpiryLookahead
	if lookahead <= 0 {
		lookahead = 1
	}
	for idx := 0; idx < lookahead && idx < len(c.ExpiryDates); idx++ {
		expiry := c.ExpiryDates[idx]
		candidates := filterRows(c.RowsForExpiry(expiry), optionType, atm, p.MaxStrikeDistance)
		if len(candidates) == 0 {
			continue
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].OpenInterest > candidates[j].OpenInterest
		})

		for _, row := range candidates {
			if row.LastPrice < p.MinPremium {
				continue
			}
			leg := &types.LegSetup{
				Strike:     row.Strike,
				OptionType: optionType,
				OI:         row.OpenInterest,
				Baseline:   row.LastPrice,
				Trigger:    decision.BreakoutLevel(row.LastPrice, p.BreakoutPct),
				Expiry:     expiry,
				ExpiryIdx:  idx,
			}
			logger.Info(ctx, "Selected leg",
				"option_type", optionType,
				"strike", leg.Strike,
				"open_interest", leg.OI,
				"premium", leg.Baseline,
				"breakout_level", leg.Trigger,
				"expiry_idx", idx,
			)
			return leg
		}
		logger.Info(ctx, "No strike clears premium threshold, walking to next expiry",
			"option_type", optionType, "expiry_idx", idx)
	}

	logger.Warn(ctx, "No qualifying strike found", "option_type", optionType)
	return nil
}

func filterRows(rows []nsedata.Row, optionType string, atm, maxDistance int) []nsedata.Row {
	var out []nsedata.Row
	for _, row := range rows {
		if row.OptionType != optionType {
			continue
		}
		if row.Strike < atm-maxDistance || row.Strike > atm+maxDistance {
			continue
		}
		out = append(out, row)
	}
	return out
}
