package decisionobs

import (
	"context"
	"time"

	"oi-breakout-bot/internal/interfaces"
	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/trace"
	"oi-breakout-bot/internal/types"
)

// observableRules wraps a Rules implementation with logging & tracing
type observableRules struct {
	rules interfaces.Rules
}

// Compile-time interface check
var _ interfaces.Rules = (*observableRules)(nil)

// Wrap wraps a rule set with observability middleware
func Wrap(rules interfaces.Rules) interfaces.Rules {
	return &observableRules{
		rules: rules,
	}
}

func (or *observableRules) PlanEntry(ctx context.Context, leg types.LegSetup, price float64) types.EntryPlan {
	ctx, span := trace.StartSpan(ctx, "rules.PlanEntry")
	defer span.End()

	plan := or.rules.PlanEntry(ctx, leg, price)
	if !plan.Enter {
		// Use InfoSkip(1) to report the actual caller, not this middleware wrapper
		logger.InfoSkip(ctx, 1, "Entry rejected",
			"symbol", leg.Symbol,
			"price", price,
			"reason", plan.Reason,
		)
		return plan
	}

	logger.InfoSkip(ctx, 1, "Entry planned",
		"symbol", leg.Symbol,
		"price", price,
		"qty", plan.Qty,
		"stop_loss", plan.StopLoss,
		"target", plan.Target,
		"margin", plan.Margin,
	)
	return plan
}

func (or *observableRules) CheckExit(ctx context.Context, pos types.PositionState, price float64, now time.Time) types.ExitDecision {
	ctx, span := trace.StartSpan(ctx, "rules.CheckExit")
	defer span.End()

	decision := or.rules.CheckExit(ctx, pos, price, now)
	if decision.Exit {
		logger.InfoSkip(ctx, 1, "Exit condition met",
			"symbol", pos.Symbol,
			"reason", decision.Reason,
			"exit_price", decision.Price,
			"observed_price", price,
		)
	}
	return decision
}

func (or *observableRules) Trail(ctx context.Context, pos types.PositionState, price float64) types.StopUpdate {
	ctx, span := trace.StartSpan(ctx, "rules.Trail")
	defer span.End()

	update := or.rules.Trail(ctx, pos, price)
	if update.Raised {
		logger.InfoSkip(ctx, 1, "Trailing stop raised",
			"symbol", pos.Symbol,
			"old_stop", pos.StopLoss,
			"new_stop", update.NewStop,
			"price", price,
		)
	} else {
		logger.DebugSkip(ctx, 1, "Trailing stop unchanged",
			"symbol", pos.Symbol,
			"stop", pos.StopLoss,
			"price", price,
		)
	}
	return update
}

func (or *observableRules) Deadline(entryTime time.Time) time.Time {
	return or.rules.Deadline(entryTime)
}
