package interfaces

import (
	"context"
	"time"

	"oi-breakout-bot/internal/types"
)

// Rules is the strategy decision surface. Implementations are pure
// functions of their inputs so they can be exercised without a broker or
// live feed; the context exists for tracing only.
type Rules interface {
	// PlanEntry sizes and prices an entry for a leg whose premium has
	// reached its breakout level.
	PlanEntry(ctx context.Context, leg types.LegSetup, price float64) types.EntryPlan

	// CheckExit evaluates an open position against one price update, in
	// fixed order: stop-loss, target, holding-time limit.
	CheckExit(ctx context.Context, pos types.PositionState, price float64, now time.Time) types.ExitDecision

	// Trail proposes a raised stop for an open position, or nothing.
	Trail(ctx context.Context, pos types.PositionState, price float64) types.StopUpdate

	// Deadline is the holding-time limit for an entry at the given time.
	Deadline(entryTime time.Time) time.Time
}
