package interfaces

import (
	"context"

	"oi-breakout-bot/internal/types"
)

type Engine interface {
	// PrepareDay runs the morning open-interest analysis and arms the
	// breakout triggers for both legs.
	PrepareDay(ctx context.Context) (*types.DaySetup, error)

	// Step runs one monitoring cycle: drain triggered orders, refresh
	// excursion stats, trail the stop, evaluate exits.
	Step(ctx context.Context) (*types.StepResult, error)

	// ResetDay clears the daily trade flag and armed state at midnight.
	ResetDay(ctx context.Context)

	// Shutdown flushes open state before exit.
	Shutdown(ctx context.Context)
}
