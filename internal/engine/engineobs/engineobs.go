package engineobs

import (
	"context"

	"oi-breakout-bot/internal/engine"
	"oi-breakout-bot/internal/interfaces"
	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/trace"
	"oi-breakout-bot/internal/types"
)

// observableEngine wraps an Engine with observability (logging & tracing)
type observableEngine struct {
	engine interfaces.Engine
}

// Compile-time interface check
var _ interfaces.Engine = (*observableEngine)(nil)

// Wrap wraps an engine with observability middleware
func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

// PrepareDay runs the morning analysis with observability
func (oe *observableEngine) PrepareDay(ctx context.Context) (*types.DaySetup, error) {
	ctx, span := trace.StartSpan(ctx, "engine.PrepareDay")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Running morning analysis")

	setup, err := oe.engine.PrepareDay(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Morning analysis failed", err)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Morning analysis complete",
		"spot", setup.SpotPrice,
		"atm_strike", setup.ATMStrike,
		"expiry", setup.Expiry,
		"call_symbol", setup.Call.Symbol,
		"call_trigger", setup.Call.Trigger,
		"put_symbol", setup.Put.Symbol,
		"put_trigger", setup.Put.Trigger,
	)
	return setup, nil
}

// Step runs one monitoring cycle with observability. Idle and scan
// cycles log at debug so the steady state stays quiet.
func (oe *observableEngine) Step(ctx context.Context) (*types.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()

	result, err := oe.engine.Step(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Engine step failed", err)
		return result, err
	}
	if result == nil {
		return nil, nil
	}

	switch result.State {
	case engine.StateEntered, engine.StateExited:
		logger.InfoSkip(ctx, 1, "Engine step complete",
			"state", result.State,
			"symbol", result.Symbol,
			"price", result.Price,
			"note", result.Note,
		)
	default:
		logger.DebugSkip(ctx, 1, "Engine step complete", "state", result.State)
	}
	return result, nil
}

// ResetDay clears daily state with observability
func (oe *observableEngine) ResetDay(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "engine.ResetDay")
	defer span.End()

	oe.engine.ResetDay(ctx)
	logger.InfoSkip(ctx, 1, "Daily state reset complete")
}

// Shutdown flushes open state with observability
func (oe *observableEngine) Shutdown(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "engine.Shutdown")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Shutting down engine")
	oe.engine.Shutdown(ctx)
	logger.InfoSkip(ctx, 1, "Engine shutdown complete")
}
