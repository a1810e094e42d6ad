package engine

import (
	"errors"

	"oi-breakout-bot/internal/interfaces"
)

// New wires a trading engine from its dependencies. All of them are
// required except ForceOpen.
func New(p Params) (interfaces.Engine, error) {
	switch {
	case p.Config == nil:
		return nil, errors.New("engine: config is required")
	case p.Broker == nil:
		return nil, errors.New("engine: broker is required")
	case p.Ticker == nil:
		return nil, errors.New("engine: ticker manager is required")
	case p.Rules == nil:
		return nil, errors.New("engine: decision rules are required")
	case p.Prices == nil:
		return nil, errors.New("engine: price source is required")
	case p.Orders == nil:
		return nil, errors.New("engine: order manager is required")
	case p.Chain == nil:
		return nil, errors.New("engine: chain fetcher is required")
	case p.Calendar == nil:
		return nil, errors.New("engine: session calendar is required")
	case p.History == nil:
		return nil, errors.New("engine: trade history is required")
	}
	return &engine{p: p}, nil
}
