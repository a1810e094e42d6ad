package interfaces

import (
	"context"
	"time"

	"oi-breakout-bot/internal/types"
)

// Broker is the order and quote surface. In DRY_RUN mode market data
// stays real while PlaceOrder is simulated.
type Broker interface {
	LTP(ctx context.Context, symbol string) (float64, error)

	// LookupOption resolves an index option contract to its tradable
	// symbol, instrument token and lot size.
	LookupOption(ctx context.Context, index string, expiry time.Time, strike int, optionType string) (types.OptionInstrument, error)

	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}
