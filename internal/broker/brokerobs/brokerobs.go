// Package brokerobs wraps a Broker with spans and logging. Order
// placement logs at INFO either way; quote lookups only log when debug
// output is on.
package brokerobs

import (
	"context"
	"fmt"
	"time"

	"oi-breakout-bot/internal/interfaces"
	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/trace"
	"oi-breakout-bot/internal/types"
)

type observableBroker struct {
	broker interfaces.Broker
}

var _ interfaces.Broker = (*observableBroker)(nil)

func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{broker: broker}
}

func (ob *observableBroker) LTP(ctx context.Context, symbol string) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.LTP")
	defer span.End()

	price, err := ob.broker.LTP(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch LTP", err, "symbol", symbol)
		return 0, err
	}

	logger.DebugSkip(ctx, 1, "LTP fetched", "symbol", symbol, "price", price)
	return price, nil
}

func (ob *observableBroker) LookupOption(ctx context.Context, index string, expiry time.Time, strike int, optionType string) (types.OptionInstrument, error) {
	ctx, span := trace.StartSpan(ctx, "broker.LookupOption")
	defer span.End()

	inst, err := ob.broker.LookupOption(ctx, index, expiry, strike, optionType)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to resolve option contract", err,
			"index", index,
			"strike", strike,
			"option_type", optionType,
		)
		return types.OptionInstrument{}, err
	}

	logger.InfoSkip(ctx, 1, "Resolved option contract",
		"symbol", inst.Symbol,
		"token", inst.Token,
		"lot_size", inst.LotSize,
	)
	return inst, nil
}

func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"qty", req.Qty,
		"tag", req.Tag,
	)

	resp, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
		)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed",
		"symbol", req.Symbol,
		"order_id", resp.OrderID,
		"status", resp.Status,
	)
	return resp, nil
}

func (ob *observableBroker) Start(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "broker.Start")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting broker")
	if err := ob.broker.Start(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to start broker", err)
		return fmt.Errorf("broker start failed: %w", err)
	}
	logger.InfoSkip(ctx, 1, "Broker started")
	return nil
}

func (ob *observableBroker) Stop(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "broker.Stop")
	defer span.End()

	ob.broker.Stop(ctx)
	logger.InfoSkip(ctx, 1, "Broker stopped")
}
