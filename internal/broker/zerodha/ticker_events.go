package zerodha

import (
	"context"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/types"
)

// setupEventHandlers configures all WebSocket event callbacks
func (tm *tickerManager) setupEventHandlers() {
	tm.ticker.OnConnect(tm.onConnect)
	tm.ticker.OnError(tm.onError)
	tm.ticker.OnClose(tm.onClose)
	tm.ticker.OnReconnect(tm.onReconnect)
	tm.ticker.OnNoReconnect(tm.onNoReconnect)
	tm.ticker.OnTick(tm.onTick)
	tm.ticker.OnOrderUpdate(tm.onOrderUpdate)
}

// Event handler implementations

func (tm *tickerManager) onConnect() {
	ctx := context.Background()
	logger.Info(ctx, "WebSocket connected successfully")

	// The server drops subscriptions on disconnect; replay them.
	tokens := tm.subscribedTokens()
	if len(tokens) == 0 {
		return
	}
	if err := tm.ticker.Subscribe(tokens); err != nil {
		logger.ErrorWithErr(ctx, "Failed to resubscribe after connect", err)
		return
	}
	if err := tm.ticker.SetMode(kiteticker.ModeFull, tokens); err != nil {
		logger.ErrorWithErr(ctx, "Failed to restore ticker mode after connect", err)
		return
	}
	logger.Info(ctx, "Resubscribed after connect", "tokens", len(tokens))
}

func (tm *tickerManager) onError(err error) {
	logger.ErrorWithErr(context.Background(), "WebSocket error occurred", err)
}

func (tm *tickerManager) onClose(code int, reason string) {
	logger.Warn(context.Background(), "WebSocket connection closed",
		"code", code,
		"reason", reason,
	)
}

func (tm *tickerManager) onReconnect(attempt int, delay time.Duration) {
	logger.Info(context.Background(), "WebSocket reconnecting",
		"attempt", attempt,
		"delay", delay,
	)
}

func (tm *tickerManager) onNoReconnect(attempt int) {
	logger.Warn(context.Background(), "WebSocket reconnection failed - giving up",
		"attempts", attempt,
	)
}

func (tm *tickerManager) onTick(tick models.Tick) {
	symbol := tm.mapper.symbol(tick.InstrumentToken)
	if symbol == "" {
		return
	}
	tm.hub.Ingest(convertTick(symbol, tick))
}

func (tm *tickerManager) onOrderUpdate(order kiteconnect.Order) {
	logger.Debug(context.Background(), "Order update received",
		"order_id", order.OrderID,
		"status", order.Status,
		"symbol", order.TradingSymbol,
	)
}

// convertTick translates a Kite tick into the hub's wire form. The OHLC
// close on a live tick is the previous session's close.
func convertTick(symbol string, tick models.Tick) types.Tick {
	return types.Tick{
		Symbol:    symbol,
		LTP:       tick.LastPrice,
		PrevClose: tick.OHLC.Close,
		Ts:        tick.Timestamp.Time,
	}
}
