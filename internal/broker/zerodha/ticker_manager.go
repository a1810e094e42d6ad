package zerodha

import (
	"context"
	"fmt"
	"sync"

	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"oi-breakout-bot/internal/feed"
	"oi-breakout-bot/internal/interfaces"
	"oi-breakout-bot/internal/logger"
)

// tickerManager wraps the Kite WebSocket ticker. Incoming ticks are
// translated and pushed into the feed hub; subscriptions are tracked by
// trading symbol and replayed after every (re)connect.
type tickerManager struct {
	apiKey      string
	accessToken string
	mapper      *instrumentMapper
	hub         *feed.Hub

	ticker *kiteticker.Ticker

	mu         sync.Mutex
	subscribed map[string]uint32 // symbol -> token
}

var _ interfaces.TickerManager = (*tickerManager)(nil)

func (tm *tickerManager) Start(ctx context.Context) error {
	tm.ticker = kiteticker.New(tm.apiKey, tm.accessToken)
	tm.ticker.SetAutoReconnect(true)

	tm.setupEventHandlers()

	go func() {
		logger.Info(ctx, "Starting Zerodha WebSocket ticker")
		tm.ticker.Serve()
	}()

	return nil
}

func (tm *tickerManager) Stop(ctx context.Context) {
	if tm.ticker != nil {
		logger.Info(ctx, "Stopping Zerodha WebSocket ticker")
		tm.ticker.Stop()
	}
}

// Subscribe resolves symbols to instrument tokens and opens full-mode
// streams for them.
func (tm *tickerManager) Subscribe(ctx context.Context, symbols []string) error {
	tokens := make([]uint32, 0, len(symbols))

	tm.mu.Lock()
	for _, symbol := range symbols {
		token, ok := tm.mapper.token(symbol)
		if !ok {
			tm.mu.Unlock()
			return fmt.Errorf("unknown instrument %s", symbol)
		}
		tm.subscribed[symbol] = token
		tokens = append(tokens, token)
	}
	tm.mu.Unlock()

	if err := tm.ticker.Subscribe(tokens); err != nil {
		return fmt.Errorf("failed to subscribe to symbols: %w", err)
	}
	if err := tm.ticker.SetMode(kiteticker.ModeFull, tokens); err != nil {
		return fmt.Errorf("failed to set ticker mode: %w", err)
	}

	logger.Info(ctx, "Subscribed to live data", "symbols", symbols, "count", len(symbols))
	return nil
}

// Unsubscribe stops streaming the given symbols. Unknown symbols are
// ignored.
func (tm *tickerManager) Unsubscribe(ctx context.Context, symbols []string) error {
	tokens := make([]uint32, 0, len(symbols))

	tm.mu.Lock()
	for _, symbol := range symbols {
		token, ok := tm.subscribed[symbol]
		if !ok {
			continue
		}
		delete(tm.subscribed, symbol)
		tokens = append(tokens, token)
	}
	tm.mu.Unlock()

	if len(tokens) == 0 {
		return nil
	}
	if err := tm.ticker.Unsubscribe(tokens); err != nil {
		return fmt.Errorf("failed to unsubscribe from symbols: %w", err)
	}

	logger.Info(ctx, "Unsubscribed from live data", "symbols", symbols)
	return nil
}

// subscribedTokens snapshots the tokens that should be streaming, for
// replay after a reconnect.
func (tm *tickerManager) subscribedTokens() []uint32 {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tokens := make([]uint32, 0, len(tm.subscribed))
	for _, token := range tm.subscribed {
		tokens = append(tokens, token)
	}
	return tokens
}
