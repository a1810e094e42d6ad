// Package zerodha implements the broker surface on the Kite Connect
// API: REST quotes and orders plus a WebSocket tick stream that feeds
// the price hub. In DRY_RUN mode market data stays live and only order
// placement is simulated.
package zerodha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"oi-breakout-bot/internal/feed"
	"oi-breakout-bot/internal/interfaces"
	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/types"
)

const connectionWaitTime = 2 * time.Second

type Params struct {
	Mode        string // DRY_RUN or LIVE
	APIKey      string
	AccessToken string
	Exchange    string // NFO
	Index       string // NIFTY
}

type Zerodha struct {
	p      Params
	kc     *kiteconnect.Client
	mapper *instrumentMapper
	ticker interfaces.TickerManager

	isTickerInit bool
}

var _ interfaces.Broker = (*Zerodha)(nil)

func NewZerodha(p Params, hub *feed.Hub) *Zerodha {
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)

	mapper := newInstrumentMapper(kc, p.Exchange, p.Index)

	return &Zerodha{
		p:      p,
		kc:     kc,
		mapper: mapper,
		ticker: newTickerManager(p.APIKey, p.AccessToken, mapper, hub),
	}
}

// Ticker exposes the WebSocket subscription surface.
func (z *Zerodha) Ticker() interfaces.TickerManager {
	return z.ticker
}

// LTP fetches the last traded price over REST. Symbols without an
// exchange prefix are assumed to live on the configured exchange.
func (z *Zerodha) LTP(ctx context.Context, symbol string) (float64, error) {
	instrument := z.qualify(symbol)
	quotes, err := z.kc.GetLTP(instrument)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch LTP for %s: %w", instrument, err)
	}

	quote, ok := quotes[instrument]
	if !ok {
		return 0, fmt.Errorf("no quote returned for %s", instrument)
	}
	return quote.LastPrice, nil
}

// LookupOption resolves an option contract from the instrument dump.
func (z *Zerodha) LookupOption(ctx context.Context, index string, expiry time.Time, strike int, optionType string) (types.OptionInstrument, error) {
	if index != z.p.Index {
		return types.OptionInstrument{}, fmt.Errorf("instrument dump covers %s, not %s", z.p.Index, index)
	}
	return z.mapper.lookupOption(ctx, expiry, strike, optionType)
}

// PlaceOrder places an intraday market order, or simulates one in
// DRY_RUN mode.
func (z *Zerodha) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if z.p.Mode == "DRY_RUN" {
		resp := types.OrderResp{
			OrderID: fmt.Sprintf("SIM-%d", time.Now().UnixNano()),
			Status:  "SIMULATED",
			Message: "dry-run",
		}
		logger.Info(ctx, "Simulated order",
			"order_id", resp.OrderID,
			"symbol", req.Symbol,
			"side", req.Side,
			"qty", req.Qty,
		)
		return resp, nil
	}

	if z.p.APIKey == "" || z.p.AccessToken == "" {
		return types.OrderResp{}, errors.New("missing API key/access token")
	}

	transactionType := kiteconnect.TransactionTypeBuy
	if req.Side == types.SideSell {
		transactionType = kiteconnect.TransactionTypeSell
	}

	order, err := z.kc.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        z.p.Exchange,
		Tradingsymbol:   req.Symbol,
		Product:         kiteconnect.ProductMIS,
		OrderType:       kiteconnect.OrderTypeMarket,
		TransactionType: transactionType,
		Quantity:        req.Qty,
		Validity:        kiteconnect.ValidityDay,
		Tag:             req.Tag,
	})
	if err != nil {
		return types.OrderResp{}, fmt.Errorf("order placement failed for %s: %w", req.Symbol, err)
	}

	return types.OrderResp{
		OrderID: order.OrderID,
		Status:  "PLACED",
		Message: "ok",
	}, nil
}

// Start brings the WebSocket ticker up and waits for the connection to
// settle so the first Subscribe does not race it.
func (z *Zerodha) Start(ctx context.Context) error {
	if z.isTickerInit {
		return nil
	}

	if err := z.ticker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ticker manager: %w", err)
	}

	select {
	case <-time.After(connectionWaitTime):
	case <-ctx.Done():
		return ctx.Err()
	}

	z.isTickerInit = true
	return nil
}

func (z *Zerodha) Stop(ctx context.Context) {
	z.ticker.Stop(ctx)
	z.isTickerInit = false
}

func (z *Zerodha) qualify(symbol string) string {
	if strings.Contains(symbol, ":") {
		return symbol
	}
	return z.p.Exchange + ":" + symbol
}
