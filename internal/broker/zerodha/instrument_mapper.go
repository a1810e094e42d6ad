package zerodha

import (
	"context"
	"fmt"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"oi-breakout-bot/internal/logger"
	"oi-breakout-bot/internal/types"
)

// optionKey identifies one option contract within an index.
type optionKey struct {
	expiry     string // yyyy-mm-dd
	strike     int
	optionType string
}

// instrumentMapper holds the day's NFO instrument dump for one index:
// contract lookup by expiry/strike/type plus symbol and token mappings
// for the ticker. The dump refreshes once per day.
type instrumentMapper struct {
	kc       *kiteconnect.Client
	exchange string
	index    string

	mu            sync.RWMutex
	loadedOn      string // yyyy-mm-dd of last load
	options       map[optionKey]types.OptionInstrument
	symbolToToken map[string]uint32
	tokenToSymbol map[uint32]string
}

func newInstrumentMapper(kc *kiteconnect.Client, exchange, index string) *instrumentMapper {
	return &instrumentMapper{
		kc:            kc,
		exchange:      exchange,
		index:         index,
		options:       make(map[optionKey]types.OptionInstrument),
		symbolToToken: make(map[string]uint32),
		tokenToSymbol: make(map[uint32]string),
	}
}

// ensureLoaded fetches the instrument dump if it has not been loaded
// today. The dump is regenerated by the exchange every morning.
func (im *instrumentMapper) ensureLoaded(ctx context.Context) error {
	today := time.Now().Format("2006-01-02")

	im.mu.RLock()
	loaded := im.loadedOn == today
	im.mu.RUnlock()
	if loaded {
		return nil
	}

	instruments, err := im.kc.GetInstrumentsByExchange(im.exchange)
	if err != nil {
		return fmt.Errorf("failed to fetch %s instruments: %w", im.exchange, err)
	}

	options := make(map[optionKey]types.OptionInstrument)
	symbolToToken := make(map[string]uint32)
	tokenToSymbol := make(map[uint32]string)

	for _, inst := range instruments {
		if inst.Name != im.index {
			continue
		}
		if inst.InstrumentType != "CE" && inst.InstrumentType != "PE" {
			continue
		}
		token := uint32(inst.InstrumentToken)
		key := optionKey{
			expiry:     inst.Expiry.Time.Format("2006-01-02"),
			strike:     int(inst.StrikePrice),
			optionType: inst.InstrumentType,
		}
		options[key] = types.OptionInstrument{
			Symbol:  inst.Tradingsymbol,
			Token:   token,
			LotSize: int(inst.LotSize),
			Strike:  int(inst.StrikePrice),
			Expiry:  inst.Expiry.Time,
		}
		symbolToToken[inst.Tradingsymbol] = token
		tokenToSymbol[token] = inst.Tradingsymbol
	}

	if len(options) == 0 {
		return fmt.Errorf("no %s option contracts in %s instrument dump", im.index, im.exchange)
	}

	im.mu.Lock()
	im.loadedOn = today
	im.options = options
	im.symbolToToken = symbolToToken
	im.tokenToSymbol = tokenToSymbol
	im.mu.Unlock()

	logger.Info(ctx, "Loaded instrument dump",
		"exchange", im.exchange,
		"index", im.index,
		"contracts", len(options),
	)
	return nil
}

// lookupOption resolves an option contract by expiry date, strike, and
// type.
func (im *instrumentMapper) lookupOption(ctx context.Context, expiry time.Time, strike int, optionType string) (types.OptionInstrument, error) {
	if err := im.ensureLoaded(ctx); err != nil {
		return types.OptionInstrument{}, err
	}

	key := optionKey{
		expiry:     expiry.Format("2006-01-02"),
		strike:     strike,
		optionType: optionType,
	}
	im.mu.RLock()
	inst, ok := im.options[key]
	im.mu.RUnlock()
	if !ok {
		return types.OptionInstrument{}, fmt.Errorf("no %s %d %s contract for expiry %s",
			im.index, strike, optionType, key.expiry)
	}
	return inst, nil
}

// token returns the instrument token for a trading symbol.
func (im *instrumentMapper) token(symbol string) (uint32, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	token, ok := im.symbolToToken[symbol]
	return token, ok
}

// symbol returns the trading symbol for an instrument token.
func (im *instrumentMapper) symbol(token uint32) string {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.tokenToSymbol[token]
}
