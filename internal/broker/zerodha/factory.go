package zerodha

import (
	"oi-breakout-bot/internal/feed"
	"oi-breakout-bot/internal/interfaces"
)

func newTickerManager(apiKey, accessToken string, mapper *instrumentMapper, hub *feed.Hub) interfaces.TickerManager {
	return &tickerManager{
		apiKey:      apiKey,
		accessToken: accessToken,
		mapper:      mapper,
		hub:         hub,
		subscribed:  make(map[string]uint32),
	}
}
