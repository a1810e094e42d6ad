// Package nsedata fetches NIFTY option chain data from the NSE public
// API. NSE rejects bare API calls, so the client visits the main page
// first to pick up session cookies and replays them on API requests.
package nsedata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"time"

	"oi-breakout-bot/internal/api"
	"oi-breakout-bot/internal/logger"
)

const expiryLayout = "02-Jan-2006"

// Row is one side of one strike in the option chain.
type Row struct {
	Strike       int       `json:"strike"`
	Expiry       time.Time `json:"expiry"`
	OptionType   string    `json:"option_type"`
	LastPrice    float64   `json:"last_price"`
	OpenInterest int64     `json:"open_interest"`
	ChangeInOI   int64     `json:"change_in_oi"`
	Volume       int64     `json:"volume"`
	BidPrice     float64   `json:"bid_price"`
	AskPrice     float64   `json:"ask_price"`
}

// Chain is a fetched option chain snapshot.
type Chain struct {
	Underlying  float64     `json:"underlying"`
	ExpiryDates []time.Time `json:"expiry_dates"`
	Rows        []Row       `json:"rows"`
	FetchedAt   time.Time   `json:"fetched_at"`
}

// RowsForExpiry returns the rows belonging to one expiry date.
func (c *Chain) RowsForExpiry(expiry time.Time) []Row {
	var out []Row
	for _, row := range c.Rows {
		if sameDay(row.Expiry, expiry) {
			out = append(out, row)
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// Option configures the chain client.
type Option func(*Client)

// WithBaseURL points the client at a different host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithSettleDelay overrides the pause between the cookie warmup visit
// and the first API call.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Client) {
		c.settleDelay = d
	}
}

// Client fetches option chains from NSE.
type Client struct {
	client      *api.Client
	baseURL     string
	settleDelay time.Duration
	warmedAt    time.Time
	warmFor     time.Duration
}

func NewClient(opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		client: api.NewClient(
			api.WithTimeout(15*time.Second),
			api.WithLogging(true),
			api.WithCookieJar(jar),
		),
		baseURL:     "https://www.nseindia.com",
		settleDelay: 2 * time.Second,
		warmFor:     5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// optionQuote matches one CE or PE object in the NSE chain payload.
type optionQuote struct {
	StrikePrice       float64 `json:"strikePrice"`
	ExpiryDate        string  `json:"expiryDate"`
	OpenInterest      float64 `json:"openInterest"`
	ChangeInOI        float64 `json:"changeinOpenInterest"`
	LastPrice         float64 `json:"lastPrice"`
	TotalTradedVolume float64 `json:"totalTradedVolume"`
	BidPrice          float64 `json:"bidprice"`
	AskPrice          float64 `json:"askPrice"`
	UnderlyingValue   float64 `json:"underlyingValue"`
}

// OptionChain fetches the full chain for an index symbol such as NIFTY.
func (c *Client) OptionChain(ctx context.Context, index string) (*Chain, error) {
	if err := c.warmup(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/option-chain-indices?symbol=%s", c.baseURL, index)
	req := api.NewRequest(http.MethodGet, url).WithContext(ctx)
	for key, value := range api.NSEHeaders() {
		req.WithHeader(key, value)
	}
	resp, err := c.client.DoWithRetry(req, api.DefaultRetryConfig())
	if err != nil {
		// A rejected session cookie shows up as an HTTP error; force a
		// fresh warmup on the next call.
		c.warmedAt = time.Time{}
		return nil, fmt.Errorf("NSE option chain request failed: %w", err)
	}

	var payload struct {
		Records struct {
			ExpiryDates     []string `json:"expiryDates"`
			UnderlyingValue float64  `json:"underlyingValue"`
			Data            []struct {
				StrikePrice float64      `json:"strikePrice"`
				ExpiryDate  string       `json:"expiryDate"`
				CE          *optionQuote `json:"CE"`
				PE          *optionQuote `json:"PE"`
			} `json:"data"`
		} `json:"records"`
	}
	if err := resp.ParseJSON(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse NSE option chain: %w", err)
	}
	if len(payload.Records.Data) == 0 {
		return nil, fmt.Errorf("empty option chain for %s", index)
	}

	chain := &Chain{
		Underlying: payload.Records.UnderlyingValue,
		FetchedAt:  time.Now(),
	}
	for _, raw := range payload.Records.ExpiryDates {
		expiry, err := time.Parse(expiryLayout, raw)
		if err != nil {
			logger.Warn(ctx, "Failed to parse expiry date", "date", raw)
			continue
		}
		chain.ExpiryDates = append(chain.ExpiryDates, expiry)
	}
	sort.Slice(chain.ExpiryDates, func(i, j int) bool {
		return chain.ExpiryDates[i].Before(chain.ExpiryDates[j])
	})

	for _, record := range payload.Records.Data {
		if record.CE != nil {
			if row, ok := toRow(ctx, "CE", record.StrikePrice, record.CE); ok {
				chain.Rows = append(chain.Rows, row)
			}
		}
		if record.PE != nil {
			if row, ok := toRow(ctx, "PE", record.StrikePrice, record.PE); ok {
				chain.Rows = append(chain.Rows, row)
			}
		}
	}

	c.logTopOI(ctx, chain)
	return chain, nil
}

func toRow(ctx context.Context, optionType string, strike float64, quote *optionQuote) (Row, bool) {
	expiry, err := time.Parse(expiryLayout, quote.ExpiryDate)
	if err != nil {
		logger.Warn(ctx, "Skipping option row with bad expiry",
			"strike", strike, "option_type", optionType, "date", quote.ExpiryDate)
		return Row{}, false
	}
	return Row{
		Strike:       int(strike),
		Expiry:       expiry,
		OptionType:   optionType,
		LastPrice:    quote.LastPrice,
		OpenInterest: int64(quote.OpenInterest),
		ChangeInOI:   int64(quote.ChangeInOI),
		Volume:       int64(quote.TotalTradedVolume),
		BidPrice:     quote.BidPrice,
		AskPrice:     quote.AskPrice,
	}, true
}

// warmup visits the NSE main page so the cookie jar holds a session.
func (c *Client) warmup(ctx context.Context) error {
	if time.Since(c.warmedAt) < c.warmFor {
		return nil
	}

	logger.Info(ctx, "Fetching NSE main page to set cookies")
	if _, err := c.client.GET(ctx, c.baseURL+"/", api.BrowserHeaders()); err != nil {
		return fmt.Errorf("NSE warmup failed: %w", err)
	}
	c.warmedAt = time.Now()

	if c.settleDelay <= 0 {
		return nil
	}
	// Short pause before the API call; immediate follow-up requests get
	// flagged as bot traffic.
	select {
	case <-time.After(c.settleDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) logTopOI(ctx context.Context, chain *Chain) {
	top := func(optionType string) (Row, bool) {
		var best Row
		var found bool
		for _, row := range chain.Rows {
			if row.OptionType != optionType {
				continue
			}
			if !found || row.OpenInterest > best.OpenInterest {
				best = row
				found = true
			}
		}
		return best, found
	}

	logger.Info(ctx, "Fetched option chain",
		"rows", len(chain.Rows),
		"expiries", len(chain.ExpiryDates),
		"underlying", chain.Underlying,
	)
	if ce, ok := top("CE"); ok {
		logger.Info(ctx, "Highest CE OI",
			"strike", ce.Strike, "open_interest", ce.OpenInterest, "last_price", ce.LastPrice)
	}
	if pe, ok := top("PE"); ok {
		logger.Info(ctx, "Highest PE OI",
			"strike", pe.Strike, "open_interest", pe.OpenInterest, "last_price", pe.LastPrice)
	}
}
