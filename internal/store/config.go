package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode     string `yaml:"mode"`
	Exchange string `yaml:"exchange"`
	Index    struct {
		Name       string `yaml:"name"`
		SpotSymbol string `yaml:"spot_symbol"`
		StrikeStep int    `yaml:"strike_step"`
	} `yaml:"index"`
	Market struct {
		OpenTime  string `yaml:"open_time"`
		CloseTime string `yaml:"close_time"`
	} `yaml:"market"`
	Strategy struct {
		AnalysisTime        string  `yaml:"analysis_time"`
		BreakoutPct         float64 `yaml:"breakout_pct"`
		StoplossPct         float64 `yaml:"stoploss_pct"`
		RiskRewardRatio     float64 `yaml:"risk_reward_ratio"`
		MaxHoldingMinutes   int     `yaml:"max_holding_minutes"`
		MinPremiumThreshold float64 `yaml:"min_premium_threshold"`
		MaxStrikeDistance   int     `yaml:"max_strike_distance"`
		LotSize             int     `yaml:"lot_size"`
		ExpiryLookahead     int     `yaml:"expiry_lookahead"`
		Trailing            struct {
			Enabled             bool    `yaml:"enabled"`
			Mode                string  `yaml:"mode"` // PCT or STEP
			Pct                 float64 `yaml:"pct"`
			ActivationProfitPct float64 `yaml:"activation_profit_pct"`
			LockFraction        float64 `yaml:"lock_fraction"`
		} `yaml:"trailing"`
	} `yaml:"strategy"`
	Feed struct {
		BreakoutScanSeconds int     `yaml:"breakout_scan_seconds"`
		MonitorSeconds      int     `yaml:"monitor_seconds"`
		StaleAfterSeconds   int     `yaml:"stale_after_seconds"`
		DropAfterSeconds    int     `yaml:"drop_after_seconds"`
		MaxLTP              float64 `yaml:"max_ltp"`
		MaxOptionLTP        float64 `yaml:"max_option_ltp"`
	} `yaml:"feed"`
	GTT struct {
		ExpirySeconds int `yaml:"expiry_seconds"`
	} `yaml:"gtt"`
	Charges struct {
		State string `yaml:"state"`
	} `yaml:"charges"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	for _, clk := range []struct{ name, val string }{
		{"market.open_time", c.Market.OpenTime},
		{"market.close_time", c.Market.CloseTime},
		{"strategy.analysis_time", c.Strategy.AnalysisTime},
	} {
		if _, err := time.Parse("15:04", clk.val); err != nil {
			return fmt.Errorf("invalid %s '%s': must be HH:MM", clk.name, clk.val)
		}
	}
	if c.Strategy.BreakoutPct <= 0 {
		return fmt.Errorf("strategy.breakout_pct must be positive, got %.2f", c.Strategy.BreakoutPct)
	}
	if c.Strategy.StoplossPct <= 0 || c.Strategy.StoplossPct >= 100 {
		return fmt.Errorf("strategy.stoploss_pct must be between 0-100, got %.2f", c.Strategy.StoplossPct)
	}
	if c.Strategy.RiskRewardRatio <= 0 {
		return fmt.Errorf("strategy.risk_reward_ratio must be positive, got %.2f", c.Strategy.RiskRewardRatio)
	}
	if c.Strategy.LotSize <= 0 {
		return fmt.Errorf("strategy.lot_size must be positive, got %d", c.Strategy.LotSize)
	}
	if m := c.Strategy.Trailing.Mode; m != "PCT" && m != "STEP" {
		return fmt.Errorf("strategy.trailing.mode must be 'PCT' or 'STEP', got '%s'", m)
	}
	if c.Index.StrikeStep <= 0 {
		return fmt.Errorf("index.strike_step must be positive, got %d", c.Index.StrikeStep)
	}
	return nil
}

// Default returns the configuration the strategy runs with when no config
// file is present. These match the exchange's current NIFTY contract specs.
func Default() *Config {
	c := &Config{}
	c.Mode = "DRY_RUN"
	c.Exchange = "NFO"
	c.Index.Name = "NIFTY"
	c.Index.SpotSymbol = "NSE:NIFTY 50"
	c.Index.StrikeStep = 100
	c.Market.OpenTime = "09:15"
	c.Market.CloseTime = "15:30"
	c.Strategy.AnalysisTime = "09:20"
	c.Strategy.BreakoutPct = 10
	c.Strategy.StoplossPct = 20
	c.Strategy.RiskRewardRatio = 2
	c.Strategy.MaxHoldingMinutes = 30
	c.Strategy.MinPremiumThreshold = 50
	c.Strategy.MaxStrikeDistance = 500
	c.Strategy.LotSize = 75
	c.Strategy.ExpiryLookahead = 3
	c.Strategy.Trailing.Enabled = true
	c.Strategy.Trailing.Mode = "STEP"
	c.Strategy.Trailing.Pct = 8
	c.Strategy.Trailing.ActivationProfitPct = 20
	c.Strategy.Trailing.LockFraction = 0.5
	c.Feed.BreakoutScanSeconds = 2
	c.Feed.MonitorSeconds = 5
	c.Feed.StaleAfterSeconds = 10
	c.Feed.DropAfterSeconds = 30
	c.Feed.MaxLTP = 10000
	c.Feed.MaxOptionLTP = 2000
	c.GTT.ExpirySeconds = 86400
	c.Charges.State = "maharashtra"
	return c
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.Exchange == "" {
		c.Exchange = d.Exchange
	}
	if c.Index.Name == "" {
		c.Index.Name = d.Index.Name
	}
	if c.Index.SpotSymbol == "" {
		c.Index.SpotSymbol = d.Index.SpotSymbol
	}
	if c.Index.StrikeStep == 0 {
		c.Index.StrikeStep = d.Index.StrikeStep
	}
	if c.Market.OpenTime == "" {
		c.Market.OpenTime = d.Market.OpenTime
	}
	if c.Market.CloseTime == "" {
		c.Market.CloseTime = d.Market.CloseTime
	}
	if c.Strategy.AnalysisTime == "" {
		c.Strategy.AnalysisTime = d.Strategy.AnalysisTime
	}
	if c.Strategy.BreakoutPct == 0 {
		c.Strategy.BreakoutPct = d.Strategy.BreakoutPct
	}
	if c.Strategy.StoplossPct == 0 {
		c.Strategy.StoplossPct = d.Strategy.StoplossPct
	}
	if c.Strategy.RiskRewardRatio == 0 {
		c.Strategy.RiskRewardRatio = d.Strategy.RiskRewardRatio
	}
	if c.Strategy.MaxHoldingMinutes == 0 {
		c.Strategy.MaxHoldingMinutes = d.Strategy.MaxHoldingMinutes
	}
	if c.Strategy.MinPremiumThreshold == 0 {
		c.Strategy.MinPremiumThreshold = d.Strategy.MinPremiumThreshold
	}
	if c.Strategy.MaxStrikeDistance == 0 {
		c.Strategy.MaxStrikeDistance = d.Strategy.MaxStrikeDistance
	}
	if c.Strategy.LotSize == 0 {
		c.Strategy.LotSize = d.Strategy.LotSize
	}
	if c.Strategy.ExpiryLookahead == 0 {
		c.Strategy.ExpiryLookahead = d.Strategy.ExpiryLookahead
	}
	if c.Strategy.Trailing.Mode == "" {
		c.Strategy.Trailing = d.Strategy.Trailing
	}
	if c.Feed.BreakoutScanSeconds == 0 {
		c.Feed.BreakoutScanSeconds = d.Feed.BreakoutScanSeconds
	}
	if c.Feed.MonitorSeconds == 0 {
		c.Feed.MonitorSeconds = d.Feed.MonitorSeconds
	}
	if c.Feed.StaleAfterSeconds == 0 {
		c.Feed.StaleAfterSeconds = d.Feed.StaleAfterSeconds
	}
	if c.Feed.DropAfterSeconds == 0 {
		c.Feed.DropAfterSeconds = d.Feed.DropAfterSeconds
	}
	if c.Feed.MaxLTP == 0 {
		c.Feed.MaxLTP = d.Feed.MaxLTP
	}
	if c.Feed.MaxOptionLTP == 0 {
		c.Feed.MaxOptionLTP = d.Feed.MaxOptionLTP
	}
	if c.GTT.ExpirySeconds == 0 {
		c.GTT.ExpirySeconds = d.GTT.ExpirySeconds
	}
	if c.Charges.State == "" {
		c.Charges.State = d.Charges.State
	}
}

// LoadConfig reads the yaml config at path. A missing file is not an
// error: the strategy falls back to Default(), matching the behaviour of
// every tunable having a built-in default.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
