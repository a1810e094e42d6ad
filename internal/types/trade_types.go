package types

import "time"

// Exit reasons, in the order the monitor checks them.
const (
	ExitStoploss    = "stoploss"
	ExitTarget      = "target"
	ExitTime        = "time"
	ExitMarketClose = "market_close"
	ExitManual      = "manual"
)

// LegSetup describes one monitored option leg: the highest-OI strike on
// one side of ATM, the premium baseline captured at analysis time, and
// the breakout level derived from it.
type LegSetup struct {
	Symbol     string    `json:"symbol"`
	Token      uint32    `json:"token,omitempty"`
	Strike     int       `json:"strike"`
	OptionType string    `json:"option_type"` // "CE" or "PE"
	OI         int64     `json:"oi"`
	Baseline   float64   `json:"baseline"`
	Trigger    float64   `json:"trigger"`
	Expiry     time.Time `json:"expiry"`
	ExpiryIdx  int       `json:"expiry_idx,omitempty"`
}

// OptionInstrument identifies one NFO option contract at the broker.
type OptionInstrument struct {
	Symbol  string    `json:"symbol"`
	Token   uint32    `json:"token"`
	LotSize int       `json:"lot_size"`
	Strike  int       `json:"strike"`
	Expiry  time.Time `json:"expiry"`
}

// DaySetup is the result of the morning open-interest analysis. Both legs
// are monitored until one breaks out; only one trade is taken per day.
type DaySetup struct {
	Date      time.Time `json:"date"`
	SpotPrice float64   `json:"spot_price"`
	ATMStrike int       `json:"atm_strike"`
	Expiry    string    `json:"expiry"`
	Call      LegSetup  `json:"call"`
	Put       LegSetup  `json:"put"`
}

// EntryPlan is the decision result for a detected breakout. When Enter is
// false, Reason carries the rejection (premium below threshold etc.).
type EntryPlan struct {
	Enter    bool    `json:"enter"`
	Reason   string  `json:"reason,omitempty"`
	Qty      int     `json:"qty,omitempty"`
	StopLoss float64 `json:"stop_loss,omitempty"`
	Target   float64 `json:"target,omitempty"`
	Margin   float64 `json:"margin,omitempty"`
}

// ExitDecision is the decision result for an open position on one price
// update. Price is the defined exit level, not the observed price.
type ExitDecision struct {
	Exit   bool    `json:"exit"`
	Reason string  `json:"reason,omitempty"`
	Price  float64 `json:"price,omitempty"`
}

// StopUpdate reports a raised trailing stop. The stop only ever moves up.
type StopUpdate struct {
	Raised  bool    `json:"raised"`
	NewStop float64 `json:"new_stop,omitempty"`
}

// PositionState is the pure view of an open position that decision logic
// operates on. The engine owns the mutable copy.
type PositionState struct {
	Symbol       string    `json:"symbol"`
	EntryPrice   float64   `json:"entry_price"`
	EntryTime    time.Time `json:"entry_time"`
	Qty          int       `json:"qty"`
	StopLoss     float64   `json:"stop_loss"`
	OriginalStop float64   `json:"original_stop"`
	Target       float64   `json:"target"`
	Deadline     time.Time `json:"deadline"`
	MaxUp        float64   `json:"max_up"`
	MaxDown      float64   `json:"max_down"`
	MaxUpPct     float64   `json:"max_up_pct"`
	MaxDownPct   float64   `json:"max_down_pct"`
}

// TradeRecord is one completed (or open) trade as persisted to the trade
// history file. Excursion fields are position-level rupee amounts.
type TradeRecord struct {
	EntryTime  time.Time `json:"entry_time"`
	Index      string    `json:"index"`
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	ExitTime   time.Time `json:"exit_time,omitempty"`
	ExitPrice  float64   `json:"exit_price,omitempty"`
	StopLoss   float64   `json:"stop_loss"`
	Target     float64   `json:"target"`
	TrailingSL float64   `json:"trailing_sl,omitempty"`
	Qty        int       `json:"qty"`
	Brokerage  float64   `json:"brokerage,omitempty"`
	PnL        float64   `json:"pnl,omitempty"`
	Margin     float64   `json:"margin"`
	PctGain    float64   `json:"pct_gain,omitempty"`
	MaxUp      float64   `json:"max_up,omitempty"`
	MaxDown    float64   `json:"max_down,omitempty"`
	MaxUpPct   float64   `json:"max_up_pct,omitempty"`
	MaxDownPct float64   `json:"max_down_pct,omitempty"`
	ExitReason string    `json:"exit_reason,omitempty"`
}
