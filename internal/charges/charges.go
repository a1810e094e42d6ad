// Package charges computes brokerage and statutory charges for NSE
// option round trips on a flat-fee broker's published rate card.
package charges

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NSE options rate card. Rates apply to premium turnover.
var (
	brokerageRate = decimal.NewFromFloat(0.0003)
	brokerageCap  = decimal.NewFromInt(20)
	exchTxnRate   = decimal.NewFromFloat(0.00053)
	sebiRate      = decimal.NewFromFloat(0.000001)
	gstRate       = decimal.NewFromFloat(0.18)
	stampRate     = decimal.NewFromFloat(0.00003)
	stampCap      = decimal.NewFromInt(300)
	sttRate       = decimal.NewFromFloat(0.000625)
)

// Breakdown itemizes the charges of one buy+sell options trade. Every
// component is rounded to paise; Total sums the rounded components.
type Breakdown struct {
	BuyBrokerage  decimal.Decimal `json:"buy_brokerage"`
	SellBrokerage decimal.Decimal `json:"sell_brokerage"`
	BuyExchTxn    decimal.Decimal `json:"buy_exch_txn"`
	SellExchTxn   decimal.Decimal `json:"sell_exch_txn"`
	BuySEBI       decimal.Decimal `json:"buy_sebi"`
	SellSEBI      decimal.Decimal `json:"sell_sebi"`
	BuyGST        decimal.Decimal `json:"buy_gst"`
	SellGST       decimal.Decimal `json:"sell_gst"`
	StampDuty     decimal.Decimal `json:"stamp_duty"`
	STT           decimal.Decimal `json:"stt"`
}

// Total is the sum of the rounded components, in rupees.
func (b Breakdown) Total() decimal.Decimal {
	return b.BuyBrokerage.
		Add(b.SellBrokerage).
		Add(b.BuyExchTxn).
		Add(b.SellExchTxn).
		Add(b.BuySEBI).
		Add(b.SellSEBI).
		Add(b.BuyGST).
		Add(b.SellGST).
		Add(b.StampDuty).
		Add(b.STT).
		Round(2)
}

// RoundTrip computes charges for a long option trade: brokerage per leg
// (capped), exchange transaction and SEBI charges per leg, GST on
// brokerage plus exchange charges, stamp duty on the buy leg (capped in
// Maharashtra), and STT on the sell leg.
func RoundTrip(entryPrice, exitPrice float64, qty int, state string) (float64, Breakdown) {
	buyTurnover := decimal.NewFromFloat(entryPrice).Mul(decimal.NewFromInt(int64(qty)))
	sellTurnover := decimal.NewFromFloat(exitPrice).Mul(decimal.NewFromInt(int64(qty)))

	buyBrokerage := decimal.Min(brokerageCap, brokerageRate.Mul(buyTurnover))
	sellBrokerage := decimal.Min(brokerageCap, brokerageRate.Mul(sellTurnover))

	buyExchTxn := exchTxnRate.Mul(buyTurnover)
	sellExchTxn := exchTxnRate.Mul(sellTurnover)

	// GST applies to the unrounded brokerage and exchange components.
	buyGST := gstRate.Mul(buyBrokerage.Add(buyExchTxn))
	sellGST := gstRate.Mul(sellBrokerage.Add(sellExchTxn))

	stampDuty := stampRate.Mul(buyTurnover)
	if strings.EqualFold(state, "maharashtra") {
		stampDuty = decimal.Min(stampDuty, stampCap)
	}

	breakdown := Breakdown{
		BuyBrokerage:  buyBrokerage.Round(2),
		SellBrokerage: sellBrokerage.Round(2),
		BuyExchTxn:    buyExchTxn.Round(2),
		SellExchTxn:   sellExchTxn.Round(2),
		BuySEBI:       sebiRate.Mul(buyTurnover).Round(2),
		SellSEBI:      sebiRate.Mul(sellTurnover).Round(2),
		BuyGST:        buyGST.Round(2),
		SellGST:       sellGST.Round(2),
		StampDuty:     stampDuty.Round(2),
		STT:           sttRate.Mul(sellTurnover).Round(2),
	}

	total, _ := breakdown.Total().Float64()
	return total, breakdown
}
