package charges

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundTripOneLot(t *testing.T) {
	// Entry 100, exit 140, one NIFTY lot. Turnovers 7500 and 10500.
	total, b := RoundTrip(100, 140, 75, "maharashtra")

	assert.True(t, b.BuyBrokerage.Equal(decimal.NewFromFloat(2.25)), "buy brokerage = %s", b.BuyBrokerage)
	assert.True(t, b.SellBrokerage.Equal(decimal.NewFromFloat(3.15)), "sell brokerage = %s", b.SellBrokerage)
	assert.True(t, b.BuyExchTxn.Equal(decimal.NewFromFloat(3.98)), "buy exch txn = %s", b.BuyExchTxn)
	assert.True(t, b.SellExchTxn.Equal(decimal.NewFromFloat(5.57)), "sell exch txn = %s", b.SellExchTxn)
	assert.True(t, b.BuySEBI.Equal(decimal.NewFromFloat(0.01)), "buy sebi = %s", b.BuySEBI)
	assert.True(t, b.SellSEBI.Equal(decimal.NewFromFloat(0.01)), "sell sebi = %s", b.SellSEBI)
	assert.True(t, b.BuyGST.Equal(decimal.NewFromFloat(1.12)), "buy gst = %s", b.BuyGST)
	assert.True(t, b.SellGST.Equal(decimal.NewFromFloat(1.57)), "sell gst = %s", b.SellGST)
	assert.True(t, b.StampDuty.Equal(decimal.NewFromFloat(0.23)), "stamp duty = %s", b.StampDuty)
	assert.True(t, b.STT.Equal(decimal.NewFromFloat(6.56)), "stt = %s", b.STT)

	assert.InDelta(t, 24.45, total, 0.001)
}

func TestBrokerageCapsAtTwenty(t *testing.T) {
	// Turnover 75000: 0.03% = 22.50, capped at 20 per leg.
	_, b := RoundTrip(1000, 1000, 75, "maharashtra")
	assert.True(t, b.BuyBrokerage.Equal(decimal.NewFromInt(20)), "buy brokerage = %s", b.BuyBrokerage)
	assert.True(t, b.SellBrokerage.Equal(decimal.NewFromInt(20)), "sell brokerage = %s", b.SellBrokerage)
}

func TestStampDutyCapOnlyInMaharashtra(t *testing.T) {
	// Buy turnover 15,000,000: raw stamp duty 450.
	_, capped := RoundTrip(2000, 2000, 7500, "maharashtra")
	assert.True(t, capped.StampDuty.Equal(decimal.NewFromInt(300)), "stamp duty = %s", capped.StampDuty)

	_, uncapped := RoundTrip(2000, 2000, 7500, "delhi")
	assert.True(t, uncapped.StampDuty.Equal(decimal.NewFromInt(450)), "stamp duty = %s", uncapped.StampDuty)
}

func TestSTTOnSellLegOnly(t *testing.T) {
	// Exit at zero: no sell turnover, so no STT.
	_, b := RoundTrip(100, 0, 75, "maharashtra")
	assert.True(t, b.STT.IsZero(), "stt = %s", b.STT)
	assert.True(t, b.SellExchTxn.IsZero(), "sell exch txn = %s", b.SellExchTxn)
	assert.False(t, b.BuyExchTxn.IsZero(), "buy side still charged")
}

func TestTotalSumsRoundedComponents(t *testing.T) {
	_, b := RoundTrip(100, 140, 75, "maharashtra")
	sum := decimal.Zero
	for _, d := range []decimal.Decimal{
		b.BuyBrokerage, b.SellBrokerage, b.BuyExchTxn, b.SellExchTxn,
		b.BuySEBI, b.SellSEBI, b.BuyGST, b.SellGST, b.StampDuty, b.STT,
	} {
		sum = sum.Add(d)
	}
	assert.True(t, b.Total().Equal(sum.Round(2)), "total = %s, sum = %s", b.Total(), sum)
}
