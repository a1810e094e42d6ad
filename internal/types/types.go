package types

import "time"

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

type Tick struct {
	Symbol    string
	LTP       float64
	PrevClose float64
	Ts        time.Time
}

type PriceRecord struct {
	Symbol    string
	LTP       float64
	PrevClose float64
	UpdatedAt time.Time
	Ticks     int64
}

type OrderReq struct {
	Symbol, Side string
	Qty          int
	Tag          string
}

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type StepResult struct {
	State  string      `json:"state"`
	Symbol string      `json:"symbol"`
	Price  float64     `json:"price"`
	Time   int64       `json:"time"`
	Orders []OrderResp `json:"orders"`
	Note   string      `json:"note"`
}
