package exchange

import "time"

// OrderRequest is the wire representation of an order submission. It is
// built only by the gateway's mapping layer, so internal/exchange format
// drift has a single place to show up.
type OrderRequest struct {
	ClientKey    string  `json:"clientOrderId"`
	Contract     string  `json:"instId"`
	Side         string  `json:"side"` // "buy" | "sell"
	Type         string  `json:"ordType"`
	Units        float64 `json:"sz,string"`
	Price        float64 `json:"px,string,omitempty"`
	TriggerPrice float64 `json:"triggerPx,string,omitempty"`
	ReduceOnly   bool    `json:"reduceOnly,omitempty"`
}

const (
	OrderTypeMarket  = "market"
	OrderTypeTrigger = "trigger"

	SideBuy  = "buy"
	SideSell = "sell"
)

// OrderResult is the exchange's answer to a submission.
type OrderResult struct {
	OrderID     string
	ClientKey   string
	Status      string
	FilledUnits float64
	FillPrice   float64
	Time        time.Time
}

// PositionSnapshot is an immutable copy of the exchange's own view of a
// position, tagged with its retrieval time. It is used for reconciliation
// comparison only and never mutated.
type PositionSnapshot struct {
	Symbol        string
	Units         float64 // signed: positive long, negative short
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Leverage      float64
	MarginMode    string
	Retrieved     time.Time
}

// AccountState is the REST view of account equity and margin usage.
type AccountState struct {
	Equity     float64
	MarginUsed float64
	Time       time.Time
}
