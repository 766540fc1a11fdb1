package market

import "time"

// Event is anything the push feed delivers: ticks, fills, account updates.
// Every event carries a symbol (empty for account-level events), a monotonic
// sequence number used for dedup, and the exchange timestamp.
//
// Sequences are per symbol and shared across event types: the venue numbers
// ticks and fills for an instrument from one counter. An event the venue
// leaves unsequenced reports Seq 0 and is ordered by its timestamp instead.
type Event interface {
	Symbol() string
	Seq() uint64
	At() time.Time
}

// Tick is a top-of-book market data update.
//
// Mark is the exchange-computed reference price used for margin and
// liquidation math; Last is the last trade print. They differ and must not
// be substituted for each other silently.
type Tick struct {
	Instrument string
	Sequence   uint64
	Time       time.Time

	Bid  float64
	Ask  float64
	Mark float64
	Last float64
}

func (t Tick) Symbol() string { return t.Instrument }
func (t Tick) Seq() uint64    { return t.Sequence }
func (t Tick) At() time.Time  { return t.Time }

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// Fill reports an execution on the account's own order. Units are signed:
// positive buys, negative sells. IntentKey echoes the idempotency key of the
// order that produced it, when the exchange returns one.
type Fill struct {
	Instrument string
	Sequence   uint64
	Time       time.Time

	IntentKey string
	OrderID   string
	Units     float64
	Price     float64
}

func (f Fill) Symbol() string { return f.Instrument }
func (f Fill) Seq() uint64    { return f.Sequence }
func (f Fill) At() time.Time  { return f.Time }

// AccountUpdate carries the account-level equity figure pushed by the
// exchange. It is symbol-less; the coordinator dedups it on its own stream.
type AccountUpdate struct {
	Sequence   uint64
	Time       time.Time
	Equity     float64
	MarginUsed float64
}

func (a AccountUpdate) Symbol() string { return "" }
func (a AccountUpdate) Seq() uint64    { return a.Sequence }
func (a AccountUpdate) At() time.Time  { return a.Time }
