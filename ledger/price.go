package ledger

import "time"

// PriceSource names which rung of the fallback chain produced a reference
// price.
type PriceSource int8

const (
	SourceMark PriceSource = iota + 1
	SourceLastTrade
	SourceVerified
)

func (s PriceSource) String() string {
	switch s {
	case SourceMark:
		return "mark"
	case SourceLastTrade:
		return "last-trade"
	case SourceVerified:
		return "verified"
	default:
		return "none"
	}
}

// RefPrice resolves a usable reference price for risk math. Preference
// order is the fresh mark price, then the last trade, then the price from
// the most recent successful reconciliation. A zero price never qualifies,
// and ok=false means nothing fresh enough exists; callers must not feed
// the zero value into protective calculations.
func (s Snapshot) RefPrice(now time.Time, staleness time.Duration) (float64, PriceSource, bool) {
	fresh := func(at time.Time) bool {
		return !at.IsZero() && now.Sub(at) <= staleness
	}
	if s.LastMark > 0 && fresh(s.LastMarkAt) {
		return s.LastMark, SourceMark, true
	}
	if s.LastTrade > 0 && fresh(s.LastTradeAt) {
		return s.LastTrade, SourceLastTrade, true
	}
	if s.VerifiedPrice > 0 && fresh(s.LastVerifiedAt) {
		return s.VerifiedPrice, SourceVerified, true
	}
	return 0, 0, false
}

// UnrealizedPnL computes the open PnL at the given price. Returns 0 for a
// flat position or an unset entry.
func (s Snapshot) UnrealizedPnL(price float64) float64 {
	if s.Units == 0 || s.EntryPrice <= 0 || price <= 0 {
		return 0
	}
	return (price - s.EntryPrice) * s.Units
}

// PnLPct is the unrealized PnL as a fraction of the position's own margin.
func (s Snapshot) PnLPct(price float64) float64 {
	if s.Units == 0 || s.EntryPrice <= 0 || price <= 0 || s.Leverage <= 0 {
		return 0
	}
	margin := s.EntryPrice * abs(s.Units) / s.Leverage
	if margin <= 0 {
		return 0
	}
	return s.UnrealizedPnL(price) / margin
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
