package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/id"
)

// Violation codes.
const (
	CodeEquityStale  = "EQUITY_STALE"
	CodeNoPrice      = "NO_PRICE"
	CodeMargin       = "INSUFFICIENT_MARGIN"
	CodeLeverageCap  = "LEVERAGE_CAP"
	CodeSizeTooSmall = "SIZE_TOO_SMALL"
)

// Violation is one failed pre-trade check.
type Violation struct {
	Code   string
	Detail string
}

// Decision accumulates check results; empty means pass.
type Decision struct {
	Violations []Violation
}

func (d *Decision) add(code, detail string) {
	d.Violations = append(d.Violations, Violation{Code: code, Detail: detail})
}

func (d Decision) OK() bool { return len(d.Violations) == 0 }

// Err flattens the violations into a single error, nil when clean.
func (d Decision) Err() error {
	if d.OK() {
		return nil
	}
	parts := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		parts[i] = v.Code + ": " + v.Detail
	}
	return fmt.Errorf("margin check failed: %s", strings.Join(parts, "; "))
}

// TickSource supplies the freshest market observation per symbol. The
// coordinator satisfies it.
type TickSource interface {
	LastTick(symbol string) (market.Tick, bool)
}

// Guard performs pre-trade margin checks and liquidation-proximity
// monitoring.
type Guard struct {
	policy Policy
	ticks  TickSource
	log    zerolog.Logger
}

func NewGuard(policy Policy, ticks TickSource, log zerolog.Logger) *Guard {
	return &Guard{
		policy: policy,
		ticks:  ticks,
		log:    log.With().Str("component", "risk").Logger(),
	}
}

// CheckMargin vets an OPEN or SCALE intent against account equity. It
// satisfies the ledger's MarginChecker and runs on the executor goroutine,
// so it must stay cheap.
func (g *Guard) CheckMargin(in ledger.Intent, acct ledger.AccountView) error {
	var d Decision

	if acct.UpdatedAt.IsZero() || time.Since(acct.UpdatedAt) > g.policy.EquityStaleness {
		d.add(CodeEquityStale, fmt.Sprintf("equity last updated %v", acct.UpdatedAt))
		return d.Err()
	}

	price := in.Price
	if price <= 0 {
		tick, ok := g.ticks.LastTick(in.Symbol)
		if !ok || tick.Mark <= 0 {
			d.add(CodeNoPrice, "no reference price for "+in.Symbol)
			return d.Err()
		}
		price = tick.Mark
	}

	meta, hasMeta := market.Instruments[in.Symbol]
	if hasMeta && absf(in.Units) < meta.MinTradeSize {
		d.add(CodeSizeTooSmall, fmt.Sprintf("%.8f below minimum %.8f", absf(in.Units), meta.MinTradeSize))
	}

	leverage := in.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	maxLev := g.policy.MaxLeverage
	if hasMeta && meta.MaxLeverage < maxLev {
		maxLev = meta.MaxLeverage
	}
	if leverage > maxLev {
		d.add(CodeLeverageCap, fmt.Sprintf("leverage %.1f exceeds cap %.1f", leverage, maxLev))
	}

	notional := absf(in.Units) * price
	required := notional / leverage
	free := (acct.Equity - acct.MarginUsed) * (1 - g.policy.MarginBuffer)
	if required > free {
		d.add(CodeMargin, fmt.Sprintf("required %.2f exceeds free %.2f (equity %.2f, used %.2f)",
			required, free, acct.Equity, acct.MarginUsed))
	}

	if !d.OK() {
		g.log.Warn().Str("symbol", in.Symbol).Str("action", in.Action.String()).
			Int("violations", len(d.Violations)).Msg("margin check failed")
	}
	return d.Err()
}

// Assessment is the result of one liquidation-proximity evaluation.
type Assessment struct {
	Symbol   string
	Price    float64
	Source   ledger.PriceSource
	LiqPrice float64
	Distance float64

	// Stale means the position could not be evaluated, either because no
	// usable reference price existed or because the liquidation level is
	// not computable from its recorded entry and leverage. The position
	// must be flagged unverified, never acted on with guessed figures.
	Stale bool

	// Intent is the protective action to take, nil when none is needed.
	Intent *ledger.Intent
}

// Evaluate checks one position against the liquidation threshold. The
// caller submits the returned intent (if any) and flags the symbol stale
// when Stale is set.
func (g *Guard) Evaluate(snap ledger.Snapshot, now time.Time) Assessment {
	a := Assessment{Symbol: snap.Symbol}
	if snap.Units == 0 || !snap.Active() {
		return a
	}

	price, src, ok := snap.RefPrice(now, g.policy.PriceStaleness)
	if !ok {
		// No price fresh enough exists. Acting on a zero or stale price
		// would make protective math nonsense.
		a.Stale = true
		g.log.Warn().Str("symbol", snap.Symbol).Msg("no usable price for risk evaluation")
		return a
	}
	a.Price = price
	a.Source = src

	side := snap.Side()
	liq := LiquidationPrice(snap.EntryPrice, snap.Leverage, maintRateFor(snap.Symbol), side)
	if liq <= 0 {
		// No computable liquidation level: distance math against zero
		// would read as "liquidation reached" on a healthy position. A
		// settled position in this shape needs exchange truth restored,
		// not a protective order; one still settling is simply skipped.
		if snap.State == ledger.StateOpen {
			a.Stale = true
			g.log.Warn().Str("symbol", snap.Symbol).
				Float64("entry", snap.EntryPrice).Float64("leverage", snap.Leverage).
				Msg("liquidation level not computable")
		}
		return a
	}
	a.LiqPrice = liq
	a.Distance = liqDistance(price, liq, side)
	degraded := src != ledger.SourceMark

	switch {
	case a.Distance <= g.policy.closeDistance():
		if snap.State == ledger.StateClosing {
			return a // close already underway
		}
		a.Intent = &ledger.Intent{
			Key: id.New(), Symbol: snap.Symbol, Action: ledger.ActionClose,
			Protective: true, Degraded: degraded, Origin: "risk-guard",
		}
		g.log.Error().Str("symbol", snap.Symbol).Float64("price", price).
			Float64("liq", liq).Float64("distance", a.Distance).
			Msg("liquidation imminent, closing")

	case a.Distance <= g.policy.ReduceDistance:
		// A reduce cannot jump the queue past an outstanding intent; the
		// next evaluation will catch the position again if it is still
		// exposed.
		if snap.InFlight != "" || snap.State != ledger.StateOpen {
			return a
		}
		cut := absf(snap.Units) * g.policy.ReduceFraction
		a.Intent = &ledger.Intent{
			Key: id.New(), Symbol: snap.Symbol, Action: ledger.ActionReduce,
			Units: cut, Protective: true, Degraded: degraded, Origin: "risk-guard",
		}
		g.log.Warn().Str("symbol", snap.Symbol).Float64("price", price).
			Float64("liq", liq).Float64("distance", a.Distance).
			Float64("cut", cut).Msg("liquidation close, reducing")
	}
	return a
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
