// Package scale grows winning positions. It only ever proposes; the
// ledger still runs every proposal through the margin gate and the
// in-flight check before anything reaches the exchange.
package scale

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/perptrader/indicators"
	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/id"
)

// Params tunes the scaler.
type Params struct {
	// MinPnLPct is the unrealized return on margin a position must show
	// before it earns an add.
	MinPnLPct float64
	// StepFraction sizes each add as a fraction of the current position.
	StepFraction float64
	// MaxUnits caps total position size per symbol.
	MaxUnits float64
	// PriceStaleness bounds how old the mark may be. The scaler never
	// uses fallback prices: an add is an optional trade, and optional
	// trades do not get sized off degraded data.
	PriceStaleness time.Duration
}

func DefaultParams() Params {
	return Params{
		MinPnLPct:      0.05,
		StepFraction:   0.5,
		MaxUnits:       5,
		PriceStaleness: 5 * time.Second,
	}
}

// Scaler proposes SCALE intents for positions in profit during an agreeing
// trend regime.
type Scaler struct {
	params Params
	log    zerolog.Logger
}

func New(params Params, log zerolog.Logger) *Scaler {
	return &Scaler{params: params, log: log.With().Str("component", "scaler").Logger()}
}

// Propose returns a scale intent for the position, or nil when no add is
// warranted. It is pure apart from logging, so callers can run it on every
// tick batch without side effects.
func (s *Scaler) Propose(snap ledger.Snapshot, regime indicators.Regime, now time.Time) *ledger.Intent {
	if snap.State != ledger.StateOpen || snap.InFlight != "" || snap.Unverified {
		return nil
	}
	if snap.Units == 0 {
		return nil
	}

	// Only add with the trend. Range and warmup never scale.
	switch {
	case snap.Units > 0 && regime != indicators.RegimeTrendUp:
		return nil
	case snap.Units < 0 && regime != indicators.RegimeTrendDown:
		return nil
	}

	// A fresh mark is required. PnL computed from an old price looks like
	// profit long after the move has reversed.
	if snap.LastMark <= 0 || snap.LastMarkAt.IsZero() || now.Sub(snap.LastMarkAt) > s.params.PriceStaleness {
		s.log.Debug().Str("symbol", snap.Symbol).Msg("no fresh mark, skipping scale")
		return nil
	}

	pnl := snap.PnLPct(snap.LastMark)
	if pnl < s.params.MinPnLPct {
		return nil
	}

	add := absf(snap.Units) * s.params.StepFraction
	if room := s.params.MaxUnits - absf(snap.Units); add > room {
		add = room
	}
	if meta, ok := market.Instruments[snap.Symbol]; ok && add < meta.MinTradeSize {
		return nil
	}
	if add <= 0 {
		return nil
	}
	if snap.Units < 0 {
		add = -add
	}

	s.log.Info().Str("symbol", snap.Symbol).Float64("pnl_pct", pnl).
		Float64("add", add).Msg("proposing scale-in")

	return &ledger.Intent{
		Key:      id.New(),
		Symbol:   snap.Symbol,
		Action:   ledger.ActionScale,
		Units:    add,
		Leverage: snap.Leverage,
		Origin:   "scaler",
	}
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
