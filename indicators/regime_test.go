package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/market"
)

func feed(m *Manager, symbol string, marks []float64) Regime {
	var label Regime
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, mk := range marks {
		label = m.Update(symbol, market.Tick{
			Instrument: symbol,
			Sequence:   uint64(i + 1),
			Time:       at.Add(time.Duration(i) * time.Second),
			Mark:       mk,
		})
	}
	return label
}

// choppy produces an alternating series around base: low trend strength.
func choppy(base float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base
		if i%2 == 1 {
			out[i] = base + 1
		}
	}
	return out
}

// rising produces a strictly increasing series: maximal trend strength.
func rising(start float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*10
	}
	return out
}

func TestWarmupLabelBeforeReady(t *testing.T) {
	m := NewManager(14, 20)
	label := feed(m, "BTC-USDT", choppy(50000, 5))
	assert.Equal(t, RegimeWarmup, label)
}

func TestChoppyMarketClassifiesRange(t *testing.T) {
	m := NewManager(3, 25)
	label := feed(m, "BTC-USDT", choppy(50000, 20))
	assert.Equal(t, RegimeRange, label)
}

func TestTrendDirectionFollowsDI(t *testing.T) {
	m := NewManager(3, 25)
	up := feed(m, "UP", rising(50000, 20))
	assert.Equal(t, RegimeTrendUp, up)

	down := make([]float64, 20)
	for i := range down {
		down[i] = 50000 - float64(i)*10
	}
	assert.Equal(t, RegimeTrendDown, feed(m, "DOWN", down))
}

func TestTransitionResetsAccumulator(t *testing.T) {
	m := NewManager(3, 25)
	const symbol = "BTC-USDT"

	// Establish RANGE, then drive a trend until the label flips.
	require.Equal(t, RegimeRange, feed(m, symbol, choppy(50000, 20)))

	var label Regime
	marks := rising(50000, 40)
	flipped := -1
	at := time.Now().UTC()
	for i, mk := range marks {
		label = m.Update(symbol, market.Tick{Instrument: symbol, Sequence: uint64(100 + i), Time: at, Mark: mk})
		if label == RegimeTrendUp {
			flipped = i
			break
		}
	}
	require.Equal(t, RegimeTrendUp, label, "trend was never detected")
	require.GreaterOrEqual(t, flipped, 0)

	// The transition itself must have reset the accumulator: no residual
	// RANGE-regime averages survive into the new regime.
	st := m.states[symbol]
	assert.False(t, st.dmi.Ready(), "accumulator must be fresh right after a transition")
	assert.Equal(t, RegimeTrendUp, m.Current(symbol), "committed label sticks while re-warming")

	// Further updates keep the committed label until the fresh accumulator
	// produces a different classification.
	next := m.Update(symbol, market.Tick{Instrument: symbol, Sequence: 999, Time: at, Mark: 60000})
	assert.Equal(t, RegimeTrendUp, next)
}

func TestResetAndRemoveLifecycle(t *testing.T) {
	m := NewManager(3, 25)
	const symbol = "ETH-USDT"

	require.Equal(t, RegimeRange, feed(m, symbol, choppy(3000, 20)))

	m.Reset(symbol)
	assert.Equal(t, RegimeWarmup, m.Current(symbol))
	assert.False(t, m.states[symbol].dmi.Ready())

	m.Remove(symbol)
	_, ok := m.states[symbol]
	assert.False(t, ok, "removed symbol must not keep state")
	assert.Equal(t, RegimeWarmup, m.Current(symbol))
}

func TestSymbolsAreIndependent(t *testing.T) {
	m := NewManager(3, 25)
	feed(m, "BTC-USDT", rising(50000, 20))
	label := feed(m, "ETH-USDT", choppy(3000, 20))
	assert.Equal(t, RegimeRange, label)
	assert.Equal(t, RegimeTrendUp, m.Current("BTC-USDT"))
}
