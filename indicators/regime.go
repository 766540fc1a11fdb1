package indicators

import (
	"sync"

	"github.com/rustyeddy/perptrader/market"
)

// Regime labels the current market character for a symbol.
type Regime int8

const (
	RegimeWarmup Regime = iota
	RegimeRange
	RegimeTrendUp
	RegimeTrendDown
)

func (r Regime) String() string {
	switch r {
	case RegimeRange:
		return "RANGE"
	case RegimeTrendUp:
		return "TREND_UP"
	case RegimeTrendDown:
		return "TREND_DOWN"
	default:
		return "WARMUP"
	}
}

// Manager owns the per-symbol indicator accumulators and their reset
// lifecycle. State carried across a regime boundary would classify the new
// regime with the old regime's averages, so the reset is a side effect of
// the same Update call that detects the transition — it is not a separate
// maintenance step an integrator can forget.
type Manager struct {
	mu           sync.Mutex
	period       int
	adxThreshold float64
	states       map[string]*symbolState
}

type symbolState struct {
	dmi   *DMI
	label Regime
}

func NewManager(period int, adxThreshold float64) *Manager {
	if adxThreshold <= 0 {
		adxThreshold = 20
	}
	return &Manager{
		period:       period,
		adxThreshold: adxThreshold,
		states:       make(map[string]*symbolState),
	}
}

// Update feeds one tick and returns the committed regime for the symbol.
// When the freshly computed label differs from the committed one, the
// accumulator is reset before returning and the new label is committed, so
// the next call builds on a fresh accumulator rather than residual averages
// from the previous regime.
func (m *Manager) Update(symbol string, t market.Tick) Regime {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[symbol]
	if !ok {
		st = &symbolState{dmi: NewDMI(m.period), label: RegimeWarmup}
		m.states[symbol] = st
	}

	st.dmi.Update(t.Mark)
	if !st.dmi.Ready() {
		return st.label
	}

	next := m.classify(st.dmi)
	if next != st.label {
		st.dmi.Reset()
		st.label = next
	}
	return st.label
}

func (m *Manager) classify(d *DMI) Regime {
	if d.ADX() < m.adxThreshold {
		return RegimeRange
	}
	if d.PDI() >= d.MDI() {
		return RegimeTrendUp
	}
	return RegimeTrendDown
}

// Reset clears a symbol's accumulator, e.g. at restart or before a
// backfill, without removing it from the active set.
func (m *Manager) Reset(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[symbol]; ok {
		st.dmi.Reset()
		st.label = RegimeWarmup
	}
}

// Remove retires a symbol entirely. A later Update recreates it from
// scratch, so no stale accumulator can bias the next read.
func (m *Manager) Remove(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, symbol)
}

// Current returns the committed label without feeding new data.
func (m *Manager) Current(symbol string) Regime {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[symbol]; ok {
		return st.label
	}
	return RegimeWarmup
}
