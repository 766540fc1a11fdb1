package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefPricePrefersFreshMark(t *testing.T) {
	now := time.Now().UTC()
	s := Snapshot{
		LastMark: 50100, LastMarkAt: now.Add(-time.Second),
		LastTrade: 50090, LastTradeAt: now.Add(-time.Second),
		VerifiedPrice: 50000, LastVerifiedAt: now.Add(-2 * time.Second),
	}

	price, src, ok := s.RefPrice(now, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, 50100.0, price)
	assert.Equal(t, SourceMark, src)
}

func TestRefPriceFallsBackToTradeThenVerified(t *testing.T) {
	now := time.Now().UTC()
	s := Snapshot{
		LastMark: 50100, LastMarkAt: now.Add(-time.Minute),
		LastTrade: 50090, LastTradeAt: now.Add(-2 * time.Second),
		VerifiedPrice: 50000, LastVerifiedAt: now.Add(-3 * time.Second),
	}

	price, src, ok := s.RefPrice(now, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, 50090.0, price)
	assert.Equal(t, SourceLastTrade, src)

	s.LastTradeAt = now.Add(-time.Minute)
	price, src, ok = s.RefPrice(now, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, 50000.0, price)
	assert.Equal(t, SourceVerified, src)
}

func TestRefPriceRefusesStaleAndZero(t *testing.T) {
	now := time.Now().UTC()

	// Everything stale: no price at all, never a zero.
	s := Snapshot{
		LastMark: 50100, LastMarkAt: now.Add(-time.Hour),
		LastTrade: 50090, LastTradeAt: now.Add(-time.Hour),
		VerifiedPrice: 50000, LastVerifiedAt: now.Add(-time.Hour),
	}
	price, _, ok := s.RefPrice(now, 5*time.Second)
	assert.False(t, ok)
	assert.Zero(t, price)

	// A fresh timestamp with a zero price must not qualify either.
	s = Snapshot{LastMarkAt: now, LastTradeAt: now, LastVerifiedAt: now}
	_, _, ok = s.RefPrice(now, 5*time.Second)
	assert.False(t, ok)
}

func TestPnLPct(t *testing.T) {
	s := Snapshot{Units: 1.0, EntryPrice: 50000, Leverage: 10}

	// +2% price move at 10x is +20% on margin.
	assert.InDelta(t, 0.20, s.PnLPct(51000), 1e-9)

	short := Snapshot{Units: -1.0, EntryPrice: 50000, Leverage: 10}
	assert.InDelta(t, 0.20, short.PnLPct(49000), 1e-9)
	assert.InDelta(t, -0.20, short.PnLPct(51000), 1e-9)

	assert.Zero(t, s.PnLPct(0))
	assert.Zero(t, Snapshot{}.PnLPct(51000))
}
