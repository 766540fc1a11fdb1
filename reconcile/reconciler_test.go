package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/backoff"
)

type fakeClient struct {
	mu        sync.Mutex
	acct      exchange.AccountState
	positions []exchange.PositionSnapshot
	fail      bool
	calls     int
}

func (f *fakeClient) GetAccount(ctx context.Context) (exchange.AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return exchange.AccountState{}, exchange.ErrTransient
	}
	return f.acct, nil
}

func (f *fakeClient) ListPositions(ctx context.Context) ([]exchange.PositionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, exchange.ErrTransient
	}
	return f.positions, nil
}

func (f *fakeClient) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}

type fakeStore struct {
	mu        sync.Mutex
	intents   []ledger.Intent
	events    []market.Event
	staled    []string
	snapshots []ledger.Snapshot
}

func (f *fakeStore) Submit(in ledger.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, in)
	return nil
}

func (f *fakeStore) Snapshots() []ledger.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots
}

func (f *fakeStore) Deliver(ev market.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return true
}

func (f *fakeStore) FlagStale(symbol, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staled = append(f.staled, symbol)
	return nil
}

func quickRetry() backoff.Config {
	cfg := backoff.Default()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestCycleSubmitsReconcileIntents(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeClient{
		acct: exchange.AccountState{Equity: 10000, MarginUsed: 500, Time: now},
		positions: []exchange.PositionSnapshot{
			{Symbol: "BTC-USDT", Units: 1.0, EntryPrice: 50000, MarkPrice: 50500, Retrieved: now},
		},
	}
	store := &fakeStore{}
	r := New(Config{Interval: time.Hour, Retry: quickRetry()}, client, store, zerolog.Nop())

	r.cycle(context.Background())

	require.Len(t, store.intents, 1)
	in := store.intents[0]
	assert.Equal(t, ledger.ActionReconcile, in.Action)
	assert.Equal(t, "BTC-USDT", in.Symbol)
	require.NotNil(t, in.Snapshot)
	assert.Equal(t, 1.0, in.Snapshot.Units)

	require.Len(t, store.events, 1)
	acct, ok := store.events[0].(market.AccountUpdate)
	require.True(t, ok)
	assert.Equal(t, 10000.0, acct.Equity)
}

func TestCycleClosesMissingRemote(t *testing.T) {
	client := &fakeClient{acct: exchange.AccountState{Equity: 10000, Time: time.Now()}}
	store := &fakeStore{
		snapshots: []ledger.Snapshot{{Symbol: "ETH-USDT", Units: 2.0, State: ledger.StateOpen}},
	}
	r := New(Config{Interval: time.Hour, Retry: quickRetry()}, client, store, zerolog.Nop())

	r.cycle(context.Background())

	require.Len(t, store.intents, 1)
	in := store.intents[0]
	assert.Equal(t, "ETH-USDT", in.Symbol)
	require.NotNil(t, in.Snapshot)
	assert.Zero(t, in.Snapshot.Units)
}

func TestFailedCycleDegradesEverySymbol(t *testing.T) {
	client := &fakeClient{fail: true}
	store := &fakeStore{
		snapshots: []ledger.Snapshot{
			{Symbol: "BTC-USDT", Units: 1.0, State: ledger.StateOpen},
			{Symbol: "ETH-USDT", Units: -2.0, State: ledger.StateOpen},
		},
	}
	r := New(Config{Interval: time.Hour, Retry: quickRetry()}, client, store, zerolog.Nop())

	r.cycle(context.Background())

	assert.Empty(t, store.intents)
	assert.ElementsMatch(t, []string{"BTC-USDT", "ETH-USDT"}, store.staled)
	// The retry budget was spent before giving up.
	assert.Equal(t, 2, client.calls)
}

func TestKickTriggersImmediateCycle(t *testing.T) {
	client := &fakeClient{acct: exchange.AccountState{Equity: 10000, Time: time.Now()}}
	store := &fakeStore{}
	r := New(Config{Interval: time.Hour, Retry: quickRetry()}, client, store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// First cycle fires on start.
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.calls >= 1
	}, time.Second, 5*time.Millisecond)

	r.Kick("BTC-USDT", "order outcome unknown")

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.calls >= 2
	}, time.Second, 5*time.Millisecond)
}
