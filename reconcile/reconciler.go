// Package reconcile periodically pulls the exchange's authoritative
// account and position state and feeds it into the ledger as RECONCILE
// intents. The exchange always wins; local state converges to it.
package reconcile

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/backoff"
)

// Store is the slice of the ledger the reconciler drives.
type Store interface {
	Submit(in ledger.Intent) error
	Snapshots() []ledger.Snapshot
	Deliver(ev market.Event) bool
	FlagStale(symbol, reason string) error
}

// Config tunes the reconciliation cadence.
type Config struct {
	// Interval between cycles. Each wait is jittered by up to
	// JitterFraction so restarts do not synchronize pulls.
	Interval       time.Duration
	JitterFraction float64

	// Retry bounds the per-cycle REST attempts. When the budget is
	// exhausted the cycle is abandoned and every live symbol degrades.
	Retry backoff.Config
}

func DefaultConfig() Config {
	return Config{
		Interval:       10 * time.Second,
		JitterFraction: 0.2,
		Retry:          backoff.Default(),
	}
}

// Reconciler drives periodic and on-demand reconciliation cycles.
type Reconciler struct {
	cfg    Config
	client exchange.Client
	store  Store
	log    zerolog.Logger

	kick chan struct{}
}

func New(cfg Config, client exchange.Client, store Store, log zerolog.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Reconciler{
		cfg:    cfg,
		client: client,
		store:  store,
		log:    log.With().Str("component", "reconciler").Logger(),
		kick:   make(chan struct{}, 1),
	}
}

// Kick requests an immediate cycle, used when a position turns unverified
// and waiting out the timer would prolong degraded mode. Safe from any
// goroutine; extra kicks while one is pending coalesce.
func (r *Reconciler) Kick(symbol, reason string) {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run cycles until ctx is done. The first cycle fires immediately so the
// ledger starts from exchange truth, not from empty.
func (r *Reconciler) Run(ctx context.Context) {
	r.cycle(ctx)
	for {
		t := time.NewTimer(r.nextWait())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-r.kick:
			t.Stop()
		case <-t.C:
		}
		if ctx.Err() != nil {
			return
		}
		r.cycle(ctx)
	}
}

func (r *Reconciler) nextWait() time.Duration {
	wait := r.cfg.Interval
	if r.cfg.JitterFraction > 0 {
		span := float64(wait) * r.cfg.JitterFraction
		wait += time.Duration((rand.Float64()*2 - 1) * span)
	}
	return wait
}

// cycle pulls account and positions, then hands both to the ledger.
func (r *Reconciler) cycle(ctx context.Context) {
	var acct exchange.AccountState
	err := backoff.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
		var err error
		acct, err = r.client.GetAccount(ctx)
		return err
	})
	if err != nil {
		r.degradeAll("account fetch failed: " + err.Error())
		return
	}

	var remote []exchange.PositionSnapshot
	err = backoff.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
		var err error
		remote, err = r.client.ListPositions(ctx)
		return err
	})
	if err != nil {
		r.degradeAll("position fetch failed: " + err.Error())
		return
	}

	r.store.Deliver(market.AccountUpdate{
		Time:       acct.Time,
		Equity:     acct.Equity,
		MarginUsed: acct.MarginUsed,
	})

	seen := make(map[string]bool, len(remote))
	for i := range remote {
		s := remote[i]
		seen[s.Symbol] = true
		r.submit(ledger.Intent{
			Symbol:   s.Symbol,
			Action:   ledger.ActionReconcile,
			Origin:   "reconciler",
			Snapshot: &s,
		})
	}

	// Local positions the exchange does not report get an explicit flat
	// snapshot so the ledger closes them out.
	now := time.Now().UTC()
	for _, local := range r.store.Snapshots() {
		if seen[local.Symbol] {
			continue
		}
		r.submit(ledger.Intent{
			Symbol: local.Symbol,
			Action: ledger.ActionReconcile,
			Origin: "reconciler",
			Snapshot: &exchange.PositionSnapshot{
				Symbol:    local.Symbol,
				Units:     0,
				Retrieved: now,
			},
		})
	}
	r.log.Debug().Int("remote", len(remote)).Float64("equity", acct.Equity).Msg("reconcile cycle done")
}

func (r *Reconciler) submit(in ledger.Intent) {
	if err := r.store.Submit(in); err != nil {
		// A full queue now means the snapshot would be stale by the time
		// it drained anyway. The next cycle retries with fresh data.
		r.log.Warn().Err(err).Str("symbol", in.Symbol).Msg("could not submit reconcile intent")
	}
}

// degradeAll flags every live symbol unverified after a failed cycle.
func (r *Reconciler) degradeAll(reason string) {
	r.log.Error().Str("reason", reason).Msg("reconcile cycle failed")
	for _, snap := range r.store.Snapshots() {
		if err := r.store.FlagStale(snap.Symbol, reason); err != nil {
			r.log.Error().Err(err).Str("symbol", snap.Symbol).Msg("could not flag symbol stale")
		}
	}
}
