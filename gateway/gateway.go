// Package gateway carries accepted intents to the exchange. It owns the
// one mapping from internal intents to wire orders, the retry budget
// around submission, and the classification of every outcome into
// confirmed, rejected, or unknown.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/internal/obs"
	"github.com/rustyeddy/perptrader/ledger"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/pkg/backoff"
)

// Resolver receives execution results; the ledger satisfies it.
type Resolver interface {
	Resolve(res ledger.ExecResult) error
}

// Positions supplies current position snapshots, needed to size and side
// CLOSE and REDUCE orders.
type Positions interface {
	Snapshot(symbol string) (ledger.Snapshot, bool)
}

// Config tunes the gateway.
type Config struct {
	// Timeout bounds each individual submission attempt.
	Timeout time.Duration
	// Retry is the budget for ordinary intents; ProtectiveRetry for
	// protective ones, which get more attempts on shorter waits.
	Retry           backoff.Config
	ProtectiveRetry backoff.Config
}

func DefaultConfig() Config {
	return Config{
		Timeout:         5 * time.Second,
		Retry:           backoff.Default(),
		ProtectiveRetry: backoff.Aggressive(),
	}
}

// Gateway submits orders asynchronously and reports outcomes back.
type Gateway struct {
	cfg       Config
	client    exchange.Client
	positions Positions
	resolver  Resolver
	log       zerolog.Logger
}

func New(cfg Config, client exchange.Client, positions Positions, resolver Resolver, log zerolog.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Gateway{
		cfg:       cfg,
		client:    client,
		positions: positions,
		resolver:  resolver,
		log:       log.With().Str("component", "gateway").Logger(),
	}
}

// Dispatch hands the intent to a worker goroutine and returns immediately;
// it is the function the ledger calls from its executor and must never
// block there.
func (g *Gateway) Dispatch(in ledger.Intent) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				g.log.Error().Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Str("key", in.Key).Msg("recovered in gateway worker")
				g.deliver(ledger.ExecResult{
					Key: in.Key, Symbol: in.Symbol,
					Err: fmt.Errorf("gateway panic: %v", r), Unknown: true,
				})
			}
		}()
		g.deliver(g.execute(context.Background(), in))
	}()
}

func (g *Gateway) deliver(res ledger.ExecResult) {
	if err := g.resolver.Resolve(res); err != nil {
		g.log.Error().Err(err).Str("key", res.Key).Msg("could not deliver exec result")
	}
}

// execute maps, submits with retries, and classifies the outcome.
func (g *Gateway) execute(ctx context.Context, in ledger.Intent) ledger.ExecResult {
	req, err := g.mapIntent(in)
	if err != nil {
		return ledger.ExecResult{Key: in.Key, Symbol: in.Symbol, Err: err}
	}

	retry := g.cfg.Retry
	if in.Protective {
		retry = g.cfg.ProtectiveRetry
	}
	retry.RetryIf = exchange.IsTransient
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		obs.OrderRetries.Inc()
		g.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).
			Str("key", in.Key).Msg("retrying order submission")
	}

	var result exchange.OrderResult
	err = backoff.Do(ctx, retry, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
		var err error
		// The client key is stable across attempts, so a retry after an
		// ambiguous failure cannot double-execute on the exchange.
		result, err = g.client.SubmitOrder(attemptCtx, req)
		return err
	})

	switch {
	case err == nil:
		g.log.Info().Str("key", in.Key).Str("order", result.OrderID).
			Str("status", result.Status).Msg("order submitted")
		return ledger.ExecResult{Key: in.Key, Symbol: in.Symbol, Result: &result}

	case isRejection(err):
		return ledger.ExecResult{Key: in.Key, Symbol: in.Symbol, Err: err}

	default:
		// Timeouts and exhausted transient retries both leave the true
		// outcome unknowable; only reconciliation can settle it.
		g.log.Error().Err(err).Str("key", in.Key).Msg("order outcome unknown")
		return ledger.ExecResult{Key: in.Key, Symbol: in.Symbol, Err: err, Unknown: true}
	}
}

func isRejection(err error) bool {
	var rej *exchange.RejectionError
	return errors.As(err, &rej)
}

// mapIntent is the single translation point between internal intents and
// wire orders.
func (g *Gateway) mapIntent(in ledger.Intent) (exchange.OrderRequest, error) {
	meta, ok := market.Instruments[in.Symbol]
	if !ok {
		return exchange.OrderRequest{}, fmt.Errorf("unknown instrument %q", in.Symbol)
	}

	req := exchange.OrderRequest{
		ClientKey: in.Key,
		Contract:  meta.Name + meta.ContractSuffix,
		Type:      exchange.OrderTypeMarket,
	}
	if in.Protective && in.Price > 0 {
		req.Type = exchange.OrderTypeTrigger
		req.TriggerPrice = in.Price
	}

	switch in.Action {
	case ledger.ActionOpen, ledger.ActionScale:
		if in.Units > 0 {
			req.Side = exchange.SideBuy
			req.Units = in.Units
		} else {
			req.Side = exchange.SideSell
			req.Units = -in.Units
		}

	case ledger.ActionReduce, ledger.ActionClose:
		snap, ok := g.positions.Snapshot(in.Symbol)
		if !ok || snap.Units == 0 {
			return exchange.OrderRequest{}, fmt.Errorf("no position to %s for %s", in.Action, in.Symbol)
		}
		req.ReduceOnly = true
		if snap.Units > 0 {
			req.Side = exchange.SideSell
		} else {
			req.Side = exchange.SideBuy
		}
		if in.Action == ledger.ActionClose {
			req.Units = absf(snap.Units)
		} else {
			req.Units = absf(in.Units)
			if req.Units > absf(snap.Units) {
				req.Units = absf(snap.Units)
			}
		}

	default:
		return exchange.OrderRequest{}, fmt.Errorf("unmappable action %s", in.Action)
	}

	if req.Units <= 0 {
		return exchange.OrderRequest{}, fmt.Errorf("order for %s maps to zero units", in.Symbol)
	}
	return req, nil
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
