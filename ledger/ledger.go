// Package ledger holds the authoritative local view of positions. A single
// executor goroutine owns every mutation; intents, fills, ticks, account
// updates and execution results all funnel through one bounded queue, so
// there is exactly one interleaving and no lock ordering to get wrong.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/perptrader/exchange"
	"github.com/rustyeddy/perptrader/internal/obs"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/market"
)

var (
	// ErrQueueFull is returned when the serialized queue is saturated.
	// Callers decide whether to drop (ticks) or escalate (intents).
	ErrQueueFull = errors.New("ledger queue full")
	// ErrClosed is returned after Run has exited.
	ErrClosed = errors.New("ledger closed")
)

// Config tunes the ledger. Zero values get sane defaults in New.
type Config struct {
	QueueSize int

	// PriceStaleness bounds how old a mark or trade price may be before
	// the fallback chain skips it.
	PriceStaleness time.Duration
	// VerifyStaleness bounds how old the last successful reconciliation
	// may be before a position is flagged unverified.
	VerifyStaleness time.Duration

	// Reconciliation tolerances. Differences at or below these are
	// treated as rounding, not drift.
	SizeTolerance  float64
	EntryTolerance float64
}

func (c *Config) setDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.PriceStaleness <= 0 {
		c.PriceStaleness = 5 * time.Second
	}
	if c.VerifyStaleness <= 0 {
		c.VerifyStaleness = 30 * time.Second
	}
	if c.SizeTolerance <= 0 {
		c.SizeTolerance = 1e-9
	}
	if c.EntryTolerance <= 0 {
		c.EntryTolerance = 1e-9
	}
}

// AccountView is the ledger's copy of account equity, stamped with the
// time the figure was produced.
type AccountView struct {
	Equity     float64
	MarginUsed float64
	UpdatedAt  time.Time
}

// MarginChecker vets OPEN and SCALE intents before they are accepted.
// A nil error admits the intent.
type MarginChecker interface {
	CheckMargin(in Intent, acct AccountView) error
}

// staleFlag asks the executor to mark a symbol unverified. It rides the
// same queue as everything else so the flip is serialized with intents.
type staleFlag struct {
	Symbol string
	Reason string
}

// Ledger is the single-writer position store.
type Ledger struct {
	cfg Config
	log zerolog.Logger
	jrn journal.Journal

	queue chan any
	done  chan struct{}

	mu        sync.RWMutex
	positions map[string]*Position
	account   AccountView

	margin     MarginChecker
	dispatch   func(Intent)
	onDegraded func(symbol, reason string)
}

func New(cfg Config, jrn journal.Journal, log zerolog.Logger) *Ledger {
	cfg.setDefaults()
	if jrn == nil {
		jrn = journal.Nop{}
	}
	return &Ledger{
		cfg:       cfg,
		log:       log.With().Str("component", "ledger").Logger(),
		jrn:       jrn,
		queue:     make(chan any, cfg.QueueSize),
		done:      make(chan struct{}),
		positions: make(map[string]*Position),
	}
}

// SetMarginChecker installs the pre-trade margin gate. Must be called
// before Run.
func (l *Ledger) SetMarginChecker(m MarginChecker) { l.margin = m }

// SetDispatcher installs the function that carries accepted intents to the
// exchange. It must not block; the gateway hands off to its own workers.
func (l *Ledger) SetDispatcher(fn func(Intent)) { l.dispatch = fn }

// SetDegradedHook installs a callback fired when a symbol turns
// unverified, used to kick the reconciler out of its timer wait.
func (l *Ledger) SetDegradedHook(fn func(symbol, reason string)) { l.onDegraded = fn }

// Submit enqueues an intent without blocking. ErrQueueFull is returned on
// overflow so the caller can escalate; no intent is ever silently dropped.
func (l *Ledger) Submit(in Intent) error {
	return l.enqueue(in)
}

// Deliver enqueues a market event. A full queue drops ticks with a
// counter; fills and account updates share intent urgency.
func (l *Ledger) Deliver(ev market.Event) bool {
	if err := l.enqueue(ev); err != nil {
		if _, isTick := ev.(market.Tick); isTick {
			obs.ConsumerOverflow.WithLabelValues("ledger").Inc()
			return false
		}
		l.log.Error().Err(err).Str("symbol", ev.Symbol()).Msg("dropping non-tick event")
		return false
	}
	return true
}

// Resolve enqueues an execution result from the gateway.
func (l *Ledger) Resolve(res ExecResult) error {
	return l.enqueue(res)
}

// FlagStale marks a symbol unverified, serialized with everything else.
func (l *Ledger) FlagStale(symbol, reason string) error {
	return l.enqueue(staleFlag{Symbol: symbol, Reason: reason})
}

func (l *Ledger) enqueue(item any) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.queue <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is done. It is the only goroutine that
// mutates ledger state.
func (l *Ledger) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-l.queue:
			l.applyOne(item)
		}
	}
}

// applyOne processes a single queue item. A panic in one item's handling
// is contained here: the item is abandoned, the executor keeps running.
func (l *Ledger) applyOne(item any) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("recovered in ledger executor")
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	switch v := item.(type) {
	case Intent:
		if v.Action == ActionReconcile {
			l.applyReconcile(v)
		} else {
			l.applyIntent(v)
		}
	case market.Tick:
		l.applyTick(v)
	case market.Fill:
		l.applyFill(v)
	case market.AccountUpdate:
		l.account = AccountView{Equity: v.Equity, MarginUsed: v.MarginUsed, UpdatedAt: v.Time}
	case ExecResult:
		l.applyExec(v)
	case staleFlag:
		l.markUnverified(v.Symbol, v.Reason)
	default:
		l.log.Warn().Type("item", item).Msg("unknown queue item")
	}
}

// --- intent handling ---

func (l *Ledger) applyIntent(in Intent) {
	pos := l.positions[in.Symbol]

	switch in.Action {
	case ActionOpen:
		l.applyOpen(in, pos)
	case ActionScale, ActionReduce:
		l.applyAdjust(in, pos)
	case ActionClose:
		l.applyClose(in, pos)
	default:
		l.reject(in, fmt.Sprintf("unknown action %d", in.Action))
	}
}

func (l *Ledger) applyOpen(in Intent, pos *Position) {
	if pos != nil && pos.State != StateClosed {
		l.reject(in, "position already exists in state "+pos.State.String())
		return
	}
	if in.Units == 0 {
		l.reject(in, "open with zero units")
		return
	}
	if err := l.checkMargin(in); err != nil {
		l.reject(in, err.Error())
		return
	}

	p := &Position{
		Symbol:     in.Symbol,
		Units:      in.Units,
		Leverage:   in.Leverage,
		MarginMode: marginModeFor(in.Symbol),
		State:      StateOpening,
		InFlight:   in.Key,
		pending:    &in,
	}
	if pos != nil {
		// Re-opening a closed symbol keeps the price history.
		p.LastMark, p.LastMarkAt = pos.LastMark, pos.LastMarkAt
		p.LastTrade, p.LastTradeAt = pos.LastTrade, pos.LastTradeAt
		p.VerifiedPrice, p.LastVerifiedAt = pos.VerifiedPrice, pos.LastVerifiedAt
	}
	l.positions[in.Symbol] = p

	l.journalTransition(p, "", StateOpening, "open intent", in)
	l.accept(in)
}

func (l *Ledger) applyAdjust(in Intent, pos *Position) {
	if pos == nil || pos.State == StateClosed {
		l.reject(in, "no position")
		return
	}
	if pos.State != StateOpen {
		l.reject(in, "position busy in state "+pos.State.String())
		return
	}
	if pos.InFlight != "" {
		l.reject(in, "intent already in flight: "+pos.InFlight)
		return
	}
	if pos.Unverified && !in.Protective {
		l.suppress(in, "position unverified")
		return
	}
	if in.Action == ActionScale {
		if err := l.checkMargin(in); err != nil {
			l.reject(in, err.Error())
			return
		}
	}

	from := pos.State
	pos.prev = from
	pos.State = StateScaling
	pos.InFlight = in.Key
	inCopy := in
	pos.pending = &inCopy

	l.journalTransition(pos, from.String(), StateScaling, in.Action.String()+" intent", in)
	l.accept(in)
}

func (l *Ledger) applyClose(in Intent, pos *Position) {
	if pos == nil || pos.State == StateClosed {
		l.noop(in, "position already closed or absent")
		return
	}
	// Idempotent close: a second CLOSE while one is underway confirms
	// rather than double-submitting.
	if pos.State == StateClosing {
		l.noop(in, "close already in flight")
		return
	}
	if pos.Unverified && !in.Protective {
		l.suppress(in, "position unverified")
		return
	}
	if pos.InFlight != "" {
		if !in.Protective {
			l.reject(in, "intent already in flight: "+pos.InFlight)
			return
		}
		// A protective close supersedes the outstanding intent. Its later
		// result arrives keyed to the old intent and is discarded, so only
		// the exchange knows whether it executed; stay unverified until
		// reconciliation confirms what the close actually unwound.
		l.markUnverified(pos.Symbol, "protective close superseded "+pos.InFlight)
	}
	if !canTransition(pos.State, StateClosing) {
		l.reject(in, "cannot close from state "+pos.State.String())
		return
	}

	from := pos.State
	pos.prev = from
	pos.State = StateClosing
	pos.InFlight = in.Key
	inCopy := in
	pos.pending = &inCopy

	l.journalTransition(pos, from.String(), StateClosing, "close intent", in)
	l.accept(in)
}

func (l *Ledger) checkMargin(in Intent) error {
	if l.margin == nil {
		return nil
	}
	return l.margin.CheckMargin(in, l.account)
}

func (l *Ledger) accept(in Intent) {
	obs.IntentsApplied.WithLabelValues(in.Action.String(), "dispatched").Inc()
	if in.Protective {
		obs.ProtectiveActions.WithLabelValues(in.Symbol, in.Action.String()).Inc()
	}
	l.journalAction(in, "dispatched", "")
	if l.dispatch != nil {
		l.dispatch(in)
	}
}

func (l *Ledger) reject(in Intent, reason string) {
	obs.IntentsApplied.WithLabelValues(in.Action.String(), "rejected").Inc()
	lvl := l.log.Warn()
	if in.Protective {
		lvl = l.log.Error()
	}
	lvl.Str("symbol", in.Symbol).Str("action", in.Action.String()).
		Str("key", in.Key).Str("reason", reason).Msg("intent rejected")
	l.journalAction(in, "rejected", reason)
}

func (l *Ledger) suppress(in Intent, reason string) {
	obs.IntentsApplied.WithLabelValues(in.Action.String(), "suppressed").Inc()
	l.log.Warn().Str("symbol", in.Symbol).Str("action", in.Action.String()).
		Str("reason", reason).Msg("intent suppressed")
	l.journalAction(in, "suppressed", reason)
}

func (l *Ledger) noop(in Intent, reason string) {
	obs.IntentsApplied.WithLabelValues(in.Action.String(), "noop").Inc()
	l.log.Debug().Str("symbol", in.Symbol).Str("reason", reason).Msg("intent no-op")
	l.journalAction(in, "noop", reason)
}

// --- market events ---

func (l *Ledger) applyTick(t market.Tick) {
	pos, ok := l.positions[t.Instrument]
	if !ok {
		return
	}
	if t.Mark > 0 {
		pos.LastMark = t.Mark
		pos.LastMarkAt = t.Time
	}
	if t.Last > 0 {
		pos.LastTrade = t.Last
		pos.LastTradeAt = t.Time
	}

	// Passive degradation: a live position whose verification has gone
	// stale drops to unverified without waiting for anyone to notice.
	if pos.State != StateClosed && !pos.Unverified &&
		!pos.LastVerifiedAt.IsZero() && t.Time.Sub(pos.LastVerifiedAt) > l.cfg.VerifyStaleness {
		l.markUnverified(pos.Symbol, "verification stale")
	}
}

func (l *Ledger) applyFill(f market.Fill) {
	pos, ok := l.positions[f.Instrument]
	if !ok || pos.State == StateClosed {
		l.log.Warn().Str("symbol", f.Instrument).Str("order", f.OrderID).
			Msg("fill for unknown position, awaiting reconcile")
		return
	}
	// Feed fills and gateway results can both confirm the same intent;
	// whichever lands second finds InFlight cleared and becomes a no-op.
	if f.IntentKey != "" && f.IntentKey != pos.InFlight {
		if pos.InFlight == "" {
			l.log.Debug().Str("symbol", f.Instrument).Str("key", f.IntentKey).
				Msg("fill for already-confirmed intent")
		} else {
			l.log.Warn().Str("symbol", f.Instrument).Str("key", f.IntentKey).
				Str("inflight", pos.InFlight).Msg("fill does not match in-flight intent")
		}
		return
	}
	l.confirmFill(pos, f.Units, f.Price, f.Time, "feed fill")
}

// confirmFill settles the in-flight intent with executed units and price.
func (l *Ledger) confirmFill(pos *Position, units, price float64, at time.Time, reason string) {
	from := pos.State
	switch pos.State {
	case StateOpening:
		if units != 0 {
			pos.Units = units
		}
		if price > 0 {
			pos.EntryPrice = price
		}
		pos.State = StateOpen

	case StateScaling:
		l.mergeFill(pos, units, price)

	case StateClosing:
		pos.Units = 0
		pos.State = StateClosed

	default:
		// A fill with no in-flight intent means someone traded this
		// account out-of-band. Merge it and let reconciliation confirm.
		l.mergeFill(pos, units, price)
		reason = "external fill"
	}

	pos.InFlight = ""
	pos.pending = nil
	if pos.State != from {
		l.warnJournal(l.jrn.Transition(journal.TransitionRecord{
			Time: at, Symbol: pos.Symbol,
			From: from.String(), To: pos.State.String(),
			Reason: reason, Units: units, Price: price,
		}))
	}
	l.log.Info().Str("symbol", pos.Symbol).Str("from", from.String()).
		Str("to", pos.State.String()).Float64("units", units).
		Float64("price", price).Msg(reason)
}

// mergeFill folds an executed delta into an open position: weighted-average
// entry when adding, entry untouched when reducing, closed at zero.
func (l *Ledger) mergeFill(pos *Position, units, price float64) {
	if units == 0 {
		pos.State = StateOpen
		return
	}
	newUnits := pos.Units + units
	increasing := abs(newUnits) > abs(pos.Units)
	if increasing && price > 0 {
		total := abs(pos.Units) + abs(units)
		pos.EntryPrice = (pos.EntryPrice*abs(pos.Units) + price*abs(units)) / total
	}
	pos.Units = newUnits
	if abs(newUnits) <= l.cfg.SizeTolerance {
		pos.Units = 0
		pos.State = StateClosed
	} else {
		pos.State = StateOpen
	}
}

// --- execution results ---

func (l *Ledger) applyExec(res ExecResult) {
	pos, ok := l.positions[res.Symbol]
	if !ok {
		l.log.Warn().Str("symbol", res.Symbol).Str("key", res.Key).Msg("exec result for unknown position")
		return
	}
	if pos.InFlight != res.Key {
		// The feed fill got here first, or reconciliation resolved it.
		l.log.Debug().Str("symbol", res.Symbol).Str("key", res.Key).Msg("stale exec result")
		return
	}

	switch {
	case res.Unknown:
		// Outcome unknowable: keep the intent pinned in flight so nothing
		// piles on top, and drop to unverified until the reconciler sees
		// exchange truth.
		l.markUnverified(pos.Symbol, "order outcome unknown")

	case res.Err != nil:
		l.revert(pos, res)

	case res.Result != nil:
		units := res.Result.FilledUnits
		if pos.pending != nil && pos.pending.Units < 0 {
			units = -units
		} else if pos.State == StateClosing || (pos.pending != nil && pos.pending.Action == ActionReduce) {
			// Closing or reducing trades against the position's side.
			if pos.Units > 0 {
				units = -abs(units)
			} else {
				units = abs(units)
			}
		}
		l.confirmFill(pos, units, res.Result.FillPrice, res.Result.Time, "order confirmed")
	}
}

// revert unwinds a terminally rejected intent to the state it interrupted.
func (l *Ledger) revert(pos *Position, res ExecResult) {
	from := pos.State
	wasProtective := pos.pending != nil && pos.pending.Protective

	if from == StateOpening {
		pos.State = StateClosed
		pos.Units = 0
	} else {
		pos.State = pos.prev
	}
	pos.InFlight = ""
	pos.pending = nil

	lvl := l.log.Warn()
	if wasProtective {
		// A rejected protective order leaves live risk uncovered.
		lvl = l.log.Error()
	}
	lvl.Str("symbol", pos.Symbol).Str("key", res.Key).Err(res.Err).
		Str("from", from.String()).Str("to", pos.State.String()).
		Msg("order rejected, state reverted")

	l.warnJournal(l.jrn.Transition(journal.TransitionRecord{
		Time: time.Now().UTC(), Symbol: pos.Symbol,
		From: from.String(), To: pos.State.String(),
		Reason: "rejected: " + res.Err.Error(), IntentKey: res.Key,
	}))
}

// --- reconciliation ---

func (l *Ledger) applyReconcile(in Intent) {
	s := in.Snapshot
	if s == nil {
		l.log.Error().Str("symbol", in.Symbol).Msg("reconcile intent without snapshot")
		return
	}

	pos, ok := l.positions[in.Symbol]
	switch {
	case !ok || pos.State == StateClosed:
		if abs(s.Units) <= l.cfg.SizeTolerance {
			return // both flat, nothing to do
		}
		// The exchange has a position we do not know. Adopt it.
		l.adopt(in, s)

	case abs(s.Units) <= l.cfg.SizeTolerance:
		l.confirmFlat(pos, in)

	default:
		l.converge(pos, in)
	}
}

func (l *Ledger) adopt(in Intent, s *exchange.PositionSnapshot) {
	p := &Position{
		Symbol:         s.Symbol,
		Units:          s.Units,
		EntryPrice:     s.EntryPrice,
		Leverage:       s.Leverage,
		MarginMode:     s.MarginMode,
		State:          StateOpen,
		VerifiedPrice:  s.MarkPrice,
		LastVerifiedAt: s.Retrieved,
	}
	l.positions[s.Symbol] = p

	obs.ReconcileDrift.WithLabelValues(s.Symbol, "missing-local").Inc()
	l.warnJournal(l.jrn.Drift(journal.DriftRecord{
		Time: s.Retrieved, Symbol: s.Symbol, Field: "missing-local",
		Local: 0, Remote: s.Units, Resolution: "adopted",
	}))
	l.journalTransition(p, "", StateOpen, "adopted from exchange", in)
	l.log.Warn().Str("symbol", s.Symbol).Float64("units", s.Units).
		Msg("adopted exchange position missing locally")
}

// confirmFlat handles the exchange reporting no position where we hold one.
func (l *Ledger) confirmFlat(pos *Position, in Intent) {
	from := pos.State
	reason := "reconcile confirmed close"
	if from != StateClosing {
		// We thought we were live; the exchange disagrees and wins.
		obs.ReconcileDrift.WithLabelValues(pos.Symbol, "missing-remote").Inc()
		l.warnJournal(l.jrn.Drift(journal.DriftRecord{
			Time: in.Snapshot.Retrieved, Symbol: pos.Symbol, Field: "missing-remote",
			Local: pos.Units, Remote: 0, Resolution: "rest-wins",
		}))
		reason = "exchange reports flat"
	}

	pos.Units = 0
	pos.State = StateClosed
	pos.InFlight = ""
	pos.pending = nil
	l.markVerified(pos, in.Snapshot.MarkPrice, in.Snapshot.Retrieved)
	if from != StateClosed {
		l.warnJournal(l.jrn.Transition(journal.TransitionRecord{
			Time: in.Snapshot.Retrieved, Symbol: pos.Symbol,
			From: from.String(), To: StateClosed.String(), Reason: reason,
		}))
	}
}

// converge folds the exchange's live snapshot into the local record.
// Exchange values win on any drift beyond tolerance.
func (l *Ledger) converge(pos *Position, in Intent) {
	s := in.Snapshot
	wasUnverified := pos.Unverified

	if abs(pos.Units-s.Units) > l.cfg.SizeTolerance {
		obs.ReconcileDrift.WithLabelValues(pos.Symbol, "units").Inc()
		l.warnJournal(l.jrn.Drift(journal.DriftRecord{
			Time: s.Retrieved, Symbol: pos.Symbol, Field: "units",
			Local: pos.Units, Remote: s.Units, Resolution: "rest-wins",
		}))
		l.log.Warn().Str("symbol", pos.Symbol).
			Float64("local", pos.Units).Float64("remote", s.Units).
			Msg("size drift, exchange wins")
		pos.Units = s.Units
	}
	if s.EntryPrice > 0 && abs(pos.EntryPrice-s.EntryPrice) > l.cfg.EntryTolerance {
		l.warnJournal(l.jrn.Drift(journal.DriftRecord{
			Time: s.Retrieved, Symbol: pos.Symbol, Field: "entry",
			Local: pos.EntryPrice, Remote: s.EntryPrice, Resolution: "rest-wins",
		}))
		pos.EntryPrice = s.EntryPrice
	}
	if s.Leverage > 0 {
		pos.Leverage = s.Leverage
	}
	if s.MarginMode != "" {
		pos.MarginMode = s.MarginMode
	}

	// An unverified position with an unknown-outcome intent is resolved
	// here: the snapshot is the outcome. Clear the pin and settle on OPEN.
	if wasUnverified && pos.InFlight != "" {
		from := pos.State
		pos.InFlight = ""
		pos.pending = nil
		pos.State = StateOpen
		if from != StateOpen {
			l.warnJournal(l.jrn.Transition(journal.TransitionRecord{
				Time: s.Retrieved, Symbol: pos.Symbol,
				From: from.String(), To: StateOpen.String(),
				Reason: "reconcile resolved unknown outcome",
			}))
		}
	}
	l.markVerified(pos, s.MarkPrice, s.Retrieved)
}

// --- verification flags ---

func (l *Ledger) markUnverified(symbol, reason string) {
	pos, ok := l.positions[symbol]
	if !ok || pos.Unverified || pos.State == StateClosed {
		return
	}
	pos.Unverified = true
	obs.DegradedMode.WithLabelValues(symbol).Set(1)
	l.warnJournal(l.jrn.Mode(journal.ModeRecord{
		Time: time.Now().UTC(), Symbol: symbol, Mode: "unverified", Reason: reason,
	}))
	l.log.Warn().Str("symbol", symbol).Str("reason", reason).Msg("position unverified")
	if l.onDegraded != nil {
		l.onDegraded(symbol, reason)
	}
}

func (l *Ledger) markVerified(pos *Position, price float64, at time.Time) {
	if price > 0 {
		pos.VerifiedPrice = price
	}
	pos.LastVerifiedAt = at
	if pos.Unverified {
		pos.Unverified = false
		obs.DegradedMode.WithLabelValues(pos.Symbol).Set(0)
		l.warnJournal(l.jrn.Mode(journal.ModeRecord{
			Time: at, Symbol: pos.Symbol, Mode: "verified", Reason: "reconcile confirmed",
		}))
		l.log.Info().Str("symbol", pos.Symbol).Msg("position verified")
	}
}

// --- journaling helpers ---

func (l *Ledger) journalTransition(p *Position, from string, to State, reason string, in Intent) {
	l.warnJournal(l.jrn.Transition(journal.TransitionRecord{
		Time: time.Now().UTC(), Symbol: p.Symbol,
		From: from, To: to.String(), Reason: reason,
		IntentKey: in.Key, Units: in.Units, Price: in.Price,
	}))
}

func (l *Ledger) journalAction(in Intent, outcome, detail string) {
	l.warnJournal(l.jrn.Action(journal.ActionRecord{
		Time: time.Now().UTC(), Symbol: in.Symbol,
		Action: in.Action.String(), Origin: in.Origin, IntentKey: in.Key,
		Units: in.Units, Price: in.Price,
		Protective: in.Protective, Degraded: in.Degraded,
		Outcome: outcome, Detail: detail,
	}))
}

// warnJournal surfaces a failed journal write. Trading never blocks on the
// audit trail, but a silent gap in it must at least leave a log line.
func (l *Ledger) warnJournal(err error) {
	if err != nil {
		l.log.Error().Err(err).Msg("journal write failed")
	}
}

// --- read side ---

// Snapshot returns a copy of one position.
func (l *Ledger) Snapshot(symbol string) (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return Snapshot{}, false
	}
	return pos.snapshot(), true
}

// Snapshots returns copies of all non-closed positions.
func (l *Ledger) Snapshots() []Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Snapshot, 0, len(l.positions))
	for _, pos := range l.positions {
		if pos.State == StateClosed {
			continue
		}
		out = append(out, pos.snapshot())
	}
	return out
}

// Account returns the latest equity view.
func (l *Ledger) Account() AccountView {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.account
}

// marginModeFor picks the margin mode for new positions. Everything opens
// isolated; cross positions only enter the ledger by adoption.
func marginModeFor(symbol string) string {
	return "isolated"
}
