// Package journal persists the audit trail: position lifecycle
// transitions, dispatched and rejected actions, reconciliation drift, and
// degraded-mode flips. Two backends are provided, CSV files for quick
// inspection and SQLite for queries.
package journal

import "time"

// TransitionRecord captures one position lifecycle move.
type TransitionRecord struct {
	Time      time.Time
	Symbol    string
	From      string
	To        string
	Reason    string
	IntentKey string
	Units     float64
	Price     float64
}

// ActionRecord captures an intent outcome at the ledger boundary.
type ActionRecord struct {
	Time       time.Time
	Symbol     string
	Action     string
	Origin     string
	IntentKey  string
	Units      float64
	Price      float64
	Protective bool
	Degraded   bool
	Outcome    string // dispatched | rejected | noop | suppressed
	Detail     string
}

// DriftRecord captures a divergence found during reconciliation. The
// exchange value always wins; the record is what we keep of the loser.
type DriftRecord struct {
	Time       time.Time
	Symbol     string
	Field      string // units | entry | missing-local | missing-remote
	Local      float64
	Remote     float64
	Resolution string
}

// ModeRecord captures a verified/unverified flip for one symbol.
type ModeRecord struct {
	Time   time.Time
	Symbol string
	Mode   string // unverified | verified
	Reason string
}

// Journal is the write side. Implementations must be safe for concurrent
// use; the ledger executor and the reconciler both write.
type Journal interface {
	Transition(TransitionRecord) error
	Action(ActionRecord) error
	Drift(DriftRecord) error
	Mode(ModeRecord) error
	Close() error
}

// Nop discards every record. Useful in tests and for running without an
// audit trail configured.
type Nop struct{}

func (Nop) Transition(TransitionRecord) error { return nil }
func (Nop) Action(ActionRecord) error         { return nil }
func (Nop) Drift(DriftRecord) error           { return nil }
func (Nop) Mode(ModeRecord) error             { return nil }
func (Nop) Close() error                      { return nil }
