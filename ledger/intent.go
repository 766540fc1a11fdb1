package ledger

import (
	"fmt"

	"github.com/rustyeddy/perptrader/exchange"
)

// Action enumerates what an intent asks the ledger to do.
type Action int8

const (
	ActionOpen Action = iota + 1
	ActionScale
	ActionReduce
	ActionClose
	ActionReconcile
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "OPEN"
	case ActionScale:
		return "SCALE"
	case ActionReduce:
		return "REDUCE"
	case ActionClose:
		return "CLOSE"
	case ActionReconcile:
		return "RECONCILE"
	default:
		return "UNKNOWN"
	}
}

// Intent is a request to change a position. Key doubles as the exchange
// idempotency key, minted once at creation so a retried submission cannot
// double-execute.
//
// Units is signed for OPEN and SCALE (direction of the delta) and positive
// for REDUCE (magnitude to cut). CLOSE ignores Units.
type Intent struct {
	Key      string
	Symbol   string
	Action   Action
	Units    float64
	Price    float64 // trigger price for protective orders, 0 for market
	Leverage float64

	// Protective intents bypass scaling gates and stay honored while the
	// position is unverified.
	Protective bool
	// Degraded marks an intent sized from a fallback price rather than a
	// fresh mark. It rides into the journal for later audit.
	Degraded bool
	Origin   string

	// Snapshot carries the exchange truth for RECONCILE intents only.
	Snapshot *exchange.PositionSnapshot
}

func (in Intent) String() string {
	return fmt.Sprintf("%s %s units=%.6f key=%s", in.Action, in.Symbol, in.Units, in.Key)
}

// ExecResult reports the outcome of dispatching an intent to the exchange.
// Exactly one of Result or Err is meaningful; Unknown means the attempt
// timed out and the true outcome is unknowable without reconciliation.
type ExecResult struct {
	Key    string
	Symbol string

	Result  *exchange.OrderResult
	Err     error
	Unknown bool
}
