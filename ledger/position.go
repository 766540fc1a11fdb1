package ledger

import "time"

// State is the main lifecycle of a position. The Unverified flag is
// orthogonal: any state may additionally be unverified when the exchange
// truth has not been confirmed recently enough.
type State int8

const (
	StateOpening State = iota + 1
	StateOpen
	StateScaling
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateScaling:
		return "SCALING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// validTransitions defines the allowed lifecycle moves. A CLOSE while
// already CLOSING is handled before this table as a no-op confirmation,
// not a transition.
var validTransitions = map[State][]State{
	StateOpening: {StateOpen, StateClosed},
	StateOpen:    {StateScaling, StateClosing},
	StateScaling: {StateOpen, StateClosing, StateClosed},
	StateClosing: {StateClosed},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Position is the ledger's authoritative record. It is owned exclusively by
// the ledger executor; everything else sees Snapshot copies.
type Position struct {
	Symbol     string
	Units      float64 // signed: positive long, negative short
	EntryPrice float64
	Leverage   float64
	MarginMode string

	State      State
	Unverified bool

	// Price observations, newest first in fallback preference.
	LastMark    float64
	LastMarkAt  time.Time
	LastTrade   float64
	LastTradeAt time.Time

	// REST-verified values from the most recent successful reconciliation.
	VerifiedPrice  float64
	LastVerifiedAt time.Time

	// InFlight holds the idempotency key of the one outstanding intent,
	// empty when none. prev and pending support revert on rejection.
	InFlight string
	prev     State
	pending  *Intent
}

func (p *Position) snapshot() Snapshot {
	return Snapshot{
		Symbol:         p.Symbol,
		Units:          p.Units,
		EntryPrice:     p.EntryPrice,
		Leverage:       p.Leverage,
		MarginMode:     p.MarginMode,
		State:          p.State,
		Unverified:     p.Unverified,
		LastMark:       p.LastMark,
		LastMarkAt:     p.LastMarkAt,
		LastTrade:      p.LastTrade,
		LastTradeAt:    p.LastTradeAt,
		VerifiedPrice:  p.VerifiedPrice,
		LastVerifiedAt: p.LastVerifiedAt,
		InFlight:       p.InFlight,
	}
}

// Snapshot is a read-only copy of a position handed to other components.
type Snapshot struct {
	Symbol     string
	Units      float64
	EntryPrice float64
	Leverage   float64
	MarginMode string

	State      State
	Unverified bool

	LastMark    float64
	LastMarkAt  time.Time
	LastTrade   float64
	LastTradeAt time.Time

	VerifiedPrice  float64
	LastVerifiedAt time.Time

	InFlight string
}

// Side returns +1 for long, -1 for short, 0 for flat.
func (s Snapshot) Side() int {
	switch {
	case s.Units > 0:
		return 1
	case s.Units < 0:
		return -1
	default:
		return 0
	}
}

// Active reports whether the position still holds or is changing exposure.
func (s Snapshot) Active() bool {
	return s.State != StateClosed
}
