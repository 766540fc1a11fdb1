// Package risk vets intents before they reach the exchange and watches
// live positions for liquidation proximity. It never mutates positions
// itself; it hands protective intents back to the ledger.
package risk

import "time"

// Policy collects the guard's tunables.
type Policy struct {
	// MaxLeverage caps effective account leverage regardless of what the
	// instrument allows.
	MaxLeverage float64
	// MarginBuffer is the fraction of free equity held back from new
	// margin commitments.
	MarginBuffer float64
	// EquityStaleness bounds how old the equity figure may be before
	// margin checks refuse to pass anything.
	EquityStaleness time.Duration

	// PriceStaleness bounds the reference-price fallback chain.
	PriceStaleness time.Duration

	// ReduceDistance is the liquidation proximity (as a fraction of the
	// reference price) at which the guard starts cutting size. At half
	// that distance or closer it closes outright.
	ReduceDistance float64
	// ReduceFraction is how much of the position one REDUCE cuts.
	ReduceFraction float64
}

// DefaultPolicy returns conservative defaults; production configs override
// per deployment.
func DefaultPolicy() Policy {
	return Policy{
		MaxLeverage:     10,
		MarginBuffer:    0.10,
		EquityStaleness: 30 * time.Second,
		PriceStaleness:  5 * time.Second,
		ReduceDistance:  0.02,
		ReduceFraction:  0.5,
	}
}

func (p Policy) closeDistance() float64 { return p.ReduceDistance / 2 }
