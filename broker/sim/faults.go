package sim

import "github.com/tradepilot/tradepilot/broker"

// Faults injects gateway failures. Counters are consumed as the matching
// calls arrive, so a test can script "two timeouts, then success".
type Faults struct {
	// TimeoutSubmits makes the next N submits return ErrTimeout.
	TimeoutSubmits int
	// FillOnTimeout applies the order's effect before returning the
	// timeout: the accepted-but-response-lost case reconciliation exists
	// for. Also honored by TimeoutCloses.
	FillOnTimeout bool

	// NoConnSubmits makes the next N submits fail before reaching the
	// book.
	NoConnSubmits int

	// RequoteSubmits makes the next N submits fail with a requote.
	RequoteSubmits int

	// RejectSubmit makes the next submit fail with this rejection.
	RejectSubmit *broker.RejectionError

	TimeoutModifies int
	TimeoutCloses   int
}

// Inject replaces the pending fault script.
func (e *Engine) Inject(f Faults) {
	e.mu.Lock()
	e.faults = f
	e.mu.Unlock()
}
