// Package journal records the deals this process executed and periodic
// equity snapshots. It journals the manager's own activity only; the
// broker terminal remains the system of record for full trade history.
package journal

import (
	"time"

	"github.com/tradepilot/tradepilot/broker"
)

type EquitySnapshot struct {
	Time        time.Time
	Balance     float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	MarginLevel float64
}

type Journal interface {
	RecordDeal(broker.Deal) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards everything. Used when journaling is disabled.
type Nop struct{}

func (Nop) RecordDeal(broker.Deal) error       { return nil }
func (Nop) RecordEquity(EquitySnapshot) error  { return nil }
func (Nop) Close() error                       { return nil }

// Stats aggregates realized results over a set of deals.
type Stats struct {
	Deals        int
	Wins         int
	Losses       int
	GrossProfit  float64
	GrossLoss    float64 // absolute value
	Net          float64
	ProfitFactor float64 // gross profit / gross loss; 0 when no losses
}
