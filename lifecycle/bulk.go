package lifecycle

import (
	"context"
	"errors"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/logger"
)

// Filter selects live objects for a bulk operation: by instrument, by
// profit sign, or everything. The zero Filter matches all.
type Filter struct {
	Symbol     string
	Profitable *bool // nil: any sign
}

func All() Filter              { return Filter{} }
func BySymbol(s string) Filter { return Filter{Symbol: s} }

func OnlyProfitable() Filter {
	t := true
	return Filter{Profitable: &t}
}

func OnlyLosing() Filter {
	f := false
	return Filter{Profitable: &f}
}

func (f Filter) matches(symbol string, profit float64) bool {
	if f.Symbol != "" && f.Symbol != symbol {
		return false
	}
	if f.Profitable != nil {
		if *f.Profitable {
			return profit > 0
		}
		return profit <= 0
	}
	return true
}

// CloseAll closes every open position the filter selects. The live set is
// enumerated once; each close is then attempted independently, and a
// failure on one ticket never aborts the rest; each operation commits
// separately at the gateway, so all-or-nothing semantics would be a lie.
// Positions the filter does not select are not touched and not reported.
func (m *Manager) CloseAll(ctx context.Context, f Filter) BulkReport {
	snapshot := m.Positions()

	// Profit-sign filters need a valuation per position; these are
	// read-only and run in parallel before any close starts.
	var values map[broker.Ticket]float64
	if f.Profitable != nil {
		var valErrs map[broker.Ticket]error
		values, valErrs = m.Valuations(ctx, snapshot)
		for tk, err := range valErrs {
			logger.Warnf("lifecycle: close all: cannot value %s: %v", tk, err)
		}
	}

	var report BulkReport
	for _, pos := range snapshot {
		profit := pos.Profit
		if values != nil {
			v, ok := values[pos.Ticket]
			if !ok {
				report.add(pos.Ticket, errors.New("valuation unavailable"))
				continue
			}
			profit = v
		}
		if !f.matches(pos.Symbol, profit) {
			continue
		}
		_, err := m.Close(ctx, pos.Ticket, 0)
		if errors.Is(err, broker.ErrTicketNotFound) {
			// Gone between snapshot and attempt (stop hit, concurrent close).
			err = broker.ErrAlreadyGone
		}
		report.add(pos.Ticket, err)
	}

	if report.Failed() > 0 {
		bulkFailuresTotal.Add(float64(report.Failed()))
	}
	logger.Infof("lifecycle: close all: %d closed, %d failed", report.Succeeded(), report.Failed())
	return report
}

// CancelAll cancels every pending order the filter selects (profit-sign
// filters do not apply to resting orders and are ignored).
func (m *Manager) CancelAll(ctx context.Context, f Filter) BulkReport {
	var report BulkReport
	for _, ord := range m.PendingOrders() {
		if f.Symbol != "" && f.Symbol != ord.Request.Symbol {
			continue
		}
		report.add(ord.Ticket, m.Cancel(ctx, ord.Ticket))
	}

	if report.Failed() > 0 {
		bulkFailuresTotal.Add(float64(report.Failed()))
	}
	logger.Infof("lifecycle: cancel all: %d cancelled, %d failed", report.Succeeded(), report.Failed())
	return report
}

// SweepExpired cancels pending orders whose deadline has elapsed. An order
// the gateway already removed counts as swept.
func (m *Manager) SweepExpired(ctx context.Context) BulkReport {
	now := nowFunc()

	m.stateMu.RLock()
	var expired []broker.Ticket
	for tk, ord := range m.pending {
		if ord.Expired(now) {
			expired = append(expired, tk)
		}
	}
	m.stateMu.RUnlock()

	var report BulkReport
	for _, tk := range expired {
		err := m.Cancel(ctx, tk)
		if errors.Is(err, broker.ErrAlreadyGone) {
			err = nil
		}
		report.add(tk, err)
	}
	if len(expired) > 0 {
		logger.Infof("lifecycle: swept %d expired orders, %d failed", report.Succeeded(), report.Failed())
	}
	return report
}
