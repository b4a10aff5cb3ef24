package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/logger"
	"github.com/tradepilot/tradepilot/market"
)

// Close reduces a position by volume, or closes it fully when volume is 0
// or at least the position's size. Partial volumes are floored to the
// symbol's step. The close deal is returned and journaled.
func (m *Manager) Close(ctx context.Context, ticket broker.Ticket, volume float64) (broker.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stateMu.RLock()
	pos, ok := m.positions[ticket]
	var prev broker.Position
	if ok {
		prev = *pos
	}
	m.stateMu.RUnlock()
	if !ok {
		return broker.Deal{}, broker.ErrTicketNotFound
	}

	if volume <= 0 || volume >= prev.Volume {
		volume = prev.Volume
	} else {
		spec, err := m.specs.GetSpec(ctx, prev.Symbol)
		if err == nil && spec.VolumeStep > 0 {
			volume = market.FloorToStep(volume, spec.VolumeStep)
		}
		if volume <= 0 {
			return broker.Deal{}, broker.Reject(broker.ReasonVolumeStep,
				"partial close volume rounds to zero for %s", prev.Symbol)
		}
	}

	deal, err := m.closeGateway(ctx, ticket, volume, prev)
	if err != nil {
		return broker.Deal{}, err
	}

	m.applyClose(ticket, volume, deal)
	m.recordDeal(deal)
	m.recordEquity(ctx)
	closesTotal.Inc()
	logger.Infof("lifecycle: closed %v of %s at %v, realized %.2f", volume, ticket, deal.Price, deal.Profit)
	return deal, nil
}

// applyClose updates the live set after a confirmed close. The surviving
// volume stays on the original ticket unless the gateway reissued one.
func (m *Manager) applyClose(ticket broker.Ticket, volume float64, deal broker.Deal) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	pos, ok := m.positions[ticket]
	if !ok {
		return
	}
	pos.Volume -= volume
	if pos.Volume <= 1e-9 {
		// A position with no volume no longer exists.
		delete(m.positions, ticket)
		return
	}
	if deal.RemainderTicket != "" {
		if !m.opts.PartialCloseReissuesTicket {
			logger.Warnf("lifecycle: gateway reissued ticket %s -> %s on partial close; check gateway configuration",
				ticket, deal.RemainderTicket)
		}
		delete(m.positions, ticket)
		pos.Ticket = deal.RemainderTicket
		m.positions[deal.RemainderTicket] = pos
	}
}

// closeGateway runs the retry discipline around Gateway.Close. A close is
// not idempotent: a timed-out attempt may have executed, so every timeout
// is reconciled against gateway volume before retrying.
func (m *Manager) closeGateway(ctx context.Context, ticket broker.Ticket, volume float64, prev broker.Position) (broker.Deal, error) {
	var lastErr error
	for attempt := 0; attempt < m.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := m.retry.wait(ctx, attempt-1); err != nil {
				return broker.Deal{}, fmt.Errorf("close %s: %w (last gateway error: %v)", ticket, err, lastErr)
			}
		}

		deal, err := m.gw.Close(ctx, ticket, volume)
		if err == nil {
			return deal, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, broker.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
			reconciliationsTotal.Inc()
			if deal, ok := m.reconcileClose(ctx, ticket, volume, prev); ok {
				logger.Infof("lifecycle: close %s resolved by reconciliation", ticket)
				return deal, nil
			}
			retriesTotal.Inc()
			logger.Warnf("lifecycle: close %s timed out with volume intact, retrying", ticket)

		case errors.Is(err, broker.ErrNoConnection):
			retriesTotal.Inc()

		default:
			return broker.Deal{}, err
		}
	}
	return broker.Deal{}, fmt.Errorf("close %s: retries exhausted: %w", ticket, lastErr)
}
