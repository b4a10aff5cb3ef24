package lifecycle

import (
	"context"
	"math"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/logger"
	"github.com/tradepilot/tradepilot/market"
	"github.com/tradepilot/tradepilot/pkg/id"
	"github.com/tradepilot/tradepilot/risk"
)

// reconcileCtx detaches from the caller's (possibly expired) deadline:
// resolving an ambiguous outcome must happen even when the operation that
// caused it has run out of time.
func (m *Manager) reconcileCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.retry.ReconcileTimeout)
}

// reconcileSubmit resolves a timed-out submit by matching the request's
// client tag against the gateway's live set. Found as a position means the
// order filled; found resting means it was placed. Not found means the
// attempt did not land (a fill that already closed again would be missed,
// which errs on the side of resubmitting an order the caller still wants).
func (m *Manager) reconcileSubmit(ctx context.Context, clientID string) (broker.SubmitResult, bool) {
	rctx, cancel := m.reconcileCtx(ctx)
	defer cancel()

	snap, err := m.gw.ListOpen(rctx)
	if err != nil {
		logger.Warnf("lifecycle: reconcile submit %s: %v", clientID, err)
		return broker.SubmitResult{}, false
	}

	for _, pos := range snap.Positions {
		if pos.ClientID == clientID {
			return broker.SubmitResult{Status: broker.SubmitFilled, Ticket: pos.Ticket, Price: pos.EntryPrice}, true
		}
	}
	for _, ord := range snap.Pending {
		if ord.Request.ClientID == clientID {
			return broker.SubmitResult{Status: broker.SubmitPlaced, Ticket: ord.Ticket, Price: ord.Request.Price}, true
		}
	}
	return broker.SubmitResult{}, false
}

// reconcileClose resolves a timed-out close by comparing the position's
// gateway volume with what we asked to remove. Volume gone or reduced by
// the requested amount means the close landed; the deal is reconstructed
// from the current quote since the broker's confirmation was lost.
func (m *Manager) reconcileClose(ctx context.Context, ticket broker.Ticket, volume float64, prev broker.Position) (broker.Deal, bool) {
	rctx, cancel := m.reconcileCtx(ctx)
	defer cancel()

	snap, err := m.gw.ListOpen(rctx)
	if err != nil {
		logger.Warnf("lifecycle: reconcile close %s: %v", ticket, err)
		return broker.Deal{}, false
	}

	var current *broker.Position
	for i := range snap.Positions {
		p := &snap.Positions[i]
		if p.Ticket == ticket || (p.ClientID != "" && p.ClientID == prev.ClientID) {
			current = p
			break
		}
	}

	if current != nil && math.Abs(current.Volume-prev.Volume) < 1e-9 {
		// Volume intact: the close did not execute.
		return broker.Deal{}, false
	}

	deal := broker.Deal{
		ID:             id.New(),
		PositionTicket: ticket,
		Symbol:         prev.Symbol,
		Side:           prev.Side.Opposite(),
		Volume:         volume,
		Time:           nowFunc(),
		Reason:         "close (reconciled)",
	}
	if current != nil && current.Ticket != ticket {
		deal.RemainderTicket = current.Ticket
	}

	// Best-effort price and P/L from the current quote; the broker's
	// deal history holds the authoritative figures.
	if tick, err := m.ticks.GetTick(rctx, prev.Symbol); err == nil {
		price := tick.Bid
		if prev.Side == broker.Sell {
			price = tick.Ask
		}
		deal.Price = price
		if spec, err := m.specs.GetSpec(rctx, prev.Symbol); err == nil {
			if acct, err := m.accounts.GetAccount(rctx); err == nil {
				if rate, err := market.QuoteToAccountRate(rctx, spec, acct.Currency, m.ticks); err == nil {
					if pl, err := risk.Profit(spec, prev.Side, volume, prev.EntryPrice, price, rate); err == nil {
						deal.Profit = pl
					}
				}
			}
		}
	}
	return deal, true
}
