package sim

import (
	"context"
	"time"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/pkg/id"
)

// Submit executes or books an order. Injected faults fire before (or, for
// lost-response timeouts, after) the real effect, mirroring how a broker
// terminal can accept an order whose confirmation never arrives.
func (e *Engine) Submit(ctx context.Context, req broker.OrderRequest) (broker.SubmitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return broker.SubmitResult{}, err
	}

	if e.faults.NoConnSubmits > 0 {
		e.faults.NoConnSubmits--
		return broker.SubmitResult{}, broker.ErrNoConnection
	}
	if e.faults.RejectSubmit != nil {
		rej := e.faults.RejectSubmit
		e.faults.RejectSubmit = nil
		return broker.SubmitResult{}, rej
	}
	if e.faults.RequoteSubmits > 0 {
		e.faults.RequoteSubmits--
		return broker.SubmitResult{}, broker.Reject(broker.ReasonRequote, "price moved")
	}

	lostResponse := false
	if e.faults.TimeoutSubmits > 0 {
		e.faults.TimeoutSubmits--
		if !e.faults.FillOnTimeout {
			return broker.SubmitResult{}, broker.ErrTimeout
		}
		lostResponse = true
	}

	// Dedupe by client tag so a reconciled retry cannot double-fill.
	if req.ClientID != "" {
		if res, ok := e.findByClientLocked(req.ClientID); ok {
			return res, nil
		}
	}

	t, ok := e.ticks[req.Symbol]
	if !ok {
		return broker.SubmitResult{}, broker.Reject(broker.ReasonMarketClosed, "no quote for %s", req.Symbol)
	}
	if _, ok := e.specs[req.Symbol]; !ok {
		return broker.SubmitResult{}, broker.Reject(broker.ReasonUnknownSymbol, "%s", req.Symbol)
	}
	now := t.Time
	if now.IsZero() {
		now = time.Now()
	}

	var res broker.SubmitResult
	if req.Kind == broker.Market {
		price := t.FillPrice(req.Side == broker.Buy)
		ticket, ok := e.fillLocked(req, price, now)
		if !ok {
			return broker.SubmitResult{}, broker.Reject(broker.ReasonInsufficientMargin,
				"free margin %.2f cannot carry %s %v %s", e.acct.FreeMargin, req.Side, req.Volume, req.Symbol)
		}
		res = broker.SubmitResult{Status: broker.SubmitFilled, Ticket: ticket, Price: price}
	} else {
		ticket := broker.Ticket(id.New())
		e.pending[ticket] = &broker.PendingOrder{
			Ticket:    ticket,
			Request:   req,
			CreatedAt: now,
		}
		res = broker.SubmitResult{Status: broker.SubmitPlaced, Ticket: ticket, Price: req.Price}
	}

	if lostResponse {
		return broker.SubmitResult{}, broker.ErrTimeout
	}
	return res, nil
}

func (e *Engine) findByClientLocked(clientID string) (broker.SubmitResult, bool) {
	for _, pos := range e.positions {
		if pos.ClientID == clientID {
			return broker.SubmitResult{Status: broker.SubmitFilled, Ticket: pos.Ticket, Price: pos.EntryPrice}, true
		}
	}
	for _, p := range e.pending {
		if p.Request.ClientID == clientID {
			return broker.SubmitResult{Status: broker.SubmitPlaced, Ticket: p.Ticket, Price: p.Request.Price}, true
		}
	}
	return broker.SubmitResult{}, false
}

func (e *Engine) Modify(ctx context.Context, ticket broker.Ticket, mod broker.ModifyRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if e.faults.TimeoutModifies > 0 {
		e.faults.TimeoutModifies--
		return broker.ErrTimeout
	}

	if pos, ok := e.positions[ticket]; ok {
		if mod.StopLoss != nil {
			pos.StopLoss = *mod.StopLoss
		}
		if mod.TakeProfit != nil {
			pos.TakeProfit = *mod.TakeProfit
		}
		if mod.Price != nil || mod.Expiry != nil {
			return broker.Reject(broker.ReasonUnsupported, "price/expiry modify on open position %s", ticket)
		}
		return nil
	}
	if p, ok := e.pending[ticket]; ok {
		if mod.StopLoss != nil {
			p.Request.StopLoss = *mod.StopLoss
		}
		if mod.TakeProfit != nil {
			p.Request.TakeProfit = *mod.TakeProfit
		}
		if mod.Price != nil {
			p.Request.Price = *mod.Price
		}
		if mod.Expiry != nil {
			p.Request.Expiry = *mod.Expiry
		}
		return nil
	}
	return broker.ErrAlreadyGone
}

func (e *Engine) Cancel(ctx context.Context, ticket broker.Ticket) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := e.pending[ticket]; ok {
		delete(e.pending, ticket)
		return nil
	}
	// Filled or long gone either way.
	return broker.ErrAlreadyGone
}

func (e *Engine) Close(ctx context.Context, ticket broker.Ticket, volume float64) (broker.Deal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return broker.Deal{}, err
	}

	pos, ok := e.positions[ticket]
	if !ok {
		return broker.Deal{}, broker.ErrAlreadyGone
	}
	t, ok := e.ticks[pos.Symbol]
	if !ok {
		return broker.Deal{}, broker.Reject(broker.ReasonMarketClosed, "no quote for %s", pos.Symbol)
	}
	now := t.Time
	if now.IsZero() {
		now = time.Now()
	}

	price := t.Bid
	if pos.Side == broker.Sell {
		price = t.Ask
	}

	lostResponse := false
	if e.faults.TimeoutCloses > 0 {
		e.faults.TimeoutCloses--
		if !e.faults.FillOnTimeout {
			return broker.Deal{}, broker.ErrTimeout
		}
		lostResponse = true
	}

	deal, ok := e.closeLocked(ticket, volume, price, now, "close")
	if !ok {
		return broker.Deal{}, broker.Reject(broker.ReasonInvalidPrice, "close %s failed", ticket)
	}
	if lostResponse {
		return broker.Deal{}, broker.ErrTimeout
	}
	return deal, nil
}

func (e *Engine) ListOpen(ctx context.Context) (broker.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return broker.Snapshot{}, err
	}

	snap := broker.Snapshot{
		Positions: make([]broker.Position, 0, len(e.positions)),
		Pending:   make([]broker.PendingOrder, 0, len(e.pending)),
	}
	for _, p := range e.positions {
		snap.Positions = append(snap.Positions, *p)
	}
	for _, p := range e.pending {
		snap.Pending = append(snap.Pending, *p)
	}
	return snap, nil
}
