// Package sim is an in-process execution gateway: market and pending
// orders fill against a latest-tick book, positions carry SL/TP triggers,
// and the account revalues after every event. It backs the simrun command
// and stands in for the broker terminal in lifecycle tests, including its
// failure modes (timeouts, requotes, lost responses).
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/logger"
	"github.com/tradepilot/tradepilot/market"
	"github.com/tradepilot/tradepilot/pkg/id"
	"github.com/tradepilot/tradepilot/risk"
)

type Options struct {
	// StopOutLevel is the margin level percent below which the engine
	// force-closes the biggest loser. 0 disables stop-out.
	StopOutLevel float64

	// ReissueTicketOnPartialClose makes partial closes move the surviving
	// volume to a fresh ticket, as some brokers do.
	ReissueTicketOnPartialClose bool
}

type Engine struct {
	mu        sync.Mutex
	acct      broker.Account
	specs     market.StaticSpecs
	ticks     map[string]market.Tick
	positions map[broker.Ticket]*broker.Position
	pending   map[broker.Ticket]*broker.PendingOrder
	deals     []broker.Deal
	opts      Options
	faults    Faults
}

func New(acct broker.Account, specs market.StaticSpecs, opts Options) *Engine {
	if acct.Equity == 0 {
		acct.Equity = acct.Balance
	}
	if acct.Leverage == 0 {
		acct.Leverage = 100
	}
	acct.FreeMargin = acct.Equity
	return &Engine{
		acct:      acct,
		specs:     specs,
		ticks:     make(map[string]market.Tick),
		positions: make(map[broker.Ticket]*broker.Position),
		pending:   make(map[broker.Ticket]*broker.PendingOrder),
		opts:      opts,
	}
}

func (e *Engine) GetAccount(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct, nil
}

func (e *Engine) GetSpec(ctx context.Context, symbol string) (market.SymbolSpec, error) {
	return e.specs.GetSpec(ctx, symbol)
}

func (e *Engine) GetTick(ctx context.Context, symbol string) (market.Tick, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.ticks[symbol]
	if !ok {
		return market.Tick{}, market.ErrNoTick
	}
	return t, nil
}

// Deals returns a copy of every deal the engine has executed, in order.
func (e *Engine) Deals() []broker.Deal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]broker.Deal, len(e.deals))
	copy(out, e.deals)
	return out
}

// SetTick publishes a quote and runs the book: pending expiry and
// triggers, SL/TP exits, revaluation, and stop-out.
func (e *Engine) SetTick(t market.Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ticks[t.Symbol] = t
	now := t.Time
	if now.IsZero() {
		now = time.Now()
	}

	e.expirePendingLocked(now)
	e.triggerPendingLocked(t, now)
	e.triggerExitsLocked(t, now)
	e.revalueLocked()
	e.stopOutLocked(now)
}

func (e *Engine) expirePendingLocked(now time.Time) {
	for tk, p := range e.pending {
		if p.Expired(now) {
			delete(e.pending, tk)
			logger.Infof("sim: pending %s expired", tk)
		}
	}
}

func (e *Engine) triggerPendingLocked(t market.Tick, now time.Time) {
	for tk, p := range e.pending {
		if p.Request.Symbol != t.Symbol {
			continue
		}
		req := p.Request
		switch req.Kind {
		case broker.Limit:
			if (req.Side == broker.Buy && t.Ask <= req.Price) ||
				(req.Side == broker.Sell && t.Bid >= req.Price) {
				delete(e.pending, tk)
				e.fillLocked(req, t.FillPrice(req.Side == broker.Buy), now)
			}
		case broker.Stop:
			if (req.Side == broker.Buy && t.Ask >= req.Price) ||
				(req.Side == broker.Sell && t.Bid <= req.Price) {
				delete(e.pending, tk)
				e.fillLocked(req, t.FillPrice(req.Side == broker.Buy), now)
			}
		case broker.StopLimit:
			if (req.Side == broker.Buy && t.Ask >= req.StopPrice) ||
				(req.Side == broker.Sell && t.Bid <= req.StopPrice) {
				// Trigger converts the order into a resting limit.
				p.Request.Kind = broker.Limit
				p.Request.StopPrice = 0
			}
		}
	}
}

func (e *Engine) triggerExitsLocked(t market.Tick, now time.Time) {
	for _, pos := range e.snapshotPositionsLocked() {
		if pos.Symbol != t.Symbol {
			continue
		}
		long := pos.Side == broker.Buy
		exit := t.Bid
		if !long {
			exit = t.Ask
		}
		switch {
		case pos.StopLoss != 0 && (long && exit <= pos.StopLoss || !long && exit >= pos.StopLoss):
			e.closeLocked(pos.Ticket, pos.Volume, pos.StopLoss, now, "stop loss")
		case pos.TakeProfit != 0 && (long && exit >= pos.TakeProfit || !long && exit <= pos.TakeProfit):
			e.closeLocked(pos.Ticket, pos.Volume, pos.TakeProfit, now, "take profit")
		}
	}
}

// fillLocked opens a position from a validated fill. Margin is checked
// gateway-side too: a pending order triggering into an account that can no
// longer carry it is dropped.
func (e *Engine) fillLocked(req broker.OrderRequest, price float64, now time.Time) (broker.Ticket, bool) {
	spec, ok := e.specs[req.Symbol]
	if !ok {
		return "", false
	}
	rate := e.rateLocked(spec)

	required, err := risk.Margin(spec, req.Side, req.Volume, price, e.acct, rate)
	if err != nil || required > e.acct.FreeMargin {
		logger.Warnf("sim: dropping %s %s %v: margin %.2f exceeds free %.2f",
			req.Side, req.Symbol, req.Volume, required, e.acct.FreeMargin)
		return "", false
	}

	ticket := broker.Ticket(id.New())
	e.positions[ticket] = &broker.Position{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		EntryPrice: price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenTime:   now,
		ClientID:   req.ClientID,
	}
	e.deals = append(e.deals, broker.Deal{
		ID:             id.New(),
		PositionTicket: ticket,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Volume:         req.Volume,
		Price:          price,
		Time:           now,
		Reason:         "fill",
	})
	e.revalueLocked()
	return ticket, true
}

// closeLocked realizes P/L on volume of a position at price. Returns the
// close deal.
func (e *Engine) closeLocked(ticket broker.Ticket, volume, price float64, now time.Time, reason string) (broker.Deal, bool) {
	pos, ok := e.positions[ticket]
	if !ok {
		return broker.Deal{}, false
	}
	spec := e.specs[pos.Symbol]
	rate := e.rateLocked(spec)

	if volume <= 0 || volume > pos.Volume {
		volume = pos.Volume
	}

	profit, err := risk.Profit(spec, pos.Side, volume, pos.EntryPrice, price, rate)
	if err != nil {
		logger.Warnf("sim: close %s: %v", ticket, err)
		return broker.Deal{}, false
	}

	deal := broker.Deal{
		ID:             id.New(),
		PositionTicket: ticket,
		Symbol:         pos.Symbol,
		Side:           pos.Side.Opposite(),
		Volume:         volume,
		Price:          price,
		Profit:         profit,
		Time:           now,
		Reason:         reason,
	}

	e.acct.Balance += profit
	pos.Volume -= volume
	if pos.Volume <= 1e-9 {
		delete(e.positions, ticket)
	} else if e.opts.ReissueTicketOnPartialClose {
		next := broker.Ticket(id.New())
		pos.Ticket = next
		e.positions[next] = pos
		delete(e.positions, ticket)
		deal.RemainderTicket = next
	}

	e.deals = append(e.deals, deal)
	e.revalueLocked()
	return deal, true
}

// revalueLocked recomputes unrealized P/L, equity, and margin from current
// quotes. Positions without a quote keep their last valuation.
func (e *Engine) revalueLocked() {
	var unrealized, used float64
	for _, pos := range e.positions {
		spec := e.specs[pos.Symbol]
		rate := e.rateLocked(spec)

		if t, ok := e.ticks[pos.Symbol]; ok {
			exit := t.Bid
			if pos.Side == broker.Sell {
				exit = t.Ask
			}
			if pl, err := risk.Profit(spec, pos.Side, pos.Volume, pos.EntryPrice, exit, rate); err == nil {
				pos.Profit = pl
			}
		}
		unrealized += pos.Profit

		if m, err := risk.Margin(spec, pos.Side, pos.Volume, pos.EntryPrice, e.acct, rate); err == nil {
			used += m
		}
	}

	e.acct.Equity = e.acct.Balance + unrealized
	e.acct.MarginUsed = used
	e.acct.FreeMargin = e.acct.Equity - used
	if used > 0 {
		e.acct.MarginLevel = e.acct.Equity / used * 100
	} else {
		e.acct.MarginLevel = 0
	}
}

// stopOutLocked force-closes the worst position while the margin level sits
// below the stop-out threshold.
func (e *Engine) stopOutLocked(now time.Time) {
	if e.opts.StopOutLevel <= 0 {
		return
	}
	for e.acct.MarginUsed > 0 && e.acct.MarginLevel < e.opts.StopOutLevel && len(e.positions) > 0 {
		var worst *broker.Position
		for _, pos := range e.positions {
			if worst == nil || pos.Profit < worst.Profit {
				worst = pos
			}
		}
		t, ok := e.ticks[worst.Symbol]
		if !ok {
			return
		}
		price := t.Bid
		if worst.Side == broker.Sell {
			price = t.Ask
		}
		logger.Warnf("sim: stop out %s at margin level %.1f%%", worst.Ticket, e.acct.MarginLevel)
		e.closeLocked(worst.Ticket, worst.Volume, price, now, "stop out")
	}
}

// rateLocked converts quote currency to account currency from the engine's
// own book; 1.0 when no conversion pair is quoted.
func (e *Engine) rateLocked(spec market.SymbolSpec) float64 {
	if spec.QuoteCurrency == e.acct.Currency {
		return 1.0
	}
	if t, ok := e.ticks[spec.QuoteCurrency+e.acct.Currency]; ok && t.Mid() > 0 {
		return t.Mid()
	}
	if t, ok := e.ticks[e.acct.Currency+spec.QuoteCurrency]; ok && t.Mid() > 0 {
		return 1.0 / t.Mid()
	}
	return 1.0
}

func (e *Engine) snapshotPositionsLocked() []*broker.Position {
	out := make([]*broker.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	return out
}
