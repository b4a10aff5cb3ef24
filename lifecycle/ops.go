package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/logger"
	"github.com/tradepilot/tradepilot/market"
	"github.com/tradepilot/tradepilot/pkg/id"
	"github.com/tradepilot/tradepilot/risk"
)

// Submit validates and sends an order. The returned ticket identifies the
// new position (market) or pending order. Rejections come back as
// *broker.RejectionError with an enumerated reason; transient gateway
// failures are retried internally and only surface once retries exhaust.
func (m *Manager) Submit(ctx context.Context, req broker.OrderRequest) (broker.Ticket, error) {
	if req.ClientID == "" {
		req.ClientID = id.New()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	spec, err := m.specs.GetSpec(ctx, req.Symbol)
	if err != nil {
		if errors.Is(err, market.ErrSymbolNotFound) {
			return "", broker.Reject(broker.ReasonUnknownSymbol, "%s", req.Symbol)
		}
		return "", fmt.Errorf("symbol spec for %s: %w", req.Symbol, err)
	}
	acct, err := m.accounts.GetAccount(ctx)
	if err != nil {
		return "", fmt.Errorf("account state: %w", err)
	}
	tick, err := m.ticks.GetTick(ctx, req.Symbol)
	if err != nil {
		return "", broker.Reject(broker.ReasonMarketClosed, "no quote for %s", req.Symbol)
	}
	rate, err := market.QuoteToAccountRate(ctx, spec, acct.Currency, m.ticks)
	if err != nil {
		return "", fmt.Errorf("conversion rate: %w", err)
	}

	dec := m.validator.Check(req, spec, acct, tick, rate, m.openCount())
	if rejErr := dec.Err(); rejErr != nil {
		reason, _ := broker.ReasonOf(rejErr)
		rejectionsTotal.WithLabelValues(reason.String()).Inc()
		logger.Infof("lifecycle: submit %s rejected: %v", req.ClientID, rejErr)
		return "", rejErr
	}

	res, err := m.submitGateway(ctx, req)
	if err != nil {
		if reason, ok := broker.ReasonOf(err); ok {
			rejectionsTotal.WithLabelValues(reason.String()).Inc()
		}
		submitsTotal.WithLabelValues("failed").Inc()
		return "", err
	}

	m.stateMu.Lock()
	switch res.Status {
	case broker.SubmitFilled:
		m.positions[res.Ticket] = &broker.Position{
			Ticket:     res.Ticket,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Volume:     req.Volume,
			EntryPrice: res.Price,
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
			OpenTime:   nowFunc(),
			ClientID:   req.ClientID,
		}
	case broker.SubmitPlaced:
		m.pending[res.Ticket] = &broker.PendingOrder{
			Ticket:    res.Ticket,
			Request:   req,
			CreatedAt: nowFunc(),
		}
	}
	m.stateMu.Unlock()

	if res.Status == broker.SubmitFilled {
		m.recordDeal(broker.Deal{
			ID:             id.New(),
			PositionTicket: res.Ticket,
			Symbol:         req.Symbol,
			Side:           req.Side,
			Volume:         req.Volume,
			Price:          res.Price,
			Time:           nowFunc(),
			Reason:         "fill",
		})
		submitsTotal.WithLabelValues("filled").Inc()
	} else {
		submitsTotal.WithLabelValues("placed").Inc()
	}

	m.recordEquity(ctx)
	logger.Infof("lifecycle: submit %s -> %s %s %s %v @ %v (margin %.2f)",
		req.ClientID, res.Ticket, req.Side, req.Symbol, req.Volume, res.Price, dec.ProjectedMargin)
	return res.Ticket, nil
}

// submitGateway runs the retry discipline around Gateway.Submit. A timeout
// means the order may have landed, so each one is reconciled against
// gateway state before the attempt is repeated; requotes on market orders
// are retried exactly once against the refreshed quote.
func (m *Manager) submitGateway(ctx context.Context, req broker.OrderRequest) (broker.SubmitResult, error) {
	var lastErr error
	requoted := false

	for attempt := 0; attempt < m.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := m.retry.wait(ctx, attempt-1); err != nil {
				return broker.SubmitResult{}, fmt.Errorf("submit %s: %w (last gateway error: %v)", req.ClientID, err, lastErr)
			}
		}

		res, err := m.gw.Submit(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err

		switch {
		case broker.IsRequote(err) && req.Kind == broker.Market && !requoted:
			requoted = true
			retriesTotal.Inc()
			logger.Warnf("lifecycle: submit %s requoted, retrying once", req.ClientID)

		case errors.Is(err, broker.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
			reconciliationsTotal.Inc()
			if res, ok := m.reconcileSubmit(ctx, req.ClientID); ok {
				logger.Infof("lifecycle: submit %s resolved by reconciliation -> %s", req.ClientID, res.Ticket)
				return res, nil
			}
			// Not present at the gateway: that attempt was a no-op.
			retriesTotal.Inc()
			logger.Warnf("lifecycle: submit %s timed out and is not at gateway, retrying", req.ClientID)

		case errors.Is(err, broker.ErrNoConnection):
			retriesTotal.Inc()
			logger.Warnf("lifecycle: submit %s: no connection, retrying", req.ClientID)

		default:
			// Rejections and unexpected failures are final.
			return broker.SubmitResult{}, err
		}
	}

	return broker.SubmitResult{}, fmt.Errorf("submit %s: retries exhausted: %w", req.ClientID, lastErr)
}

// Modify changes stop-loss/take-profit of a position, or price, stops, and
// expiry of a pending order.
func (m *Manager) Modify(ctx context.Context, ticket broker.Ticket, mod broker.ModifyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stateMu.RLock()
	pos, isPos := m.positions[ticket]
	ord, isOrd := m.pending[ticket]
	m.stateMu.RUnlock()

	switch {
	case isPos:
		if mod.Price != nil || mod.Expiry != nil {
			return broker.Reject(broker.ReasonUnsupported, "price/expiry apply to pending orders only")
		}
		tick, err := m.ticks.GetTick(ctx, pos.Symbol)
		if err != nil {
			return broker.Reject(broker.ReasonMarketClosed, "no quote for %s", pos.Symbol)
		}
		ref := tick.Bid
		if pos.Side == broker.Sell {
			ref = tick.Ask
		}
		sl, tp := resolved(pos.StopLoss, mod.StopLoss), resolved(pos.TakeProfit, mod.TakeProfit)
		if !risk.StopsValid(pos.Side, ref, sl, tp) {
			return broker.Reject(broker.ReasonInvalidStops,
				"sl=%v tp=%v on wrong side of %v for %s %s", sl, tp, ref, pos.Side, pos.Symbol)
		}

	case isOrd:
		ref := ord.Request.Price
		if mod.Price != nil {
			ref = *mod.Price
		}
		sl, tp := resolved(ord.Request.StopLoss, mod.StopLoss), resolved(ord.Request.TakeProfit, mod.TakeProfit)
		if !risk.StopsValid(ord.Request.Side, ref, sl, tp) {
			return broker.Reject(broker.ReasonInvalidStops,
				"sl=%v tp=%v on wrong side of %v for %s %s", sl, tp, ref, ord.Request.Side, ord.Request.Symbol)
		}

	default:
		return broker.ErrTicketNotFound
	}

	// Modify sets absolute values, so retrying a timed-out call is safe.
	if err := m.callIdempotent(ctx, func(c context.Context) error {
		return m.gw.Modify(c, ticket, mod)
	}); err != nil {
		return err
	}

	m.stateMu.Lock()
	if isPos {
		pos.StopLoss = resolved(pos.StopLoss, mod.StopLoss)
		pos.TakeProfit = resolved(pos.TakeProfit, mod.TakeProfit)
	} else {
		if mod.StopLoss != nil {
			ord.Request.StopLoss = *mod.StopLoss
		}
		if mod.TakeProfit != nil {
			ord.Request.TakeProfit = *mod.TakeProfit
		}
		if mod.Price != nil {
			ord.Request.Price = *mod.Price
		}
		if mod.Expiry != nil {
			ord.Request.Expiry = *mod.Expiry
		}
	}
	m.stateMu.Unlock()

	logger.Infof("lifecycle: modify %s applied", ticket)
	return nil
}

// Cancel removes a pending order. A ticket that has filled in the meantime
// returns ErrAlreadyGone; a ticket this manager has never seen returns
// ErrTicketNotFound.
func (m *Manager) Cancel(ctx context.Context, ticket broker.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stateMu.RLock()
	_, isPos := m.positions[ticket]
	_, isOrd := m.pending[ticket]
	m.stateMu.RUnlock()

	if isPos {
		return broker.ErrAlreadyGone
	}
	if !isOrd {
		return broker.ErrTicketNotFound
	}

	err := m.callIdempotent(ctx, func(c context.Context) error {
		return m.gw.Cancel(c, ticket)
	})
	if err != nil && !errors.Is(err, broker.ErrAlreadyGone) {
		return err
	}

	m.stateMu.Lock()
	delete(m.pending, ticket)
	m.stateMu.Unlock()

	if errors.Is(err, broker.ErrAlreadyGone) {
		// Filled or expired between our snapshot and the cancel.
		logger.Infof("lifecycle: cancel %s: already gone at gateway", ticket)
		return broker.ErrAlreadyGone
	}
	logger.Infof("lifecycle: cancelled %s", ticket)
	return nil
}

// callIdempotent retries an idempotent gateway call through transient
// failures, including timeouts.
func (m *Manager) callIdempotent(ctx context.Context, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < m.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := m.retry.wait(ctx, attempt-1); err != nil {
				return fmt.Errorf("%w (last gateway error: %v)", err, lastErr)
			}
		}
		err := call(ctx)
		if err == nil || !broker.IsTransient(err) {
			return err
		}
		lastErr = err
		retriesTotal.Inc()
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}

func resolved(current float64, override *float64) float64 {
	if override != nil {
		return *override
	}
	return current
}
