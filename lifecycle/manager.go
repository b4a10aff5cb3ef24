// Package lifecycle owns the state machine for orders and positions. One
// Manager serves one account session: every mutating operation is
// serialized behind its mutex from the pre-validation account fetch to
// gateway completion, so two concurrent submits can never both pass a
// margin check the pair of them would jointly overdraw. Read operations
// run in parallel and never wait on the gateway.
package lifecycle

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/journal"
	"github.com/tradepilot/tradepilot/logger"
	"github.com/tradepilot/tradepilot/market"
	"github.com/tradepilot/tradepilot/risk"
)

type Options struct {
	Policy risk.Policy
	Retry  RetryPolicy

	// PartialCloseReissuesTicket declares whether the gateway moves the
	// surviving volume of a partial close to a fresh ticket. The manager
	// follows what the gateway actually reports and warns on a mismatch,
	// since this varies by broker.
	PartialCloseReissuesTicket bool
}

type Manager struct {
	// mu serializes mutating operations for the account. Held from
	// validation through gateway completion.
	mu sync.Mutex

	// stateMu guards the live set so reads proceed while a mutating call
	// is blocked on the gateway.
	stateMu sync.RWMutex

	gw        broker.Gateway
	specs     market.SpecProvider
	ticks     market.TickSource
	accounts  broker.AccountProvider
	validator risk.Validator
	retry     RetryPolicy
	jour      journal.Journal
	opts      Options

	positions map[broker.Ticket]*broker.Position
	pending   map[broker.Ticket]*broker.PendingOrder
	deals     []broker.Deal
}

func New(gw broker.Gateway, specs market.SpecProvider, ticks market.TickSource, accounts broker.AccountProvider, jour journal.Journal, opts Options) *Manager {
	if jour == nil {
		jour = journal.Nop{}
	}
	return &Manager{
		gw:        gw,
		specs:     specs,
		ticks:     ticks,
		accounts:  accounts,
		validator: risk.NewValidator(opts.Policy),
		retry:     opts.Retry.normalized(),
		jour:      jour,
		opts:      opts,
		positions: make(map[broker.Ticket]*broker.Position),
		pending:   make(map[broker.Ticket]*broker.PendingOrder),
	}
}

// Resync replaces the live set with the gateway's view. Called at startup
// and after ambiguous outcomes that cannot be resolved more precisely.
func (m *Manager) Resync(ctx context.Context) error {
	snap, err := m.gw.ListOpen(ctx)
	if err != nil {
		return err
	}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	m.positions = make(map[broker.Ticket]*broker.Position, len(snap.Positions))
	for i := range snap.Positions {
		p := snap.Positions[i]
		m.positions[p.Ticket] = &p
	}
	m.pending = make(map[broker.Ticket]*broker.PendingOrder, len(snap.Pending))
	for i := range snap.Pending {
		p := snap.Pending[i]
		m.pending[p.Ticket] = &p
	}

	logger.Infof("lifecycle: resynced %d positions, %d pending orders", len(m.positions), len(m.pending))
	return nil
}

// Positions returns a copy of the open positions.
func (m *Manager) Positions() []broker.Position {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	out := make([]broker.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Position returns one open position by ticket.
func (m *Manager) Position(ticket broker.Ticket) (broker.Position, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	p, ok := m.positions[ticket]
	if !ok {
		return broker.Position{}, false
	}
	return *p, true
}

// PendingOrders returns a copy of the resting orders, excluding any whose
// deadline has already elapsed.
func (m *Manager) PendingOrders() []broker.PendingOrder {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	now := nowFunc()
	out := make([]broker.PendingOrder, 0, len(m.pending))
	for _, p := range m.pending {
		if p.Expired(now) {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Deals returns the deals this manager has produced, in order.
func (m *Manager) Deals() []broker.Deal {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	out := make([]broker.Deal, len(m.deals))
	copy(out, m.deals)
	return out
}

// Value computes a position's unrealized profit from the current quote and
// a fresh symbol spec, in account currency. Read-only; runs without the
// operation lock.
func (m *Manager) Value(ctx context.Context, pos broker.Position) (float64, error) {
	spec, err := m.specs.GetSpec(ctx, pos.Symbol)
	if err != nil {
		return 0, err
	}
	tick, err := m.ticks.GetTick(ctx, pos.Symbol)
	if err != nil {
		return 0, err
	}
	acct, err := m.accounts.GetAccount(ctx)
	if err != nil {
		return 0, err
	}
	rate, err := market.QuoteToAccountRate(ctx, spec, acct.Currency, m.ticks)
	if err != nil {
		return 0, err
	}

	exit := tick.Bid
	if pos.Side == broker.Sell {
		exit = tick.Ask
	}
	return risk.Profit(spec, pos.Side, pos.Volume, pos.EntryPrice, exit, rate)
}

// Valuations values a set of positions concurrently. Failures for
// individual positions are reported per ticket, not fatal to the batch.
func (m *Manager) Valuations(ctx context.Context, positions []broker.Position) (map[broker.Ticket]float64, map[broker.Ticket]error) {
	values := make(map[broker.Ticket]float64, len(positions))
	errs := make(map[broker.Ticket]error)
	var valMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, pos := range positions {
		pos := pos
		g.Go(func() error {
			v, err := m.Value(gctx, pos)
			valMu.Lock()
			if err != nil {
				errs[pos.Ticket] = err
			} else {
				values[pos.Ticket] = v
			}
			valMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return values, errs
}

func (m *Manager) openCount() int {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return len(m.positions)
}

// recordEquity journals a fresh account snapshot after a mutating
// operation. Best effort: journaling failures are logged, not surfaced.
func (m *Manager) recordEquity(ctx context.Context) {
	acct, err := m.accounts.GetAccount(ctx)
	if err != nil {
		logger.Warnf("lifecycle: equity snapshot skipped: %v", err)
		return
	}
	if err := m.jour.RecordEquity(journal.EquitySnapshot{
		Time:        nowFunc(),
		Balance:     acct.Balance,
		Equity:      acct.Equity,
		MarginUsed:  acct.MarginUsed,
		FreeMargin:  acct.FreeMargin,
		MarginLevel: acct.MarginLevel,
	}); err != nil {
		logger.Warnf("lifecycle: record equity: %v", err)
	}
}

func (m *Manager) recordDeal(d broker.Deal) {
	m.stateMu.Lock()
	m.deals = append(m.deals, d)
	m.stateMu.Unlock()
	if err := m.jour.RecordDeal(d); err != nil {
		logger.Warnf("lifecycle: record deal %s: %v", d.ID, err)
	}
}
