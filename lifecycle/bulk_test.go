package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/broker/sim"
	"github.com/tradepilot/tradepilot/market"
)

// openAt opens a buy at the given quote, leaving the quote in place.
func openAt(t *testing.T, mgr *Manager, engine *sim.Engine, bid, ask float64) broker.Ticket {
	t.Helper()

	engine.SetTick(market.Tick{Symbol: "EURUSD", Bid: bid, Ask: ask, Time: time.Now()})
	ticket, err := mgr.Submit(context.Background(), buyMarket(1.0))
	require.NoError(t, err)
	return ticket
}

func TestCloseAllEverything(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	openAt(t, mgr, engine, 1.0999, 1.1001)
	openAt(t, mgr, engine, 1.0999, 1.1001)

	report := mgr.CloseAll(context.Background(), All())
	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 0, report.Failed())
	assert.Empty(t, mgr.Positions())
}

func TestCloseAllOnlyProfitable(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})

	winner1 := openAt(t, mgr, engine, 1.0898, 1.0900)
	winner2 := openAt(t, mgr, engine, 1.0948, 1.0950)
	loser := openAt(t, mgr, engine, 1.1048, 1.1050)

	// Final quote: entries at 1.0900 and 1.0950 are ahead, 1.1050 is not.
	engine.SetTick(market.Tick{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002, Time: time.Now()})

	report := mgr.CloseAll(context.Background(), OnlyProfitable())
	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 0, report.Failed())
	assert.Len(t, report.Items, 2)

	// The loser was neither touched nor reported.
	remaining := mgr.Positions()
	require.Len(t, remaining, 1)
	assert.Equal(t, loser, remaining[0].Ticket)
	for _, it := range report.Items {
		assert.NotEqual(t, loser, it.Ticket)
	}
	_, ok := mgr.Position(winner1)
	assert.False(t, ok)
	_, ok = mgr.Position(winner2)
	assert.False(t, ok)
}

func TestCloseAllOnlyLosing(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	winner := openAt(t, mgr, engine, 1.0898, 1.0900)
	openAt(t, mgr, engine, 1.1048, 1.1050)

	engine.SetTick(market.Tick{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002, Time: time.Now()})

	report := mgr.CloseAll(context.Background(), OnlyLosing())
	assert.Equal(t, 1, report.Succeeded())

	remaining := mgr.Positions()
	require.Len(t, remaining, 1)
	assert.Equal(t, winner, remaining[0].Ticket)
}

func TestCloseAllIndependentFailures(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	openAt(t, mgr, engine, 1.0999, 1.1001)
	openAt(t, mgr, engine, 1.0999, 1.1001)

	// Every close attempt times out and reconciliation finds the volume
	// intact, so both tickets exhaust their retries; neither failure
	// stops the other from being attempted.
	engine.Inject(sim.Faults{TimeoutCloses: 100})

	report := mgr.CloseAll(context.Background(), All())
	assert.Equal(t, 0, report.Succeeded())
	assert.Equal(t, 2, report.Failed())
	assert.Len(t, report.FailedItems(), 2)
	assert.Len(t, mgr.Positions(), 2)
}

func TestCancelAllBySymbol(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	_, err := mgr.Submit(context.Background(), buyLimit(1.0, 1.0900))
	require.NoError(t, err)
	_, err = mgr.Submit(context.Background(), buyLimit(0.5, 1.0850))
	require.NoError(t, err)

	report := mgr.CancelAll(context.Background(), BySymbol("GBPUSD"))
	assert.Empty(t, report.Items)
	assert.Len(t, mgr.PendingOrders(), 2)

	report = mgr.CancelAll(context.Background(), BySymbol("EURUSD"))
	assert.Equal(t, 2, report.Succeeded())
	assert.Empty(t, mgr.PendingOrders())
}

func TestSweepExpiredCancelsOnlyExpired(t *testing.T) {
	mgr, _, _ := newTestManager(t, 100000, sim.Options{}, Options{})

	expiring := buyLimit(1.0, 1.0900)
	expiring.Expiry = time.Now().Add(time.Minute)
	expTicket, err := mgr.Submit(context.Background(), expiring)
	require.NoError(t, err)

	_, err = mgr.Submit(context.Background(), buyLimit(0.5, 1.0850))
	require.NoError(t, err)

	// Jump past the deadline.
	restore := nowFunc
	nowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
	defer func() { nowFunc = restore }()

	report := mgr.SweepExpired(context.Background())
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 0, report.Failed())
	require.Len(t, report.Items, 1)
	assert.Equal(t, expTicket, report.Items[0].Ticket)

	require.Len(t, mgr.PendingOrders(), 1)
	assert.InDelta(t, 1.0850, mgr.PendingOrders()[0].Request.Price, 1e-9)
}

func TestSweepExpiredTreatsGoneAsSwept(t *testing.T) {
	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})

	expiring := buyLimit(1.0, 1.0900)
	expiring.Expiry = time.Now().Add(time.Minute)
	_, err := mgr.Submit(context.Background(), expiring)
	require.NoError(t, err)

	// The gateway has already dropped it on its own clock.
	engine.SetTick(market.Tick{Symbol: "EURUSD", Bid: 1.0999, Ask: 1.1001, Time: time.Now().Add(2 * time.Minute)})

	restore := nowFunc
	nowFunc = func() time.Time { return time.Now().Add(2 * time.Minute) }
	defer func() { nowFunc = restore }()

	report := mgr.SweepExpired(context.Background())
	assert.Equal(t, 1, report.Succeeded())
	assert.Empty(t, mgr.PendingOrders())
}
