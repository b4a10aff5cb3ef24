package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/broker/sim"
	"github.com/tradepilot/tradepilot/market"
)

func TestSubmitMarketFillTracksPositionAndJournals(t *testing.T) {
	t.Parallel()

	mgr, engine, jour := newTestManager(t, 100000, sim.Options{}, Options{})

	ticket, err := mgr.Submit(context.Background(), buyMarket(1.0))
	require.NoError(t, err)
	require.NotEmpty(t, ticket)

	pos, ok := mgr.Position(ticket)
	require.True(t, ok)
	assert.InDelta(t, 1.1001, pos.EntryPrice, 1e-9)
	assert.NotEmpty(t, pos.ClientID)

	// Manager and gateway agree on the live set.
	snap, err := engine.ListOpen(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, ticket, snap.Positions[0].Ticket)

	deals := jour.Deals()
	require.Len(t, deals, 1)
	assert.Equal(t, "fill", deals[0].Reason)
	assert.Equal(t, ticket, deals[0].PositionTicket)
}

func TestSubmitPendingPlacement(t *testing.T) {
	t.Parallel()

	mgr, _, jour := newTestManager(t, 100000, sim.Options{}, Options{})

	ticket, err := mgr.Submit(context.Background(), buyLimit(1.0, 1.0900))
	require.NoError(t, err)

	assert.Empty(t, mgr.Positions())
	require.Len(t, mgr.PendingOrders(), 1)
	assert.Equal(t, ticket, mgr.PendingOrders()[0].Ticket)

	// Placements are not executions; nothing to journal yet.
	assert.Empty(t, jour.Deals())
}

func TestSubmitRejectedByValidator(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})

	req := buyMarket(1.0)
	req.StopLoss = 1.2000 // wrong side for a buy

	_, err := mgr.Submit(context.Background(), req)
	reason, ok := broker.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, broker.ReasonInvalidStops, reason)

	// Rejected before the gateway ever saw it.
	assert.Empty(t, engine.Deals())
	assert.Empty(t, mgr.Positions())
}

func TestSubmitUnknownSymbolRejected(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t, 100000, sim.Options{}, Options{})

	_, err := mgr.Submit(context.Background(), broker.OrderRequest{
		Symbol: "NOPE", Side: broker.Buy, Kind: broker.Market, Volume: 1,
	})
	reason, ok := broker.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, broker.ReasonUnknownSymbol, reason)
}

func TestSubmitRetriesThroughConnectionLoss(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	engine.Inject(sim.Faults{NoConnSubmits: 2})

	ticket, err := mgr.Submit(context.Background(), buyMarket(1.0))
	require.NoError(t, err)
	_, ok := mgr.Position(ticket)
	assert.True(t, ok)
}

func TestSubmitExhaustsRetries(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	engine.Inject(sim.Faults{NoConnSubmits: 3})

	_, err := mgr.Submit(context.Background(), buyMarket(1.0))
	assert.ErrorIs(t, err, broker.ErrNoConnection)
	assert.Empty(t, mgr.Positions())
}

func TestSubmitRequoteRetriedOnce(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})

	engine.Inject(sim.Faults{RequoteSubmits: 1})
	_, err := mgr.Submit(context.Background(), buyMarket(1.0))
	assert.NoError(t, err)

	// A second requote in the same operation is final.
	engine.Inject(sim.Faults{RequoteSubmits: 2})
	_, err = mgr.Submit(context.Background(), buyMarket(1.0))
	reason, ok := broker.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, broker.ReasonRequote, reason)
}

func TestSubmitGatewayRejectionNotRetried(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	rej := &broker.RejectionError{Reason: broker.ReasonMarketClosed, Detail: "weekend"}
	engine.Inject(sim.Faults{RejectSubmit: rej})

	_, err := mgr.Submit(context.Background(), buyMarket(1.0))
	reason, ok := broker.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, broker.ReasonMarketClosed, reason)

	// The fault script consumed exactly one call: no retries happened.
	assert.Empty(t, engine.Deals())
}

func TestSubmitTimeoutReconcilesLostFill(t *testing.T) {
	t.Parallel()

	mgr, engine, jour := newTestManager(t, 100000, sim.Options{}, Options{})

	// The gateway accepts the order but the response is lost.
	engine.Inject(sim.Faults{TimeoutSubmits: 1, FillOnTimeout: true})

	ticket, err := mgr.Submit(context.Background(), buyMarket(1.0))
	require.NoError(t, err)

	// Exactly one fill at the gateway: reconciliation matched the client
	// tag instead of resubmitting.
	assert.Len(t, engine.Deals(), 1)
	snap, _ := engine.ListOpen(context.Background())
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, snap.Positions[0].Ticket, ticket)
	assert.Len(t, jour.Deals(), 1)
}

func TestSubmitTimeoutWithNoFillRetries(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	engine.Inject(sim.Faults{TimeoutSubmits: 1})

	ticket, err := mgr.Submit(context.Background(), buyMarket(1.0))
	require.NoError(t, err)

	// The timed-out attempt was a no-op; the retry filled exactly once.
	assert.Len(t, engine.Deals(), 1)
	_, ok := mgr.Position(ticket)
	assert.True(t, ok)
}

func TestConcurrentSubmitsCannotOverdrawMargin(t *testing.T) {
	t.Parallel()

	// One lot reserves ~1100. With 1500 of equity the first fill leaves
	// far too little free margin for a second.
	mgr, _, _ := newTestManager(t, 1500, sim.Options{}, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Submit(context.Background(), buyMarket(1.0))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var okCount, marginRejects int
	for err := range errs {
		if err == nil {
			okCount++
			continue
		}
		reason, ok := broker.ReasonOf(err)
		require.True(t, ok, "unexpected error: %v", err)
		assert.Equal(t, broker.ReasonInsufficientMargin, reason)
		marginRejects++
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, marginRejects)
	assert.Len(t, mgr.Positions(), 1)
}

func TestModifyPositionStops(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	ticket, err := mgr.Submit(context.Background(), buyMarket(1.0))
	require.NoError(t, err)

	sl, tp := 1.0900, 1.1200
	require.NoError(t, mgr.Modify(context.Background(), ticket, broker.ModifyRequest{StopLoss: &sl, TakeProfit: &tp}))

	pos, _ := mgr.Position(ticket)
	assert.Equal(t, sl, pos.StopLoss)
	assert.Equal(t, tp, pos.TakeProfit)

	// Gateway agrees.
	snap, _ := engine.ListOpen(context.Background())
	assert.Equal(t, sl, snap.Positions[0].StopLoss)
}

func TestModifyRejectsStopsOnWrongSide(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	ticket, err := mgr.Submit(context.Background(), buyMarket(1.0))
	require.NoError(t, err)

	sl := 1.2000 // above the bid on a buy
	err = mgr.Modify(context.Background(), ticket, broker.ModifyRequest{StopLoss: &sl})
	reason, ok := broker.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, broker.ReasonInvalidStops, reason)

	pos, _ := mgr.Position(ticket)
	assert.Zero(t, pos.StopLoss)
}

func TestModifyPendingPriceAndExpiry(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	ticket, err := mgr.Submit(context.Background(), buyLimit(1.0, 1.0900))
	require.NoError(t, err)

	price := 1.0850
	expiry := time.Now().Add(time.Hour)
	require.NoError(t, mgr.Modify(context.Background(), ticket, broker.ModifyRequest{Price: &price, Expiry: &expiry}))

	orders := mgr.PendingOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, price, orders[0].Request.Price)
	assert.Equal(t, expiry, orders[0].Request.Expiry)
}

func TestModifyPositionPriceUnsupported(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	ticket, err := mgr.Submit(context.Background(), buyMarket(1.0))
	require.NoError(t, err)

	price := 1.0950
	err = mgr.Modify(context.Background(), ticket, broker.ModifyRequest{Price: &price})
	reason, ok := broker.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, broker.ReasonUnsupported, reason)
}

func TestModifyRetriesTimeouts(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	ticket, err := mgr.Submit(context.Background(), buyMarket(1.0))
	require.NoError(t, err)

	engine.Inject(sim.Faults{TimeoutModifies: 2})
	sl := 1.0900
	require.NoError(t, mgr.Modify(context.Background(), ticket, broker.ModifyRequest{StopLoss: &sl}))

	pos, _ := mgr.Position(ticket)
	assert.Equal(t, sl, pos.StopLoss)
}

func TestModifyUnknownTicket(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	sl := 1.0900
	err := mgr.Modify(context.Background(), "no-such-ticket", broker.ModifyRequest{StopLoss: &sl})
	assert.ErrorIs(t, err, broker.ErrTicketNotFound)
}

func TestCancelPendingOrder(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	ticket, err := mgr.Submit(context.Background(), buyLimit(1.0, 1.0900))
	require.NoError(t, err)

	require.NoError(t, mgr.Cancel(context.Background(), ticket))
	assert.Empty(t, mgr.PendingOrders())
}

func TestCancelFilledPositionAlreadyGone(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	ticket, err := mgr.Submit(context.Background(), buyMarket(1.0))
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.Cancel(context.Background(), ticket), broker.ErrAlreadyGone)
	assert.Len(t, mgr.Positions(), 1)
}

func TestCancelRacesWithGatewayFill(t *testing.T) {
	t.Parallel()

	mgr, engine, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	ticket, err := mgr.Submit(context.Background(), buyLimit(1.0, 1.0950))
	require.NoError(t, err)

	// The order fills at the gateway before the cancel arrives.
	engine.SetTick(market.Tick{Symbol: "EURUSD", Bid: 1.0948, Ask: 1.0950, Time: time.Now()})

	err = mgr.Cancel(context.Background(), ticket)
	assert.ErrorIs(t, err, broker.ErrAlreadyGone)
	assert.Empty(t, mgr.PendingOrders())
}

func TestCancelUnknownTicket(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t, 100000, sim.Options{}, Options{})
	err := mgr.Cancel(context.Background(), "no-such-ticket")
	assert.True(t, errors.Is(err, broker.ErrTicketNotFound))
}
