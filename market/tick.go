package market

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNoTick = errors.New("no tick for instrument")

type Tick struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// FillPrice is the side of the quote a market order of the given direction
// executes at: buys lift the ask, sells hit the bid.
func (t Tick) FillPrice(buy bool) float64 {
	if buy {
		return t.Ask
	}
	return t.Bid
}

type TickSource interface {
	GetTick(ctx context.Context, symbol string) (Tick, error)
}

// TickStore is a concurrency-safe latest-tick cache keyed by symbol.
type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (s *TickStore) Set(t Tick) {
	s.mu.Lock()
	s.ticks[t.Symbol] = t
	s.mu.Unlock()
}

func (s *TickStore) GetTick(_ context.Context, symbol string) (Tick, error) {
	s.mu.RLock()
	t, ok := s.ticks[symbol]
	s.mu.RUnlock()
	if !ok {
		return Tick{}, ErrNoTick
	}
	return t, nil
}
