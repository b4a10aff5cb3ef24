package market

import (
	"context"
	"errors"
)

// MarginMode selects how margin is computed for a symbol.
type MarginMode int

const (
	// MarginPercentage: notional / leverage, scaled by the initial margin
	// percent. The common mode for FX pairs.
	MarginPercentage MarginMode = iota
	// MarginFixedPerLot: a fixed amount per lot, leverage independent.
	MarginFixedPerLot
	// MarginFormula: instrument-specific rate applied to the notional,
	// leverage independent. Typical for CFDs and metals.
	MarginFormula
)

func (m MarginMode) String() string {
	switch m {
	case MarginFixedPerLot:
		return "fixed-per-lot"
	case MarginFormula:
		return "formula"
	default:
		return "percentage"
	}
}

// SymbolSpec is the per-instrument contract. Immutable per query; the
// provider is consulted again whenever fresh values are needed.
type SymbolSpec struct {
	Symbol       string
	ContractSize float64
	TickSize     float64
	TickValue    float64 // value of one tick per lot, in quote currency
	Digits       int

	VolumeMin  float64
	VolumeMax  float64
	VolumeStep float64

	MarginMode        MarginMode
	InitialMarginPct  float64 // percentage mode, e.g. 100
	MarginRate        float64 // formula mode, fraction of notional
	FixedMarginPerLot float64 // fixed-per-lot mode, quote currency

	QuoteCurrency string
}

var ErrSymbolNotFound = errors.New("symbol not found")

// SpecProvider resolves contract parameters for an instrument.
type SpecProvider interface {
	GetSpec(ctx context.Context, symbol string) (SymbolSpec, error)
}

// StaticSpecs is a SpecProvider over a fixed map, used by the sim gateway
// and tests.
type StaticSpecs map[string]SymbolSpec

func (s StaticSpecs) GetSpec(_ context.Context, symbol string) (SymbolSpec, error) {
	spec, ok := s[symbol]
	if !ok {
		return SymbolSpec{}, ErrSymbolNotFound
	}
	return spec, nil
}
