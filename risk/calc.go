// Package risk implements the calculation engine and pre-submission
// validation. Every function here is pure: given the same symbol spec,
// account snapshot, and trade parameters it returns the same answer, which
// is what makes validator decisions reproducible in tests.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/market"
)

var (
	// ErrRiskTooSmall: the computed lot size rounds below the symbol's
	// minimum volume.
	ErrRiskTooSmall = errors.New("risk amount too small for minimum volume")

	// ErrInvalidTarget: the requested profit implies a non-positive price
	// or a move the symbol's precision cannot represent.
	ErrInvalidTarget = errors.New("invalid price target")
)

// maxTargetTicks bounds the implied move of a price target. Beyond this
// many ticks, rounding at the symbol's digit precision can no longer
// resolve single ticks and the target is meaningless.
const maxTargetTicks = 1e9

// Margin returns the capital reserved for a trade, in account currency.
//
// The base formula is volume x contract x price / leverage, adjusted by the
// symbol's margin mode: percentage mode scales by the initial margin
// percent, fixed-per-lot and formula modes ignore leverage entirely.
// quoteToAccount converts from the symbol's quote currency (see
// market.QuoteToAccountRate).
func Margin(spec market.SymbolSpec, side broker.Side, volume, price float64, acct broker.Account, quoteToAccount float64) (float64, error) {
	_ = side // margin is direction-independent for netted accounts

	if volume <= 0 || price <= 0 {
		return 0, fmt.Errorf("margin: volume and price must be positive (volume=%v price=%v)", volume, price)
	}
	if quoteToAccount <= 0 {
		return 0, fmt.Errorf("margin: conversion rate must be positive")
	}

	notional := volume * spec.ContractSize * price

	var m float64
	switch spec.MarginMode {
	case market.MarginPercentage:
		if acct.Leverage <= 0 {
			return 0, fmt.Errorf("margin: account leverage must be positive")
		}
		pct := spec.InitialMarginPct
		if pct <= 0 {
			pct = 100
		}
		m = notional / acct.Leverage * (pct / 100)
	case market.MarginFixedPerLot:
		m = volume * spec.FixedMarginPerLot
	case market.MarginFormula:
		m = notional * spec.MarginRate
	default:
		return 0, fmt.Errorf("margin: unknown margin mode %d", spec.MarginMode)
	}

	return m * quoteToAccount, nil
}

// Profit returns the P/L of moving from open to close, in account currency.
// Positive means gain for the given direction.
func Profit(spec market.SymbolSpec, side broker.Side, volume, open, close float64, quoteToAccount float64) (float64, error) {
	if volume <= 0 || open <= 0 || close <= 0 {
		return 0, fmt.Errorf("profit: volume and prices must be positive (volume=%v open=%v close=%v)", volume, open, close)
	}
	if spec.TickSize <= 0 {
		return 0, fmt.Errorf("profit: %s has no tick size", spec.Symbol)
	}

	delta := (close - open) * side.Sign()
	perPrice := volume * spec.ContractSize * (spec.TickValue / spec.TickSize)
	return delta * perPrice * quoteToAccount, nil
}

// PriceTarget solves Profit for the close price: the exit level at which
// the trade's P/L equals desiredProfit (negative for a stop level). The
// result is rounded to the symbol's digits, so
// Profit(..., PriceTarget(..., p)) ~= p within rounding tolerance.
func PriceTarget(spec market.SymbolSpec, side broker.Side, volume, open, desiredProfit float64, quoteToAccount float64) (float64, error) {
	if volume <= 0 || open <= 0 {
		return 0, fmt.Errorf("price target: volume and open price must be positive (volume=%v open=%v)", volume, open)
	}
	if spec.TickSize <= 0 {
		return 0, fmt.Errorf("price target: %s has no tick size", spec.Symbol)
	}

	perPrice := volume * spec.ContractSize * (spec.TickValue / spec.TickSize) * quoteToAccount
	if perPrice <= 0 {
		return 0, fmt.Errorf("price target: degenerate contract parameters for %s", spec.Symbol)
	}

	delta := desiredProfit / perPrice
	if math.Abs(delta)/spec.TickSize > maxTargetTicks {
		return 0, fmt.Errorf("%w: implied move of %.0f ticks exceeds %s precision", ErrInvalidTarget, math.Abs(delta)/spec.TickSize, spec.Symbol)
	}

	price := market.RoundToDigits(open+side.Sign()*delta, spec.Digits)
	if price <= 0 {
		return 0, fmt.Errorf("%w: implied price %v is not positive", ErrInvalidTarget, price)
	}
	return price, nil
}

// LotSize sizes a trade so that being stopped out after stopDistance (in
// price terms) loses riskAmount of account currency. The raw size is
// floored to the volume step and capped at the maximum; a result below the
// minimum volume fails with ErrRiskTooSmall.
func LotSize(spec market.SymbolSpec, riskAmount, stopDistance, quoteToAccount float64) (float64, error) {
	if riskAmount <= 0 || stopDistance <= 0 {
		return 0, fmt.Errorf("lot size: risk amount and stop distance must be positive (risk=%v stop=%v)", riskAmount, stopDistance)
	}
	if spec.TickSize <= 0 {
		return 0, fmt.Errorf("lot size: %s has no tick size", spec.Symbol)
	}

	lossPerLot := stopDistance * (spec.TickValue / spec.TickSize) * spec.ContractSize * quoteToAccount
	if lossPerLot <= 0 {
		return 0, fmt.Errorf("lot size: degenerate contract parameters for %s", spec.Symbol)
	}

	volume := market.FloorToStep(riskAmount/lossPerLot, spec.VolumeStep)
	if spec.VolumeMax > 0 && volume > spec.VolumeMax {
		volume = market.FloorToStep(spec.VolumeMax, spec.VolumeStep)
	}
	if volume < spec.VolumeMin {
		return 0, fmt.Errorf("%w: %v below minimum %v for %s", ErrRiskTooSmall, volume, spec.VolumeMin, spec.Symbol)
	}
	return volume, nil
}
