package risk

import (
	"fmt"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/market"
)

type Violation struct {
	Code broker.RejectReason
	Msg  string
}

// Decision is the validator's verdict. Checks short-circuit, so a rejected
// decision carries exactly the first violation found.
type Decision struct {
	Allowed    bool
	Violations []Violation

	// ProjectedMargin is the margin the order would reserve, in account
	// currency. Valid once the margin check has run.
	ProjectedMargin float64
}

func (d *Decision) reject(code broker.RejectReason, format string, args ...any) {
	d.Allowed = false
	d.Violations = append(d.Violations, Violation{Code: code, Msg: fmt.Sprintf(format, args...)})
}

// Err converts a rejected decision into a typed RejectionError, nil when
// allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	v := d.Violations[0]
	return &broker.RejectionError{Reason: v.Code, Detail: v.Msg}
}

// Validator runs the pre-submission checks of an order request against the
// symbol constraints, current quote, and account margin.
type Validator struct {
	Policy Policy
}

func NewValidator(p Policy) Validator {
	if p.SafetyFactor <= 0 || p.SafetyFactor >= 1 {
		p.SafetyFactor = DefaultPolicy().SafetyFactor
	}
	return Validator{Policy: p}
}

// Check runs the checks in order, stopping at the first failure:
// volume bounds and step, stop placement, projected margin against free
// margin scaled by the safety factor, and marketability of pending prices.
// openTrades is the current live position count for the exposure cap.
func (v Validator) Check(req broker.OrderRequest, spec market.SymbolSpec, acct broker.Account, tick market.Tick, quoteToAccount float64, openTrades int) Decision {
	d := Decision{Allowed: true}

	if req.Volume < spec.VolumeMin || (spec.VolumeMax > 0 && req.Volume > spec.VolumeMax) {
		d.reject(broker.ReasonVolumeOutOfRange,
			"volume %v outside [%v, %v] for %s", req.Volume, spec.VolumeMin, spec.VolumeMax, spec.Symbol)
		return d
	}
	if !market.IsStepMultiple(req.Volume, spec.VolumeStep) {
		d.reject(broker.ReasonVolumeStep,
			"volume %v is not a multiple of step %v", req.Volume, spec.VolumeStep)
		return d
	}

	ref := referencePrice(req, tick)
	if ref <= 0 {
		d.reject(broker.ReasonInvalidPrice, "no reference price for %s", spec.Symbol)
		return d
	}
	if !StopsValid(req.Side, ref, req.StopLoss, req.TakeProfit) {
		d.reject(broker.ReasonInvalidStops,
			"sl=%v tp=%v on wrong side of %v for %s %s", req.StopLoss, req.TakeProfit, ref, req.Side, spec.Symbol)
		return d
	}

	margin, err := Margin(spec, req.Side, req.Volume, ref, acct, quoteToAccount)
	if err != nil {
		d.reject(broker.ReasonInvalidPrice, "margin projection failed: %v", err)
		return d
	}
	d.ProjectedMargin = margin
	if margin > acct.FreeMargin*v.Policy.SafetyFactor {
		d.reject(broker.ReasonInsufficientMargin,
			"projected margin %.2f exceeds %.0f%% of free margin %.2f",
			margin, v.Policy.SafetyFactor*100, acct.FreeMargin)
		return d
	}
	if v.Policy.MaxMarginPct > 0 && acct.Equity > 0 &&
		(acct.MarginUsed+margin)/acct.Equity > v.Policy.MaxMarginPct {
		d.reject(broker.ReasonInsufficientMargin,
			"total margin after fill exceeds %.0f%% of equity", v.Policy.MaxMarginPct*100)
		return d
	}
	if v.Policy.MaxOpenTrades > 0 && req.Kind == broker.Market && openTrades >= v.Policy.MaxOpenTrades {
		d.reject(broker.ReasonInsufficientMargin,
			"open trades %d at cap %d", openTrades, v.Policy.MaxOpenTrades)
		return d
	}

	if req.Kind.Pending() && !req.AllowImmediateFill && marketable(req, tick) {
		d.reject(broker.ReasonMarketable,
			"%s %s at %v would fill immediately against bid=%v ask=%v",
			req.Side, req.Kind, req.Price, tick.Bid, tick.Ask)
		return d
	}

	return d
}

// referencePrice is the level stops and margin are judged against: the
// request price for pending orders, the fill side of the quote otherwise.
func referencePrice(req broker.OrderRequest, tick market.Tick) float64 {
	if req.Kind.Pending() && req.Price > 0 {
		return req.Price
	}
	return tick.FillPrice(req.Side == broker.Buy)
}

// StopsValid checks that a stop-loss sits on the losing side of the
// reference price and a take-profit on the winning side. Zero means unset.
func StopsValid(side broker.Side, ref, sl, tp float64) bool {
	if side == broker.Buy {
		if sl != 0 && sl >= ref {
			return false
		}
		if tp != 0 && tp <= ref {
			return false
		}
		return true
	}
	if sl != 0 && sl <= ref {
		return false
	}
	if tp != 0 && tp >= ref {
		return false
	}
	return true
}

// marketable reports whether a pending price would execute against the
// current quote instead of resting.
func marketable(req broker.OrderRequest, tick market.Tick) bool {
	trigger := req.Price
	if req.Kind == broker.StopLimit && req.StopPrice > 0 {
		trigger = req.StopPrice
	}

	switch req.Kind {
	case broker.Limit:
		if req.Side == broker.Buy {
			return trigger >= tick.Ask
		}
		return trigger <= tick.Bid
	case broker.Stop, broker.StopLimit:
		if req.Side == broker.Buy {
			return trigger <= tick.Ask
		}
		return trigger >= tick.Bid
	default:
		return false
	}
}
