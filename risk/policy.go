package risk

// Policy holds the account-level risk limits the validator enforces on top
// of symbol constraints.
type Policy struct {
	// SafetyFactor scales free margin when checking a new order, < 1.0 so
	// a fill cannot immediately trip a margin call.
	SafetyFactor float64

	// MaxOpenTrades caps concurrent open positions. 0 means no cap.
	MaxOpenTrades int

	// MaxMarginPct caps total used margin as a fraction of equity after
	// the new order. 0 means no cap.
	MaxMarginPct float64
}

func DefaultPolicy() Policy {
	return Policy{
		SafetyFactor:  0.8,
		MaxOpenTrades: 0,
		MaxMarginPct:  0,
	}
}
