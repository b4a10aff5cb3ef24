package market

import (
	"context"
	"fmt"
)

// QuoteToAccountRate returns the factor converting an amount in the
// symbol's quote currency into the account currency.
//
// When the currencies differ the rate comes from the conversion pair's
// current quote: the direct pair (quote+account) mid if listed, otherwise
// the reciprocal of the inverse pair (account+quote). EUR_USD in a USD
// account is 1.0; USD_JPY in a USD account uses 1/JPY-per-USD.
func QuoteToAccountRate(ctx context.Context, spec SymbolSpec, accountCurrency string, ticks TickSource) (float64, error) {
	if spec.QuoteCurrency == accountCurrency {
		return 1.0, nil
	}

	if t, err := ticks.GetTick(ctx, spec.QuoteCurrency+accountCurrency); err == nil {
		if mid := t.Mid(); mid > 0 {
			return mid, nil
		}
	}

	if t, err := ticks.GetTick(ctx, accountCurrency+spec.QuoteCurrency); err == nil {
		if mid := t.Mid(); mid > 0 {
			return 1.0 / mid, nil
		}
	}

	return 0, fmt.Errorf("no conversion quote from %s to %s", spec.QuoteCurrency, accountCurrency)
}
