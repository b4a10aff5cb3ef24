package market

// BuiltinSpecs returns contract parameters for the instruments the sim
// gateway and CLI ship with. Live deployments replace this with a
// provider backed by the terminal's symbol catalogue.
func BuiltinSpecs() StaticSpecs {
	return StaticSpecs{
		"EURUSD": {
			Symbol:           "EURUSD",
			ContractSize:     100_000,
			TickSize:         0.00001,
			TickValue:        0.00001,
			Digits:           5,
			VolumeMin:        0.01,
			VolumeMax:        100,
			VolumeStep:       0.01,
			MarginMode:       MarginPercentage,
			InitialMarginPct: 100,
			QuoteCurrency:    "USD",
		},
		"USDJPY": {
			Symbol:           "USDJPY",
			ContractSize:     100_000,
			TickSize:         0.001,
			TickValue:        0.001,
			Digits:           3,
			VolumeMin:        0.01,
			VolumeMax:        100,
			VolumeStep:       0.01,
			MarginMode:       MarginPercentage,
			InitialMarginPct: 100,
			QuoteCurrency:    "JPY",
		},
		"XAUUSD": {
			Symbol:        "XAUUSD",
			ContractSize:  100,
			TickSize:      0.01,
			TickValue:     0.01,
			Digits:        2,
			VolumeMin:     0.01,
			VolumeMax:     50,
			VolumeStep:    0.01,
			MarginMode:    MarginFormula,
			MarginRate:    0.005,
			QuoteCurrency: "USD",
		},
	}
}
