package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/market"
	"github.com/tradepilot/tradepilot/risk"
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Risk calculations for a prospective trade",
	Long: `Run risk calculations against the built-in symbol catalogue.

Subcommands:
  margin   - Margin required to open a trade
  profit   - Profit of a hypothetical open/close pair
  target   - Price level that yields a desired profit
  lotsize  - Largest volume risking at most a given amount

Examples:
  tradepilot calc margin -s EURUSD --side buy -v 1.0 -p 1.0850
  tradepilot calc profit -s EURUSD --side buy -v 1.0 -p 1.0850 --close 1.0950
  tradepilot calc target -s EURUSD --side sell -v 0.5 -p 1.0850 --profit 250
  tradepilot calc lotsize -s EURUSD --risk 500 --stop-distance 0.0050`,
}

var (
	calcSymbol   string
	calcSide     string
	calcVolume   float64
	calcPrice    float64
	calcClose    float64
	calcProfit   float64
	calcRisk     float64
	calcStopDist float64
	calcRate     float64
	calcLeverage float64
	calcCurrency string
)

var calcMarginCmd = &cobra.Command{
	Use:   "margin",
	Short: "Margin required to open a trade",
	RunE:  runCalcMargin,
}

var calcProfitCmd = &cobra.Command{
	Use:   "profit",
	Short: "Profit of a hypothetical open/close pair",
	RunE:  runCalcProfit,
}

var calcTargetCmd = &cobra.Command{
	Use:   "target",
	Short: "Price level that yields a desired profit",
	RunE:  runCalcTarget,
}

var calcLotSizeCmd = &cobra.Command{
	Use:   "lotsize",
	Short: "Largest volume risking at most a given amount",
	RunE:  runCalcLotSize,
}

func init() {
	rootCmd.AddCommand(calcCmd)
	calcCmd.AddCommand(calcMarginCmd)
	calcCmd.AddCommand(calcProfitCmd)
	calcCmd.AddCommand(calcTargetCmd)
	calcCmd.AddCommand(calcLotSizeCmd)

	pf := calcCmd.PersistentFlags()
	pf.StringVarP(&calcSymbol, "symbol", "s", "EURUSD", "symbol name")
	pf.StringVar(&calcSide, "side", "buy", "trade side (buy or sell)")
	pf.Float64VarP(&calcVolume, "volume", "v", 1.0, "volume in lots")
	pf.Float64VarP(&calcPrice, "price", "p", 0, "open price")
	pf.Float64Var(&calcRate, "rate", 1.0, "quote-to-account conversion rate")
	pf.Float64Var(&calcLeverage, "leverage", 100, "account leverage")
	pf.StringVar(&calcCurrency, "currency", "USD", "account currency")

	calcProfitCmd.Flags().Float64Var(&calcClose, "close", 0, "close price (required)")
	calcProfitCmd.MarkFlagRequired("close")
	calcTargetCmd.Flags().Float64Var(&calcProfit, "profit", 0, "desired profit in account currency (required)")
	calcTargetCmd.MarkFlagRequired("profit")
	calcLotSizeCmd.Flags().Float64Var(&calcRisk, "risk", 0, "risk amount in account currency (required)")
	calcLotSizeCmd.MarkFlagRequired("risk")
	calcLotSizeCmd.Flags().Float64Var(&calcStopDist, "stop-distance", 0, "distance from entry to stop in price units (required)")
	calcLotSizeCmd.MarkFlagRequired("stop-distance")
}

func calcInputs() (market.SymbolSpec, broker.Side, error) {
	spec, ok := market.BuiltinSpecs()[calcSymbol]
	if !ok {
		return market.SymbolSpec{}, 0, fmt.Errorf("unknown symbol: %s", calcSymbol)
	}
	var side broker.Side
	switch strings.ToLower(calcSide) {
	case "buy":
		side = broker.Buy
	case "sell":
		side = broker.Sell
	default:
		return market.SymbolSpec{}, 0, fmt.Errorf("side must be buy or sell, got %q", calcSide)
	}
	return spec, side, nil
}

func runCalcMargin(cmd *cobra.Command, args []string) error {
	spec, side, err := calcInputs()
	if err != nil {
		return err
	}
	acct := broker.Account{Currency: calcCurrency, Leverage: calcLeverage}
	m, err := risk.Margin(spec, side, calcVolume, calcPrice, acct, calcRate)
	if err != nil {
		return err
	}
	fmt.Printf("Margin for %s %.2f %s @ %.5f: %.2f %s\n", calcSide, calcVolume, calcSymbol, calcPrice, m, calcCurrency)
	return nil
}

func runCalcProfit(cmd *cobra.Command, args []string) error {
	spec, side, err := calcInputs()
	if err != nil {
		return err
	}
	p, err := risk.Profit(spec, side, calcVolume, calcPrice, calcClose, calcRate)
	if err != nil {
		return err
	}
	fmt.Printf("Profit for %s %.2f %s %.5f -> %.5f: %.2f %s\n", calcSide, calcVolume, calcSymbol, calcPrice, calcClose, p, calcCurrency)
	return nil
}

func runCalcTarget(cmd *cobra.Command, args []string) error {
	spec, side, err := calcInputs()
	if err != nil {
		return err
	}
	target, err := risk.PriceTarget(spec, side, calcVolume, calcPrice, calcProfit, calcRate)
	if err != nil {
		return err
	}
	fmt.Printf("Close %s %.2f %s opened @ %.5f at %.*f to realize %.2f %s\n",
		calcSide, calcVolume, calcSymbol, calcPrice, spec.Digits, target, calcProfit, calcCurrency)
	return nil
}

func runCalcLotSize(cmd *cobra.Command, args []string) error {
	spec, _, err := calcInputs()
	if err != nil {
		return err
	}
	vol, err := risk.LotSize(spec, calcRisk, calcStopDist, calcRate)
	if err != nil {
		return err
	}
	fmt.Printf("Volume for max risk %.2f %s with stop %.5f away: %.2f lots\n", calcRisk, calcCurrency, calcStopDist, vol)
	return nil
}
