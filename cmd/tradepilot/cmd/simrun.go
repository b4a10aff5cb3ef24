package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/broker/sim"
	"github.com/tradepilot/tradepilot/config"
	"github.com/tradepilot/tradepilot/journal"
	"github.com/tradepilot/tradepilot/lifecycle"
	"github.com/tradepilot/tradepilot/market"
	"github.com/tradepilot/tradepilot/risk"
)

var simrunCmd = &cobra.Command{
	Use:   "simrun",
	Short: "Run a scripted simulation from a config file",
	Long: `Drive the lifecycle manager against the simulated gateway.

The config file specifies the account, risk policy, journal and a list of
price steps. One risk-sized market order is opened at the initial quote
and the price steps are replayed; stops, targets and stop-out fire as
they would at a real gateway.

Example:
  tradepilot simrun -f tradepilot.yaml --risk-pct 0.01 --stop-distance 0.0050`,
	RunE: runSimrun,
}

var (
	simrunConfigPath string
	simrunRiskPct    float64
	simrunStopDist   float64
	simrunTargetDist float64
)

func init() {
	rootCmd.AddCommand(simrunCmd)

	simrunCmd.Flags().StringVarP(&simrunConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	simrunCmd.MarkFlagRequired("config")
	simrunCmd.Flags().Float64Var(&simrunRiskPct, "risk-pct", 0.01, "fraction of balance risked on the trade")
	simrunCmd.Flags().Float64Var(&simrunStopDist, "stop-distance", 0.0050, "stop distance in price units")
	simrunCmd.Flags().Float64Var(&simrunTargetDist, "target-distance", 0.0100, "target distance in price units")
}

func runSimrun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(simrunConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var jour journal.Journal
	switch cfg.Journal.Type {
	case "csv":
		jour, err = journal.NewCSV(cfg.Journal.DealsFile, cfg.Journal.EquityFile)
	case "sqlite":
		jour, err = journal.NewSQLite(cfg.Journal.DBPath)
	default:
		jour = journal.Nop{}
	}
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer jour.Close()

	engine := sim.New(broker.Account{
		ID:       cfg.Account.ID,
		Currency: cfg.Account.Currency,
		Balance:  cfg.Account.Balance,
		Leverage: cfg.Account.Leverage,
	}, market.BuiltinSpecs(), sim.Options{
		StopOutLevel: cfg.Sim.StopOutLevel,
	})

	engine.SetTick(market.Tick{
		Symbol: cfg.Sim.Symbol,
		Bid:    cfg.Sim.InitialBid,
		Ask:    cfg.Sim.InitialAsk,
		Time:   time.Now(),
	})

	retryPolicy, err := cfg.RetryPolicy()
	if err != nil {
		return err
	}
	mgr := lifecycle.New(engine, engine, engine, engine, jour, lifecycle.Options{
		Policy: cfg.RiskPolicy(),
		Retry:  retryPolicy,
	})

	ctx := context.Background()
	spec, err := engine.GetSpec(ctx, cfg.Sim.Symbol)
	if err != nil {
		return err
	}
	tick, err := engine.GetTick(ctx, cfg.Sim.Symbol)
	if err != nil {
		return err
	}
	rate, err := market.QuoteToAccountRate(ctx, spec, cfg.Account.Currency, engine)
	if err != nil {
		return fmt.Errorf("conversion rate: %w", err)
	}

	volume, err := risk.LotSize(spec, cfg.Account.Balance*simrunRiskPct, simrunStopDist, rate)
	if err != nil {
		return fmt.Errorf("size trade: %w", err)
	}
	entry := tick.Ask
	stop := entry - simrunStopDist
	target := entry + simrunTargetDist

	fmt.Printf("Opening trade on %s:\n", cfg.Sim.Symbol)
	fmt.Printf("  Entry:  %.*f\n", spec.Digits, entry)
	fmt.Printf("  Stop:   %.*f\n", spec.Digits, stop)
	fmt.Printf("  Target: %.*f\n", spec.Digits, target)
	fmt.Printf("  Volume: %.2f lots (risking %.2f %s)\n\n", volume, cfg.Account.Balance*simrunRiskPct, cfg.Account.Currency)

	ticket, err := mgr.Submit(ctx, broker.OrderRequest{
		Symbol:     cfg.Sim.Symbol,
		Side:       broker.Buy,
		Kind:       broker.Market,
		Volume:     volume,
		StopLoss:   stop,
		TakeProfit: target,
	})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Printf("Filled: ticket %s\n\n", ticket)

	for i, step := range cfg.Sim.PriceSteps {
		delay, err := step.ParseDelay()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		fmt.Printf("Quote -> Bid %.5f / Ask %.5f (after %s)\n", step.Bid, step.Ask, delay)
		engine.SetTick(market.Tick{
			Symbol: cfg.Sim.Symbol,
			Bid:    step.Bid,
			Ask:    step.Ask,
			Time:   time.Now().Add(delay),
		})
	}

	// The engine closes positions on its own when stops trigger; pull its
	// view back in before reporting.
	if err := mgr.Resync(ctx); err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	renderPositions(ctx, mgr)
	renderDeals(engine.Deals())

	acct, err := engine.GetAccount(ctx)
	if err != nil {
		return err
	}
	renderAccount(acct, cfg.Account.Balance)

	if cfg.Journal.Type == "csv" {
		fmt.Printf("\nResults saved to:\n  - %s\n  - %s\n", cfg.Journal.DealsFile, cfg.Journal.EquityFile)
	} else if cfg.Journal.Type == "sqlite" {
		fmt.Printf("\nResults saved to: %s\n", cfg.Journal.DBPath)
	}
	return nil
}

func renderPositions(ctx context.Context, mgr *lifecycle.Manager) {
	positions := mgr.Positions()
	if len(positions) == 0 {
		return
	}
	values, _ := mgr.Valuations(ctx, positions)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("OPEN POSITIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Ticket", "Symbol", "Side", "Volume", "Entry", "SL", "TP", "Unrealized"})
	for _, p := range positions {
		t.AppendRow(table.Row{
			p.Ticket, p.Symbol, p.Side, fmt.Sprintf("%.2f", p.Volume),
			fmt.Sprintf("%.5f", p.EntryPrice), fmt.Sprintf("%.5f", p.StopLoss),
			fmt.Sprintf("%.5f", p.TakeProfit), fmt.Sprintf("%.2f", values[p.Ticket]),
		})
	}
	t.Render()
	fmt.Println()
}

func renderAccount(acct broker.Account, startBalance float64) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("FINAL ACCOUNT")
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Balance", fmt.Sprintf("%.2f %s", acct.Balance, acct.Currency)},
		{"Equity", fmt.Sprintf("%.2f %s", acct.Equity, acct.Currency)},
		{"Margin used", fmt.Sprintf("%.2f %s", acct.MarginUsed, acct.Currency)},
		{"Free margin", fmt.Sprintf("%.2f %s", acct.FreeMargin, acct.Currency)},
		{"P/L", fmt.Sprintf("%.2f %s", acct.Equity-startBalance, acct.Currency)},
	})
	t.Render()
}
