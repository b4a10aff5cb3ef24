package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tradepilot/tradepilot/broker"
	"github.com/tradepilot/tradepilot/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query deal journal data",
	Long: `Query and display deal records from a SQLite journal.

Subcommands:
  deal     - Get details of a specific deal by ID
  day      - List deals recorded on a specific day
  today    - List deals recorded today
  position - List all deals for a position ticket

Examples:
  tradepilot journal deal <deal-id>
  tradepilot journal today
  tradepilot journal day 2026-08-25
  tradepilot journal position <ticket>`,
}

var journalDealCmd = &cobra.Command{
	Use:   "deal <deal-id>",
	Short: "Get details of a specific deal",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDeal,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List deals recorded today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List deals recorded on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalPositionCmd = &cobra.Command{
	Use:   "position <ticket>",
	Short: "List all deals for a position ticket",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalPosition,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalDealCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalPositionCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./tradepilot.sqlite", "path to SQLite journal DB")
}

func openJournal() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalDeal(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	d, err := j.GetDeal(args[0])
	if err != nil {
		return fmt.Errorf("get deal: %w", err)
	}
	renderDeals([]broker.Deal{d})
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return listDealsBetween(start, start.AddDate(0, 0, 1))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	day, err := time.ParseInLocation("2006-01-02", args[0], time.Local)
	if err != nil {
		return fmt.Errorf("parse day: %w", err)
	}
	return listDealsBetween(day, day.AddDate(0, 0, 1))
}

func runJournalPosition(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	deals, err := j.ListDealsByPosition(broker.Ticket(args[0]))
	if err != nil {
		return fmt.Errorf("list deals: %w", err)
	}
	renderDeals(deals)
	return nil
}

func listDealsBetween(start, end time.Time) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	deals, err := j.ListDealsBetween(start, end)
	if err != nil {
		return fmt.Errorf("list deals: %w", err)
	}
	renderDeals(deals)

	stats := journal.Summarize(deals)
	if stats.Deals > 0 {
		fmt.Printf("Closed: %d (W%d/L%d)  Net: %.2f  PF: %.2f\n",
			stats.Deals, stats.Wins, stats.Losses, stats.Net, stats.ProfitFactor)
	}
	return nil
}

func renderDeals(deals []broker.Deal) {
	if len(deals) == 0 {
		fmt.Println("No deals found.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Deal", "Position", "Symbol", "Side", "Volume", "Price", "Profit", "Reason", "Time"})
	for _, d := range deals {
		t.AppendRow(table.Row{
			d.ID, d.PositionTicket, d.Symbol, d.Side, fmt.Sprintf("%.2f", d.Volume),
			fmt.Sprintf("%.5f", d.Price), fmt.Sprintf("%.2f", d.Profit), d.Reason,
			d.Time.Format(time.RFC3339),
		})
	}
	t.Render()
}
