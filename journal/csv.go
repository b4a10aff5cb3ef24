package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/tradepilot/tradepilot/broker"
)

type CSV struct {
	deals  *csv.Writer
	equity *csv.Writer
	df, ef *os.File
}

func NewCSV(dealsPath, equityPath string) (*CSV, error) {
	df, err := os.Create(dealsPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		df.Close()
		return nil, err
	}

	dw := csv.NewWriter(df)
	ew := csv.NewWriter(ef)

	if err := dw.Write([]string{"deal_id", "position_ticket", "symbol", "side", "volume", "price", "profit", "time", "reason"}); err != nil {
		return nil, err
	}
	if err := ew.Write([]string{"time", "balance", "equity", "margin_used", "free_margin", "margin_level"}); err != nil {
		return nil, err
	}
	dw.Flush()
	ew.Flush()
	if err := dw.Error(); err != nil {
		return nil, err
	}
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSV{deals: dw, equity: ew, df: df, ef: ef}, nil
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (j *CSV) RecordDeal(d broker.Deal) error {
	if err := j.deals.Write([]string{
		d.ID,
		string(d.PositionTicket),
		d.Symbol,
		d.Side.String(),
		f(d.Volume),
		f(d.Price),
		f(d.Profit),
		d.Time.Format(time.RFC3339),
		d.Reason,
	}); err != nil {
		return err
	}
	j.deals.Flush()
	return j.deals.Error()
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	if err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.MarginUsed),
		f(e.FreeMargin),
		f(e.MarginLevel),
	}); err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSV) Close() error {
	j.deals.Flush()
	j.equity.Flush()
	if err := j.df.Close(); err != nil {
		j.ef.Close()
		return err
	}
	return j.ef.Close()
}
