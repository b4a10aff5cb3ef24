package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradepilot/tradepilot/broker"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordDeal(d broker.Deal) error {
	_, err := j.db.Exec(`
		INSERT INTO deals
		(deal_id, position_ticket, symbol, side, volume, price, profit, time, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, string(d.PositionTicket), d.Symbol, d.Side.String(),
		d.Volume, d.Price, d.Profit, d.Time, d.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, margin_used, free_margin, margin_level)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time, e.Balance, e.Equity, e.MarginUsed, e.FreeMargin, e.MarginLevel,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func scanDeal(row interface{ Scan(...any) error }) (broker.Deal, error) {
	var d broker.Deal
	var ticket, side string
	if err := row.Scan(&d.ID, &ticket, &d.Symbol, &side,
		&d.Volume, &d.Price, &d.Profit, &d.Time, &d.Reason); err != nil {
		return broker.Deal{}, err
	}
	d.PositionTicket = broker.Ticket(ticket)
	if side == "sell" {
		d.Side = broker.Sell
	}
	return d, nil
}

// GetDeal returns a single deal by its ID.
func (j *SQLite) GetDeal(dealID string) (broker.Deal, error) {
	row := j.db.QueryRow(`
		SELECT deal_id, position_ticket, symbol, side, volume, price, profit, time, reason
		FROM deals WHERE deal_id = ?`, dealID)

	d, err := scanDeal(row)
	if err == sql.ErrNoRows {
		return broker.Deal{}, fmt.Errorf("deal %q not found", dealID)
	}
	return d, err
}
