package journal

import (
	"time"

	"github.com/tradepilot/tradepilot/broker"
)

// ListDealsBetween returns deals whose time is within [start, end), oldest
// first.
func (j *SQLite) ListDealsBetween(start, end time.Time) ([]broker.Deal, error) {
	rows, err := j.db.Query(`
		SELECT deal_id, position_ticket, symbol, side, volume, price, profit, time, reason
		FROM deals
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListDealsByPosition returns every deal recorded against a position
// ticket: the fill and any partial or final closes.
func (j *SQLite) ListDealsByPosition(ticket broker.Ticket) ([]broker.Deal, error) {
	rows, err := j.db.Query(`
		SELECT deal_id, position_ticket, symbol, side, volume, price, profit, time, reason
		FROM deals
		WHERE position_ticket = ?
		ORDER BY time ASC`, string(ticket))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// StatsBetween aggregates realized results over [start, end).
func (j *SQLite) StatsBetween(start, end time.Time) (Stats, error) {
	deals, err := j.ListDealsBetween(start, end)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(deals), nil
}

// Summarize computes aggregate stats over a deal list.
func Summarize(deals []broker.Deal) Stats {
	var s Stats
	for _, d := range deals {
		s.Deals++
		s.Net += d.Profit
		switch {
		case d.Profit > 0:
			s.Wins++
			s.GrossProfit += d.Profit
		case d.Profit < 0:
			s.Losses++
			s.GrossLoss += -d.Profit
		}
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}
