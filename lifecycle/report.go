package lifecycle

import "github.com/tradepilot/tradepilot/broker"

// BulkItem is one ticket's outcome within a bulk operation.
type BulkItem struct {
	Ticket broker.Ticket
	Err    error
}

// BulkReport aggregates per-ticket outcomes. Bulk operations are never
// transactions: some items can succeed while others fail.
type BulkReport struct {
	Items []BulkItem
}

func (r *BulkReport) add(ticket broker.Ticket, err error) {
	r.Items = append(r.Items, BulkItem{Ticket: ticket, Err: err})
}

func (r BulkReport) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Err == nil {
			n++
		}
	}
	return n
}

func (r BulkReport) Failed() int {
	return len(r.Items) - r.Succeeded()
}

// FailedItems returns the items that did not complete.
func (r BulkReport) FailedItems() []BulkItem {
	var out []BulkItem
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}
