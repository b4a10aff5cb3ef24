package broker

import (
	"context"
	"time"
)

// AccountProvider returns the current account state. Implementations must
// not cache: the state changes with every fill.
type AccountProvider interface {
	GetAccount(ctx context.Context) (Account, error)
}

type SubmitStatus int

const (
	// SubmitFilled means the order executed and a position exists.
	SubmitFilled SubmitStatus = iota
	// SubmitPlaced means a pending order was accepted onto the book.
	SubmitPlaced
)

type SubmitResult struct {
	Status SubmitStatus
	Ticket Ticket
	Price  float64 // fill price; requested price for placed pending orders
}

// ModifyRequest carries the fields of an order or position to change.
// Nil fields are left untouched. Price and Expiry apply to pending orders
// only.
type ModifyRequest struct {
	StopLoss   *float64
	TakeProfit *float64
	Price      *float64
	Expiry     *time.Time
}

// Snapshot is the gateway's view of the live set, used for reconciliation
// and as the basis of bulk operations.
type Snapshot struct {
	Positions []Position
	Pending   []PendingOrder
}

// Gateway is the broker terminal connection. Calls may block; callers bound
// them with the context. A returned ErrTimeout means the outcome is unknown:
// the request may have been accepted even though the response was lost.
type Gateway interface {
	Submit(ctx context.Context, req OrderRequest) (SubmitResult, error)
	Modify(ctx context.Context, ticket Ticket, mod ModifyRequest) error
	Cancel(ctx context.Context, ticket Ticket) error
	Close(ctx context.Context, ticket Ticket, volume float64) (Deal, error)
	ListOpen(ctx context.Context) (Snapshot, error)
}
