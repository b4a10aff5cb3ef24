package broker

import "time"

// Ticket identifies an order or position. It is assigned by the gateway at
// creation and stable for the lifetime of the object.
type Ticket string

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// Sign returns +1 for buys and -1 for sells, the direction price movement
// must take for the trade to profit.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == Sell {
		return Buy
	}
	return Sell
}

type OrderKind int

const (
	Market OrderKind = iota
	Limit
	Stop
	StopLimit
)

func (k OrderKind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case StopLimit:
		return "stop-limit"
	default:
		return "market"
	}
}

// Pending reports whether the kind rests on the book until triggered.
func (k OrderKind) Pending() bool { return k != Market }

// OrderRequest describes a trade a caller wants to place.
//
// Volume must be a positive multiple of the symbol's volume step within
// [min,max]. StopLoss/TakeProfit of 0 mean "not set". Price is ignored for
// market orders. A zero Expiry means good-till-cancelled.
type OrderRequest struct {
	Symbol string
	Side   Side
	Kind   OrderKind
	Volume float64

	Price     float64 // limit or stop price; 0 for market
	StopPrice float64 // stop-limit trigger price

	StopLoss   float64
	TakeProfit float64

	Expiry time.Time

	// ClientID tags the request so an ambiguous outcome can be matched
	// against gateway state. The lifecycle manager fills it in when empty.
	ClientID string

	// AllowImmediateFill permits a pending price that is already
	// marketable. Without it such a request is rejected.
	AllowImmediateFill bool
}

// Position is an open trade. Owned by the lifecycle manager once created;
// mutated only through explicit modify/close operations. Volume is always
// > 0 while the position is live.
type Position struct {
	Ticket     Ticket
	Symbol     string
	Side       Side
	Volume     float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Profit     float64 // unrealized, account currency, as of last valuation
	Swap       float64
	OpenTime   time.Time
	ClientID   string
}

// PendingOrder is an order resting at the gateway.
type PendingOrder struct {
	Ticket    Ticket
	Request   OrderRequest
	CreatedAt time.Time
}

// Expired reports whether the order's deadline has elapsed.
func (p PendingOrder) Expired(now time.Time) bool {
	return !p.Request.Expiry.IsZero() && now.After(p.Request.Expiry)
}

// Deal is the immutable record of one execution (a fill or a close).
// Append-only; never mutated after creation.
type Deal struct {
	ID             string
	PositionTicket Ticket
	Symbol         string
	Side           Side
	Volume         float64
	Price          float64
	Profit         float64 // realized, account currency
	Time           time.Time
	Reason         string

	// RemainderTicket is set by gateways that reissue a new ticket for the
	// surviving volume of a partial close. Empty when the original ticket
	// is retained.
	RemainderTicket Ticket
}

// Account is a point-in-time snapshot of the trading account. It changes
// with every fill, so callers fetch it fresh before each risk calculation.
type Account struct {
	ID          string
	Currency    string
	Balance     float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	MarginLevel float64 // equity/used margin, percent; 0 when no margin used
	Leverage    float64
}
