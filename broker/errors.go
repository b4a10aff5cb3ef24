package broker

import (
	"context"
	"errors"
	"fmt"
)

// RejectReason is the closed set of reasons a request can be refused, by
// the validator or by the gateway. Callers branch on the code, not on
// message text.
type RejectReason int

const (
	ReasonUnspecified RejectReason = iota
	ReasonVolumeOutOfRange
	ReasonVolumeStep
	ReasonInvalidStops
	ReasonInsufficientMargin
	ReasonInvalidPrice
	ReasonMarketable
	ReasonRequote
	ReasonMarketClosed
	ReasonUnknownSymbol
	ReasonExpired
	ReasonUnsupported
)

func (r RejectReason) String() string {
	switch r {
	case ReasonVolumeOutOfRange:
		return "VOLUME_OUT_OF_RANGE"
	case ReasonVolumeStep:
		return "VOLUME_NOT_STEP_MULTIPLE"
	case ReasonInvalidStops:
		return "INVALID_STOPS"
	case ReasonInsufficientMargin:
		return "INSUFFICIENT_MARGIN"
	case ReasonInvalidPrice:
		return "INVALID_PRICE"
	case ReasonMarketable:
		return "PRICE_ALREADY_MARKETABLE"
	case ReasonRequote:
		return "REQUOTE"
	case ReasonMarketClosed:
		return "MARKET_CLOSED"
	case ReasonUnknownSymbol:
		return "UNKNOWN_SYMBOL"
	case ReasonExpired:
		return "EXPIRED"
	case ReasonUnsupported:
		return "UNSUPPORTED"
	default:
		return "UNSPECIFIED"
	}
}

// RejectionError is a terminal refusal. It is never retried: the request
// itself is at fault, not the transport.
type RejectionError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("rejected: %s", e.Reason)
	}
	return fmt.Sprintf("rejected: %s: %s", e.Reason, e.Detail)
}

// Reject builds a RejectionError with a formatted detail message.
func Reject(reason RejectReason, format string, args ...any) error {
	return &RejectionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

var (
	// ErrTimeout: the request was sent but no response arrived. The
	// outcome is unknown until reconciled against gateway state.
	ErrTimeout = errors.New("gateway timeout")

	// ErrNoConnection: the request never left. Safe to retry.
	ErrNoConnection = errors.New("no connection to gateway")

	// ErrAlreadyGone: the ticket no longer exists at the gateway, e.g.
	// a cancel aimed at an order that has since filled.
	ErrAlreadyGone = errors.New("ticket already gone")

	// ErrTicketNotFound: the ticket is not in the live set at all.
	ErrTicketNotFound = errors.New("ticket not found")
)

// IsTransient reports whether the failure is worth retrying with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsRequote reports a broker-side price refusal, retried at most once
// against a refreshed quote.
func IsRequote(err error) bool {
	r, ok := ReasonOf(err)
	return ok && (r == ReasonRequote || r == ReasonInvalidPrice)
}

// ReasonOf extracts the rejection reason, if the error carries one.
func ReasonOf(err error) (RejectReason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return ReasonUnspecified, false
}
