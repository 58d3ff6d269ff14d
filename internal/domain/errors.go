package domain

import (
	"errors"
	"fmt"
)

// ErrKind classifies why an inbound message was rejected. Every kind is
// recovered locally and surfaced to the caller as a structured reply.
type ErrKind string

const (
	KindUnauthorized         ErrKind = "UNAUTHORIZED"
	KindAlreadyStarted       ErrKind = "ALREADY_STARTED"
	KindNotStarted           ErrKind = "NOT_STARTED"
	KindExpired              ErrKind = "EXPIRED"
	KindInsufficientPayment  ErrKind = "INSUFFICIENT_PAYMENT"
	KindSettlementInProgress ErrKind = "SETTLEMENT_IN_PROGRESS"
	KindTransferFailed       ErrKind = "TRANSFER_FAILED"
	KindBadRequest           ErrKind = "BAD_REQUEST"
)

// Error is a structured rejection. It never indicates corrupted state: the
// auction record is unchanged whenever a handler returns one.
type Error struct {
	Kind   ErrKind
	Detail string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Detail
}

// Is matches two errors by kind, so tests can use errors.Is with a bare
// Errf(kind, "").
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Errf builds a structured Error with a formatted detail.
func Errf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error, defaulting to BAD_REQUEST for
// errors that did not originate in the state machine.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBadRequest
}
