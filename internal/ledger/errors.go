package ledger

import (
	"errors"
	"fmt"
)

// AbortCode is a numeric contract abort reason.
type AbortCode uint32

const (
	AbortDeadlineNotReached AbortCode = 3
	AbortAlreadyFinalized   AbortCode = 5
	AbortDeadlinePassed     AbortCode = 6
	AbortNotSucceeded       AbortCode = 7
	AbortNotOwner           AbortCode = 8
	AbortDonationsExist     AbortCode = 10
)

var abortReasons = map[AbortCode]string{
	AbortDeadlineNotReached: "deadline not reached",
	AbortAlreadyFinalized:   "already finalized",
	AbortDeadlinePassed:     "deadline passed",
	AbortNotSucceeded:       "campaign not succeeded",
	AbortNotOwner:           "not the campaign owner",
	AbortDonationsExist:     "campaign has donations",
}

// Reason returns a human readable reason, or "" for unknown codes.
func (c AbortCode) Reason() string {
	return abortReasons[c]
}

func (c AbortCode) Known() bool {
	_, ok := abortReasons[c]
	return ok
}

// ErrorCode classifies a remote rejection.
type ErrorCode string

const (
	CodeAborted          ErrorCode = "aborted"
	CodeFunctionNotFound ErrorCode = "function_not_found"
	CodeRejected         ErrorCode = "rejected"
	CodeTransport        ErrorCode = "transport"
)

// Error is a structured rejection returned by SubmitTransaction or
// AwaitFinality.
type Error struct {
	Code   ErrorCode
	Abort  AbortCode
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Code == CodeAborted && e.Abort.Known():
		return fmt.Sprintf("ledger: aborted with code %d (%s)", e.Abort, e.Abort.Reason())
	case e.Code == CodeAborted:
		return fmt.Sprintf("ledger: aborted with code %d", e.Abort)
	case e.Detail != "":
		return fmt.Sprintf("ledger: %s: %s", e.Code, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("ledger: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("ledger: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a structured rejection from err.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// IsFunctionNotFound reports whether err says the target does not expose the
// called function.
func IsFunctionNotFound(err error) bool {
	le, ok := AsError(err)
	return ok && le.Code == CodeFunctionNotFound
}

// AbortOf returns the abort code carried by err, if any.
func AbortOf(err error) (AbortCode, bool) {
	le, ok := AsError(err)
	if !ok || le.Code != CodeAborted {
		return 0, false
	}
	return le.Abort, true
}
