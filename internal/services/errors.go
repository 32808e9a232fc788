package services

import "errors"

// Numeric operation error codes. 100, 103, and 110 are fixed by the existing
// client compatibility surface; the remaining codes are assigned here.
const (
	CodeNotAuthorized     = 100
	CodeAlreadySubmitted  = 103
	CodeInvalidState      = 104
	CodeNotFound          = 105
	CodeAlreadyResolved   = 106
	CodeInvalidAmount     = 110
	CodeInsufficientFunds = 120
)

// OpError is a user-facing operation failure. An operation that returns one has
// not mutated any state.
type OpError struct {
	Code int
	msg  string
}

func (e *OpError) Error() string { return e.msg }

var (
	ErrNotAuthorized     = &OpError{Code: CodeNotAuthorized, msg: "not authorized"}
	ErrAlreadySubmitted  = &OpError{Code: CodeAlreadySubmitted, msg: "milestone already submitted"}
	ErrInvalidState      = &OpError{Code: CodeInvalidState, msg: "operation not allowed in current state"}
	ErrNotFound          = &OpError{Code: CodeNotFound, msg: "not found"}
	ErrAlreadyResolved   = &OpError{Code: CodeAlreadyResolved, msg: "dispute already resolved"}
	ErrInvalidAmount     = &OpError{Code: CodeInvalidAmount, msg: "amount must be positive"}
	ErrInsufficientFunds = &OpError{Code: CodeInsufficientFunds, msg: "insufficient funds"}
)

// ErrLedgerCorruption signals an engine defect, not bad input: a release or
// refund was about to exceed the custody still held for an escrow. It is never
// part of the user-facing taxonomy and is logged at error level wherever it
// surfaces.
var ErrLedgerCorruption = errors.New("ledger corruption: movement exceeds locked custody")
