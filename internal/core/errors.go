package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownAccount  = errors.New("unknown account type")
	ErrNotFound        = errors.New("not found")

	ErrAmbiguousRange   = errors.New("ambiguous date range")
	ErrInvalidRange     = errors.New("invalid date range")
	ErrUnparseableQuery = errors.New("unparseable query")

	ErrBudgetInvariant = errors.New("budget invariant violation")

	ErrAlreadyCarried     = errors.New("balance already carried forward")
	ErrIncompleteMonth    = errors.New("source month has not fully elapsed")
	ErrNonPositiveBalance = errors.New("no positive balance to carry forward")
)

// QueryError reports why a free-text query could not be resolved,
// together with the query that was asked.
type QueryError struct {
	Reason error
	Query  string
	Detail string
}

func NewQueryError(reason error, query, detail string) *QueryError {
	return &QueryError{Reason: reason, Query: query, Detail: detail}
}

func (e *QueryError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: %q", e.Reason, e.Query)
	}
	return fmt.Sprintf("%v: %s: %q", e.Reason, e.Detail, e.Query)
}

func (e *QueryError) Unwrap() error {
	return e.Reason
}

// ReasonCode maps an error to a stable machine-readable reason.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrAmbiguousRange):
		return "ambiguous_range"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrUnparseableQuery):
		return "unparseable_query"
	case errors.Is(err, ErrBudgetInvariant):
		return "budget_invariant_violation"
	case errors.Is(err, ErrAlreadyCarried):
		return "already_carried"
	case errors.Is(err, ErrIncompleteMonth):
		return "incomplete_month"
	case errors.Is(err, ErrNonPositiveBalance):
		return "non_positive_balance"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrUnknownCategory):
		return "unknown_category"
	case errors.Is(err, ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}
