package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid review state")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrDispatchBusy       = errors.New("review dispatch is saturated")
	ErrLedgerNotFound     = errors.New("credit ledger not provisioned")
	ErrUnknownInstrument  = errors.New("unknown instrument")
	ErrInvalidParams      = errors.New("invalid trade parameters")
	ErrMalformedVerdict   = errors.New("malformed verdict")
)

// CreditExhaustedError is returned when the requested bucket cannot fund a review.
type CreditExhaustedError struct {
	Bucket    CreditBucket
	Reason    string
	SuggestAd bool
}

func (e *CreditExhaustedError) Error() string {
	return fmt.Sprintf("credit exhausted: bucket=%s reason=%s", e.Bucket, e.Reason)
}

func (e *CreditExhaustedError) Unwrap() error { return ErrInsufficientCredit }

// InvalidStateError carries the state that blocked a transition.
type InvalidStateError struct {
	Current ReviewStatus
	Op      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not allowed from review status %q", e.Op, e.Current)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }
