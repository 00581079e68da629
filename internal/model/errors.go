package model

import (
	"errors"
	"fmt"
	"strings"
)

// Consistency and token errors. Callers match them with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrTokenNotFound = errors.New("signing link not found")
	ErrTokenExpired  = errors.New("signing link expired")
	ErrNothingToSave = errors.New("nothing to save")
	ErrAlreadySigned = errors.New("movement already signed by both parties")
	ErrLedgerClamped = errors.New("stock balance clamped at zero")
	ErrEmptyGroup    = errors.New("movement group is empty")
)

// StockError reports an out movement that exceeds the available stock.
type StockError struct {
	ItemID    int64
	ItemName  string
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("not enough stock for item %s: have %d, need %d", e.ItemName, e.Available, e.Requested)
}

// ValidationError lists human-readable input problems found before any mutation.
type ValidationError struct {
	Messages []string
}

// NewValidationError returns a ValidationError holding msgs.
func NewValidationError(msgs ...string) *ValidationError {
	return &ValidationError{Messages: msgs}
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}
