package match

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotYourTurn         = errors.New("not your turn")
	ErrTurnAlreadyFinished = errors.New("turn already finished")
	ErrRollLimitExceeded   = errors.New("roll limit exceeded")
	ErrMatchFinished       = errors.New("match finished")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSettlementFailed    = errors.New("settlement failed")
)

type InvalidStateError string

func (e InvalidStateError) Error() string { return "invalid state: " + string(e) }

func ErrInvalidState(msg string) error { return InvalidStateError(msg) }

// SettlementError wraps a balance store failure for one settlement event.
// The transition that depended on it has not happened; retrying is safe.
type SettlementError struct {
	Kind  MemoKind
	Round int
	Err   error
}

func (e *SettlementError) Error() string {
	if e.Round > 0 {
		return fmt.Sprintf("settlement %s (round %d): %v", e.Kind, e.Round, e.Err)
	}
	return fmt.Sprintf("settlement %s: %v", e.Kind, e.Err)
}

func (e *SettlementError) Unwrap() []error { return []error{ErrSettlementFailed, e.Err} }
