package database

import (
	"errors"
	"fmt"
)

// Set of rejection kinds a block, transaction or chain can fail with.
var (
	ErrMalformedBlock          = errors.New("malformed block")
	ErrChainLinkage            = errors.New("chain linkage violation")
	ErrProofOfWork             = errors.New("proof of work invalid")
	ErrDifficultyMismatch      = errors.New("difficulty mismatch")
	ErrSignatureInvalid        = errors.New("signature invalid")
	ErrDoubleSpend             = errors.New("double spend")
	ErrCoinbaseViolation       = errors.New("coinbase violation")
	ErrInsufficientChainLength = errors.New("insufficient chain length")
)

// ErrEmptyLedger is returned when the last block is requested from a ledger
// holding no blocks. This is an invariant violation, not a rejection.
var ErrEmptyLedger = errors.New("ledger has no blocks")

// ErrPreempted is returned from POW when the preemption signal was raised
// while searching for a nonce.
var ErrPreempted = errors.New("mining preempted")

// =============================================================================

// RejectError represents a block that failed one of the consensus rules.
type RejectError struct {
	Kind   error
	Height uint64
	Msg    string
}

// reject constructs a rejection for the specified kind.
func reject(kind error, height uint64, format string, args ...any) error {
	return &RejectError{
		Kind:   kind,
		Height: height,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface. Transactions validated outside of a
// block carry a zero height.
func (re *RejectError) Error() string {
	if re.Height == 0 {
		return fmt.Sprintf("%s: %s", re.Kind, re.Msg)
	}
	return fmt.Sprintf("block %d: %s: %s", re.Height, re.Kind, re.Msg)
}

// Unwrap allows errors.Is to match on the rejection kind.
func (re *RejectError) Unwrap() error {
	return re.Kind
}

// IsRejection checks if an error of type RejectError exists.
func IsRejection(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}

// GetRejection returns a copy of the RejectError pointer.
func GetRejection(err error) *RejectError {
	var re *RejectError
	if !errors.As(err, &re) {
		return nil
	}
	return re
}
