package core

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTimelockActive = errors.New("timelock active")
	ErrCooldownActive = errors.New("cooldown active")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrPaused         = errors.New("ledger paused")
	ErrInvariant      = errors.New("state invariant violation")
)

type ProposalErrorKind uint8

const (
	ProposalNotFound ProposalErrorKind = iota
	ProposalExpired
	ProposalAlreadyApproved
	ProposalAlreadyExecuted
	ProposalInsufficientApprovals
	ProposalExecutionDelayNotMet
	ProposalDuplicate
)

func (k ProposalErrorKind) String() string {
	switch k {
	case ProposalNotFound:
		return "not found"
	case ProposalExpired:
		return "expired"
	case ProposalAlreadyApproved:
		return "already approved"
	case ProposalAlreadyExecuted:
		return "already executed"
	case ProposalInsufficientApprovals:
		return "insufficient approvals"
	case ProposalExecutionDelayNotMet:
		return "execution delay not met"
	case ProposalDuplicate:
		return "duplicate active proposal"
	default:
		return "unknown"
	}
}

// ProposalError is the typed failure of a proposal-engine operation.
type ProposalError struct {
	Kind     ProposalErrorKind
	Required uint32
	Actual   uint32
}

func (e *ProposalError) Error() string {
	if e.Kind == ProposalInsufficientApprovals {
		return fmt.Sprintf("proposal error: %s, required %d, actual %d", e.Kind, e.Required, e.Actual)
	}
	return "proposal error: " + e.Kind.String()
}

func newProposalError(kind ProposalErrorKind) *ProposalError {
	return &ProposalError{Kind: kind}
}

// IsProposalError reports whether err is a ProposalError of the given kind.
func IsProposalError(err error, kind ProposalErrorKind) bool {
	var pe *ProposalError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// RewardError signals that the reward pool cannot sustain the requested tier.
// AvailableAPY and RequiredAPY are whole percentage points so the caller can
// retry with a shorter tier or wait for the pool to refill.
type RewardError struct {
	LockPeriod   time.Duration
	AvailableAPY *big.Int
	RequiredAPY  *big.Int
}

func (e *RewardError) Error() string {
	return fmt.Sprintf("reward unavailable: tier %s, available APY %s%%, required APY %s%%",
		e.LockPeriod, e.AvailableAPY, e.RequiredAPY)
}
