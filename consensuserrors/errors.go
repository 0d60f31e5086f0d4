// Package consensuserrors gives the consensus core's four error tiers
// (Validation, Policy, Transient, Fatal) a stable code that callers can
// switch on, while keeping github.com/pkg/errors for the wrapped cause
// and stack trace.
package consensuserrors

import "github.com/pkg/errors"

// Tier classifies an error's propagation policy.
type Tier int

const (
	// Validation errors are surfaced to the caller with a stable code and
	// are never retried.
	Validation Tier = iota
	// Policy errors are surfaced to the caller with a stable code and are
	// never retried.
	Policy
	// Transient errors are retried by the producing call site; if they
	// persist they surface to the caller.
	Transient
	// Fatal errors abort the current operation, emit a CRITICAL audit
	// event, and are never retried.
	Fatal
)

func (t Tier) String() string {
	switch t {
	case Validation:
		return "validation"
	case Policy:
		return "policy"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Code is a stable, logical error code from spec §7.
type Code string

const (
	// Validation codes.
	CodeTxTooLarge          Code = "TxTooLarge"
	CodeFeeTooLow           Code = "FeeTooLow"
	CodeSizeExceeded        Code = "SizeExceeded"
	CodeDoubleSpend         Code = "DoubleSpend"
	CodeSpentUTXO           Code = "SpentUTXO"
	CodeDuplicateTx         Code = "DuplicateTx"
	CodeAncestryExceeded    Code = "AncestryLimitExceeded"
	CodeCoinbaseInvalid     Code = "CoinbaseInvalid"
	CodeMerkleMismatch      Code = "MerkleMismatch"
	CodeTargetNotMet        Code = "TargetNotMet"
	CodeHeaderInvalid       Code = "HeaderInvalid"
	CodeStructureInvalid    Code = "StructureInvalid"
	CodeTimestampOutOfRange Code = "TimestampOutOfRange"
	CodeDifficultyOutOfRange Code = "DifficultyOutOfRange"
	CodeTxInvalid           Code = "TxInvalid"
	CodeChainAppendFailed   Code = "ChainAppendFailed"

	// Policy codes.
	CodeNetworkUnhealthy    Code = "NetworkUnhealthy"
	CodeRateLimited         Code = "RateLimited"
	CodeBackpressure        Code = "BackpressureRejected"
	CodeForkTooDeep         Code = "ForkTooDeep"
	CodeNoActivePeriod      Code = "NoActivePeriod"
	CodeOutsidePeriodWindow Code = "OutsidePeriodWindow"
	CodeInvalidVoteType     Code = "InvalidVoteType"
	CodeVoteTooLarge        Code = "VoteTooLarge"
	CodeUnauthorizedValidator Code = "UnauthorizedValidator"
	CodeDuplicateVote       Code = "DuplicateVote"

	// Transient codes.
	CodeStorageUnavailable    Code = "StorageUnavailable"
	CodeMutexTimeout          Code = "MutexTimeout"
	CodeBlockInflightTimeout  Code = "BlockInflightTimeout"
	CodeWorkerError           Code = "WorkerError"
	CodeGpuFailure            Code = "GpuFailure"

	// Fatal codes.
	CodeConsensusStateCorrupted Code = "ConsensusStateCorrupted"
	CodeInvariantViolated       Code = "InvariantViolated"
	CodeCriticalStorageFailure  Code = "CriticalStorageFailure"
)

var codeTiers = map[Code]Tier{
	CodeTxTooLarge: Validation, CodeFeeTooLow: Validation, CodeSizeExceeded: Validation,
	CodeDoubleSpend: Validation, CodeSpentUTXO: Validation, CodeDuplicateTx: Validation,
	CodeAncestryExceeded: Validation, CodeCoinbaseInvalid: Validation, CodeMerkleMismatch: Validation,
	CodeTargetNotMet: Validation, CodeHeaderInvalid: Validation, CodeStructureInvalid: Validation,
	CodeTimestampOutOfRange: Validation, CodeDifficultyOutOfRange: Validation,
	CodeTxInvalid: Validation, CodeChainAppendFailed: Validation,

	CodeNetworkUnhealthy: Policy, CodeRateLimited: Policy, CodeBackpressure: Policy,
	CodeForkTooDeep: Policy, CodeNoActivePeriod: Policy, CodeOutsidePeriodWindow: Policy,
	CodeInvalidVoteType: Policy, CodeVoteTooLarge: Policy, CodeUnauthorizedValidator: Policy,
	CodeDuplicateVote: Policy,

	CodeStorageUnavailable: Transient, CodeMutexTimeout: Transient,
	CodeBlockInflightTimeout: Transient, CodeWorkerError: Transient, CodeGpuFailure: Transient,

	CodeConsensusStateCorrupted: Fatal, CodeInvariantViolated: Fatal, CodeCriticalStorageFailure: Fatal,
}

// ConsensusError is a tagged error carrying a stable Code alongside the
// wrapped cause.
type ConsensusError struct {
	Code  Code
	Tier  Tier
	cause error
}

func (e *ConsensusError) Error() string {
	if e.cause == nil {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.cause.Error()
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *ConsensusError) Unwrap() error { return e.cause }

// New builds a ConsensusError with the given code and a formatted message.
func New(code Code, format string, args ...interface{}) error {
	return &ConsensusError{Code: code, Tier: codeTiers[code], cause: errors.Errorf(format, args...)}
}

// Wrap attaches code to an existing cause, preserving its stack trace via
// github.com/pkg/errors.
func Wrap(code Code, cause error) error {
	if cause == nil {
		return nil
	}
	return &ConsensusError{Code: code, Tier: codeTiers[code], cause: errors.WithStack(cause)}
}

// CodeOf extracts the Code from err, if any.
func CodeOf(err error) (Code, bool) {
	var ce *ConsensusError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}

// TierOf extracts the Tier from err, if any.
func TierOf(err error) (Tier, bool) {
	var ce *ConsensusError
	if errors.As(err, &ce) {
		return ce.Tier, true
	}
	return 0, false
}

// IsRetriable reports whether err is a Transient-tier error that the
// producing call site should retry.
func IsRetriable(err error) bool {
	tier, ok := TierOf(err)
	return ok && tier == Transient
}
