package escrow

import (
	"fmt"
	"strings"
)

// ValidationError means bad input was caught before any ledger call.
// No funds moved.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a named field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ImmutableTaskError means a mutation was attempted on a paid task
type ImmutableTaskError struct {
	TaskID string
}

func (e *ImmutableTaskError) Error() string {
	return fmt.Sprintf("task %s has been paid and can no longer be modified", e.TaskID)
}

// EscrowFieldLockedError means an edit touched a field frozen by escrow
type EscrowFieldLockedError struct {
	TaskID string
	Field  string
}

func (e *EscrowFieldLockedError) Error() string {
	return fmt.Sprintf("task %s: %s is locked while escrow is enabled", e.TaskID, e.Field)
}

// NetworkMismatchError means the signer's session is on the wrong chain.
// Raised before any state write, so no funds moved.
type NetworkMismatchError struct {
	Have string
	Want string
}

func (e *NetworkMismatchError) Error() string {
	return fmt.Sprintf("wallet is on chain %s, expected %s", e.Have, e.Want)
}

// InsufficientFundsError means the preflight token balance check failed.
// No transaction was submitted.
type InsufficientFundsError struct {
	Token     string
	Required  string
	Available string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s balance: need %s, have %s", e.Token, e.Required, e.Available)
}

// InsufficientGasError means the preflight native balance check failed.
// No transaction was submitted.
type InsufficientGasError struct {
	Required  string
	Available string
}

func (e *InsufficientGasError) Error() string {
	return fmt.Sprintf("insufficient native balance for gas: need %s wei, have %s wei", e.Required, e.Available)
}

// DisputeNotEligibleError means a dispute was raised while escrow was not
// holding funds, or one is already open
type DisputeNotEligibleError struct {
	TaskID string
	Reason string
}

func (e *DisputeNotEligibleError) Error() string {
	return fmt.Sprintf("task %s is not eligible for dispute: %s", e.TaskID, e.Reason)
}

// BatchTooLargeError means a payout list exceeded the contract limit
type BatchTooLargeError struct {
	Size int
	Max  int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch of %d recipients exceeds the limit of %d", e.Size, e.Max)
}

// MixedTokenError means one batch mixed reward tokens; batches settle a
// single token per call
type MixedTokenError struct {
	Tokens []string
}

func (e *MixedTokenError) Error() string {
	return fmt.Sprintf("batch mixes reward tokens [%s]; settle each token separately", strings.Join(e.Tokens, ", "))
}
