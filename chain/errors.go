package chain

import "fmt"

// Provider error code sent by wallets when the user declines a signing prompt
const CodeUserRejected = 4001

// RPCError is the error object of a JSON-RPC response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// UserRejectedError means the signer declined the transaction before
// submission. No funds moved.
type UserRejectedError struct {
	Action string
}

func (e *UserRejectedError) Error() string {
	return fmt.Sprintf("user rejected %s request", e.Action)
}

// TransactionFailedError means a transaction was mined and reverted.
// The submission happened but the intended effect did not.
type TransactionFailedError struct {
	TxHash string
	Action string
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("%s transaction %s reverted on chain", e.Action, e.TxHash)
}

// ConfirmationTimeoutError means a submitted transaction was not seen in a
// block before the deadline. Its final outcome is unknown: the transaction
// may still confirm later, so callers must not treat this as "no funds moved".
type ConfirmationTimeoutError struct {
	TxHash string
	Waited string
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed after %s; outcome unknown, check the explorer before retrying", e.TxHash, e.Waited)
}

// wrapRPCError promotes wallet rejection codes to their typed form
func wrapRPCError(action string, err error) error {
	if rpcErr, ok := err.(*RPCError); ok && rpcErr.Code == CodeUserRejected {
		return &UserRejectedError{Action: action}
	}
	return fmt.Errorf("%s failed: %w", action, err)
}
