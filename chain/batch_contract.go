package chain

import (
	"context"
	"fmt"
	"math/big"
)

// Gas cost model for payouts, used by the settlement preflight to decide
// whether the payer's native balance can carry the run
const (
	batchBaseGas         = 320000
	batchPerRecipientGas = 80000
	singleTransferGas    = 120000
)

// BatchGasLimit estimates the gas of one batch payout with n recipients
func BatchGasLimit(n int) *big.Int {
	return big.NewInt(int64(batchBaseGas + batchPerRecipientGas*n))
}

// SequentialGasLimit estimates the total gas of n individual transfers
func SequentialGasLimit(n int) *big.Int {
	return big.NewInt(int64(singleTransferGas * n))
}

// BatchContract binds the batch disbursement contract, which moves one
// token to many recipients atomically
type BatchContract struct {
	client  *Client
	address string
}

// NewBatchContract binds the network's batch disbursement contract
func NewBatchContract(client *Client) *BatchContract {
	return &BatchContract{client: client, address: client.Network().BatchContract}
}

// Address returns the disbursement contract address
func (b *BatchContract) Address() string {
	return b.address
}

// EncodePayout builds the batchPay calldata without submitting it
func (b *BatchContract) EncodePayout(token, payer string, recipients []string, amounts []*big.Int) (string, error) {
	if len(recipients) == 0 {
		return "", fmt.Errorf("batch payout needs at least one recipient")
	}
	if len(recipients) != len(amounts) {
		return "", fmt.Errorf("recipient/amount length mismatch: %d vs %d", len(recipients), len(amounts))
	}
	if len(recipients) > MaxBatchRecipients {
		return "", fmt.Errorf("batch of %d exceeds the %d recipient limit", len(recipients), MaxBatchRecipients)
	}

	tokenArg, err := encodeAddress(token)
	if err != nil {
		return "", fmt.Errorf("invalid token address: %w", err)
	}
	payerArg, err := encodeAddress(payer)
	if err != nil {
		return "", fmt.Errorf("invalid payer address: %w", err)
	}
	recipientsArg, err := encodeAddressArray(recipients)
	if err != nil {
		return "", err
	}
	amountsArg, err := encodeUint256Array(amounts)
	if err != nil {
		return "", err
	}

	// four head words, then the two dynamic arrays
	headSize := int64(4 * 32)
	offRecipients, _ := encodeUint256(big.NewInt(headSize))
	offAmounts, _ := encodeUint256(big.NewInt(headSize + 32 + int64(len(recipients))*32))

	return encodeCall(selBatchPay, tokenArg, payerArg, offRecipients, offAmounts, recipientsArg, amountsArg), nil
}

// Pay submits one atomic payout of token from payer to every recipient and
// waits for confirmation. The payer must have approved the contract for the
// batch total beforehand.
func (b *BatchContract) Pay(ctx context.Context, token, payer string, recipients []string, amounts []*big.Int) (string, error) {
	data, err := b.EncodePayout(token, payer, recipients, amounts)
	if err != nil {
		return "", err
	}
	hash, _, err := b.client.Submit(ctx, "batch payout", TxRequest{
		From: payer,
		To:   b.address,
		Data: data,
		Gas:  BigToHex(BatchGasLimit(len(recipients))),
	})
	return hash, err
}
