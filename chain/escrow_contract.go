package chain

import (
	"context"
	"fmt"
	"math/big"
)

// EscrowDetails mirrors the on-chain record for one task's escrow
type EscrowDetails struct {
	Payer  string   `json:"payer"`
	Payee  string   `json:"payee"`
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
	Locked bool     `json:"locked"`
}

// EscrowContract binds the escrow vault contract. The chain record is the
// source of truth for whether funds are held; callers re-check it before
// any money-moving decision.
type EscrowContract struct {
	client  *Client
	address string
}

// NewEscrowContract binds the network's escrow vault
func NewEscrowContract(client *Client) *EscrowContract {
	return &EscrowContract{client: client, address: client.Network().EscrowContract}
}

// Address returns the vault's contract address
func (e *EscrowContract) Address() string {
	return e.address
}

// Lock deposits amount of token for taskID, naming the assignee as payee.
// The payer must already have approved the vault for at least amount.
func (e *EscrowContract) Lock(ctx context.Context, payer, taskID, assignee, token string, amount *big.Int) (string, error) {
	key, err := encodeBytes32(TaskIDToBytes32(taskID))
	if err != nil {
		return "", err
	}
	assigneeArg, err := encodeAddress(assignee)
	if err != nil {
		return "", fmt.Errorf("invalid assignee address: %w", err)
	}
	tokenArg, err := encodeAddress(token)
	if err != nil {
		return "", fmt.Errorf("invalid token address: %w", err)
	}
	amountArg, err := encodeUint256(amount)
	if err != nil {
		return "", err
	}
	hash, _, err := e.client.Submit(ctx, "escrow lock", TxRequest{
		From: payer,
		To:   e.address,
		Data: encodeCall(selLockEscrow, key, assigneeArg, tokenArg, amountArg),
	})
	return hash, err
}

// Release pays the escrowed funds out to the recorded payee. Only the payer
// may call this; the contract enforces it.
func (e *EscrowContract) Release(ctx context.Context, payer, taskID string) (string, error) {
	key, err := encodeBytes32(TaskIDToBytes32(taskID))
	if err != nil {
		return "", err
	}
	hash, _, err := e.client.Submit(ctx, "escrow release", TxRequest{
		From: payer,
		To:   e.address,
		Data: encodeCall(selReleaseEscrow, key),
	})
	return hash, err
}

// RefundByAssignee lets the recorded payee return the funds to the payer,
// with a short reason note
func (e *EscrowContract) RefundByAssignee(ctx context.Context, assignee, taskID, reason string) (string, error) {
	key, err := encodeBytes32(TaskIDToBytes32(taskID))
	if err != nil {
		return "", err
	}
	// bytes32 word, then offset to the dynamic reason string
	offset, _ := encodeUint256(big.NewInt(64))
	hash, _, err := e.client.Submit(ctx, "escrow refund", TxRequest{
		From: assignee,
		To:   e.address,
		Data: encodeCall(selRefundByAsgn, key, offset, encodeString(reason)),
	})
	return hash, err
}

// ResolveDispute pays the escrow out to winner, who must be either the
// recorded payer or payee. Only the contract arbiter may call this.
func (e *EscrowContract) ResolveDispute(ctx context.Context, arbiter, taskID, winner string) (string, error) {
	key, err := encodeBytes32(TaskIDToBytes32(taskID))
	if err != nil {
		return "", err
	}
	winnerArg, err := encodeAddress(winner)
	if err != nil {
		return "", fmt.Errorf("invalid winner address: %w", err)
	}
	hash, _, err := e.client.Submit(ctx, "dispute resolution", TxRequest{
		From: arbiter,
		To:   e.address,
		Data: encodeCall(selResolve, key, winnerArg),
	})
	return hash, err
}

// Details reads the vault record for taskID
func (e *EscrowContract) Details(ctx context.Context, taskID string) (*EscrowDetails, error) {
	key, err := encodeBytes32(TaskIDToBytes32(taskID))
	if err != nil {
		return nil, err
	}
	out, err := e.client.CallContract(ctx, e.address, encodeCall(selGetEscrow, key))
	if err != nil {
		return nil, fmt.Errorf("escrow lookup failed: %w", err)
	}

	payer, err := wordAddress(out, 0)
	if err != nil {
		return nil, fmt.Errorf("malformed escrow record: %w", err)
	}
	payee, err := wordAddress(out, 1)
	if err != nil {
		return nil, fmt.Errorf("malformed escrow record: %w", err)
	}
	token, err := wordAddress(out, 2)
	if err != nil {
		return nil, fmt.Errorf("malformed escrow record: %w", err)
	}
	amountWord, err := word(out, 3)
	if err != nil {
		return nil, fmt.Errorf("malformed escrow record: %w", err)
	}
	amount, err := decodeUint256(amountWord)
	if err != nil {
		return nil, fmt.Errorf("malformed escrow record: %w", err)
	}
	lockedWord, err := word(out, 4)
	if err != nil {
		return nil, fmt.Errorf("malformed escrow record: %w", err)
	}
	locked, err := decodeBool(lockedWord)
	if err != nil {
		return nil, fmt.Errorf("malformed escrow record: %w", err)
	}

	return &EscrowDetails{
		Payer:  payer,
		Payee:  payee,
		Token:  token,
		Amount: amount,
		Locked: locked,
	}, nil
}

// IsLocked reports whether funds are currently held for taskID
func (e *EscrowContract) IsLocked(ctx context.Context, taskID string) (bool, error) {
	key, err := encodeBytes32(TaskIDToBytes32(taskID))
	if err != nil {
		return false, err
	}
	out, err := e.client.CallContract(ctx, e.address, encodeCall(selIsLocked, key))
	if err != nil {
		return false, fmt.Errorf("escrow lock check failed: %w", err)
	}
	return decodeBool(out)
}
