package chain

import (
	"context"
	"fmt"
	"math/big"
)

// ERC20 binds a token contract for the balance, allowance and transfer
// calls settlement relies on
type ERC20 struct {
	client *Client
	config TokenConfig
}

// NewERC20 creates a token binding from a network token entry
func NewERC20(client *Client, config TokenConfig) *ERC20 {
	return &ERC20{client: client, config: config}
}

// Config returns the token's static configuration
func (t *ERC20) Config() TokenConfig {
	return t.config
}

// BalanceOf returns the holder's token balance in smallest units
func (t *ERC20) BalanceOf(ctx context.Context, holder string) (*big.Int, error) {
	arg, err := encodeAddress(holder)
	if err != nil {
		return nil, err
	}
	out, err := t.client.CallContract(ctx, t.config.Address, encodeCall(selBalanceOf, arg))
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s) failed: %w", holder, err)
	}
	return decodeUint256(out)
}

// Allowance returns how much spender may move on owner's behalf
func (t *ERC20) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	ownerArg, err := encodeAddress(owner)
	if err != nil {
		return nil, err
	}
	spenderArg, err := encodeAddress(spender)
	if err != nil {
		return nil, err
	}
	out, err := t.client.CallContract(ctx, t.config.Address, encodeCall(selAllowance, ownerArg, spenderArg))
	if err != nil {
		return nil, fmt.Errorf("allowance(%s, %s) failed: %w", owner, spender, err)
	}
	return decodeUint256(out)
}

// Approve grants spender the right to move amount from the caller and waits
// for the approval to confirm
func (t *ERC20) Approve(ctx context.Context, from, spender string, amount *big.Int) (string, error) {
	spenderArg, err := encodeAddress(spender)
	if err != nil {
		return "", err
	}
	amountArg, err := encodeUint256(amount)
	if err != nil {
		return "", err
	}
	hash, _, err := t.client.Submit(ctx, "token approval", TxRequest{
		From: from,
		To:   t.config.Address,
		Data: encodeCall(selApprove, spenderArg, amountArg),
	})
	if err != nil {
		return hash, err
	}
	return hash, nil
}

// Transfer sends amount directly to a recipient and waits for confirmation
func (t *ERC20) Transfer(ctx context.Context, from, to string, amount *big.Int) (string, error) {
	toArg, err := encodeAddress(to)
	if err != nil {
		return "", err
	}
	amountArg, err := encodeUint256(amount)
	if err != nil {
		return "", err
	}
	hash, _, err := t.client.Submit(ctx, "token transfer", TxRequest{
		From: from,
		To:   t.config.Address,
		Data: encodeCall(selTransfer, toArg, amountArg),
	})
	if err != nil {
		return hash, err
	}
	return hash, nil
}
