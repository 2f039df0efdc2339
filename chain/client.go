package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimiter throttles RPC traffic to stay under public endpoint quotas
type RateLimiter struct {
	requests    int
	maxRequests int
	windowStart time.Time
	windowSize  time.Duration
	minInterval time.Duration
	lastRequest time.Time
	mu          sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxRequests int, windowSize time.Duration, minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		windowSize:  windowSize,
		windowStart: time.Now(),
		minInterval: minInterval,
	}
}

// AllowRequest checks if a request is allowed
func (rl *RateLimiter) AllowRequest() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if !rl.lastRequest.IsZero() && now.Sub(rl.lastRequest) < rl.minInterval {
		return false
	}

	rl.requests++
	if now.Sub(rl.windowStart) >= rl.windowSize {
		rl.requests = 1
		rl.windowStart = now
	}

	if rl.requests <= rl.maxRequests {
		rl.lastRequest = now
		return true
	}
	return false
}

// TxRequest is the parameter object for eth_sendTransaction
type TxRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
	Gas   string `json:"gas,omitempty"`
}

// TxReceipt is the subset of an execution receipt the settlement layer needs
type TxReceipt struct {
	TxHash      string `json:"transactionHash"`
	BlockNumber string `json:"blockNumber"`
	Status      string `json:"status"`
	GasUsed     string `json:"gasUsed"`
}

// Reverted reports whether the transaction was mined but failed
func (r *TxReceipt) Reverted() bool {
	return r.Status == "0x0"
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Client talks JSON-RPC to a ledger node. It covers the read calls the
// settlement preflight needs plus transaction submission through a
// wallet-backed signer endpoint.
type Client struct {
	httpClient  *http.Client
	rpcURL      string
	rateLimiter *RateLimiter
	network     NetworkConfig
	reqID       atomic.Uint64

	// confirmation polling knobs, overridable in tests
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// NewClient creates a ledger client for the given network
func NewClient(network NetworkConfig) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rpcURL:         network.RPCURL,
		rateLimiter:    NewRateLimiter(300, time.Minute, 50*time.Millisecond),
		network:        network,
		ConfirmTimeout: 3 * time.Minute,
		PollInterval:   4 * time.Second,
	}
}

// Network returns the network configuration this client was built with
func (c *Client) Network() NetworkConfig {
	return c.network
}

// SetRateLimiter replaces the request throttle, for private nodes that
// have no quota
func (c *Client) SetRateLimiter(rl *RateLimiter) {
	c.rateLimiter = rl
}

// call performs one JSON-RPC round trip with retry on transport failures
func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rpc request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt*attempt) * time.Second):
			}
		}

		if !c.rateLimiter.AllowRequest() {
			lastErr = fmt.Errorf("rate limit exceeded (attempt %d/3)", attempt+1)
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to build rpc request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("rpc transport error: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read rpc response: %w", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("rpc node returned status %d", resp.StatusCode)
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(body, &rpcResp); err != nil {
			lastErr = fmt.Errorf("failed to decode rpc response: %w", err)
			continue
		}
		if rpcResp.Error != nil {
			// Node-level errors are final, not transport flakes
			return nil, rpcResp.Error
		}
		return rpcResp.Result, nil
	}

	return nil, lastErr
}

// callString runs an RPC call whose result is a JSON string
func (c *Client) callString(ctx context.Context, method string, params ...any) (string, error) {
	raw, err := c.call(ctx, method, params...)
	if err != nil {
		return "", err
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("unexpected %s result: %w", method, err)
	}
	return out, nil
}

// callBig runs an RPC call whose result is a hex quantity
func (c *Client) callBig(ctx context.Context, method string, params ...any) (*big.Int, error) {
	hexVal, err := c.callString(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	return hexToBig(hexVal)
}

// ChainID returns the connected chain's id as a 0x-prefixed hex string
func (c *Client) ChainID(ctx context.Context) (string, error) {
	return c.callString(ctx, "eth_chainId")
}

// VerifyNetwork checks that the node serves the configured chain
func (c *Client) VerifyNetwork(ctx context.Context) error {
	id, err := c.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to query chain id: %w", err)
	}
	if !strings.EqualFold(id, c.network.ChainID) {
		return fmt.Errorf("connected to chain %s, expected %s (%s)", id, c.network.ChainID, c.network.Name)
	}
	return nil
}

// GetBalance returns the native balance of an address in wei
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if !IsAddress(address) {
		return nil, fmt.Errorf("invalid address: %s", address)
	}
	return c.callBig(ctx, "eth_getBalance", address, "latest")
}

// GasPrice returns the node's current gas price suggestion in wei
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "eth_gasPrice")
}

// CallContract performs a read-only eth_call and returns the raw hex result
func (c *Client) CallContract(ctx context.Context, to string, data string) (string, error) {
	if !IsAddress(to) {
		return "", fmt.Errorf("invalid contract address: %s", to)
	}
	return c.callString(ctx, "eth_call", map[string]string{"to": to, "data": data}, "latest")
}

// SendTransaction submits a transaction through the signer endpoint and
// returns the transaction hash. A wallet rejection comes back as
// UserRejectedError; anything else means the transaction never left.
func (c *Client) SendTransaction(ctx context.Context, action string, tx TxRequest) (string, error) {
	if !IsAddress(tx.From) {
		return "", fmt.Errorf("invalid sender address: %s", tx.From)
	}
	if !IsAddress(tx.To) {
		return "", fmt.Errorf("invalid recipient address: %s", tx.To)
	}
	hash, err := c.callString(ctx, "eth_sendTransaction", tx)
	if err != nil {
		return "", wrapRPCError(action, err)
	}
	return hash, nil
}

// TransactionReceipt fetches a receipt, returning nil while the transaction
// is still pending
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*TxReceipt, error) {
	raw, err := c.call(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	var receipt TxReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &receipt, nil
}

// WaitForConfirmation polls for a receipt until the transaction is mined or
// the deadline passes. A reverted receipt yields TransactionFailedError; a
// deadline yields ConfirmationTimeoutError, which is explicitly ambiguous.
func (c *Client) WaitForConfirmation(ctx context.Context, action string, txHash string) (*TxReceipt, error) {
	deadline := time.Now().Add(c.ConfirmTimeout)
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Reverted() {
				return receipt, &TransactionFailedError{TxHash: txHash, Action: action}
			}
			return receipt, nil
		}

		if time.Now().After(deadline) {
			return nil, &ConfirmationTimeoutError{TxHash: txHash, Waited: c.ConfirmTimeout.String()}
		}
		select {
		case <-ctx.Done():
			return nil, &ConfirmationTimeoutError{TxHash: txHash, Waited: time.Since(deadline.Add(-c.ConfirmTimeout)).Truncate(time.Second).String()}
		case <-ticker.C:
		}
	}
}

// Submit sends a transaction and waits for its confirmation in one step
func (c *Client) Submit(ctx context.Context, action string, tx TxRequest) (string, *TxReceipt, error) {
	hash, err := c.SendTransaction(ctx, action, tx)
	if err != nil {
		return "", nil, err
	}
	receipt, err := c.WaitForConfirmation(ctx, action, hash)
	return hash, receipt, err
}

func hexToBig(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}
	out, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity: %s", s)
	}
	return out, nil
}

// BigToHex formats a quantity as the 0x-prefixed hex JSON-RPC expects
func BigToHex(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0x0"
	}
	return "0x" + v.Text(16)
}
