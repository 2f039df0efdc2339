package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient wires a client to a fake JSON-RPC node
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := *GetNetworkConfig("sepolia")
	cfg.RPCURL = server.URL
	client := NewClient(cfg)
	client.rateLimiter = NewRateLimiter(100000, time.Hour, 0)
	client.ConfirmTimeout = 500 * time.Millisecond
	client.PollInterval = 10 * time.Millisecond
	return client
}

func rpcResult(w http.ResponseWriter, id uint64, result any) {
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

func decodeRPC(t *testing.T, r *http.Request) rpcRequest {
	t.Helper()
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Fatalf("failed to decode rpc request: %v", err)
	}
	return req
}

func TestClientChainID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		if req.Method != "eth_chainId" {
			t.Errorf("unexpected method %s", req.Method)
		}
		rpcResult(w, req.ID, SepoliaChainID)
	})

	id, err := client.ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID returned error: %v", err)
	}
	if id != SepoliaChainID {
		t.Errorf("ChainID = %s, want %s", id, SepoliaChainID)
	}
	if err := client.VerifyNetwork(context.Background()); err != nil {
		t.Errorf("VerifyNetwork should accept the configured chain: %v", err)
	}
}

func TestClientVerifyNetworkMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		rpcResult(w, req.ID, "0x1")
	})

	if err := client.VerifyNetwork(context.Background()); err == nil {
		t.Error("VerifyNetwork should reject a node on the wrong chain")
	}
}

func TestClientUserRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": CodeUserRejected, "message": "User denied transaction signature"},
		})
	})

	_, err := client.SendTransaction(context.Background(), "escrow lock", TxRequest{
		From: "0x1111111111111111111111111111111111111111",
		To:   "0x2222222222222222222222222222222222222222",
	})
	var rejected *UserRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected UserRejectedError, got %v", err)
	}
	if rejected.Action != "escrow lock" {
		t.Errorf("rejection should name the action, got %q", rejected.Action)
	}
}

func TestClientWaitForConfirmation(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		// pending for the first two polls, then mined
		if calls.Add(1) < 3 {
			rpcResult(w, req.ID, nil)
			return
		}
		rpcResult(w, req.ID, map[string]string{
			"transactionHash": "0xabc",
			"blockNumber":     "0x10",
			"status":          "0x1",
			"gasUsed":         "0x5208",
		})
	})

	receipt, err := client.WaitForConfirmation(context.Background(), "token transfer", "0xabc")
	if err != nil {
		t.Fatalf("WaitForConfirmation returned error: %v", err)
	}
	if receipt.Reverted() {
		t.Error("successful receipt should not read as reverted")
	}
	if calls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", calls.Load())
	}
}

func TestClientRevertedTransaction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		rpcResult(w, req.ID, map[string]string{
			"transactionHash": "0xdead",
			"blockNumber":     "0x10",
			"status":          "0x0",
			"gasUsed":         "0x5208",
		})
	})

	_, err := client.WaitForConfirmation(context.Background(), "escrow release", "0xdead")
	var failed *TransactionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected TransactionFailedError, got %v", err)
	}
	if failed.TxHash != "0xdead" {
		t.Errorf("error should carry the tx hash, got %q", failed.TxHash)
	}
}

func TestClientConfirmationTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		rpcResult(w, req.ID, nil)
	})

	_, err := client.WaitForConfirmation(context.Background(), "batch payout", "0xslow")
	var timeout *ConfirmationTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ConfirmationTimeoutError, got %v", err)
	}
	if timeout.TxHash != "0xslow" {
		t.Errorf("timeout should carry the tx hash for manual follow-up, got %q", timeout.TxHash)
	}
}

func TestClientBalanceAndGasPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		switch req.Method {
		case "eth_getBalance":
			rpcResult(w, req.ID, "0xde0b6b3a7640000") // 1 ether
		case "eth_gasPrice":
			rpcResult(w, req.ID, "0x3b9aca00") // 1 gwei
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	})

	bal, err := client.GetBalance(context.Background(), "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}
	if bal.String() != "1000000000000000000" {
		t.Errorf("balance = %s, want 1 ether in wei", bal)
	}

	price, err := client.GasPrice(context.Background())
	if err != nil {
		t.Fatalf("GasPrice returned error: %v", err)
	}
	if price.String() != "1000000000" {
		t.Errorf("gas price = %s, want 1 gwei in wei", price)
	}
}
