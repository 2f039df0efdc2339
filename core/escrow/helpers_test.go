package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Malik434/TaskWiser-V2-sub000/chain"
)

const (
	ownerWallet    = "0x1000000000000000000000000000000000000001"
	assigneeWallet = "0x2000000000000000000000000000000000000002"
	otherWallet    = "0x3000000000000000000000000000000000000003"
	adminWallet    = "0x9000000000000000000000000000000000000009"
)

// fakeStore is an in-memory Store for tests
type fakeStore struct {
	mu       sync.Mutex
	tasks    map[string]*Task
	disputes map[string]*Dispute
	wallets  map[string]string

	failTaskUpdates int // fail this many UpdateTask calls before succeeding
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:    map[string]*Task{},
		disputes: map[string]*Dispute{},
		wallets: map[string]string{
			"owner":    ownerWallet,
			"assignee": assigneeWallet,
			"other":    otherWallet,
		},
	}
}

func (s *fakeStore) putTask(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	s.tasks[task.ID] = &cp
}

func (s *fakeStore) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	cp := *task
	return &cp, nil
}

func (s *fakeStore) UpdateTask(_ context.Context, id string, patch TaskPatch) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTaskUpdates > 0 {
		s.failTaskUpdates--
		return nil, fmt.Errorf("store write failed")
	}
	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	ApplyPatch(task, patch)
	cp := *task
	return &cp, nil
}

func (s *fakeStore) GetDispute(_ context.Context, id string) (*Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dispute, ok := s.disputes[id]
	if !ok {
		return nil, fmt.Errorf("dispute not found: %s", id)
	}
	cp := *dispute
	return &cp, nil
}

func (s *fakeStore) GetDisputeByTask(_ context.Context, taskID string) (*Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dispute := range s.disputes {
		if dispute.TaskID == taskID && dispute.Status != DisputeStatusResolved {
			cp := *dispute
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateDispute(_ context.Context, dispute *Dispute) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *dispute
	s.disputes[dispute.ID] = &cp
	return dispute.ID, nil
}

func (s *fakeStore) UpdateDispute(_ context.Context, id string, patch DisputePatch) (*Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dispute, ok := s.disputes[id]
	if !ok {
		return nil, fmt.Errorf("dispute not found: %s", id)
	}
	ApplyDisputePatch(dispute, patch)
	cp := *dispute
	return &cp, nil
}

func (s *fakeStore) GetUserWalletAddress(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.wallets[userID]
	if !ok {
		return "", fmt.Errorf("no wallet for user %s", userID)
	}
	return addr, nil
}

// fakeLedger is an httptest JSON-RPC node with just enough behavior for
// the escrow and settlement flows
type fakeLedger struct {
	mu sync.Mutex

	chainID       string
	nativeBalance map[string]*big.Int // by lowercased holder
	tokenBalance  map[string]*big.Int
	allowance     map[string]*big.Int // owner|spender
	lockedTasks   map[string]bool     // by task key hex

	rejectSends bool // wallet declines every signature
	rejectAfter int  // wallet declines once this many sends were accepted (0 = unused)
	revertSends bool // every transaction mines with status 0

	sent     []sentTx
	receipts map[string]string // hash -> status
	server   *httptest.Server
}

type sentTx struct {
	From string
	To   string
	Data string
}

func newFakeLedger(t *testing.T) *fakeLedger {
	t.Helper()
	fl := &fakeLedger{
		chainID:       chain.SepoliaChainID,
		nativeBalance: map[string]*big.Int{},
		tokenBalance:  map[string]*big.Int{},
		allowance:     map[string]*big.Int{},
		lockedTasks:   map[string]bool{},
		receipts:      map[string]string{},
	}
	fl.server = httptest.NewServer(http.HandlerFunc(fl.handle))
	t.Cleanup(fl.server.Close)
	return fl
}

func (fl *fakeLedger) client() *chain.Client {
	cfg := *chain.GetNetworkConfig("sepolia")
	cfg.RPCURL = fl.server.URL
	c := chain.NewClient(cfg)
	c.SetRateLimiter(chain.NewRateLimiter(1000000, time.Hour, 0))
	c.ConfirmTimeout = 2 * time.Second
	c.PollInterval = 5 * time.Millisecond
	return c
}

func (fl *fakeLedger) fund(holder string, native, token int64) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.nativeBalance[strings.ToLower(holder)] = big.NewInt(native)
	fl.tokenBalance[strings.ToLower(holder)] = big.NewInt(token)
}

func (fl *fakeLedger) setAllowance(owner, spender string, amount int64) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.allowance[strings.ToLower(owner)+"|"+strings.ToLower(spender)] = big.NewInt(amount)
}

func (fl *fakeLedger) setLocked(taskID string, locked bool) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.lockedTasks[chain.TaskIDToBytes32(taskID)] = locked
}

func (fl *fakeLedger) sentCount() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return len(fl.sent)
}

func (fl *fakeLedger) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fl.mu.Lock()
	defer fl.mu.Unlock()

	write := func(result any) {
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}
	writeErr := func(code int, msg string) {
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID,
			"error": map[string]any{"code": code, "message": msg}})
	}

	switch req.Method {
	case "eth_chainId":
		write(fl.chainID)
	case "eth_gasPrice":
		write("0x3b9aca00") // 1 gwei
	case "eth_getBalance":
		var params []string
		json.Unmarshal(req.Params, &params)
		bal, ok := fl.nativeBalance[strings.ToLower(params[0])]
		if !ok {
			bal = big.NewInt(0)
		}
		write("0x" + bal.Text(16))
	case "eth_call":
		var params []json.RawMessage
		json.Unmarshal(req.Params, &params)
		var call struct {
			To   string `json:"to"`
			Data string `json:"data"`
		}
		json.Unmarshal(params[0], &call)
		write(fl.evalCall(call.Data))
	case "eth_sendTransaction":
		if fl.rejectSends || (fl.rejectAfter > 0 && len(fl.sent) >= fl.rejectAfter) {
			writeErr(chain.CodeUserRejected, "User denied transaction signature")
			return
		}
		var params []json.RawMessage
		json.Unmarshal(req.Params, &params)
		var tx sentTx
		json.Unmarshal(params[0], &tx)
		fl.sent = append(fl.sent, tx)
		fl.applyTx(tx)
		hash := fmt.Sprintf("0xt%06d", len(fl.sent))
		status := "0x1"
		if fl.revertSends {
			status = "0x0"
		}
		fl.receipts[hash] = status
		write(hash)
	case "eth_getTransactionReceipt":
		var params []string
		json.Unmarshal(req.Params, &params)
		status, ok := fl.receipts[params[0]]
		if !ok {
			write(nil)
			return
		}
		write(map[string]string{
			"transactionHash": params[0],
			"blockNumber":     "0x10",
			"status":          status,
			"gasUsed":         "0x5208",
		})
	default:
		writeErr(-32601, "method not found")
	}
}

// evalCall answers read calls by selector
func (fl *fakeLedger) evalCall(data string) string {
	data = strings.TrimPrefix(data, "0x")
	if len(data) < 8 {
		return "0x"
	}
	selector, args := data[:8], data[8:]
	wordAt := func(i int) string { return args[i*64 : (i+1)*64] }

	switch selector {
	case "70a08231": // balanceOf(address)
		holder := "0x" + wordAt(0)[24:]
		bal, ok := fl.tokenBalance[strings.ToLower(holder)]
		if !ok {
			bal = big.NewInt(0)
		}
		return fmt.Sprintf("0x%064x", bal)
	case "dd62ed3e": // allowance(address,address)
		owner := "0x" + wordAt(0)[24:]
		spender := "0x" + wordAt(1)[24:]
		allowed, ok := fl.allowance[strings.ToLower(owner)+"|"+strings.ToLower(spender)]
		if !ok {
			allowed = big.NewInt(0)
		}
		return fmt.Sprintf("0x%064x", allowed)
	case "c3b543c5": // isEscrowLocked(bytes32)
		if fl.lockedTasks[wordAt(0)] {
			return fmt.Sprintf("0x%064x", 1)
		}
		return fmt.Sprintf("0x%064x", 0)
	}
	return "0x"
}

// applyTx keeps lock state roughly honest for multi-step flows
func (fl *fakeLedger) applyTx(tx sentTx) {
	if fl.revertSends {
		return
	}
	data := strings.TrimPrefix(tx.Data, "0x")
	if len(data) < 8 {
		return
	}
	selector, args := data[:8], data[8:]
	switch selector {
	case "0e1bf927": // lockEscrow
		fl.lockedTasks[args[:64]] = true
	case "f340fcbb", "3b8f0d4c", "61a5e7b2": // release | refund | resolve
		if len(args) >= 64 {
			fl.lockedTasks[args[:64]] = false
		}
	case "095ea7b3": // approve(spender, amount)
		owner := strings.ToLower(tx.From)
		spender := strings.ToLower("0x" + args[24:64])
		amount, _ := new(big.Int).SetString(args[64:128], 16)
		fl.allowance[owner+"|"+spender] = amount
	}
}

// escrowTask builds a typical escrow-backed task for tests
func escrowTask(id string) *Task {
	now := time.Now()
	return &Task{
		ID:            id,
		OwnerID:       "owner",
		Title:         "Implement the payment report",
		Description:   "Generate the monthly payment report",
		Status:        TaskStatusInProgress,
		RewardToken:   "USDC",
		RewardAmount:  100,
		EscrowEnabled: true,
		EscrowStatus:  EscrowStatusPending,
		AssigneeID:    "assignee",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func ownerSession() Session {
	return Session{Account: ownerWallet, ChainID: chain.SepoliaChainID}
}

func adminSession() Session {
	return Session{Account: adminWallet, ChainID: chain.SepoliaChainID, IsAdmin: true}
}
