package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/google/uuid"
)

// MemoryStore holds tasks, disputes and wallet mappings in memory with a
// single RWMutex so related writes stay atomic across maps. It backs tests
// and local development; production runs use the Postgres store.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]*escrow.Task
	disputes map[string]*escrow.Dispute
	wallets  map[string]string
	events   broadcaster
}

// NewMemoryStore returns an empty in-memory store, optionally seeded with
// development fixtures.
func NewMemoryStore(seed bool) *MemoryStore {
	store := &MemoryStore{
		tasks:    make(map[string]*escrow.Task),
		disputes: make(map[string]*escrow.Dispute),
		wallets:  make(map[string]string),
	}
	if seed {
		tasks, wallets := SeedData()
		for i := range tasks {
			task := tasks[i]
			store.tasks[task.ID] = &task
		}
		for user, addr := range wallets {
			store.wallets[user] = addr
		}
	}
	return store
}

// CreateTask stores a new task, generating an id when none is set
func (s *MemoryStore) CreateTask(_ context.Context, task *escrow.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if _, exists := s.tasks[task.ID]; exists {
		return "", ErrDuplicateTask
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = escrow.TaskStatusTodo
	}
	if task.EscrowEnabled && task.EscrowStatus == "" {
		task.EscrowStatus = escrow.EscrowStatusPending
	} else if task.EscrowStatus == "" {
		task.EscrowStatus = escrow.EscrowStatusNone
	}

	cp := *task
	s.tasks[task.ID] = &cp
	s.events.publish(ChangeEvent{Entity: "task", ID: task.ID, Kind: ChangeCreated})
	return task.ID, nil
}

// GetTask returns a copy of a task
func (s *MemoryStore) GetTask(_ context.Context, id string) (*escrow.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *task
	return &cp, nil
}

// UpdateTask applies a partial update and returns the new state
func (s *MemoryStore) UpdateTask(_ context.Context, id string, patch escrow.TaskPatch) (*escrow.Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrTaskNotFound
	}
	escrow.ApplyPatch(task, patch)
	cp := *task
	s.mu.Unlock()

	s.events.publish(ChangeEvent{Entity: "task", ID: id, Kind: ChangeUpdated})
	return &cp, nil
}

// DeleteTask removes an unpaid task
func (s *MemoryStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	if task.Paid {
		s.mu.Unlock()
		return ErrTaskImmutable
	}
	delete(s.tasks, id)
	s.mu.Unlock()

	s.events.publish(ChangeEvent{Entity: "task", ID: id, Kind: ChangeDeleted})
	return nil
}

// ListTasks returns tasks matching the filter, newest first
func (s *MemoryStore) ListTasks(_ context.Context, filter TaskFilter) ([]escrow.Task, error) {
	s.mu.RLock()
	var out []escrow.Task
	for _, task := range s.tasks {
		if matchTask(task, filter) {
			out = append(out, *task)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, filter.Offset, filter.Limit), nil
}

// GetDispute returns a copy of a dispute
func (s *MemoryStore) GetDispute(_ context.Context, id string) (*escrow.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dispute, ok := s.disputes[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	cp := *dispute
	return &cp, nil
}

// GetDisputeByTask returns the live dispute for a task, nil when none exists
func (s *MemoryStore) GetDisputeByTask(_ context.Context, taskID string) (*escrow.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, dispute := range s.disputes {
		if dispute.TaskID == taskID && dispute.Status != escrow.DisputeStatusResolved {
			cp := *dispute
			return &cp, nil
		}
	}
	return nil, nil
}

// CreateDispute stores a new dispute
func (s *MemoryStore) CreateDispute(_ context.Context, dispute *escrow.Dispute) (string, error) {
	s.mu.Lock()
	if dispute.ID == "" {
		dispute.ID = uuid.NewString()
	}
	now := time.Now()
	if dispute.CreatedAt.IsZero() {
		dispute.CreatedAt = now
	}
	dispute.UpdatedAt = now
	cp := *dispute
	s.disputes[dispute.ID] = &cp
	s.mu.Unlock()

	s.events.publish(ChangeEvent{Entity: "dispute", ID: dispute.ID, Kind: ChangeCreated})
	return dispute.ID, nil
}

// UpdateDispute applies a partial update and returns the new state
func (s *MemoryStore) UpdateDispute(_ context.Context, id string, patch escrow.DisputePatch) (*escrow.Dispute, error) {
	s.mu.Lock()
	dispute, ok := s.disputes[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrDisputeNotFound
	}
	escrow.ApplyDisputePatch(dispute, patch)
	cp := *dispute
	s.mu.Unlock()

	s.events.publish(ChangeEvent{Entity: "dispute", ID: id, Kind: ChangeUpdated})
	return &cp, nil
}

// ListDisputes returns disputes, optionally filtered by status, newest first
func (s *MemoryStore) ListDisputes(_ context.Context, status escrow.DisputeStatus) ([]escrow.Dispute, error) {
	s.mu.RLock()
	var out []escrow.Dispute
	for _, dispute := range s.disputes {
		if status == "" || dispute.Status == status {
			out = append(out, *dispute)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetUserWalletAddress resolves a user's payout address
func (s *MemoryStore) GetUserWalletAddress(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.wallets[userID]
	if !ok || addr == "" {
		return "", ErrWalletNotFound
	}
	return addr, nil
}

// SetUserWallet records a user's payout address
func (s *MemoryStore) SetUserWallet(_ context.Context, userID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[userID] = address
	return nil
}

// Subscribe returns a channel of change events
func (s *MemoryStore) Subscribe(buffer int) <-chan ChangeEvent {
	return s.events.subscribe(buffer)
}

// Close releases subscriber channels
func (s *MemoryStore) Close() {
	s.events.close()
}
