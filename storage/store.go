package storage

import (
	"context"
	"sync"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
)

// ChangeKind classifies a change event
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeEvent notifies subscribers that an entity changed. Events are a
// cache-refresh hint only; financial decisions re-read ledger state.
type ChangeEvent struct {
	Entity string     `json:"entity"` // task | dispute
	ID     string     `json:"id"`
	Kind   ChangeKind `json:"kind"`
}

// TaskFilter narrows task listings
type TaskFilter struct {
	Status       string `json:"status,omitempty"`
	OwnerID      string `json:"owner_id,omitempty"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	EscrowStatus string `json:"escrow_status,omitempty"`
	OpenBounty   *bool  `json:"open_bounty,omitempty"`
	Paid         *bool  `json:"paid,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// Store is the full persistence surface: the collaborator contract the
// engines consume plus the CRUD and notification surface the API serves.
type Store interface {
	escrow.Store

	CreateTask(ctx context.Context, task *escrow.Task) (string, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]escrow.Task, error)
	DeleteTask(ctx context.Context, id string) error

	ListDisputes(ctx context.Context, status escrow.DisputeStatus) ([]escrow.Dispute, error)

	SetUserWallet(ctx context.Context, userID, address string) error

	Subscribe(buffer int) <-chan ChangeEvent
	Close()
}

// broadcaster fan-outs change events to subscribers. Slow subscribers
// drop events instead of blocking writers.
type broadcaster struct {
	mu   sync.Mutex
	subs []chan ChangeEvent
}

func (b *broadcaster) subscribe(buffer int) <-chan ChangeEvent {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan ChangeEvent, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *broadcaster) publish(event ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// matchTask applies a filter to one task
func matchTask(task *escrow.Task, filter TaskFilter) bool {
	if filter.Status != "" && string(task.Status) != filter.Status {
		return false
	}
	if filter.OwnerID != "" && task.OwnerID != filter.OwnerID {
		return false
	}
	if filter.AssigneeID != "" && task.AssigneeID != filter.AssigneeID {
		return false
	}
	if filter.EscrowStatus != "" && string(task.EscrowStatus) != filter.EscrowStatus {
		return false
	}
	if filter.OpenBounty != nil && task.IsOpenBounty != *filter.OpenBounty {
		return false
	}
	if filter.Paid != nil && task.Paid != *filter.Paid {
		return false
	}
	return true
}

// window applies offset/limit to a listing
func window[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
