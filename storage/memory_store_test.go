package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
)

var _ Store = (*MemoryStore)(nil)
var _ Store = (*PGStore)(nil)

func TestCreateAndGetTask(t *testing.T) {
	store := NewMemoryStore(false)
	defer store.Close()
	ctx := context.Background()

	id, err := store.CreateTask(ctx, &escrow.Task{
		OwnerID: "owner-1",
		Title:   "Write onboarding docs",
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated task id")
	}

	task, err := store.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Status != escrow.TaskStatusTodo {
		t.Errorf("expected default status todo, got %q", task.Status)
	}
	if task.EscrowStatus != escrow.EscrowStatusNone {
		t.Errorf("expected escrow status none, got %q", task.EscrowStatus)
	}
	if task.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	if _, err := store.GetTask(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound for unknown id, got %v", err)
	}
}

func TestCreateTaskDuplicateID(t *testing.T) {
	store := NewMemoryStore(false)
	defer store.Close()
	ctx := context.Background()

	if _, err := store.CreateTask(ctx, &escrow.Task{ID: "task-1", OwnerID: "owner-1"}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if _, err := store.CreateTask(ctx, &escrow.Task{ID: "task-1", OwnerID: "owner-1"}); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestCreateTaskEscrowDefaultsPending(t *testing.T) {
	store := NewMemoryStore(false)
	defer store.Close()
	ctx := context.Background()

	id, err := store.CreateTask(ctx, &escrow.Task{
		OwnerID:       "owner-1",
		RewardToken:   "USDC",
		RewardAmount:  25,
		EscrowEnabled: true,
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	task, _ := store.GetTask(ctx, id)
	if task.EscrowStatus != escrow.EscrowStatusPending {
		t.Errorf("escrow-enabled task should start pending, got %q", task.EscrowStatus)
	}
}

func TestUpdateTaskAppliesPatch(t *testing.T) {
	store := NewMemoryStore(false)
	defer store.Close()
	ctx := context.Background()

	id, _ := store.CreateTask(ctx, &escrow.Task{OwnerID: "owner-1", Title: "Old title"})
	before, _ := store.GetTask(ctx, id)

	title := "New title"
	status := escrow.TaskStatusInProgress
	updated, err := store.UpdateTask(ctx, id, escrow.TaskPatch{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Title != "New title" || updated.Status != escrow.TaskStatusInProgress {
		t.Errorf("patch not applied: %+v", updated)
	}
	if !updated.UpdatedAt.After(before.UpdatedAt) && !updated.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("expected updated_at to advance")
	}

	// the returned copy must not alias the stored task
	updated.Title = "mutated"
	again, _ := store.GetTask(ctx, id)
	if again.Title != "New title" {
		t.Error("store handed out an aliased task")
	}

	if _, err := store.UpdateTask(ctx, "missing", escrow.TaskPatch{Title: &title}); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestDeleteTaskGuardsPaid(t *testing.T) {
	store := NewMemoryStore(false)
	defer store.Close()
	ctx := context.Background()

	plain, _ := store.CreateTask(ctx, &escrow.Task{OwnerID: "owner-1"})
	paid, _ := store.CreateTask(ctx, &escrow.Task{OwnerID: "owner-1", Paid: true})

	if err := store.DeleteTask(ctx, plain); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if _, err := store.GetTask(ctx, plain); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("task should be gone, got %v", err)
	}

	if err := store.DeleteTask(ctx, paid); !errors.Is(err, ErrTaskImmutable) {
		t.Errorf("expected ErrTaskImmutable for paid task, got %v", err)
	}
	if err := store.DeleteTask(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestListTasksFilters(t *testing.T) {
	store := NewMemoryStore(false)
	defer store.Close()
	ctx := context.Background()

	open := true
	seed := []escrow.Task{
		{ID: "t1", OwnerID: "alice", Status: escrow.TaskStatusTodo},
		{ID: "t2", OwnerID: "alice", Status: escrow.TaskStatusDone, AssigneeID: "bob", Paid: true},
		{ID: "t3", OwnerID: "carol", Status: escrow.TaskStatusTodo, IsOpenBounty: true},
		{ID: "t4", OwnerID: "carol", Status: escrow.TaskStatusInProgress, AssigneeID: "bob",
			EscrowEnabled: true, EscrowStatus: escrow.EscrowStatusLocked},
	}
	for i := range seed {
		seed[i].CreatedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
		if _, err := store.CreateTask(ctx, &seed[i]); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{"all", TaskFilter{}, []string{"t4", "t3", "t2", "t1"}},
		{"by owner", TaskFilter{OwnerID: "alice"}, []string{"t2", "t1"}},
		{"by status", TaskFilter{Status: "todo"}, []string{"t3", "t1"}},
		{"by assignee", TaskFilter{AssigneeID: "bob"}, []string{"t4", "t2"}},
		{"by escrow status", TaskFilter{EscrowStatus: "locked"}, []string{"t4"}},
		{"open bounties", TaskFilter{OpenBounty: &open}, []string{"t3"}},
		{"paid", TaskFilter{Paid: &open}, []string{"t2"}},
		{"windowed", TaskFilter{Limit: 2, Offset: 1}, []string{"t3", "t2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListTasks(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListTasks failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d tasks, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestDisputeLifecycle(t *testing.T) {
	store := NewMemoryStore(false)
	defer store.Close()
	ctx := context.Background()

	id, err := store.CreateDispute(ctx, &escrow.Dispute{
		TaskID:         "task-1",
		CreatorAddress: "0x1",
		Status:         escrow.DisputeStatusPending,
	})
	if err != nil {
		t.Fatalf("CreateDispute failed: %v", err)
	}

	live, err := store.GetDisputeByTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetDisputeByTask failed: %v", err)
	}
	if live == nil || live.ID != id {
		t.Fatalf("expected live dispute %s, got %+v", id, live)
	}

	resolved := escrow.DisputeStatusResolved
	resolution := &escrow.Resolution{Winner: escrow.WinnerOwner, ReleasedTo: "0x1", SettledAt: time.Now()}
	if _, err := store.UpdateDispute(ctx, id, escrow.DisputePatch{Status: &resolved, Resolution: resolution}); err != nil {
		t.Fatalf("UpdateDispute failed: %v", err)
	}

	// resolved disputes no longer count as live
	live, err = store.GetDisputeByTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetDisputeByTask failed: %v", err)
	}
	if live != nil {
		t.Errorf("resolved dispute should not be reported live: %+v", live)
	}

	got, err := store.GetDispute(ctx, id)
	if err != nil {
		t.Fatalf("GetDispute failed: %v", err)
	}
	if got.Resolution == nil || got.Resolution.Winner != escrow.WinnerOwner {
		t.Errorf("resolution not persisted: %+v", got.Resolution)
	}

	all, err := store.ListDisputes(ctx, "")
	if err != nil || len(all) != 1 {
		t.Fatalf("ListDisputes: %v, %d disputes", err, len(all))
	}
	pending, err := store.ListDisputes(ctx, escrow.DisputeStatusPending)
	if err != nil || len(pending) != 0 {
		t.Fatalf("ListDisputes(pending): %v, %d disputes", err, len(pending))
	}
}

func TestWallets(t *testing.T) {
	store := NewMemoryStore(false)
	defer store.Close()
	ctx := context.Background()

	if _, err := store.GetUserWalletAddress(ctx, "nobody"); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}

	if err := store.SetUserWallet(ctx, "alice", "0xabc"); err != nil {
		t.Fatalf("SetUserWallet failed: %v", err)
	}
	addr, err := store.GetUserWalletAddress(ctx, "alice")
	if err != nil || addr != "0xabc" {
		t.Fatalf("expected 0xabc, got %q (%v)", addr, err)
	}

	// updating replaces the previous address
	if err := store.SetUserWallet(ctx, "alice", "0xdef"); err != nil {
		t.Fatalf("SetUserWallet failed: %v", err)
	}
	addr, _ = store.GetUserWalletAddress(ctx, "alice")
	if addr != "0xdef" {
		t.Errorf("expected 0xdef, got %q", addr)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	store := NewMemoryStore(false)
	defer store.Close()
	ctx := context.Background()

	events := store.Subscribe(8)

	id, _ := store.CreateTask(ctx, &escrow.Task{OwnerID: "owner-1"})
	title := "renamed"
	store.UpdateTask(ctx, id, escrow.TaskPatch{Title: &title})
	store.DeleteTask(ctx, id)

	want := []ChangeKind{ChangeCreated, ChangeUpdated, ChangeDeleted}
	for _, kind := range want {
		select {
		case ev := <-events:
			if ev.Kind != kind || ev.ID != id || ev.Entity != "task" {
				t.Errorf("expected %s event for task %s, got %+v", kind, id, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestSlowSubscriberDoesNotBlockWriters(t *testing.T) {
	store := NewMemoryStore(false)
	defer store.Close()
	ctx := context.Background()

	// nobody drains this channel
	store.Subscribe(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			store.CreateTask(ctx, &escrow.Task{OwnerID: "owner-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer blocked on a slow subscriber")
	}
}

func TestSeededStore(t *testing.T) {
	store := NewMemoryStore(true)
	defer store.Close()
	ctx := context.Background()

	tasks, err := store.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) == 0 {
		t.Fatal("expected seeded tasks")
	}

	var bounty, escrowed bool
	for _, task := range tasks {
		if task.IsOpenBounty {
			bounty = true
		}
		if task.EscrowEnabled {
			escrowed = true
		}
	}
	if !bounty || !escrowed {
		t.Errorf("fixtures should include an open bounty and an escrowed task (bounty=%v escrowed=%v)", bounty, escrowed)
	}

	if _, err := store.GetUserWalletAddress(ctx, "user-dev-jordan"); err != nil {
		t.Errorf("expected seeded wallet for user-dev-jordan: %v", err)
	}
}
