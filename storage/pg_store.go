package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/google/uuid"
)

// PGStore persists tasks, disputes and wallets in Postgres
type PGStore struct {
	pool   *pgxpool.Pool
	events broadcaster
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPGStore connects, initializes the schema, and optionally seeds
// development fixtures.
func NewPGStore(ctx context.Context, dsn string, seed bool) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	store := &PGStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if seed {
		if err := store.seedFixtures(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return store, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS escrow_tasks (
  id             TEXT PRIMARY KEY,
  owner_id       TEXT NOT NULL,
  title          TEXT NOT NULL DEFAULT '',
  description    TEXT NOT NULL DEFAULT '',
  status         TEXT NOT NULL DEFAULT 'todo',
  priority       TEXT NOT NULL DEFAULT '',
  tags           TEXT[] NOT NULL DEFAULT '{}',
  reward_token   TEXT NOT NULL DEFAULT '',
  reward_amount  DOUBLE PRECISION NOT NULL DEFAULT 0,
  escrow_enabled BOOLEAN NOT NULL DEFAULT FALSE,
  escrow_status  TEXT NOT NULL DEFAULT 'none',
  escrow_tx_ref  TEXT NOT NULL DEFAULT '',
  assignee_id    TEXT NOT NULL DEFAULT '',
  reviewer_id    TEXT NOT NULL DEFAULT '',
  is_open_bounty BOOLEAN NOT NULL DEFAULT FALSE,
  proposals      JSONB NOT NULL DEFAULT '[]',
  paid           BOOLEAN NOT NULL DEFAULT FALSE,
  submission     JSONB,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS escrow_disputes (
  id                   TEXT PRIMARY KEY,
  task_id              TEXT NOT NULL,
  creator_address      TEXT NOT NULL DEFAULT '',
  contributor_address  TEXT NOT NULL DEFAULT '',
  escrow_amount        DOUBLE PRECISION NOT NULL DEFAULT 0,
  escrow_token         TEXT NOT NULL DEFAULT '',
  status               TEXT NOT NULL DEFAULT 'pending',
  creator_evidence     TEXT NOT NULL DEFAULT '',
  contributor_evidence TEXT NOT NULL DEFAULT '',
  resolution           JSONB,
  created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS escrow_disputes_task_idx ON escrow_disputes (task_id);
CREATE TABLE IF NOT EXISTS user_wallets (
  user_id TEXT PRIMARY KEY,
  address TEXT NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *PGStore) seedFixtures(ctx context.Context) error {
	tasks, wallets := SeedData()
	for i := range tasks {
		if err := s.upsertTask(ctx, s.pool, &tasks[i]); err != nil {
			return err
		}
	}
	for user, addr := range wallets {
		if err := s.SetUserWallet(ctx, user, addr); err != nil {
			return err
		}
	}
	return nil
}

// upsertTask persists the full task row idempotently
func (s *PGStore) upsertTask(ctx context.Context, q querier, task *escrow.Task) error {
	proposalsJSON, _ := json.Marshal(task.Proposals)
	if task.Proposals == nil {
		proposalsJSON = []byte("[]")
	}
	var submissionJSON []byte
	if task.Submission != nil {
		submissionJSON, _ = json.Marshal(task.Submission)
	}
	tags := task.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := q.Exec(ctx, `
INSERT INTO escrow_tasks (id, owner_id, title, description, status, priority, tags, reward_token, reward_amount, escrow_enabled, escrow_status, escrow_tx_ref, assignee_id, reviewer_id, is_open_bounty, proposals, paid, submission, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
  owner_id = EXCLUDED.owner_id,
  title = EXCLUDED.title,
  description = EXCLUDED.description,
  status = EXCLUDED.status,
  priority = EXCLUDED.priority,
  tags = EXCLUDED.tags,
  reward_token = EXCLUDED.reward_token,
  reward_amount = EXCLUDED.reward_amount,
  escrow_enabled = EXCLUDED.escrow_enabled,
  escrow_status = EXCLUDED.escrow_status,
  escrow_tx_ref = EXCLUDED.escrow_tx_ref,
  assignee_id = EXCLUDED.assignee_id,
  reviewer_id = EXCLUDED.reviewer_id,
  is_open_bounty = EXCLUDED.is_open_bounty,
  proposals = EXCLUDED.proposals,
  paid = EXCLUDED.paid,
  submission = EXCLUDED.submission,
  updated_at = EXCLUDED.updated_at
`, task.ID, task.OwnerID, task.Title, task.Description, task.Status, task.Priority, tags,
		task.RewardToken, task.RewardAmount, task.EscrowEnabled, task.EscrowStatus, task.EscrowTxRef,
		task.AssigneeID, task.ReviewerID, task.IsOpenBounty, string(proposalsJSON), task.Paid,
		submissionJSON, task.CreatedAt, task.UpdatedAt)
	return err
}

// rowScanner abstracts pgx.Row / pgx.Rows for the scan helpers
type rowScanner interface {
	Scan(dest ...any) error
}

const taskColumns = `id, owner_id, title, description, status, priority, tags, reward_token, reward_amount, escrow_enabled, escrow_status, escrow_tx_ref, assignee_id, reviewer_id, is_open_bounty, proposals, paid, submission, created_at, updated_at`

func scanTaskRow(row rowScanner) (*escrow.Task, error) {
	var task escrow.Task
	var proposalsJSON []byte
	var submissionJSON []byte
	err := row.Scan(&task.ID, &task.OwnerID, &task.Title, &task.Description, &task.Status,
		&task.Priority, &task.Tags, &task.RewardToken, &task.RewardAmount, &task.EscrowEnabled,
		&task.EscrowStatus, &task.EscrowTxRef, &task.AssigneeID, &task.ReviewerID,
		&task.IsOpenBounty, &proposalsJSON, &task.Paid, &submissionJSON,
		&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(proposalsJSON) > 0 {
		if err := json.Unmarshal(proposalsJSON, &task.Proposals); err != nil {
			return nil, fmt.Errorf("malformed proposals column for task %s: %w", task.ID, err)
		}
	}
	if len(submissionJSON) > 0 {
		task.Submission = &escrow.Submission{}
		if err := json.Unmarshal(submissionJSON, task.Submission); err != nil {
			return nil, fmt.Errorf("malformed submission column for task %s: %w", task.ID, err)
		}
	}
	return &task, nil
}

// CreateTask stores a new task, generating an id when none is set
func (s *PGStore) CreateTask(ctx context.Context, task *escrow.Task) (string, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
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

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM escrow_tasks WHERE id=$1)`, task.ID).Scan(&exists); err != nil {
		return "", err
	}
	if exists {
		return "", ErrDuplicateTask
	}
	if err := s.upsertTask(ctx, s.pool, task); err != nil {
		return "", err
	}
	s.events.publish(ChangeEvent{Entity: "task", ID: task.ID, Kind: ChangeCreated})
	return task.ID, nil
}

// GetTask returns a task by id
func (s *PGStore) GetTask(ctx context.Context, id string) (*escrow.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM escrow_tasks WHERE id=$1`, id)
	task, err := scanTaskRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

// UpdateTask applies a partial update inside one transaction so the
// read-modify-write cannot interleave with a concurrent patch
func (s *PGStore) UpdateTask(ctx context.Context, id string, patch escrow.TaskPatch) (*escrow.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM escrow_tasks WHERE id=$1 FOR UPDATE`, id)
	task, err := scanTaskRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}

	escrow.ApplyPatch(task, patch)
	if err := s.upsertTask(ctx, tx, task); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.events.publish(ChangeEvent{Entity: "task", ID: id, Kind: ChangeUpdated})
	return task, nil
}

// DeleteTask removes an unpaid task
func (s *PGStore) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM escrow_tasks WHERE id=$1 AND paid=FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// either missing or paid; look to report the right failure
		var paid bool
		err := s.pool.QueryRow(ctx, `SELECT paid FROM escrow_tasks WHERE id=$1`, id).Scan(&paid)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		return ErrTaskImmutable
	}
	s.events.publish(ChangeEvent{Entity: "task", ID: id, Kind: ChangeDeleted})
	return nil
}

// ListTasks returns tasks matching the filter, newest first
func (s *PGStore) ListTasks(ctx context.Context, filter TaskFilter) ([]escrow.Task, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+taskColumns+` FROM escrow_tasks
WHERE ($1 = '' OR status = $1)
AND ($2 = '' OR owner_id = $2)
AND ($3 = '' OR assignee_id = $3)
AND ($4 = '' OR escrow_status = $4)
ORDER BY created_at DESC
`, filter.Status, filter.OwnerID, filter.AssigneeID, filter.EscrowStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []escrow.Task
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			return nil, err
		}
		if filter.OpenBounty != nil && task.IsOpenBounty != *filter.OpenBounty {
			continue
		}
		if filter.Paid != nil && task.Paid != *filter.Paid {
			continue
		}
		out = append(out, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return window(out, filter.Offset, filter.Limit), nil
}

func scanDisputeRow(row rowScanner) (*escrow.Dispute, error) {
	var dispute escrow.Dispute
	var resolutionJSON []byte
	err := row.Scan(&dispute.ID, &dispute.TaskID, &dispute.CreatorAddress, &dispute.ContributorAddress,
		&dispute.EscrowAmount, &dispute.EscrowToken, &dispute.Status, &dispute.CreatorEvidence,
		&dispute.ContributorEvidence, &resolutionJSON, &dispute.CreatedAt, &dispute.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(resolutionJSON) > 0 {
		dispute.Resolution = &escrow.Resolution{}
		if err := json.Unmarshal(resolutionJSON, dispute.Resolution); err != nil {
			return nil, fmt.Errorf("malformed resolution column for dispute %s: %w", dispute.ID, err)
		}
	}
	return &dispute, nil
}

const disputeColumns = `id, task_id, creator_address, contributor_address, escrow_amount, escrow_token, status, creator_evidence, contributor_evidence, resolution, created_at, updated_at`

func (s *PGStore) upsertDispute(ctx context.Context, q querier, dispute *escrow.Dispute) error {
	var resolutionJSON []byte
	if dispute.Resolution != nil {
		resolutionJSON, _ = json.Marshal(dispute.Resolution)
	}
	_, err := q.Exec(ctx, `
INSERT INTO escrow_disputes (id, task_id, creator_address, contributor_address, escrow_amount, escrow_token, status, creator_evidence, contributor_evidence, resolution, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  creator_evidence = EXCLUDED.creator_evidence,
  contributor_evidence = EXCLUDED.contributor_evidence,
  resolution = EXCLUDED.resolution,
  updated_at = EXCLUDED.updated_at
`, dispute.ID, dispute.TaskID, dispute.CreatorAddress, dispute.ContributorAddress,
		dispute.EscrowAmount, dispute.EscrowToken, dispute.Status, dispute.CreatorEvidence,
		dispute.ContributorEvidence, resolutionJSON, dispute.CreatedAt, dispute.UpdatedAt)
	return err
}

// GetDispute returns a dispute by id
func (s *PGStore) GetDispute(ctx context.Context, id string) (*escrow.Dispute, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+disputeColumns+` FROM escrow_disputes WHERE id=$1`, id)
	dispute, err := scanDisputeRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return dispute, err
}

// GetDisputeByTask returns the live dispute for a task, nil when none exists
func (s *PGStore) GetDisputeByTask(ctx context.Context, taskID string) (*escrow.Dispute, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+disputeColumns+` FROM escrow_disputes
WHERE task_id=$1 AND status <> 'resolved'
ORDER BY created_at DESC LIMIT 1
`, taskID)
	dispute, err := scanDisputeRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return dispute, err
}

// CreateDispute stores a new dispute
func (s *PGStore) CreateDispute(ctx context.Context, dispute *escrow.Dispute) (string, error) {
	if dispute.ID == "" {
		dispute.ID = uuid.NewString()
	}
	now := time.Now()
	if dispute.CreatedAt.IsZero() {
		dispute.CreatedAt = now
	}
	dispute.UpdatedAt = now

	if err := s.upsertDispute(ctx, s.pool, dispute); err != nil {
		return "", err
	}
	s.events.publish(ChangeEvent{Entity: "dispute", ID: dispute.ID, Kind: ChangeCreated})
	return dispute.ID, nil
}

// UpdateDispute applies a partial update inside one transaction
func (s *PGStore) UpdateDispute(ctx context.Context, id string, patch escrow.DisputePatch) (*escrow.Dispute, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM escrow_disputes WHERE id=$1 FOR UPDATE`, id)
	dispute, err := scanDisputeRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, err
	}

	escrow.ApplyDisputePatch(dispute, patch)
	if err := s.upsertDispute(ctx, tx, dispute); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.events.publish(ChangeEvent{Entity: "dispute", ID: id, Kind: ChangeUpdated})
	return dispute, nil
}

// ListDisputes returns disputes, optionally filtered by status, newest first
func (s *PGStore) ListDisputes(ctx context.Context, status escrow.DisputeStatus) ([]escrow.Dispute, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+disputeColumns+` FROM escrow_disputes
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC
`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []escrow.Dispute
	for rows.Next() {
		dispute, err := scanDisputeRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *dispute)
	}
	return out, rows.Err()
}

// GetUserWalletAddress resolves a user's payout address
func (s *PGStore) GetUserWalletAddress(ctx context.Context, userID string) (string, error) {
	var addr string
	err := s.pool.QueryRow(ctx, `SELECT address FROM user_wallets WHERE user_id=$1`, userID).Scan(&addr)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && addr == "") {
		return "", ErrWalletNotFound
	}
	return addr, err
}

// SetUserWallet records a user's payout address
func (s *PGStore) SetUserWallet(ctx context.Context, userID, address string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO user_wallets (user_id, address) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET address = EXCLUDED.address
`, userID, address)
	return err
}

// Subscribe returns a channel of change events for this process
func (s *PGStore) Subscribe(buffer int) <-chan ChangeEvent {
	return s.events.subscribe(buffer)
}

// Close releases the pool and subscriber channels
func (s *PGStore) Close() {
	s.events.close()
	s.pool.Close()
}
