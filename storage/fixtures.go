package storage

import (
	"time"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
)

// SeedData returns development fixtures: a handful of tasks in different
// lifecycle positions and the wallet addresses their users pay out to.
func SeedData() ([]escrow.Task, map[string]string) {
	now := time.Now()

	tasks := []escrow.Task{
		{
			ID:           "task-landing-copy",
			OwnerID:      "user-maya",
			Title:        "Rewrite the landing page copy",
			Description:  "Tighten the hero section and the three feature blurbs.",
			Status:       escrow.TaskStatusTodo,
			Priority:     "medium",
			Tags:         []string{"content"},
			CreatedAt:    now.Add(-72 * time.Hour),
			UpdatedAt:    now.Add(-72 * time.Hour),
			EscrowStatus: escrow.EscrowStatusNone,
		},
		{
			ID:            "task-api-pagination",
			OwnerID:       "user-maya",
			Title:         "Add cursor pagination to the orders API",
			Description:   "Replace offset pagination with cursors on /orders.",
			Status:        escrow.TaskStatusInProgress,
			Priority:      "high",
			Tags:          []string{"backend", "api"},
			RewardToken:   "USDC",
			RewardAmount:  150,
			EscrowEnabled: true,
			EscrowStatus:  escrow.EscrowStatusPending,
			AssigneeID:    "user-dev-jordan",
			CreatedAt:     now.Add(-48 * time.Hour),
			UpdatedAt:     now.Add(-24 * time.Hour),
		},
		{
			ID:            "task-logo-bounty",
			OwnerID:       "user-sam",
			Title:         "Design a new project logo",
			Description:   "Vector logo, light and dark variants.",
			Status:        escrow.TaskStatusTodo,
			Priority:      "low",
			Tags:          []string{"design"},
			RewardToken:   "USDT",
			RewardAmount:  80,
			EscrowEnabled: true,
			EscrowStatus:  escrow.EscrowStatusPending,
			IsOpenBounty:  true,
			CreatedAt:     now.Add(-24 * time.Hour),
			UpdatedAt:     now.Add(-24 * time.Hour),
		},
	}

	wallets := map[string]string{
		"user-maya":       "0x52Ca6bcEf85a9a0c61F5eAD715cAc5C2EcB75F52",
		"user-sam":        "0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199",
		"user-dev-jordan": "0xdD2FD4581271e230360230F9337D5c0430Bf44C0",
	}

	return tasks, wallets
}
