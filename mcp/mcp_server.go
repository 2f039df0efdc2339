package mcp

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/Malik434/TaskWiser-V2-sub000/storage"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer wraps the mcp-go server with our business logic. Tools are
// read-and-plan oriented: an agent can inspect tasks, bid on bounties
// and draft settlement plans, but every ledger transaction still needs
// a wallet session on the HTTP API.
type MCPServer struct {
	mcpServer *server.MCPServer
	store     storage.Store
	lifecycle *escrow.Lifecycle
	engine    *escrow.Engine
	proposals *escrow.Proposals
	disputes  *escrow.Disputes
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(store storage.Store, lifecycle *escrow.Lifecycle, engine *escrow.Engine, proposals *escrow.Proposals, disputes *escrow.Disputes) *MCPServer {
	mcpServer := server.NewMCPServer(
		"TaskWiser MCP Server",
		"2.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer: mcpServer,
		store:     store,
		lifecycle: lifecycle,
		engine:    engine,
		proposals: proposals,
		disputes:  disputes,
	}

	s.registerTools()

	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// registerTools registers all MCP tools with the server
func (s *MCPServer) registerTools() {
	// Tasks tools
	s.registerListTasksTool()
	s.registerGetTaskTool()
	s.registerCreateTaskTool()
	s.registerTransitionTaskTool()
	s.registerSubmitWorkTool()

	// Bounty tools
	s.registerSubmitProposalTool()
	s.registerListProposalsTool()
	s.registerRejectProposalTool()

	// Settlement tools
	s.registerPlanSettlementTool()
	s.registerEscrowStatusTool()

	// Dispute tools
	s.registerListDisputesTool()
	s.registerGetDisputeTool()
	s.registerRaiseDisputeTool()
	s.registerAddEvidenceTool()
	s.registerAnalyzeDisputeTool()
}

// registerListTasksTool creates a tool for listing tasks
func (s *MCPServer) registerListTasksTool() {
	tool := mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks with optional filtering"),
		mcp.WithString("status", mcp.Description("Filter by task status (todo, inprogress, review, done)")),
		mcp.WithString("owner_id", mcp.Description("Filter by task owner")),
		mcp.WithString("assignee_id", mcp.Description("Filter by assignee")),
		mcp.WithString("escrow_status", mcp.Description("Filter by escrow status (none, pending, locked, released, refunded, disputed)")),
		mcp.WithBoolean("open_bounty", mcp.Description("Only open bounties")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tasks to return")),
		mcp.WithNumber("offset", mcp.Description("Number of tasks to skip")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		filter := storage.TaskFilter{
			Status:       toString(args["status"]),
			OwnerID:      toString(args["owner_id"]),
			AssigneeID:   toString(args["assignee_id"]),
			EscrowStatus: toString(args["escrow_status"]),
			Limit:        int(toInt64(args["limit"])),
			Offset:       int(toInt64(args["offset"])),
		}
		if b, ok := args["open_bounty"].(bool); ok {
			filter.OpenBounty = &b
		}
		if filter.Limit == 0 {
			filter.Limit = 50
		}

		tasks, err := s.store.ListTasks(ctx, filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %v", err)), nil
		}

		result := map[string]interface{}{
			"tasks":         tasks,
			"total_matches": len(tasks),
		}

		return mcp.NewToolResultText(fmt.Sprintf("Found %d tasks:\n\n%+v", len(tasks), result)), nil
	})
}

// registerGetTaskTool creates a tool for getting a specific task
func (s *MCPServer) registerGetTaskTool() {
	tool := mcp.NewTool("get_task",
		mcp.WithDescription("Get details of a specific task, including escrow state and proposals"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task to retrieve")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task details:\n\n%+v", task)), nil
	})
}

// registerCreateTaskTool creates a tool for creating a task
func (s *MCPServer) registerCreateTaskTool() {
	tool := mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task. Escrow-backed tasks start with escrow pending; funding happens on the HTTP API with a wallet session."),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("User creating the task")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithString("reward_token", mcp.Description("Reward token symbol (USDC or USDT)")),
		mcp.WithNumber("reward_amount", mcp.Description("Reward amount in whole tokens")),
		mcp.WithBoolean("escrow_enabled", mcp.Description("Back the reward with escrow")),
		mcp.WithBoolean("is_open_bounty", mcp.Description("Open the task for proposals instead of assigning directly")),
		mcp.WithString("assignee_id", mcp.Description("Direct assignee (not for open bounties)")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		ownerID, err := request.RequireString("owner_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		title, err := request.RequireString("title")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task := &escrow.Task{
			OwnerID:       ownerID,
			Title:         title,
			Description:   toString(args["description"]),
			RewardToken:   toString(args["reward_token"]),
			RewardAmount:  toFloat64(args["reward_amount"]),
			EscrowEnabled: toBool(args["escrow_enabled"]),
			IsOpenBounty:  toBool(args["is_open_bounty"]),
			AssigneeID:    toString(args["assignee_id"]),
		}

		id, err := s.store.CreateTask(ctx, task)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to create task: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task created:\n\n%+v", map[string]interface{}{
			"task_id":       id,
			"escrow_status": task.EscrowStatus,
		})), nil
	})
}

// registerTransitionTaskTool creates a tool for moving a task through
// its lifecycle
func (s *MCPServer) registerTransitionTaskTool() {
	tool := mcp.NewTool("transition_task",
		mcp.WithDescription("Move a task to a new lifecycle status. Moving to done reports which settlement route applies next."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task")),
		mcp.WithString("status", mcp.Required(), mcp.Description("Target status (todo, inprogress, review, done)")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("User performing the transition")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		status, err := request.RequireString("status")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		actorID, err := request.RequireString("actor_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if escrow.TaskStatus(status) == escrow.TaskStatusDone {
			task, route, err := s.lifecycle.MoveToDone(ctx, taskID, actorID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Failed to transition task: %v", err)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Task done:\n\n%+v", map[string]interface{}{
				"task":             task,
				"settlement_route": route,
			})), nil
		}

		task, err := s.lifecycle.Transition(ctx, taskID, escrow.TaskStatus(status), actorID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to transition task: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task transitioned:\n\n%+v", task)), nil
	})
}

// registerSubmitWorkTool creates a tool for attaching a work submission
func (s *MCPServer) registerSubmitWorkTool() {
	tool := mcp.NewTool("submit_work",
		mcp.WithDescription("Attach a work submission to a task and move it to review"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("Assignee submitting the work")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Submission content or link")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		actorID, err := request.RequireString("actor_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := request.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		submission := &escrow.Submission{
			Content: content,
			Status:  escrow.SubmissionStatusPending,
		}
		if _, err = s.lifecycle.Edit(ctx, taskID, escrow.TaskPatch{Submission: submission}, actorID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to attach submission: %v", err)), nil
		}

		task, err := s.lifecycle.Transition(ctx, taskID, escrow.TaskStatusReview, actorID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Submission saved but review transition failed: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Work submitted for review:\n\n%+v", task)), nil
	})
}

// registerSubmitProposalTool creates a tool for bidding on a bounty
func (s *MCPServer) registerSubmitProposalTool() {
	tool := mcp.NewTool("submit_proposal",
		mcp.WithDescription("Bid on an open bounty"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the open bounty")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("User submitting the bid")),
		mcp.WithString("message", mcp.Description("Pitch message")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		userID, err := request.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		proposal, err := s.proposals.Submit(ctx, taskID, userID, toString(args["message"]))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to submit proposal: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Proposal submitted:\n\n%+v", proposal)), nil
	})
}

// registerListProposalsTool creates a tool for listing a task's proposals
func (s *MCPServer) registerListProposalsTool() {
	tool := mcp.NewTool("list_proposals",
		mcp.WithDescription("List proposals on an open bounty"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the bounty")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
		}

		result := map[string]interface{}{
			"proposals":   task.Proposals,
			"total_count": len(task.Proposals),
			"open":        task.IsOpenBounty,
		}

		return mcp.NewToolResultText(fmt.Sprintf("Found %d proposals:\n\n%+v", len(task.Proposals), result)), nil
	})
}

// registerRejectProposalTool creates a tool for turning down a bid
func (s *MCPServer) registerRejectProposalTool() {
	tool := mcp.NewTool("reject_proposal",
		mcp.WithDescription("Reject a proposal on an open bounty. Only the task owner may reject."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the bounty")),
		mcp.WithString("proposal_id", mcp.Required(), mcp.Description("ID of the proposal to reject")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("User rejecting the proposal")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		proposalID, err := request.RequireString("proposal_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		actorID, err := request.RequireString("actor_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := s.proposals.Reject(ctx, taskID, proposalID, actorID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to reject proposal: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Proposal rejected:\n\n%+v", task.Proposals)), nil
	})
}

// registerEscrowStatusTool creates a tool reporting a task's custody state
func (s *MCPServer) registerEscrowStatusTool() {
	tool := mcp.NewTool("escrow_status",
		mcp.WithDescription("Report a task's escrow custody state as recorded by the store. Locking, releasing and refunding happen on the HTTP API with a wallet session."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of task")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get task: %v", err)), nil
		}

		result := map[string]interface{}{
			"task_id":        task.ID,
			"escrow_enabled": task.EscrowEnabled,
			"escrow_status":  task.EscrowStatus,
			"reward_token":   task.RewardToken,
			"reward_amount":  task.RewardAmount,
			"paid":           task.Paid,
			"escrow_tx_ref":  task.EscrowTxRef,
		}

		return mcp.NewToolResultText(fmt.Sprintf("Escrow status:\n\n%+v", result)), nil
	})
}

// registerPlanSettlementTool creates a tool for drafting a payout plan
func (s *MCPServer) registerPlanSettlementTool() {
	tool := mcp.NewTool("plan_settlement",
		mcp.WithDescription("Draft a payout plan for a set of tasks without touching the ledger. Reports per-task issues that would block settlement."),
		mcp.WithArray("task_ids", mcp.Required(), mcp.Description("Tasks to settle")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		var taskIDs []string
		if idSlice, ok := args["task_ids"].([]interface{}); ok {
			for _, id := range idSlice {
				if idStr, ok := id.(string); ok {
					taskIDs = append(taskIDs, idStr)
				}
			}
		}
		if len(taskIDs) == 0 {
			return mcp.NewToolResultError("task_ids is required"), nil
		}

		plan, err := s.engine.PlanFromTasks(ctx, taskIDs)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to plan settlement: %v", err)), nil
		}

		result := map[string]interface{}{
			"plan":  plan,
			"ready": plan.Ready(),
		}

		return mcp.NewToolResultText(fmt.Sprintf("Settlement plan (%d targets, %d issues):\n\n%+v",
			len(plan.Targets), len(plan.Issues), result)), nil
	})
}

// registerListDisputesTool creates a tool for listing disputes
func (s *MCPServer) registerListDisputesTool() {
	tool := mcp.NewTool("list_disputes",
		mcp.WithDescription("List disputes, optionally by status"),
		mcp.WithString("status", mcp.Description("Filter by dispute status (pending, resolved)")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		disputes, err := s.store.ListDisputes(ctx, escrow.DisputeStatus(toString(args["status"])))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list disputes: %v", err)), nil
		}

		result := map[string]interface{}{
			"disputes":    disputes,
			"total_count": len(disputes),
		}

		return mcp.NewToolResultText(fmt.Sprintf("Found %d disputes:\n\n%+v", len(disputes), result)), nil
	})
}

// registerGetDisputeTool creates a tool for getting a specific dispute
func (s *MCPServer) registerGetDisputeTool() {
	tool := mcp.NewTool("get_dispute",
		mcp.WithDescription("Get details of a specific dispute"),
		mcp.WithString("dispute_id", mcp.Required(), mcp.Description("ID of dispute to retrieve")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		disputeID, err := request.RequireString("dispute_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		dispute, err := s.store.GetDispute(ctx, disputeID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get dispute: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Dispute details:\n\n%+v", dispute)), nil
	})
}

// registerRaiseDisputeTool creates a tool for opening a dispute
func (s *MCPServer) registerRaiseDisputeTool() {
	tool := mcp.NewTool("raise_dispute",
		mcp.WithDescription("Open a dispute over a task's locked escrow. Only the task owner or assignee may raise one, and the escrow must be locked."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the disputed task")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("User raising the dispute")),
		mcp.WithString("reason", mcp.Required(), mcp.Description("What is being disputed")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := request.RequireString("task_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		actorID, err := request.RequireString("actor_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		reason, err := request.RequireString("reason")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		dispute, err := s.disputes.Raise(ctx, taskID, actorID, reason)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to raise dispute: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Dispute raised:\n\n%+v", dispute)), nil
	})
}

// registerAddEvidenceTool creates a tool for attaching evidence to a dispute
func (s *MCPServer) registerAddEvidenceTool() {
	tool := mcp.NewTool("add_dispute_evidence",
		mcp.WithDescription("Attach evidence to an open dispute. The evidence is attributed to the caller's side."),
		mcp.WithString("dispute_id", mcp.Required(), mcp.Description("ID of the dispute")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("User submitting the evidence")),
		mcp.WithString("evidence", mcp.Required(), mcp.Description("Evidence text or link")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		disputeID, err := request.RequireString("dispute_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		actorID, err := request.RequireString("actor_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		evidence, err := request.RequireString("evidence")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		dispute, err := s.disputes.AddEvidence(ctx, disputeID, actorID, evidence)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to add evidence: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Evidence recorded:\n\n%+v", dispute)), nil
	})
}

// registerAnalyzeDisputeTool creates a tool for requesting an advisory
// dispute analysis
func (s *MCPServer) registerAnalyzeDisputeTool() {
	tool := mcp.NewTool("analyze_dispute",
		mcp.WithDescription("Request an advisory analysis of a dispute. The recommendation never settles funds; a human admin resolves the dispute."),
		mcp.WithString("dispute_id", mcp.Required(), mcp.Description("ID of dispute to analyze")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		disputeID, err := request.RequireString("dispute_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		analysis, err := s.disputes.RequestAnalysis(ctx, disputeID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to analyze dispute: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Dispute analysis:\n\n%+v", analysis)), nil
	})
}

// Helper function to convert interface{} to string
func toString(val interface{}) string {
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

// Helper function to convert interface{} to int64
func toInt64(val interface{}) int64 {
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	if f, ok := val.(float64); ok {
		return int64(f)
	}
	if str, ok := val.(string); ok {
		if i, err := strconv.ParseInt(str, 10, 64); err == nil {
			return i
		}
	}
	return 0
}

// Helper function to convert interface{} to float64
func toFloat64(val interface{}) float64 {
	if f, ok := val.(float64); ok {
		return f
	}
	if i, ok := val.(int); ok {
		return float64(i)
	}
	if str, ok := val.(string); ok {
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			return f
		}
	}
	return 0
}

// Helper function to convert interface{} to bool
func toBool(val interface{}) bool {
	b, ok := val.(bool)
	return ok && b
}
