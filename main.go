package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Malik434/TaskWiser-V2-sub000/container"
	"github.com/Malik434/TaskWiser-V2-sub000/middleware"
)

func main() {
	ctx := context.Background()

	c, err := container.NewContainer(ctx)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}
	defer c.Close()

	mux := http.NewServeMux()

	handler := middleware.Recovery(
		middleware.Logging(
			middleware.Metrics(
				middleware.CORS(
					middleware.Timeout(30 * time.Second)(
						setupRoutes(mux, c),
					),
				),
			),
		),
	)

	addr := ":" + envPort()
	log.Printf("TaskWiser backend listening on %s (network %s)", addr, c.Network.Name)
	log.Fatal(http.ListenAndServe(addr, handler))
}

func envPort() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "3001"
}

func setupRoutes(mux *http.ServeMux, c *container.Container) http.Handler {
	requireSession := middleware.SessionAuth(c.Sessions)
	withSession := func(h http.HandlerFunc) http.Handler { return requireSession(h) }
	adminOnly := func(h http.HandlerFunc) http.Handler { return requireSession(middleware.AdminOnly(h)) }

	// Health and metrics
	mux.HandleFunc("/api/health", c.HealthHandler.HandleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	// Sessions and wallets
	mux.HandleFunc("POST /api/session/connect", c.AuthHandler.HandleConnect)
	mux.Handle("POST /api/session/disconnect", withSession(c.AuthHandler.HandleDisconnect))
	mux.HandleFunc("GET /api/users/{id}/wallet", c.AuthHandler.HandleGetWallet)
	mux.Handle("PUT /api/users/{id}/wallet", withSession(c.AuthHandler.HandleSetWallet))

	// Tasks
	mux.HandleFunc("GET /api/tasks", c.TaskHandler.HandleListTasks)
	mux.Handle("POST /api/tasks", withSession(c.TaskHandler.HandleCreateTask))
	mux.HandleFunc("GET /api/tasks/{id}", c.TaskHandler.HandleGetTask)
	mux.Handle("PUT /api/tasks/{id}", withSession(c.TaskHandler.HandleUpdateTask))
	mux.Handle("DELETE /api/tasks/{id}", withSession(c.TaskHandler.HandleDeleteTask))
	mux.Handle("POST /api/tasks/{id}/transition", withSession(c.TaskHandler.HandleTransition))

	// Escrow custody
	mux.Handle("GET /api/tasks/{id}/escrow", withSession(c.EscrowHandler.HandleStatus))
	mux.Handle("POST /api/tasks/{id}/escrow/lock", withSession(c.EscrowHandler.HandleLock))
	mux.Handle("POST /api/tasks/{id}/escrow/release", withSession(c.EscrowHandler.HandleRelease))
	mux.Handle("POST /api/tasks/{id}/escrow/refund", withSession(c.EscrowHandler.HandleRefund))

	// Settlement
	mux.Handle("POST /api/settlement/plan", withSession(c.SettlementHandler.HandlePlan))
	mux.Handle("POST /api/settlement/execute", withSession(c.SettlementHandler.HandleExecute))

	// Open-bounty proposals
	mux.Handle("POST /api/tasks/{id}/proposals", withSession(c.ProposalHandler.HandleSubmit))
	mux.Handle("POST /api/tasks/{id}/proposals/{proposalID}/approve", withSession(c.ProposalHandler.HandleApprove))
	mux.Handle("POST /api/tasks/{id}/proposals/{proposalID}/reject", withSession(c.ProposalHandler.HandleReject))

	// Disputes
	mux.HandleFunc("GET /api/disputes", c.DisputeHandler.HandleListDisputes)
	mux.HandleFunc("GET /api/disputes/{id}", c.DisputeHandler.HandleGetDispute)
	mux.Handle("POST /api/tasks/{id}/disputes", withSession(c.DisputeHandler.HandleRaise))
	mux.Handle("POST /api/disputes/{id}/evidence", withSession(c.DisputeHandler.HandleAddEvidence))
	mux.Handle("POST /api/disputes/{id}/analyze", withSession(c.DisputeHandler.HandleAnalyze))
	mux.Handle("POST /api/disputes/{id}/resolve", adminOnly(c.DisputeHandler.HandleResolve))

	// Receipts
	mux.HandleFunc("GET /api/receipts/qrcode", c.ReceiptHandler.HandleTransactionQR)

	return mux
}
