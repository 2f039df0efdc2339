package container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Malik434/TaskWiser-V2-sub000/chain"
	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/Malik434/TaskWiser-V2-sub000/handlers"
	"github.com/Malik434/TaskWiser-V2-sub000/services"
	"github.com/Malik434/TaskWiser-V2-sub000/storage"
	auth "github.com/Malik434/TaskWiser-V2-sub000/storage/auth"
)

// Container holds all application dependencies
type Container struct {
	// Infrastructure
	Store    storage.Store
	Client   *chain.Client
	Network  *chain.NetworkConfig
	Sessions *auth.SessionStore

	// Engines
	Lifecycle *escrow.Lifecycle
	Manager   *escrow.Manager
	Engine    *escrow.Engine
	Proposals *escrow.Proposals
	Disputes  *escrow.Disputes

	// Services
	ArbitrationService *services.ArbitrationService
	ReceiptService     *services.ReceiptService
	HealthService      *services.HealthService

	// Handlers
	HealthHandler     *handlers.HealthHandler
	TaskHandler       *handlers.TaskHandler
	EscrowHandler     *handlers.EscrowHandler
	SettlementHandler *handlers.SettlementHandler
	ProposalHandler   *handlers.ProposalHandler
	DisputeHandler    *handlers.DisputeHandler
	AuthHandler       *handlers.AuthHandler
	ReceiptHandler    *handlers.ReceiptHandler
}

// NewContainer creates a new dependency container. The store driver is
// selected by STORE_DRIVER (memory|postgres); postgres requires
// DATABASE_URL.
func NewContainer(ctx context.Context) (*Container, error) {
	network := chain.GetNetworkConfig(chain.GetCurrentNetwork())
	client := chain.NewClient(*network)

	store, err := newStore(ctx)
	if err != nil {
		return nil, err
	}

	sessions := auth.NewSessionStore()
	if key := os.Getenv("ADMIN_SESSION_KEY"); key != "" {
		sessions.Seed(key, os.Getenv("ADMIN_ACCOUNT"), true, "seed")
	}

	// Engines
	lifecycle := escrow.NewLifecycle(store)
	manager := escrow.NewManager(store, client)
	engine := escrow.NewEngine(store, client)
	proposals := escrow.NewProposals(store, manager)

	// Services
	arbitration := services.NewArbitrationService()
	receipts := services.NewReceiptService(network)
	health := services.NewHealthService(network)

	disputes := escrow.NewDisputes(store, manager, arbitration)

	return &Container{
		Store:    store,
		Client:   client,
		Network:  network,
		Sessions: sessions,

		Lifecycle: lifecycle,
		Manager:   manager,
		Engine:    engine,
		Proposals: proposals,
		Disputes:  disputes,

		ArbitrationService: arbitration,
		ReceiptService:     receipts,
		HealthService:      health,

		HealthHandler:     handlers.NewHealthHandler(health),
		TaskHandler:       handlers.NewTaskHandler(store, lifecycle),
		EscrowHandler:     handlers.NewEscrowHandler(store, manager),
		SettlementHandler: handlers.NewSettlementHandler(engine),
		ProposalHandler:   handlers.NewProposalHandler(proposals),
		DisputeHandler:    handlers.NewDisputeHandler(store, disputes),
		AuthHandler:       handlers.NewAuthHandler(sessions, store),
		ReceiptHandler:    handlers.NewReceiptHandler(receipts),
	}, nil
}

func newStore(ctx context.Context) (storage.Store, error) {
	seed := os.Getenv("SEED_DATA") == "true" || os.Getenv("SEED_DATA") == "1"

	switch driver := os.Getenv("STORE_DRIVER"); driver {
	case "", "memory":
		log.Printf("Using in-memory store (seed=%v)", seed)
		return storage.NewMemoryStore(seed), nil
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, fmt.Errorf("STORE_DRIVER=postgres requires DATABASE_URL")
		}
		log.Printf("Using postgres store (seed=%v)", seed)
		pg, err := storage.NewPGStore(ctx, dsn, seed)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want memory or postgres)", driver)
	}
}

// Close releases held resources
func (c *Container) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}
