package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/Malik434/TaskWiser-V2-sub000/chain"
	"github.com/Malik434/TaskWiser-V2-sub000/core/escrow"
	"github.com/Malik434/TaskWiser-V2-sub000/mcp"
	"github.com/Malik434/TaskWiser-V2-sub000/services"
	"github.com/Malik434/TaskWiser-V2-sub000/storage"

	"github.com/mark3labs/mcp-go/server"
)

type config struct {
	StoreDriver string
	PGDSN       string
	Seed        bool
}

func loadConfig() config {
	storeDriver := os.Getenv("MCP_STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = "memory"
	}

	seed := true
	if raw := os.Getenv("MCP_SEED_FIXTURES"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			seed = v
		}
	}

	return config{
		StoreDriver: storeDriver,
		PGDSN:       os.Getenv("MCP_PG_DSN"),
		Seed:        seed,
	}
}

func main() {
	cfg := loadConfig()

	ctx := context.Background()
	var store storage.Store
	var err error
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("MCP_PG_DSN required when MCP_STORE_DRIVER=postgres")
		}
		store, err = storage.NewPGStore(ctx, cfg.PGDSN, cfg.Seed)
	default:
		store = storage.NewMemoryStore(cfg.Seed)
	}
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()

	network := chain.GetNetworkConfig(chain.GetCurrentNetwork())
	client := chain.NewClient(*network)

	lifecycle := escrow.NewLifecycle(store)
	manager := escrow.NewManager(store, client)
	engine := escrow.NewEngine(store, client)
	proposals := escrow.NewProposals(store, manager)
	disputes := escrow.NewDisputes(store, manager, services.NewArbitrationService())

	mcpServer := mcp.NewMCPServer(store, lifecycle, engine, proposals, disputes)

	log.Printf("TaskWiser MCP server starting (driver=%s, network=%s)", cfg.StoreDriver, network.Name)

	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
