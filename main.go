package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/atelier-ai/threadmem/internal/config"
	"github.com/atelier-ai/threadmem/internal/logging"
	"github.com/atelier-ai/threadmem/internal/memory"
	"github.com/atelier-ai/threadmem/internal/server"
	"github.com/atelier-ai/threadmem/internal/storage"
)

func main() {
	transport := flag.String("transport", "stdio", "Transport mode: stdio or http")
	port := flag.String("port", "", "HTTP port (only used with --transport http)")
	dataDir := flag.String("data-dir", "", "Directory for persisted memory (overrides MEMORY_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.MemoryDir = *dataDir
	}
	if *port != "" {
		cfg.Port = *port
	}

	if err := logging.Init(cfg.Env); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logging.Sync()
	logger := logging.Get()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage backend", zap.String("backend", cfg.Backend), zap.Error(err))
	}
	defer store.Close()

	mem := memory.NewManager(store, logger)
	srv := server.New(mem)

	switch *transport {
	case "stdio":
		logger.Info("threadmem server starting (stdio)", zap.String("backend", cfg.Backend))
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	case "http":
		addr := cfg.Host + ":" + cfg.Port
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		logger.Info("threadmem server listening", zap.String("addr", addr), zap.String("backend", cfg.Backend))
		if err := http.ListenAndServe(addr, handler); err != nil {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	default:
		logger.Fatal("Unknown transport (use stdio or http)", zap.String("transport", *transport))
	}
}

// openStore picks the storage backend named by the configuration.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return storage.OpenSQLite(cfg.MemoryDir, logger)
	case config.BackendNeo4j:
		return storage.NewNeo4jStore(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, logger)
	default:
		return storage.NewFileStore(cfg.MemoryDir, logger)
	}
}
