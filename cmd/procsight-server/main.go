package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/procsight/procsight/internal/config"
	"github.com/procsight/procsight/internal/embedding"
	"github.com/procsight/procsight/internal/ingest"
	"github.com/procsight/procsight/internal/notify"
	"github.com/procsight/procsight/internal/server"
	"github.com/procsight/procsight/internal/storage"
	"github.com/procsight/procsight/internal/storage/postgres"
	"github.com/procsight/procsight/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfigFile(*configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	gateway := embedding.NewGateway(embedding.NewClient(embedding.ClientConfig{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		Timeout: cfg.EmbeddingTimeout(),
	}))

	coordinator, err := ingest.NewCoordinator(store, gateway, ingest.CoordinatorConfig{
		EventBatchSize: cfg.Ingest.EventBatchSize,
		ChunkBatchSize: cfg.Ingest.ChunkBatchSize,
		MaxUploadBytes: int64(cfg.Ingest.MaxUploadMB) * 1024 * 1024,
		Timeout:        cfg.IngestTimeout(),
		EmbedWorkers:   cfg.Embedding.Workers,
	})
	if err != nil {
		log.Fatalf("Failed to initialize ingestion pipeline: %v", err)
	}
	defer coordinator.Close()

	chunker, err := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		log.Fatalf("Invalid chunking config: %v", err)
	}
	coordinator.SetChunker(chunker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, _, err := server.Start(ctx, cfg, store, coordinator, gateway)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("ProcSight API running at http://%s", addr)

	var watcher *notify.InboxWatcher
	if cfg.Inbox.Enabled {
		watcher = notify.NewInboxWatcher(cfg.Inbox.Path, notify.IngestFunc(
			func(ctx context.Context, data []byte, filename, projectID string) (interface{}, error) {
				return coordinator.Ingest(ctx, data, filename, projectID)
			}))
		if err := watcher.Start(); err != nil {
			log.Fatalf("Failed to start inbox watcher: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	if watcher != nil {
		watcher.Stop()
	}
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore picks the persistence backend from configuration.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	default:
		return sqlite.NewStore(cfg.Storage.SQLitePath)
	}
}
