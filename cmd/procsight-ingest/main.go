// Command procsight-ingest runs the ingestion pipeline from the command
// line, without the HTTP server: point it at a project and one or more
// files and it normalizes, embeds and persists them directly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/procsight/procsight/internal/config"
	"github.com/procsight/procsight/internal/embedding"
	"github.com/procsight/procsight/internal/ingest"
	"github.com/procsight/procsight/internal/storage"
	"github.com/procsight/procsight/internal/storage/postgres"
	"github.com/procsight/procsight/internal/storage/sqlite"
	"github.com/procsight/procsight/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	projectID := flag.String("project", "", "Target project ID")
	createName := flag.String("create", "", "Create a new project with this name and ingest into it")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: procsight-ingest [-config file] (-project id | -create name) file...")
		os.Exit(2)
	}
	if (*projectID == "") == (*createName == "") {
		log.Fatal("Exactly one of -project or -create is required")
	}

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

	ctx := context.Background()

	id := *projectID
	if *createName != "" {
		project := &types.Project{
			ID:          uuid.New().String(),
			Name:        *createName,
			DatasetType: types.DatasetHybrid,
		}
		if err := store.CreateProject(ctx, project); err != nil {
			log.Fatalf("Failed to create project: %v", err)
		}
		id = project.ID
		log.Printf("Created project %s (%s)", project.Name, project.ID)
	}

	failed := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Skipping %s: %v", path, err)
			failed++
			continue
		}

		result, err := coordinator.Ingest(ctx, data, filepath.Base(path), id)
		if err != nil {
			log.Printf("Ingestion of %s failed: %v", path, err)
			failed++
			continue
		}

		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Printf("%s:\n%s\n", path, out)
	}

	if failed > 0 {
		os.Exit(1)
	}
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
