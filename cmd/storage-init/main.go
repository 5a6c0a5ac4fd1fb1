package main

import (
	"context"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"board-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	cfg := storage.Config{
		ConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		ColumnsTable:     os.Getenv("COLUMNS_TABLE"),
		IssuesTable:      os.Getenv("ISSUES_TABLE"),
		SprintsTable:     os.Getenv("SPRINTS_TABLE"),
		MembersTable:     os.Getenv("MEMBERS_TABLE"),
		EventsQueue:      os.Getenv("BOARD_EVENTS_QUEUE"),
	}
	if cfg.ConnectionString == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}

	ctx := context.Background()
	if err := storage.Provision(ctx, cfg); err != nil {
		log.Fatalf("provision: %v", err)
	}

	if project := os.Getenv("SEED_PROJECT_ID"); project != "" {
		if cfg.ColumnsTable == "" {
			log.Fatal("SEED_PROJECT_ID requires COLUMNS_TABLE")
		}
		if err := storage.SeedColumns(ctx, cfg, project); err != nil {
			log.Fatalf("seed columns: %v", err)
		}
		log.WithField("project", project).Info("default columns seeded")
	}

	log.Info("storage init complete")
}
