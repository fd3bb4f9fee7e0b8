package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/Apurer/go-gin-crud-server/internal/app/api"
	"github.com/Apurer/go-gin-crud-server/internal/platform/migrations"
	platformobservability "github.com/Apurer/go-gin-crud-server/internal/platform/observability"
	platformpostgres "github.com/Apurer/go-gin-crud-server/internal/platform/postgres"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := platformobservability.NewLogger(os.Stdout, cfg.SlogLevel())
	db, cleanup := platformpostgres.ConnectOrFallback(ctx, cfg.PostgresDSN, logger)
	defer cleanup()
	if db == nil {
		log.Fatal("POSTGRES_DSN not set or connection failed; cannot bootstrap schema")
	}

	if err := migrations.Run(ctx, db); err != nil {
		log.Fatalf("failed to bootstrap schema: %v", err)
	}
	logger.Info("catalog schema bootstrap completed")
}
