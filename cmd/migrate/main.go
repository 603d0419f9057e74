package main

import (
	"context"
	"os"

	"github.com/safar/arun-store/internal/config"
	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/logging"
	"github.com/safar/arun-store/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		panic(err)
	}

	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down]")
	}

	direction, err := migrations.ParseDirection(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	n, err := migrations.Run(ctx, db, direction, log)
	if err != nil {
		log.Fatalf("Run migrations: %v", err)
	}

	log.Infof("Successfully ran %d migration(s) %s", n, direction)
}
