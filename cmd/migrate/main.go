package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	appMigrations "go-battlewatch/migrations"
	"go-battlewatch/pkg/app"
	"go-battlewatch/pkg/migrations"
)

func main() {
	ctx := context.Background()

	appCtx, err := app.InitializeApp("battlewatch-migrate")
	if err != nil {
		log.Printf("Failed to initialize application: %v", err)
		os.Exit(1)
	}
	defer appCtx.Shutdown(ctx)

	runner := migrations.NewRunner(appCtx.MongoDB.Database)
	appMigrations.RegisterAll(runner)

	if err := runner.Run(ctx); err != nil {
		slog.Error("Migrations failed", "error", err)
		appCtx.Shutdown(ctx)
		os.Exit(1)
	}

	slog.Info("Migrations completed")
}
