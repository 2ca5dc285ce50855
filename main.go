package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"perchmp/internal/config"
	"perchmp/internal/container"
	"perchmp/internal/errors"

	"github.com/joho/godotenv"
)

// main runs the configured plan once. Everything comes from the environment; see
// cmd/cli for flags and the other commands.
func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(ctx, appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Close()

	result, paths, err := appContainer.Execute(ctx, nil)
	if err != nil {
		appContainer.Close()
		log.Fatalf("Run failed [%s]: %v", errors.GetCode(err), err)
	}

	log.Printf("Run %s complete: %d model(s), %d failed, fingerprint %s",
		result.Manifest.RunID, len(result.Models), len(result.Failed()), result.Manifest.Fingerprint.Short())
	for _, mr := range result.Failed() {
		if mr.SupersededBy != "" {
			log.Printf("  %s failed (%s); replaced by %s", mr.Name, mr.Error, mr.SupersededBy)
		} else {
			log.Printf("  %s failed: %s", mr.Name, mr.Error)
		}
	}
	for _, p := range paths {
		log.Printf("  wrote %s", p)
	}
}
