package main

import (
	"context"
	"log"
	"os"

	"github.com/vadim/inkdesk/internal/app"
	"github.com/vadim/inkdesk/internal/config"
)

func main() {
	cfg := config.MustLoad()

	ctx := context.Background()

	application, err := app.NewStoreApp(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize conversation store: %v", err)
	}

	// Run blocks until SIGINT/SIGTERM
	if err := application.Run(ctx); err != nil {
		log.Printf("conversation store error: %v", err)
		os.Exit(1)
	}
}
