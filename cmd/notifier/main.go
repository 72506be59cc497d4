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

	worker, err := app.NewNotifierApp(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize notifier: %v", err)
	}

	if err := worker.Run(ctx); err != nil {
		log.Printf("notifier error: %v", err)
		os.Exit(1)
	}
}
