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

	application, err := app.NewConsoleApp(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize console backend: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Printf("console backend error: %v", err)
		os.Exit(1)
	}
}
