package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"brokercore/internal/app"
	"brokercore/internal/closer"
	"brokercore/internal/config"
)

func main() {
	envPath := flag.String("env", ".env", "path to the .env file")
	flag.Parse()

	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load(*envPath)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init application: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("run application: %v", err)
	}

	if err := closer.CloseAll(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
