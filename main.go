package main

import (
	stdlog "log"

	"github.com/joho/godotenv"

	"fulfillbill/cmd"
	"fulfillbill/internal/config"
	"fulfillbill/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		stdlog.Printf("Warning: Could not load .env file: %v", err)
	}

	// The full config is validated per command (some commands need less of
	// it); the logger only needs the logging subset.
	if err := logger.Setup(config.LoadLogging()); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}

	cmd.Execute()
}
