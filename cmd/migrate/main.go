// Package main provides a CLI for database migrations.
// Usage: migrate up
//        migrate down
//        migrate status
//        migrate redo
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/joho/godotenv"

	"jobcost/internal/infrastructure/storage/postgres"
)

const migrationsDir = "db/migrations"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	_ = godotenv.Load()

	switch os.Args[1] {
	case "up", "down", "status", "redo", "version":
		runGoose(os.Args[1])
	case "check":
		checkConnection()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Job costing migration CLI

Usage:
  migrate <command>

Commands:
  up        Apply all pending migrations
  down      Roll back the last migration
  status    Show applied and pending migrations
  redo      Roll back and re-apply the last migration
  version   Print the current schema version
  check     Verify the database is reachable
  help      Show this help

Environment Variables:
  DATABASE_URL   Connection string (required)

The goose binary must be on PATH; migrations are read from ` + migrationsDir + `.`)
}

func databaseURL() string {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Println("Error: DATABASE_URL environment variable is required")
		os.Exit(1)
	}
	return dsn
}

func runGoose(command string) {
	cmd := exec.Command("goose", "-dir", migrationsDir, "postgres", databaseURL(), command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Printf("  ✗ goose %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("  ✓ goose %s done\n", command)
}

func checkConnection() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(databaseURL()))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	s := pool.Stats()
	fmt.Printf("Connected (total=%d idle=%d max=%d)\n", s.TotalConns, s.IdleConns, s.MaxConns)
}
