package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maptitesalle/mylittlegymcoach/internal/app"
	"github.com/maptitesalle/mylittlegymcoach/internal/config"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize stores, generator and background workers
	application, err := app.New(ctx, cfg, logg)
	if err != nil {
		logg.Fatal("Failed to initialize application", "error", err)
	}
	defer application.Close()

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		// 3. Start Server with Graceful Shutdown
		if err := application.Run(ctx); err != nil {
			logg.Fatal("Server failed", "error", err)
		}
	case "sweep-stale":
		swept, err := application.SweepStale(ctx)
		if err != nil {
			logg.Fatal("Sweep failed", "error", err)
		}
		fmt.Printf("Marked %d stale generation(s) as failed.\n", len(swept))
	case "usage":
		usageCmd := flag.NewFlagSet("usage", flag.ExitOnError)
		days := usageCmd.Int("days", 7, "Report the last N days")
		usageCmd.Parse(os.Args[2:])

		usage, err := application.Usage(ctx, *days)
		if err != nil {
			logg.Fatal("Failed to read usage", "error", err)
		}
		for _, d := range usage {
			fmt.Printf("%s  %8d prompt  %8d completion  %4d execs  %3d failed\n",
				d.Date, d.TotalPrompt, d.TotalCompletion, d.TotalExecution, d.Failed)
		}
	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(os.Args[2:])

		affected, err := application.CleanupMetrics(ctx, *days)
		if err != nil {
			logg.Fatal("Cleanup failed", "error", err)
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: coach-server [command] [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve              Run the HTTP API and background workers (default)")
	fmt.Println("  sweep-stale        Fail generations stuck in processing")
	fmt.Println("  usage              Print LLM token usage per day")
	fmt.Println("  metrics-cleanup    Remove old metric records")
}
