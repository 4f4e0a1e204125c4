package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maptitesalle/mylittlegymcoach/internal/client"
	"github.com/maptitesalle/mylittlegymcoach/internal/config"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
	"github.com/maptitesalle/mylittlegymcoach/internal/profile"
	"github.com/maptitesalle/mylittlegymcoach/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewClientFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg, err := logger.New("prod")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pointer, err := storage.NewPointerStore(cfg.StateDir)
	if err != nil {
		log.Fatalf("Failed to initialize state directory: %v", err)
	}
	backend := client.NewHTTPBackend(cfg.APIURL, cfg.AccessToken)

	ctrl := client.NewController(backend, pointer, client.Options{
		UserID:       cfg.UserID,
		PollInterval: cfg.PollInterval,
		Listener:     printer{},
		Logger:       logg,
	})
	defer ctrl.Close()

	switch os.Args[1] {
	case "generate":
		generateCmd := flag.NewFlagSet("generate", flag.ExitOnError)
		profilePath := generateCmd.String("profile", "profile.json", "Path to the profile JSON file")
		regenerate := generateCmd.Bool("regenerate", false, "Avoid the recipes of the current plan")
		generateCmd.Parse(os.Args[2:])

		p, err := loadProfile(*profilePath)
		if err != nil {
			log.Fatalf("Failed to load profile: %v", err)
		}

		if *regenerate {
			// Load the current plan whose recipes must be avoided.
			poller, err := ctrl.Resume(ctx)
			if err != nil {
				fatal(err)
			}
			wait(ctx, poller)
		}

		poller, err := ctrl.Start(ctx, client.StartOptions{Profile: p, Regenerate: *regenerate})
		if err != nil {
			fatal(err)
		}
		wait(ctx, poller)
	case "resume":
		poller, err := ctrl.Resume(ctx)
		if err != nil {
			fatal(err)
		}
		wait(ctx, poller)
		if ctrl.State() == client.StateIdle {
			fmt.Println("Nothing to resume.")
		}
	case "history":
		historyCmd := flag.NewFlagSet("history", flag.ExitOnError)
		limit := historyCmd.Int("limit", 10, "Number of plans to list")
		historyCmd.Parse(os.Args[2:])

		plans, err := backend.ListPlans(ctx, cfg.UserID, *limit)
		if err != nil {
			fatal(err)
		}
		for _, plan := range plans {
			fmt.Printf("%s  %-36s  %d recipes\n", plan.CreatedAt.Format("2006-01-02 15:04"), plan.RequestID, len(plan.Recipes))
		}
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if ctrl.State() == client.StateFailed {
		os.Exit(1)
	}
}

func loadProfile(path string) (profile.Profile, error) {
	var p profile.Profile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return p, nil
}

// wait blocks until the poller ends or the user interrupts. An interrupted
// generation keeps its pointer and can be picked up with "resume".
func wait(ctx context.Context, poller *client.Poller) {
	if poller == nil {
		return
	}
	select {
	case <-poller.Done():
	case <-ctx.Done():
		poller.Stop()
		<-poller.Done()
		fmt.Println("\nInterrupted. Run 'coach resume' to continue tracking this generation.")
	}
}

func fatal(err error) {
	switch {
	case errors.Is(err, client.ErrUnauthenticated):
		log.Fatal("Not authenticated: set COACH_USER_ID and a valid COACH_ACCESS_TOKEN, then run 'coach resume'.")
	case errors.Is(err, profile.ErrIncompleteProfile):
		log.Fatalf("Your profile is missing required data: %v", err)
	default:
		log.Fatalf("Error: %v", err)
	}
}

// printer reports controller events on stdout.
type printer struct{}

func (printer) StateChanged(s client.State) {
	switch s {
	case client.StateGenerating:
		fmt.Println("🧑‍🍳 Generating your nutrition plan...")
	case client.StateResuming:
		fmt.Println("⏳ Resuming the generation in progress...")
	}
}

func (printer) PlanReady(plan *planner.NutritionPlan) {
	fmt.Println("\n=== NUTRITION PLAN ===")
	fmt.Println(plan.Content)

	if len(plan.Ingredients) > 0 {
		fmt.Println("\n=== SHOPPING LIST ===")
		for _, item := range plan.Ingredients {
			fmt.Printf("- %s\n", item)
		}
	}
}

func (printer) Failed(err error) {
	fmt.Printf("❌ Generation failed: %v\nPlease try again later.\n", err)
}

func printUsage() {
	fmt.Println("Usage: coach <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  generate     Generate a new nutrition plan (-profile file.json, -regenerate)")
	fmt.Println("  resume       Resume tracking the last generation, or show the latest plan")
	fmt.Println("  history      List your recent plans")
}
