// A maintenance CLI for inspecting and repairing the local reading
// database without starting the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fablemill/fable-go/internal/config"
	"github.com/fablemill/fable-go/internal/db"
	"github.com/fablemill/fable-go/internal/store"
)

func main() {
	progressCmd := flag.NewFlagSet("progress", flag.ExitOnError)
	progressStory := progressCmd.String("story", "", "story id to inspect")

	sessionsCmd := flag.NewFlagSet("sessions", flag.ExitOnError)
	sessionsStory := sessionsCmd.String("story", "", "story id to inspect")

	onboardingCmd := flag.NewFlagSet("reset-onboarding", flag.ExitOnError)
	onboardingStory := onboardingCmd.String("story", "", "story id to reset")

	if len(os.Args) < 2 {
		usage()
	}

	// Load configuration from config.yml
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the database connection
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Run database migrations
	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	st := store.New(database)

	switch os.Args[1] {
	case "progress":
		progressCmd.Parse(os.Args[2:])
		if *progressStory == "" {
			progressCmd.Usage()
			os.Exit(2)
		}
		showProgress(st, *progressStory)
	case "sessions":
		sessionsCmd.Parse(os.Args[2:])
		if *sessionsStory == "" {
			sessionsCmd.Usage()
			os.Exit(2)
		}
		showSessions(st, *sessionsStory)
	case "reset-onboarding":
		onboardingCmd.Parse(os.Args[2:])
		if *onboardingStory == "" {
			onboardingCmd.Usage()
			os.Exit(2)
		}
		if err := st.ClearOnboarding(*onboardingStory); err != nil {
			log.Fatalf("Failed to reset onboarding: %v", err)
		}
		fmt.Printf("Onboarding reset for story %s.\n", *onboardingStory)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("Usage: fable-cli <progress|sessions|reset-onboarding> -story <id>")
	os.Exit(2)
}

func showProgress(st *store.Store, storyID string) {
	records, err := st.GetStoryProgress(storyID)
	if err != nil {
		log.Fatalf("Failed to read progress: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("No progress recorded.")
		return
	}
	for _, p := range records {
		mark := " "
		if p.Read {
			mark = "x"
		}
		fmt.Printf("[%s] chapter %2d  %3d%%\n", mark, p.ChapterNumber, p.Percent)
	}
}

func showSessions(st *store.Store, storyID string) {
	sessions, err := st.GetSessionLog(storyID)
	if err != nil {
		log.Fatalf("Failed to read session log: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return
	}
	for _, s := range sessions {
		fmt.Printf("%s  started %s  lasted %s  reached chapter %d (%d%%)\n",
			s.SessionID, s.StartedAt.Format("2006-01-02 15:04"), s.Duration.Round(time.Second), s.LastChapter, s.LastPercent)
	}
}
