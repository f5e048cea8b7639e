package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/kdimtricp/ecosort/internal/config"
	"github.com/kdimtricp/ecosort/internal/database"
	"github.com/kdimtricp/ecosort/internal/models"
)

func main() {
	limit := flag.Int("limit", 10, "Number of recent runs to show")
	reviews := flag.Bool("reviews", false, "List the manual classifications of each run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	repo := database.NewRunRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runs, err := repo.ListRuns(ctx, *limit)
	if err != nil {
		log.Fatal("Failed to list runs:", err)
	}

	fmt.Println("Classification runs")
	fmt.Println("===================")
	fmt.Printf("Database: %s\n\n", cfg.Database.Type)

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet. Start one from the live page.")
		return
	}

	for _, run := range runs {
		fmt.Printf("%s  started %s  %s\n", run.ID, run.StartedAt.Local().Format("2006-01-02 15:04:05"), describeStop(run))
		fmt.Printf("    polls %d  paused %d  errors %d  reviews %d\n", run.Polls, run.Pauses, run.Errors, run.Reviews)

		if !*reviews || run.Reviews == 0 {
			continue
		}
		recs, err := repo.ListReviews(ctx, run.ID)
		if err != nil {
			log.Printf("Failed to list reviews for %s: %v", run.ID, err)
			continue
		}
		for _, rec := range recs {
			line := fmt.Sprintf("      %s result %s: %s -> %s", rec.At.Local().Format("15:04:05"), rec.ResultID, rec.SystemLabel, rec.TrueClass)
			if rec.CopiedForTraining {
				line += " (copied for training)"
			}
			if rec.Error != "" {
				line += " [" + rec.Error + "]"
			}
			fmt.Println(line)
		}
	}
}

func describeStop(run models.RunSummary) string {
	if run.StoppedAt == nil {
		return "still open"
	}
	return fmt.Sprintf("stopped %s (%s, %s)",
		run.StoppedAt.Local().Format("15:04:05"),
		run.StopReason,
		run.StoppedAt.Sub(run.StartedAt).Round(time.Second))
}
