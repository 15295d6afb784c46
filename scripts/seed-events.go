// Command seed-events inserts synthetic share events for local
// dashboard development.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/sharetrack/sharetrack/internal/model"
	"github.com/sharetrack/sharetrack/internal/repository"
)

var (
	actions = []model.Action{model.ActionShare, model.ActionShare, model.ActionShare, model.ActionDownload, model.ActionView}
	sources = []string{"direct_copy", "whatsapp", "email", "qr_code", "direct_copy"}
)

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		fileCount   = flag.Int("files", 12, "Number of distinct files to spread events over")
		days        = flag.Int("days", 30, "Spread events over the past N days")
		count       = flag.Int("events", 500, "Number of events to insert")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if *fileCount <= 0 || *days <= 0 || *count <= 0 {
		fmt.Fprintln(os.Stderr, "files, days and events must be positive")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	rng := rand.New(rand.NewSource(*seed))
	now := time.Now().UTC()

	events := make([]*model.Event, 0, *count)
	for i := 0; i < *count; i++ {
		fileNum := rng.Intn(*fileCount) + 1
		at := now.Add(-time.Duration(rng.Intn(*days*24*60)) * time.Minute)

		events = append(events, &model.Event{
			ID:        ulid.Make().String(),
			EventID:   uuid.New().String(),
			FileID:    fmt.Sprintf("seed-file-%d", fileNum),
			FileName:  fmt.Sprintf("document-%d.pdf", fileNum),
			Action:    actions[rng.Intn(len(actions))],
			Source:    sources[rng.Intn(len(sources))],
			UserID:    fmt.Sprintf("seed-user-%d", rng.Intn(5)+1),
			Timestamp: at,
		})
	}

	eventRepo := repository.NewEventRepository(repo)
	if err := eventRepo.BulkInsert(ctx, events); err != nil {
		fmt.Fprintln(os.Stderr, "insert events:", err)
		os.Exit(1)
	}

	fmt.Printf("inserted %d events across %d files over %d days\n", len(events), *fileCount, *days)
}
