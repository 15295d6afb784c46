//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/sharetrack/sharetrack/internal/model"
	"github.com/sharetrack/sharetrack/internal/testutil"
)

func TestIntegrationEventRepository_Insert(t *testing.T) {
	ctx, repo := newEventTestEnv(t)
	events := NewEventRepository(repo)

	fileID := testutil.UniqueID("file")
	event := testutil.NewTestEvent(t, fileID, model.ActionShare)
	event.DeviceInfo = map[string]string{"platform": "MacIntel", "language": "en-US"}

	if err := events.Insert(ctx, event); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	listed, err := events.ListFileSince(ctx, fileID, time.Time{})
	if err != nil {
		t.Fatalf("ListFileSince failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 event, got %d", len(listed))
	}

	got := listed[0]
	if got.EventID != event.EventID {
		t.Errorf("EventID mismatch: got %q, want %q", got.EventID, event.EventID)
	}
	if got.Action != model.ActionShare {
		t.Errorf("Action mismatch: got %q, want %q", got.Action, model.ActionShare)
	}
	if got.DeviceInfo["platform"] != "MacIntel" {
		t.Errorf("DeviceInfo not round-tripped: %v", got.DeviceInfo)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set by the database")
	}
}

func TestIntegrationEventRepository_InsertIdempotent(t *testing.T) {
	ctx, repo := newEventTestEnv(t)
	events := NewEventRepository(repo)

	fileID := testutil.UniqueID("file")
	event := testutil.NewTestEvent(t, fileID, model.ActionDownload)

	if err := events.Insert(ctx, event); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}

	// Same event_id again: replay after a spill must not duplicate.
	dup := *event
	dup.ID = testutil.UniqueID("evt")
	if err := events.Insert(ctx, &dup); err != nil {
		t.Fatalf("duplicate Insert failed: %v", err)
	}

	listed, err := events.ListFileSince(ctx, fileID, time.Time{})
	if err != nil {
		t.Fatalf("ListFileSince failed: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("expected 1 event after duplicate insert, got %d", len(listed))
	}
}

func TestIntegrationEventRepository_BulkInsert(t *testing.T) {
	ctx, repo := newEventTestEnv(t)
	events := NewEventRepository(repo)

	fileID := testutil.UniqueID("file")
	batch := []*model.Event{
		testutil.NewTestEvent(t, fileID, model.ActionShare),
		testutil.NewTestEvent(t, fileID, model.ActionView),
		testutil.NewTestEvent(t, fileID, model.ActionDownload),
	}

	if err := events.BulkInsert(ctx, batch); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	// Replaying the whole batch is a no-op.
	if err := events.BulkInsert(ctx, batch); err != nil {
		t.Fatalf("replayed BulkInsert failed: %v", err)
	}

	listed, err := events.ListFileSince(ctx, fileID, time.Time{})
	if err != nil {
		t.Fatalf("ListFileSince failed: %v", err)
	}
	if len(listed) != 3 {
		t.Errorf("expected 3 events, got %d", len(listed))
	}
}

func TestIntegrationEventRepository_ListSince(t *testing.T) {
	ctx, repo := newEventTestEnv(t)
	events := NewEventRepository(repo)

	now := time.Now().UTC()
	fileID := testutil.UniqueID("file")

	old := testutil.NewTestEvent(t, fileID, model.ActionShare)
	old.Timestamp = now.AddDate(0, 0, -10)
	recent := testutil.NewTestEvent(t, fileID, model.ActionShare)
	recent.Timestamp = now.Add(-1 * time.Hour)

	if err := events.BulkInsert(ctx, []*model.Event{old, recent}); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	listed, err := events.ListSince(ctx, now.AddDate(0, 0, -7), "")
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 event inside window, got %d", len(listed))
	}
	if listed[0].EventID != recent.EventID {
		t.Errorf("got event %q, want recent %q", listed[0].EventID, recent.EventID)
	}
}

func TestIntegrationEventRepository_ListSinceUserFilter(t *testing.T) {
	ctx, repo := newEventTestEnv(t)
	events := NewEventRepository(repo)

	fileID := testutil.UniqueID("file")
	userID := testutil.UniqueID("user")

	mine := testutil.NewTestEvent(t, fileID, model.ActionShare)
	mine.UserID = userID
	other := testutil.NewTestEvent(t, fileID, model.ActionShare)
	other.UserID = testutil.UniqueID("user")

	if err := events.BulkInsert(ctx, []*model.Event{mine, other}); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	listed, err := events.ListSince(ctx, time.Time{}, userID)
	if err != nil {
		t.Fatalf("ListSince failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 event for user, got %d", len(listed))
	}
	if listed[0].UserID != userID {
		t.Errorf("got user %q, want %q", listed[0].UserID, userID)
	}
}

func TestIntegrationEventRepository_ListOrdering(t *testing.T) {
	ctx, repo := newEventTestEnv(t)
	events := NewEventRepository(repo)

	now := time.Now().UTC()
	fileID := testutil.UniqueID("file")

	// Insert out of order; reads must come back oldest first.
	var batch []*model.Event
	for i := 3; i >= 1; i-- {
		e := testutil.NewTestEvent(t, fileID, model.ActionShare)
		e.Timestamp = now.Add(-time.Duration(i) * time.Hour)
		batch = append(batch, e)
	}

	if err := events.BulkInsert(ctx, batch); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	listed, err := events.ListFileSince(ctx, fileID, time.Time{})
	if err != nil {
		t.Fatalf("ListFileSince failed: %v", err)
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].Timestamp.Before(listed[i-1].Timestamp) {
			t.Errorf("events out of order at index %d", i)
		}
	}
}

func TestIntegrationEventRepository_CountersByFile(t *testing.T) {
	ctx, repo := newEventTestEnv(t)
	events := NewEventRepository(repo)

	fileA := testutil.UniqueID("file-a")
	fileB := testutil.UniqueID("file-b")

	batch := []*model.Event{
		testutil.NewTestEvent(t, fileA, model.ActionShare),
		testutil.NewTestEvent(t, fileA, model.ActionShare),
		testutil.NewTestEvent(t, fileA, model.ActionDownload),
		testutil.NewTestEvent(t, fileB, model.ActionView),
	}

	if err := events.BulkInsert(ctx, batch); err != nil {
		t.Fatalf("BulkInsert failed: %v", err)
	}

	snapshots, err := events.CountersByFile(ctx)
	if err != nil {
		t.Fatalf("CountersByFile failed: %v", err)
	}

	byID := make(map[string]struct {
		shares, downloads, views int64
	})
	for _, snap := range snapshots {
		byID[snap.ID] = struct {
			shares, downloads, views int64
		}{snap.ShareCount, snap.DownloadCount, snap.ViewCount}
	}

	if got := byID[fileA]; got.shares != 2 || got.downloads != 1 || got.views != 0 {
		t.Errorf("fileA counters = %+v, want 2 shares, 1 download, 0 views", got)
	}
	if got := byID[fileB]; got.views != 1 {
		t.Errorf("fileB counters = %+v, want 1 view", got)
	}
}

func newEventTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetEventsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset events schema: %v", err)
	}

	return ctx, repo
}
