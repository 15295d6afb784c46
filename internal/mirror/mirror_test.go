package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sharetrack/sharetrack/internal/aggregator"
	"github.com/sharetrack/sharetrack/internal/model"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEventLog() []model.Event {
	return []model.Event{
		{FileID: "f1", FileName: "report.pdf", Action: model.ActionShare, Source: "direct_copy", Timestamp: testNow.Add(-3 * time.Hour)},
		{FileID: "f1", Action: model.ActionShare, Source: "email", Timestamp: testNow.Add(-2 * time.Hour)},
		{FileID: "f1", Action: model.ActionDownload, Timestamp: testNow.Add(-time.Hour)},
		{FileID: "f2", FileName: "photo.png", Action: model.ActionView, Timestamp: testNow.Add(-30 * time.Minute)},
		{FileID: "f2", Action: model.ActionShare, Source: "whatsapp", Timestamp: testNow.Add(-10 * time.Minute)},
	}
}

func TestMirrorCountersMatchEventLog(t *testing.T) {
	log := testEventLog()

	live := New(0, testLogger())
	for _, event := range log {
		live.Apply(event)
	}
	live.Wait()

	// A mirror rebuilt from the same log must be identical to the live one.
	rebuilt := New(0, testLogger())
	for _, event := range log {
		rebuilt.Apply(event)
	}
	rebuilt.Wait()

	for _, fileID := range []string{"f1", "f2"} {
		a, ok := live.Snapshot(fileID)
		if !ok {
			t.Fatalf("live mirror missing %s", fileID)
		}
		b, ok := rebuilt.Snapshot(fileID)
		if !ok {
			t.Fatalf("rebuilt mirror missing %s", fileID)
		}
		if a.ShareCount != b.ShareCount || a.DownloadCount != b.DownloadCount || a.ViewCount != b.ViewCount {
			t.Fatalf("counter mismatch for %s: %+v vs %+v", fileID, a, b)
		}
	}

	f1, _ := live.Snapshot("f1")
	if f1.ShareCount != 2 || f1.DownloadCount != 1 || f1.ViewCount != 0 {
		t.Fatalf("unexpected f1 counters: %+v", f1)
	}
	if !f1.LastAccessed.Equal(testNow.Add(-time.Hour)) {
		t.Fatalf("unexpected f1 lastAccessed: %v", f1.LastAccessed)
	}
	if f1.Name != "report.pdf" {
		t.Fatalf("expected name from first event, got %q", f1.Name)
	}
}

func TestMirrorHistoryBounded(t *testing.T) {
	m := New(5, testLogger())
	for i := 0; i < 8; i++ {
		m.Apply(model.Event{
			FileID:    "f1",
			Action:    model.ActionShare,
			Source:    fmt.Sprintf("s%d", i),
			Timestamp: testNow.Add(time.Duration(i) * time.Minute),
		})
	}
	m.Wait()

	snap, _ := m.Snapshot("f1")
	if snap.ShareCount != 8 {
		t.Fatalf("expected counter 8 despite bounded history, got %d", snap.ShareCount)
	}
	if len(snap.ShareHistory) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(snap.ShareHistory))
	}
	if snap.ShareHistory[0].Source != "s3" || snap.ShareHistory[4].Source != "s7" {
		t.Fatalf("expected most-recent entries kept in order, got %+v", snap.ShareHistory)
	}
}

func TestMirrorConcurrentApply(t *testing.T) {
	m := New(0, testLogger())

	const writers = 8
	const perWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				m.Apply(model.Event{FileID: "hot", Action: model.ActionShare, Timestamp: testNow})
			}
		}()
	}
	wg.Wait()
	m.Wait()

	snap, _ := m.Snapshot("hot")
	if snap.ShareCount != writers*perWriter {
		t.Fatalf("lost increments: expected %d, got %d", writers*perWriter, snap.ShareCount)
	}
}

func TestMirrorFallbackReportCapped(t *testing.T) {
	m := New(0, testLogger())
	for i := 0; i < FallbackTopFilesLimit+3; i++ {
		m.Apply(model.Event{
			FileID:    fmt.Sprintf("f%d", i),
			Action:    model.ActionShare,
			Source:    "direct_copy",
			Timestamp: testNow.Add(-time.Hour),
		})
	}
	m.Wait()

	report := m.FallbackReport(aggregator.PeriodWeek, testNow, time.UTC)

	if !report.Degraded {
		t.Fatal("expected fallback report marked degraded")
	}
	if len(report.TopFiles) != FallbackTopFilesLimit {
		t.Fatalf("expected top files capped at %d, got %d", FallbackTopFilesLimit, len(report.TopFiles))
	}
	if report.TotalShares != FallbackTopFilesLimit+3 {
		t.Fatalf("expected all shares counted, got %d", report.TotalShares)
	}
}

func TestMirrorFallbackFileReport(t *testing.T) {
	m := New(0, testLogger())
	for _, event := range testEventLog() {
		m.Apply(event)
	}
	m.Wait()

	report := m.FallbackFileReport("f1", aggregator.PeriodWeek, testNow, time.UTC)

	if report.TotalShares != 2 || report.TotalDownloads != 1 || report.TotalViews != 0 {
		t.Fatalf("unexpected totals: %+v", report)
	}
}

func TestMirrorReplaceKeepsHistories(t *testing.T) {
	m := New(0, testLogger())
	m.Apply(model.Event{FileID: "f1", Action: model.ActionShare, Source: "email", Timestamp: testNow})
	m.Wait()

	m.Replace([]model.FileSnapshot{{ID: "f1", ShareCount: 40, DownloadCount: 7}})
	m.Wait()

	snap, _ := m.Snapshot("f1")
	if snap.ShareCount != 40 || snap.DownloadCount != 7 {
		t.Fatalf("expected store counters adopted, got %+v", snap)
	}
	if len(snap.ShareHistory) != 1 || snap.ShareHistory[0].Source != "email" {
		t.Fatalf("expected local history kept, got %+v", snap.ShareHistory)
	}
}

func TestMirrorRestore(t *testing.T) {
	m := New(0, testLogger())
	m.Restore([]model.FileSnapshot{{
		ID:           "f9",
		Name:         "old.txt",
		ShareCount:   3,
		LastAccessed: testNow.Add(-time.Hour),
		ShareHistory: []model.HistoryEntry{{Timestamp: testNow.Add(-time.Hour), Source: "email"}},
	}})
	m.Wait()

	snap, ok := m.Snapshot("f9")
	if !ok {
		t.Fatal("expected restored snapshot")
	}
	if snap.ShareCount != 3 || len(snap.ShareHistory) != 1 {
		t.Fatalf("unexpected restored snapshot: %+v", snap)
	}
}

type fakeCounterSource struct {
	snapshots []model.FileSnapshot
	err       error
}

func (f *fakeCounterSource) CountersByFile(ctx context.Context) ([]model.FileSnapshot, error) {
	return f.snapshots, f.err
}

type fakePersister struct {
	saved [][]model.FileSnapshot
}

func (f *fakePersister) SaveFileSnapshots(ctx context.Context, snapshots []model.FileSnapshot) error {
	f.saved = append(f.saved, snapshots)
	return nil
}

func TestReconcileOnce(t *testing.T) {
	m := New(0, testLogger())
	m.Apply(model.Event{FileID: "f1", Action: model.ActionShare, Timestamp: testNow})
	m.Wait()

	source := &fakeCounterSource{snapshots: []model.FileSnapshot{{ID: "f1", ShareCount: 12, ViewCount: 4}}}
	persister := &fakePersister{}
	rec := NewReconciler(m, source, persister, time.Minute, testLogger())

	if err := rec.ReconcileOnce(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	snap, _ := m.Snapshot("f1")
	if snap.ShareCount != 12 || snap.ViewCount != 4 {
		t.Fatalf("expected reconciled counters, got %+v", snap)
	}
	if len(persister.saved) != 1 {
		t.Fatalf("expected one persisted snapshot set, got %d", len(persister.saved))
	}
}
