//go:build cgo

package catalog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/fitsense/fitsynth"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(dbPath)
	if err != nil {
		t.Fatalf("opening catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "catalog.db")
	c, err := Open(dbPath)
	if err != nil {
		t.Fatalf("opening catalog in nested dir: %v", err)
	}
	c.Close()
}

func TestRecordRunAndLatest(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	first := Run{
		Dataset: fitsynth.DatasetProfiles,
		RunID:   "20260101T000000Z",
		RunDir:  "/data/raw/synthetic_profiles/20260101T000000Z",
	}
	second := Run{
		Dataset: fitsynth.DatasetProfiles,
		RunID:   "20260102T000000Z",
		RunDir:  "/data/raw/synthetic_profiles/20260102T000000Z",
	}
	if err := c.RecordRun(ctx, first); err != nil {
		t.Fatalf("recording first run: %v", err)
	}
	if err := c.RecordRun(ctx, second); err != nil {
		t.Fatalf("recording second run: %v", err)
	}

	got, err := c.Latest(ctx, fitsynth.DatasetProfiles)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.RunID != second.RunID {
		t.Errorf("latest run_id: got %q, want %q", got.RunID, second.RunID)
	}
	if got.RunDir != second.RunDir {
		t.Errorf("latest run_dir: got %q", got.RunDir)
	}
	if got.CreatedAt == "" {
		t.Error("expected non-empty created_at")
	}
}

func TestLatestNoRuns(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.Latest(context.Background(), fitsynth.DatasetQueries)
	if err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestRecordRunUpsert(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	run := Run{
		Dataset: fitsynth.DatasetTeacher,
		RunID:   "20260101T000000Z",
		RunDir:  "/old/dir",
		Meta:    map[string]any{"num_requests": 32},
	}
	if err := c.RecordRun(ctx, run); err != nil {
		t.Fatalf("first record: %v", err)
	}

	run.RunDir = "/new/dir"
	run.Meta = map[string]any{"num_requests": 16}
	if err := c.RecordRun(ctx, run); err != nil {
		t.Fatalf("second record: %v", err)
	}

	runs, err := c.List(ctx, fitsynth.DatasetTeacher, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run after upsert, got %d", len(runs))
	}
	if runs[0].RunDir != "/new/dir" {
		t.Errorf("run_dir not updated: got %q", runs[0].RunDir)
	}
	if runs[0].Meta["num_requests"] != float64(16) {
		t.Errorf("meta not updated: got %v", runs[0].Meta)
	}
}

func TestRecordRunRequiresKeys(t *testing.T) {
	c := newTestCatalog(t)

	if err := c.RecordRun(context.Background(), Run{Dataset: "", RunID: "r1"}); err == nil {
		t.Error("expected error for empty dataset")
	}
	if err := c.RecordRun(context.Background(), Run{Dataset: fitsynth.DatasetQueries, RunID: ""}); err == nil {
		t.Error("expected error for empty run_id")
	}
}

func TestListFiltersAndLimits(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	entries := []Run{
		{Dataset: fitsynth.DatasetProfiles, RunID: "20260101T000000Z", RunDir: "/p/1"},
		{Dataset: fitsynth.DatasetProfiles, RunID: "20260102T000000Z", RunDir: "/p/2"},
		{Dataset: fitsynth.DatasetQueries, RunID: "20260103T000000Z", RunDir: "/q/1"},
	}
	for i, r := range entries {
		if err := c.RecordRun(ctx, r); err != nil {
			t.Fatalf("recording run %d: %v", i, err)
		}
	}

	all, err := c.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}

	profiles, err := c.List(ctx, fitsynth.DatasetProfiles, 0)
	if err != nil {
		t.Fatalf("list profiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profile runs, got %d", len(profiles))
	}
	// Newest first.
	if profiles[0].RunID != "20260102T000000Z" {
		t.Errorf("first listed run: got %q", profiles[0].RunID)
	}

	limited, err := c.List(ctx, "", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 run with limit 1, got %d", len(limited))
	}
}

func TestMetaRoundTrip(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	run := Run{
		Dataset: fitsynth.DatasetDistillation,
		RunID:   "20260101T000000Z",
		RunDir:  "/d/1",
		Meta: map[string]any{
			"num_all":             32,
			"source_query_run_id": "q1",
		},
	}
	if err := c.RecordRun(ctx, run); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := c.Latest(ctx, fitsynth.DatasetDistillation)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Meta["source_query_run_id"] != "q1" {
		t.Errorf("meta source_query_run_id: got %v", got.Meta["source_query_run_id"])
	}
	if got.Meta["num_all"] != float64(32) {
		t.Errorf("meta num_all: got %v", got.Meta["num_all"])
	}
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	c, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	run := Run{Dataset: fitsynth.DatasetWorkouts, RunID: "20260101T000000Z", RunDir: "/w/1"}
	if err := c.RecordRun(ctx, run); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Latest(ctx, fitsynth.DatasetWorkouts)
	if err != nil {
		t.Fatalf("latest after reopen: %v", err)
	}
	if got.RunID != run.RunID {
		t.Errorf("run_id after reopen: got %q", got.RunID)
	}
}
