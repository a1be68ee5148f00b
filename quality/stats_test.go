package quality

import (
	"errors"
	"math"
	"testing"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/distill"
)

func TestQuantile(t *testing.T) {
	cases := []struct {
		sorted []int
		q      float64
		want   float64
	}{
		{[]int{7}, 0.5, 7},
		{[]int{1, 2}, 0.5, 1.5},
		{[]int{4, 8, 12, 16}, 0.5, 10},
		{[]int{4, 8, 12, 16}, 0.95, 15.4},
		{[]int{0, 10}, 0, 0},
		{[]int{0, 10}, 1, 10},
	}
	for _, tc := range cases {
		got := quantile(tc.sorted, tc.q)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("quantile(%v, %v) = %v, want %v", tc.sorted, tc.q, got, tc.want)
		}
	}
}

func TestStats_Report(t *testing.T) {
	root := t.TempDir()
	all := []distill.Record{
		fixtureRecord(0, "plan_creation", "fat_loss", response(4)),
		fixtureRecord(1, "plan_creation", "fat_loss", response(8)),
		fixtureRecord(2, "plan_modification", "muscle_gain", response(12)),
		fixtureRecord(3, "", "", response(16)),
	}
	writeFixtureRun(t, root, all,
		all[:2], all[2:3], all[3:], nil)

	report, _, err := Stats(root, t.TempDir(), "r1")
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if report.NumRows != 4 {
		t.Errorf("num_rows = %d, want 4", report.NumRows)
	}
	if report.SplitSizes != (SplitSizes{Train: 2, Val: 1, Test: 1}) {
		t.Errorf("split_sizes = %+v", report.SplitSizes)
	}
	if report.PromptTypeCounts["plan_creation"] != 2 || report.PromptTypeCounts["plan_modification"] != 1 || report.PromptTypeCounts["unknown"] != 1 {
		t.Errorf("prompt_type_counts = %v", report.PromptTypeCounts)
	}
	if report.GoalTypeCounts["fat_loss"] != 2 || report.GoalTypeCounts["muscle_gain"] != 1 || report.GoalTypeCounts["unknown"] != 1 {
		t.Errorf("goal_type_counts = %v", report.GoalTypeCounts)
	}

	rl := report.ResponseLength
	if rl.Min != 4 || rl.Max != 16 {
		t.Errorf("min/max = %d/%d, want 4/16", rl.Min, rl.Max)
	}
	if math.Abs(rl.P50-10) > 1e-12 {
		t.Errorf("p50 = %v, want 10", rl.P50)
	}
	if math.Abs(rl.P95-15.4) > 1e-12 {
		t.Errorf("p95 = %v, want 15.4", rl.P95)
	}
	if math.Abs(rl.Mean-10) > 1e-12 {
		t.Errorf("mean = %v, want 10", rl.Mean)
	}
}

func TestStats_RuneLengths(t *testing.T) {
	root := t.TempDir()
	// Four runes, not twelve bytes.
	all := []distill.Record{fixtureRecord(0, "plan_creation", "fat_loss", "日本語版")}
	writeFixtureRun(t, root, all, all, []distill.Record{}, []distill.Record{}, nil)

	report, _, err := Stats(root, t.TempDir(), "r1")
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if report.ResponseLength.Min != 4 || report.ResponseLength.Max != 4 {
		t.Errorf("rune length = %d/%d, want 4/4", report.ResponseLength.Min, report.ResponseLength.Max)
	}
}

func TestStats_EmptyDataset(t *testing.T) {
	root := t.TempDir()
	writeFixtureRun(t, root, []distill.Record{}, []distill.Record{}, []distill.Record{}, []distill.Record{}, nil)

	_, _, err := Stats(root, t.TempDir(), "r1")
	if !errors.Is(err, fitsynth.ErrEmptyDataset) {
		t.Errorf("expected ErrEmptyDataset, got: %v", err)
	}
}

func TestStats_MissingSplitFile(t *testing.T) {
	root := t.TempDir()
	all := []distill.Record{fixtureRecord(0, "plan_creation", "fat_loss", response(50))}
	// No test.jsonl; stats must refuse rather than assume zero.
	writeFixtureRun(t, root, all, all, []distill.Record{}, nil, nil)

	_, _, err := Stats(root, t.TempDir(), "r1")
	if !errors.Is(err, fitsynth.ErrMissingArtifact) {
		t.Errorf("expected ErrMissingArtifact, got: %v", err)
	}
}
