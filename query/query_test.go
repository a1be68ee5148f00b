package query

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/synth"
)

func testConfig() fitsynth.Config {
	cfg := fitsynth.DefaultConfig()
	cfg.Reproducibility.Seed = 17
	cfg.Phase2.Synthetic.AsOfDate = "2026-02-17"
	cfg.Phase2.Synthetic.NumUsers = 8
	cfg.Phase2.Synthetic.LookbackDays = 21
	cfg.Phase2.Synthetic.Profiles.MaxConditionsPerUser = 2
	cfg.Phase2.Synthetic.Profiles.MaxMedicationsPerUser = 1
	cfg.Phase2.Synthetic.Profiles.MaxAllergiesPerUser = 1
	cfg.Phase2.Synthetic.Workouts.WorkoutsPerUser = 2
	cfg.Phase2.Synthetic.Workouts.MinExercisesPerPlan = 3
	cfg.Phase2.Synthetic.Workouts.MaxExercisesPerPlan = 4
	cfg.Phase2.Synthetic.Workouts.SetsPerExercise = 3
	return cfg
}

func setupEntityRuns(t *testing.T, cfg fitsynth.Config, root string) {
	t.Helper()
	if _, err := synth.GenerateProfiles(cfg, root, "p1"); err != nil {
		t.Fatalf("GenerateProfiles error: %v", err)
	}
	if _, err := synth.GenerateWorkouts(cfg, root, "w1"); err != nil {
		t.Fatalf("GenerateWorkouts error: %v", err)
	}
}

func TestGenerate_CountsAndShape(t *testing.T) {
	cfg := testConfig()
	root := t.TempDir()
	setupEntityRuns(t, cfg, root)

	res, err := Generate(cfg, root, "q1")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.NumQueries != 32 {
		t.Fatalf("NumQueries = %d, want 32 (8 users x 4 types)", res.NumQueries)
	}

	records, err := ReadAll(filepath.Join(res.RunDir, "queries.jsonl"))
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if len(records) != 32 {
		t.Fatalf("records = %d, want 32", len(records))
	}

	bands := map[string]bool{"18-24": true, "25-34": true, "35-44": true, "45-54": true, "55+": true}
	for i, r := range records {
		wantScenario := fitsynth.StableID("scenario",
			r.UserID+":"+r.PromptType+":0")
		if r.ScenarioID != wantScenario {
			t.Errorf("record %d scenario_id = %q, want %q", i, r.ScenarioID, wantScenario)
		}
		if want := fitsynth.StableID("query", r.ScenarioID); r.QueryID != want {
			t.Errorf("record %d query_id = %q, want %q", i, r.QueryID, want)
		}
		if r.PromptVariant != 0 {
			t.Errorf("record %d prompt_variant = %d, want 0", i, r.PromptVariant)
		}
		if !bands[r.SliceTags.AgeBand] {
			t.Errorf("record %d age_band = %q", i, r.SliceTags.AgeBand)
		}
		if r.SliceTags.GoalType == "" {
			t.Errorf("record %d goal_type empty", i)
		}
		if r.SliceTags.ConditionFlag != "none" && r.SliceTags.ConditionFlag != "has_condition" {
			t.Errorf("record %d condition_flag = %q", i, r.SliceTags.ConditionFlag)
		}

		switch len(r.ExpectedSafetyConstraints) {
		case 2:
			if r.SliceTags.ConditionFlag != "none" {
				t.Errorf("record %d has 2 constraints but condition_flag = %q", i, r.SliceTags.ConditionFlag)
			}
		case 3:
			if r.SliceTags.ConditionFlag != "has_condition" {
				t.Errorf("record %d has 3 constraints but condition_flag = %q", i, r.SliceTags.ConditionFlag)
			}
			if r.ExpectedSafetyConstraints[2] != "respect medical constraints and low-impact alternatives" {
				t.Errorf("record %d third constraint = %q", i, r.ExpectedSafetyConstraints[2])
			}
		default:
			t.Errorf("record %d has %d constraints", i, len(r.ExpectedSafetyConstraints))
		}
		if r.ExpectedSafetyConstraints[0] != "avoid unsafe load spikes" ||
			r.ExpectedSafetyConstraints[1] != "prioritize progressive overload" {
			t.Errorf("record %d base constraints = %v", i, r.ExpectedSafetyConstraints)
		}

		if r.ContextSummary.WorkoutCount != 2 {
			t.Errorf("record %d workout_count = %d, want 2", i, r.ContextSummary.WorkoutCount)
		}
		if r.ContextSummary.AvgReps <= 0 {
			t.Errorf("record %d avg_reps = %v, want > 0", i, r.ContextSummary.AvgReps)
		}
		if (len(r.ContextSummary.Conditions) > 0) != (r.SliceTags.ConditionFlag == "has_condition") {
			t.Errorf("record %d conditions %v disagree with flag %q",
				i, r.ContextSummary.Conditions, r.SliceTags.ConditionFlag)
		}
		if r.SourceRunIDs.SyntheticProfiles != "p1" || r.SourceRunIDs.SyntheticWorkouts != "w1" {
			t.Errorf("record %d source_run_ids = %+v", i, r.SourceRunIDs)
		}
	}

	var latest Latest
	if err := fitsynth.ReadLatest(root, fitsynth.DatasetQueries, &latest); err != nil {
		t.Fatalf("ReadLatest error: %v", err)
	}
	if latest.NumQueries != 32 {
		t.Errorf("latest num_queries = %d, want 32", latest.NumQueries)
	}
	if latest.Seed != cfg.Reproducibility.Seed+2 {
		t.Errorf("latest seed = %d, want %d", latest.Seed, cfg.Reproducibility.Seed+2)
	}
	if latest.PromptsPerType != 1 || len(latest.PromptTypes) != 4 {
		t.Errorf("latest prompt config = %v / %d", latest.PromptTypes, latest.PromptsPerType)
	}

	// CSV mirror exists with one row per record.
	mirror, err := fitsynth.ReadCSV(filepath.Join(res.RunDir, "queries.csv"))
	if err != nil {
		t.Fatalf("reading csv mirror: %v", err)
	}
	if len(mirror.Rows) != 32 {
		t.Errorf("csv mirror rows = %d, want 32", len(mirror.Rows))
	}
}

func TestGenerate_PromptText(t *testing.T) {
	cfg := testConfig()
	root := t.TempDir()
	setupEntityRuns(t, cfg, root)

	res, err := Generate(cfg, root, "q1")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	records, err := ReadAll(filepath.Join(res.RunDir, "queries.jsonl"))
	if err != nil {
		t.Fatal(err)
	}

	for i, r := range records {
		switch r.PromptType {
		case "plan_creation":
			if !strings.HasPrefix(r.PromptText, "Create a 7-day workout plan for a user with goal '") {
				t.Errorf("record %d plan_creation text: %q", i, r.PromptText)
			}
			if !strings.Contains(r.PromptText, "Include sets, reps, RIR, and rest guidance.") {
				t.Errorf("record %d missing guidance clause: %q", i, r.PromptText)
			}
		case "plan_modification":
			if !strings.Contains(r.PromptText, "Recent averages: reps=") {
				t.Errorf("record %d plan_modification text: %q", i, r.PromptText)
			}
		case "safety_adjustment":
			if !strings.HasPrefix(r.PromptText, "Given conditions ") {
				t.Errorf("record %d safety_adjustment text: %q", i, r.PromptText)
			}
		case "progress_adaptation":
			if !strings.Contains(r.PromptText, "User trend is '") {
				t.Errorf("record %d progress_adaptation text: %q", i, r.PromptText)
			}
			found := false
			for _, trend := range []string{"plateau", "improving", "fatigue_signals"} {
				if strings.Contains(r.PromptText, "'"+trend+"'") {
					found = true
				}
			}
			if !found {
				t.Errorf("record %d has no known trend: %q", i, r.PromptText)
			}
		default:
			t.Errorf("record %d unexpected prompt_type %q", i, r.PromptType)
		}
	}
}

func TestGenerate_DeterministicPrompts(t *testing.T) {
	cfg := testConfig()
	rootA := t.TempDir()
	rootB := t.TempDir()
	setupEntityRuns(t, cfg, rootA)
	setupEntityRuns(t, cfg, rootB)

	resA, err := Generate(cfg, rootA, "q1")
	if err != nil {
		t.Fatal(err)
	}
	resB, err := Generate(cfg, rootB, "q1")
	if err != nil {
		t.Fatal(err)
	}

	a, err := ReadAll(filepath.Join(resA.RunDir, "queries.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ReadAll(filepath.Join(resB.RunDir, "queries.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("record counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		// created_at is a wall-clock stamp; everything else must match.
		a[i].CreatedAt = ""
		b[i].CreatedAt = ""
		if a[i].PromptText != b[i].PromptText {
			t.Errorf("record %d prompt differs:\n%q\n%q", i, a[i].PromptText, b[i].PromptText)
		}
		if a[i].QueryID != b[i].QueryID {
			t.Errorf("record %d query_id differs", i)
		}
	}
}

func TestGenerate_RequiresUpstreamRuns(t *testing.T) {
	cfg := testConfig()

	_, err := Generate(cfg, t.TempDir(), "q1")
	if err == nil {
		t.Fatal("expected error with no upstream runs")
	}
	if !errors.Is(err, fitsynth.ErrMissingPointer) {
		t.Errorf("error = %v, want ErrMissingPointer", err)
	}

	// Profiles alone are not enough.
	root := t.TempDir()
	if _, err := synth.GenerateProfiles(cfg, root, "p1"); err != nil {
		t.Fatal(err)
	}
	_, err = Generate(cfg, root, "q1")
	if !errors.Is(err, fitsynth.ErrMissingPointer) {
		t.Errorf("error = %v, want ErrMissingPointer for missing workouts", err)
	}
}

func TestGenerate_UnknownPromptType(t *testing.T) {
	cfg := testConfig()
	cfg.Phase3.SyntheticQueries.PromptTypes = []string{"plan_creation", "meal_planning"}

	_, err := Generate(cfg, t.TempDir(), "q1")
	if err == nil {
		t.Fatal("expected error for unknown prompt type")
	}
	if !errors.Is(err, fitsynth.ErrUnknownPromptType) {
		t.Errorf("error = %v, want ErrUnknownPromptType", err)
	}
	if !strings.Contains(err.Error(), "meal_planning") {
		t.Errorf("error should name the offending type: %v", err)
	}
}

func TestAgeBand(t *testing.T) {
	tests := []struct {
		age  int
		want string
	}{
		{18, "18-24"}, {24, "18-24"},
		{25, "25-34"}, {34, "25-34"},
		{35, "35-44"}, {44, "35-44"},
		{45, "45-54"}, {54, "45-54"},
		{55, "55+"}, {70, "55+"},
	}
	for _, tt := range tests {
		if got := ageBand(tt.age); got != tt.want {
			t.Errorf("ageBand(%d) = %q, want %q", tt.age, got, tt.want)
		}
	}
}

func TestComputeAge(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		dob  string
		want int
	}{
		{"1990-08-25", 36}, // birthday today
		{"1990-08-26", 35}, // birthday tomorrow
		{"1990-08-24", 36},
		{"2010-01-01", 18}, // floored at 18
	}
	for _, tt := range tests {
		got, err := computeAge(tt.dob, now)
		if err != nil {
			t.Fatalf("computeAge(%q) error: %v", tt.dob, err)
		}
		if got != tt.want {
			t.Errorf("computeAge(%q) = %d, want %d", tt.dob, got, tt.want)
		}
	}

	if _, err := computeAge("not-a-date", now); err == nil {
		t.Error("expected error for malformed date")
	}
}
