package fitsynth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig failed validation: %v", err)
	}
}

func TestConfigValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad as_of_date", func(c *Config) { c.Phase2.Synthetic.AsOfDate = "17/02/2026" }},
		{"zero users", func(c *Config) { c.Phase2.Synthetic.NumUsers = 0 }},
		{"short lookback", func(c *Config) { c.Phase2.Synthetic.LookbackDays = 7 }},
		{"too many conditions", func(c *Config) { c.Phase2.Synthetic.Profiles.MaxConditionsPerUser = 9 }},
		{"negative medications", func(c *Config) { c.Phase2.Synthetic.Profiles.MaxMedicationsPerUser = -1 }},
		{"inverted exercise bounds", func(c *Config) {
			c.Phase2.Synthetic.Workouts.MinExercisesPerPlan = 6
			c.Phase2.Synthetic.Workouts.MaxExercisesPerPlan = 4
		}},
		{"exercise cap beyond catalog", func(c *Config) { c.Phase2.Synthetic.Workouts.MaxExercisesPerPlan = 40 }},
		{"zero sets", func(c *Config) { c.Phase2.Synthetic.Workouts.SetsPerExercise = 0 }},
		{"zero prompts per type", func(c *Config) { c.Phase3.SyntheticQueries.PromptsPerType = 0 }},
		{"empty prompt types", func(c *Config) { c.Phase3.SyntheticQueries.PromptTypes = nil }},
		{"zero retries", func(c *Config) { c.Phase4.TeacherLLM.MaxRetries = 0 }},
		{"negative backoff", func(c *Config) { c.Phase4.TeacherLLM.RetryBackoffSeconds = -1 }},
		{"split does not sum to one", func(c *Config) { c.Phase5.Distillation.Split.TrainRatio = 0.7 }},
		{"negative split tolerance", func(c *Config) { c.Phase6.AnomalyDetection.SplitRatioTolerance = -0.1 }},
		{"zero min group size", func(c *Config) { c.Phase6.BiasSlicing.MinGroupSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	doc := `
reproducibility:
  seed: 17
phase2:
  synthetic:
    as_of_date: "2026-02-17"
    num_users: 8
    lookback_days: 21
phase4:
  teacher_llm:
    provider: mock
    max_retries: 2
    retry_backoff_seconds: 0.1
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Reproducibility.Seed != 17 {
		t.Errorf("seed = %d, want 17", cfg.Reproducibility.Seed)
	}
	if cfg.Phase2.Synthetic.NumUsers != 8 {
		t.Errorf("num_users = %d, want 8", cfg.Phase2.Synthetic.NumUsers)
	}
	if cfg.Phase4.TeacherLLM.MaxRetries != 2 {
		t.Errorf("max_retries = %d, want 2", cfg.Phase4.TeacherLLM.MaxRetries)
	}
	// Untouched keys keep their defaults.
	if cfg.Phase4.TeacherLLM.ModelName != "teacher-mock-v1" {
		t.Errorf("model_name = %q, want default", cfg.Phase4.TeacherLLM.ModelName)
	}
	if cfg.Phase5.Distillation.Split.TrainRatio != 0.8 {
		t.Errorf("train_ratio = %v, want 0.8", cfg.Phase5.Distillation.Split.TrainRatio)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestConfig_AsOf(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Phase2.Synthetic.AsOfDate = "2026-02-17"
	got := cfg.AsOf()
	if got.Year() != 2026 || got.Month() != 2 || got.Day() != 17 {
		t.Errorf("AsOf = %v, want 2026-02-17", got)
	}
	if got.Hour() != 0 || got.Minute() != 0 {
		t.Errorf("AsOf not at midnight: %v", got)
	}
}
