package fitsynth

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob for the pipeline, keyed by pipeline phase the
// way params.yaml lays them out. Zero values are filled from
// DefaultConfig by Load.
type Config struct {
	Project         ProjectConfig         `json:"project" yaml:"project"`
	Reproducibility ReproducibilityConfig `json:"reproducibility" yaml:"reproducibility"`
	Paths           PathsConfig           `json:"paths" yaml:"paths"`
	Logging         LoggingConfig         `json:"logging" yaml:"logging"`
	Phase2          Phase2Config          `json:"phase2" yaml:"phase2"`
	Phase3          Phase3Config          `json:"phase3" yaml:"phase3"`
	Phase4          Phase4Config          `json:"phase4" yaml:"phase4"`
	Phase5          Phase5Config          `json:"phase5" yaml:"phase5"`
	Phase6          Phase6Config          `json:"phase6" yaml:"phase6"`
	Catalog         CatalogConfig         `json:"catalog" yaml:"catalog"`
}

// ProjectConfig names the project in artifacts.
type ProjectConfig struct {
	Name string `json:"name" yaml:"name"`
}

// ReproducibilityConfig pins the run-level seed. HashSeed is recorded in
// artifacts for provenance; it has no runtime effect here.
type ReproducibilityConfig struct {
	Seed     int64  `json:"seed" yaml:"seed"`
	HashSeed string `json:"hash_seed" yaml:"hash_seed"`
}

// PathsConfig locates the three output roots.
type PathsConfig struct {
	RawDataDir string `json:"raw_data_dir" yaml:"raw_data_dir"`
	ReportsDir string `json:"reports_dir" yaml:"reports_dir"`
	LogsDir    string `json:"logs_dir" yaml:"logs_dir"`
}

// LoggingConfig configures the shared stdout+file logger.
type LoggingConfig struct {
	Level    string `json:"level" yaml:"level"`
	FileName string `json:"file_name" yaml:"file_name"`
}

// Phase2Config covers synthetic entity generation.
type Phase2Config struct {
	Synthetic SyntheticConfig `json:"synthetic" yaml:"synthetic"`
}

// SyntheticConfig controls both the profile and workout generators.
type SyntheticConfig struct {
	AsOfDate     string          `json:"as_of_date" yaml:"as_of_date"`
	NumUsers     int             `json:"num_users" yaml:"num_users"`
	LookbackDays int             `json:"lookback_days" yaml:"lookback_days"`
	Profiles     ProfileBounds   `json:"profiles" yaml:"profiles"`
	Workouts     WorkoutCadences `json:"workouts" yaml:"workouts"`
}

// ProfileBounds caps per-user cardinalities in the profile tables.
type ProfileBounds struct {
	MaxConditionsPerUser  int `json:"max_conditions_per_user" yaml:"max_conditions_per_user"`
	MaxMedicationsPerUser int `json:"max_medications_per_user" yaml:"max_medications_per_user"`
	MaxAllergiesPerUser   int `json:"max_allergies_per_user" yaml:"max_allergies_per_user"`
}

// WorkoutCadences sizes the plan and workout hierarchies.
type WorkoutCadences struct {
	WorkoutsPerUser     int `json:"workouts_per_user" yaml:"workouts_per_user"`
	MinExercisesPerPlan int `json:"min_exercises_per_plan" yaml:"min_exercises_per_plan"`
	MaxExercisesPerPlan int `json:"max_exercises_per_plan" yaml:"max_exercises_per_plan"`
	SetsPerExercise     int `json:"sets_per_exercise" yaml:"sets_per_exercise"`
}

// Phase3Config covers query synthesis.
type Phase3Config struct {
	SyntheticQueries QueryConfig `json:"synthetic_queries" yaml:"synthetic_queries"`
}

// QueryConfig selects which prompts to synthesize per user.
type QueryConfig struct {
	PromptTypes    []string `json:"prompt_types" yaml:"prompt_types"`
	PromptsPerType int      `json:"prompts_per_type" yaml:"prompts_per_type"`
}

// Phase4Config covers the teacher invoker.
type Phase4Config struct {
	TeacherLLM TeacherConfig `json:"teacher_llm" yaml:"teacher_llm"`
}

// TeacherConfig selects and tunes the teacher provider.
type TeacherConfig struct {
	Provider            string  `json:"provider" yaml:"provider"` // mock, openai_compatible
	ModelName           string  `json:"model_name" yaml:"model_name"`
	EndpointURL         string  `json:"endpoint_url" yaml:"endpoint_url"`
	APIKeyEnv           string  `json:"api_key_env" yaml:"api_key_env"`
	TimeoutSeconds      int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries          int     `json:"max_retries" yaml:"max_retries"`
	RetryBackoffSeconds float64 `json:"retry_backoff_seconds" yaml:"retry_backoff_seconds"`
	Temperature         float64 `json:"temperature" yaml:"temperature"`
	TopP                float64 `json:"top_p" yaml:"top_p"`
	MaxOutputTokens     int     `json:"max_output_tokens" yaml:"max_output_tokens"`
	// MaxQueries caps how many queries are sent; nil means all.
	MaxQueries *int `json:"max_queries" yaml:"max_queries"`
}

// Phase5Config covers distillation.
type Phase5Config struct {
	Distillation DistillationConfig `json:"distillation" yaml:"distillation"`
}

// DistillationConfig filters teacher rows and shapes the split.
type DistillationConfig struct {
	MinResponseChars      int         `json:"min_response_chars" yaml:"min_response_chars"`
	RequirePostValidation bool        `json:"require_post_validation" yaml:"require_post_validation"`
	RejectOnSafetyFlags   bool        `json:"reject_on_safety_flags" yaml:"reject_on_safety_flags"`
	Split                 SplitRatios `json:"split" yaml:"split"`
}

// SplitRatios must sum to 1.0.
type SplitRatios struct {
	TrainRatio float64 `json:"train_ratio" yaml:"train_ratio"`
	ValRatio   float64 `json:"val_ratio" yaml:"val_ratio"`
	TestRatio  float64 `json:"test_ratio" yaml:"test_ratio"`
}

// Phase6Config covers the quality gate analyzers.
type Phase6Config struct {
	AnomalyDetection AnomalyConfig `json:"anomaly_detection" yaml:"anomaly_detection"`
	BiasSlicing      BiasConfig    `json:"bias_slicing" yaml:"bias_slicing"`
}

// AnomalyConfig sets the anomaly detector thresholds.
type AnomalyConfig struct {
	DuplicateRecordThreshold int     `json:"duplicate_record_threshold" yaml:"duplicate_record_threshold"`
	MissingResponseThreshold int     `json:"missing_response_threshold" yaml:"missing_response_threshold"`
	MinResponseChars         int     `json:"min_response_chars" yaml:"min_response_chars"`
	MaxResponseChars         int     `json:"max_response_chars" yaml:"max_response_chars"`
	SplitRatioTolerance      float64 `json:"split_ratio_tolerance" yaml:"split_ratio_tolerance"`
}

// BiasConfig sets the bias slicer thresholds.
type BiasConfig struct {
	MinGroupSize             int     `json:"min_group_size" yaml:"min_group_size"`
	MaxMeanResponseLengthGap float64 `json:"max_mean_response_len_gap" yaml:"max_mean_response_len_gap"`
}

// CatalogConfig enables the optional sqlite run catalog.
type CatalogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"db_path" yaml:"db_path"`
}

// exerciseCatalogSize mirrors the synth exercise catalog. Plans sample
// exercises without replacement, so the cap cannot exceed it.
const exerciseCatalogSize = 12

// DefaultConfig returns a Config with the documented defaults. Callers
// typically Load a params.yaml over it.
func DefaultConfig() Config {
	return Config{
		Project:         ProjectConfig{Name: "fitsynth"},
		Reproducibility: ReproducibilityConfig{Seed: 42, HashSeed: "42"},
		Paths: PathsConfig{
			RawDataDir: "data/raw",
			ReportsDir: "reports",
			LogsDir:    "logs",
		},
		Logging: LoggingConfig{Level: "info", FileName: "fitsynth.log"},
		Phase2: Phase2Config{Synthetic: SyntheticConfig{
			AsOfDate:     "2026-02-17",
			NumUsers:     25,
			LookbackDays: 30,
			Profiles: ProfileBounds{
				MaxConditionsPerUser:  2,
				MaxMedicationsPerUser: 2,
				MaxAllergiesPerUser:   2,
			},
			Workouts: WorkoutCadences{
				WorkoutsPerUser:     3,
				MinExercisesPerPlan: 3,
				MaxExercisesPerPlan: 5,
				SetsPerExercise:     3,
			},
		}},
		Phase3: Phase3Config{SyntheticQueries: QueryConfig{
			PromptTypes: []string{
				"plan_creation",
				"plan_modification",
				"safety_adjustment",
				"progress_adaptation",
			},
			PromptsPerType: 1,
		}},
		Phase4: Phase4Config{TeacherLLM: TeacherConfig{
			Provider:            "mock",
			ModelName:           "teacher-mock-v1",
			APIKeyEnv:           "OPENAI_API_KEY",
			TimeoutSeconds:      30,
			MaxRetries:          3,
			RetryBackoffSeconds: 1.5,
			Temperature:         0.2,
			TopP:                1.0,
			MaxOutputTokens:     512,
		}},
		Phase5: Phase5Config{Distillation: DistillationConfig{
			MinResponseChars:      40,
			RequirePostValidation: true,
			RejectOnSafetyFlags:   true,
			Split:                 SplitRatios{TrainRatio: 0.8, ValRatio: 0.1, TestRatio: 0.1},
		}},
		Phase6: Phase6Config{
			AnomalyDetection: AnomalyConfig{
				DuplicateRecordThreshold: 0,
				MissingResponseThreshold: 0,
				MinResponseChars:         40,
				MaxResponseChars:         3000,
				SplitRatioTolerance:      0.25,
			},
			BiasSlicing: BiasConfig{
				MinGroupSize:             2,
				MaxMeanResponseLengthGap: 300,
			},
		},
		Catalog: CatalogConfig{Enabled: false, DBPath: "data/catalog.db"},
	}
}

// LoadConfig reads a params.yaml over the defaults and validates the
// result. A missing file or malformed document is a configuration error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every constraint that must hold before any stage does
// I/O. It returns the first violation wrapped around ErrInvalidConfig.
func (c Config) Validate() error {
	syn := c.Phase2.Synthetic
	if _, err := time.Parse("2006-01-02", syn.AsOfDate); err != nil {
		return fmt.Errorf("%w: phase2.synthetic.as_of_date %q is not YYYY-MM-DD", ErrInvalidConfig, syn.AsOfDate)
	}
	if syn.NumUsers < 1 {
		return fmt.Errorf("%w: phase2.synthetic.num_users must be >= 1", ErrInvalidConfig)
	}
	// Daily-log sampling draws max(10, 70% of lookback) distinct days.
	if syn.LookbackDays < 10 {
		return fmt.Errorf("%w: phase2.synthetic.lookback_days must be >= 10", ErrInvalidConfig)
	}
	if syn.Profiles.MaxConditionsPerUser < 0 || syn.Profiles.MaxConditionsPerUser > 5 {
		return fmt.Errorf("%w: phase2.synthetic.profiles.max_conditions_per_user must be in [0,5]", ErrInvalidConfig)
	}
	if syn.Profiles.MaxMedicationsPerUser < 0 {
		return fmt.Errorf("%w: phase2.synthetic.profiles.max_medications_per_user must be >= 0", ErrInvalidConfig)
	}
	if syn.Profiles.MaxAllergiesPerUser < 0 {
		return fmt.Errorf("%w: phase2.synthetic.profiles.max_allergies_per_user must be >= 0", ErrInvalidConfig)
	}

	w := syn.Workouts
	if w.WorkoutsPerUser < 1 {
		return fmt.Errorf("%w: phase2.synthetic.workouts.workouts_per_user must be >= 1", ErrInvalidConfig)
	}
	if w.MinExercisesPerPlan < 1 || w.MaxExercisesPerPlan < w.MinExercisesPerPlan {
		return fmt.Errorf("%w: phase2.synthetic.workouts exercise bounds are inverted", ErrInvalidConfig)
	}
	if w.MaxExercisesPerPlan > exerciseCatalogSize {
		return fmt.Errorf("%w: phase2.synthetic.workouts.max_exercises_per_plan exceeds the exercise catalog", ErrInvalidConfig)
	}
	if w.SetsPerExercise < 1 {
		return fmt.Errorf("%w: phase2.synthetic.workouts.sets_per_exercise must be >= 1", ErrInvalidConfig)
	}

	if c.Phase3.SyntheticQueries.PromptsPerType < 1 {
		return fmt.Errorf("%w: phase3.synthetic_queries.prompts_per_type must be >= 1", ErrInvalidConfig)
	}
	if len(c.Phase3.SyntheticQueries.PromptTypes) == 0 {
		return fmt.Errorf("%w: phase3.synthetic_queries.prompt_types must not be empty", ErrInvalidConfig)
	}

	t := c.Phase4.TeacherLLM
	if t.MaxRetries < 1 {
		return fmt.Errorf("%w: phase4.teacher_llm.max_retries must be >= 1", ErrInvalidConfig)
	}
	if t.RetryBackoffSeconds < 0 {
		return fmt.Errorf("%w: phase4.teacher_llm.retry_backoff_seconds must be >= 0", ErrInvalidConfig)
	}

	s := c.Phase5.Distillation.Split
	if math.Abs(s.TrainRatio+s.ValRatio+s.TestRatio-1.0) > 1e-9 {
		return fmt.Errorf("%w: phase5.distillation.split ratios must sum to 1.0", ErrInvalidConfig)
	}

	if c.Phase6.AnomalyDetection.SplitRatioTolerance < 0 {
		return fmt.Errorf("%w: phase6.anomaly_detection.split_ratio_tolerance must be >= 0", ErrInvalidConfig)
	}
	if c.Phase6.BiasSlicing.MinGroupSize < 1 {
		return fmt.Errorf("%w: phase6.bias_slicing.min_group_size must be >= 1", ErrInvalidConfig)
	}
	return nil
}

// AsOf parses the validated as-of date at UTC midnight.
func (c Config) AsOf() time.Time {
	t, _ := time.Parse("2006-01-02", c.Phase2.Synthetic.AsOfDate)
	return t.UTC()
}
