// Package query turns the synthetic entity tables into natural-language
// coaching prompts, one scenario per user, prompt type and variant. The
// records carry the slice tags and context summaries every downstream
// stage keys off.
package query

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fitsense/fitsynth"
)

// SliceTags label a query for stratification and bias analysis.
type SliceTags struct {
	AgeBand       string `json:"age_band"`
	Sex           string `json:"sex"`
	GoalType      string `json:"goal_type"`
	ActivityLevel string `json:"activity_level"`
	ConditionFlag string `json:"condition_flag"`
}

// ContextSummary aggregates the user's recent training history.
type ContextSummary struct {
	WorkoutCount int      `json:"workout_count"`
	AvgReps      float64  `json:"avg_reps"`
	AvgWeight    float64  `json:"avg_weight"`
	AvgRIR       float64  `json:"avg_rir"`
	Conditions   []string `json:"conditions"`
}

// SourceRunIDs records which entity runs a query was derived from.
type SourceRunIDs struct {
	SyntheticProfiles string `json:"synthetic_profiles"`
	SyntheticWorkouts string `json:"synthetic_workouts"`
}

// Record is one teacher-ready prompt.
type Record struct {
	QueryID                   string         `json:"query_id"`
	ScenarioID                string         `json:"scenario_id"`
	UserID                    string         `json:"user_id"`
	PromptType                string         `json:"prompt_type"`
	PromptVariant             int            `json:"prompt_variant"`
	PromptText                string         `json:"prompt_text"`
	SliceTags                 SliceTags      `json:"slice_tags"`
	ExpectedSafetyConstraints []string       `json:"expected_safety_constraints"`
	ContextSummary            ContextSummary `json:"context_summary"`
	SourceRunIDs              SourceRunIDs   `json:"source_run_ids"`
	CreatedAt                 string         `json:"created_at"`
}

// Latest is the pointer payload the query stage publishes.
type Latest struct {
	RunID          string       `json:"run_id"`
	RunDir         string       `json:"run_dir"`
	Seed           int64        `json:"seed"`
	NumQueries     int          `json:"num_queries"`
	PromptTypes    []string     `json:"prompt_types"`
	PromptsPerType int          `json:"prompts_per_type"`
	SourceRunIDs   SourceRunIDs `json:"source_run_ids"`
}

// Result describes a completed query run.
type Result struct {
	RunID      string
	RunDir     string
	NumQueries int
}

// Generate synthesizes prompts for every user in the latest entity runs
// and writes queries.jsonl plus a CSV mirror. The prompt stream draws
// from its own seed (profile seed + 2).
func Generate(cfg fitsynth.Config, rawRoot, runID string) (*Result, error) {
	qc := cfg.Phase3.SyntheticQueries
	if qc.PromptsPerType < 1 {
		return nil, fmt.Errorf("%w: phase3.synthetic_queries.prompts_per_type must be >= 1", fitsynth.ErrInvalidConfig)
	}
	for _, pt := range qc.PromptTypes {
		if !knownPromptType(pt) {
			return nil, fmt.Errorf("%w: %s", fitsynth.ErrUnknownPromptType, pt)
		}
	}

	seed := cfg.Reproducibility.Seed + 2
	rng := fitsynth.NewRNG(seed)

	contexts, sources, err := buildUserContexts(rawRoot)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	nowISO := fitsynth.FormatTimestamp(now)
	var records []Record

	for _, ctx := range contexts {
		age, err := computeAge(ctx.dateOfBirth, now)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", ctx.userID, err)
		}
		band := ageBand(age)

		conditionFlag := "none"
		if len(ctx.conditions) > 0 {
			conditionFlag = "has_condition"
		}
		goalType := ctx.primaryGoal
		if goalType == "" {
			goalType = "general_fitness"
		}

		for _, promptType := range qc.PromptTypes {
			for variant := 0; variant < qc.PromptsPerType; variant++ {
				scenarioID := fitsynth.StableID("scenario", fmt.Sprintf("%s:%s:%d", ctx.userID, promptType, variant))
				queryID := fitsynth.StableID("query", scenarioID)

				promptText, constraints, err := scenarioPrompt(promptType, ctx, rng)
				if err != nil {
					return nil, err
				}

				records = append(records, Record{
					QueryID:       queryID,
					ScenarioID:    scenarioID,
					UserID:        ctx.userID,
					PromptType:    promptType,
					PromptVariant: variant,
					PromptText:    promptText,
					SliceTags: SliceTags{
						AgeBand:       band,
						Sex:           ctx.sex,
						GoalType:      goalType,
						ActivityLevel: ctx.activityLevel,
						ConditionFlag: conditionFlag,
					},
					ExpectedSafetyConstraints: constraints,
					ContextSummary: ContextSummary{
						WorkoutCount: ctx.workoutCount,
						AvgReps:      fitsynth.Round2(ctx.avgReps),
						AvgWeight:    fitsynth.Round2(ctx.avgWeight),
						AvgRIR:       fitsynth.Round2(ctx.avgRIR),
						Conditions:   ctx.conditions,
					},
					SourceRunIDs: sources,
					CreatedAt:    nowISO,
				})
			}
		}
	}

	runDir := fitsynth.RunDir(rawRoot, fitsynth.DatasetQueries, runID)
	jsonlPath := filepath.Join(runDir, "queries.jsonl")
	if err := fitsynth.WriteJSONL(jsonlPath, len(records), func(i int) any { return records[i] }); err != nil {
		return nil, err
	}
	if err := writeCSVMirror(filepath.Join(runDir, "queries.csv"), records); err != nil {
		return nil, err
	}

	latest := Latest{
		RunID:          runID,
		RunDir:         runDir,
		Seed:           seed,
		NumQueries:     len(records),
		PromptTypes:    qc.PromptTypes,
		PromptsPerType: qc.PromptsPerType,
		SourceRunIDs:   sources,
	}
	if err := fitsynth.PublishLatest(rawRoot, fitsynth.DatasetQueries, latest); err != nil {
		return nil, err
	}

	return &Result{RunID: runID, RunDir: runDir, NumQueries: len(records)}, nil
}

// ReadAll loads a queries.jsonl file in record order.
func ReadAll(path string) ([]Record, error) {
	var records []Record
	err := fitsynth.ReadJSONL(path, func(line []byte) error {
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// writeCSVMirror renders the records as a CSV with nested fields
// JSON-encoded, for spreadsheet inspection.
func writeCSVMirror(path string, records []Record) error {
	header := []string{
		"query_id", "scenario_id", "user_id", "prompt_type", "prompt_variant",
		"prompt_text", "slice_tags", "expected_safety_constraints",
		"context_summary", "source_run_ids", "created_at",
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		tags, err := json.Marshal(r.SliceTags)
		if err != nil {
			return err
		}
		constraints, err := json.Marshal(r.ExpectedSafetyConstraints)
		if err != nil {
			return err
		}
		summary, err := json.Marshal(r.ContextSummary)
		if err != nil {
			return err
		}
		sources, err := json.Marshal(r.SourceRunIDs)
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			r.QueryID, r.ScenarioID, r.UserID, r.PromptType,
			fmt.Sprintf("%d", r.PromptVariant), r.PromptText,
			string(tags), string(constraints), string(summary), string(sources),
			r.CreatedAt,
		})
	}
	return fitsynth.WriteCSV(path, header, rows)
}
