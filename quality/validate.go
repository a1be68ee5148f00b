package quality

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fitsense/fitsynth"
)

// maxReportedErrors caps the error list embedded in the report;
// num_errors still counts everything.
const maxReportedErrors = 200

// Required keys, kept sorted so error messages list them sorted.
var (
	requiredTopLevel  = []string{"context", "instruction", "metadata", "record_id", "response"}
	requiredContext   = []string{"context_summary", "expected_safety_constraints", "prompt_type", "slice_tags"}
	requiredSliceTags = []string{"activity_level", "age_band", "condition_flag", "goal_type", "sex"}
)

// ValidationReport mirrors validation_report.json.
type ValidationReport struct {
	CreatedAt               string     `json:"created_at"`
	SourceDistillationRunID string     `json:"source_distillation_run_id"`
	NumRows                 int        `json:"num_rows"`
	SplitSizes              SplitSizes `json:"split_sizes"`
	NumErrors               int        `json:"num_errors"`
	Valid                   bool       `json:"valid"`
	Errors                  []string   `json:"errors"`
}

// Validate checks every record of the latest distillation run for the
// required structure and writes validation_report.json. Records are read
// as raw maps so missing fields are actually detectable.
func Validate(rawRoot, reportsRoot, runID string) (*ValidationReport, string, error) {
	latest, err := latestDistillation(rawRoot)
	if err != nil {
		return nil, "", err
	}
	rows, err := fitsynth.ReadJSONLMaps(filepath.Join(latest.RunDir, "all_records.jsonl"))
	if err != nil {
		return nil, "", err
	}

	problems := []string{}
	for idx, row := range rows {
		if missing := missingKeys(row, requiredTopLevel); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("row[%d] missing top-level keys: [%s]", idx, strings.Join(missing, ", ")))
			continue
		}
		ctx, ok := row["context"].(map[string]any)
		if !ok {
			problems = append(problems, fmt.Sprintf("row[%d] context is not an object", idx))
			continue
		}
		if missing := missingKeys(ctx, requiredContext); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("row[%d] missing context keys: [%s]", idx, strings.Join(missing, ", ")))
		}

		tagsAny, present := ctx["slice_tags"]
		if !present {
			tagsAny = map[string]any{}
		}
		if tags, ok := tagsAny.(map[string]any); !ok {
			problems = append(problems, fmt.Sprintf("row[%d] slice_tags is not an object", idx))
		} else if missing := missingKeys(tags, requiredSliceTags); len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("row[%d] missing slice tags: [%s]", idx, strings.Join(missing, ", ")))
		}

		if strings.TrimSpace(textField(row, "instruction")) == "" {
			problems = append(problems, fmt.Sprintf("row[%d] empty instruction", idx))
		}
		if strings.TrimSpace(textField(row, "response")) == "" {
			problems = append(problems, fmt.Sprintf("row[%d] empty response", idx))
		}
	}

	sizes, err := readSplitSizes(latest.RunDir, false)
	if err != nil {
		return nil, "", err
	}

	reported := problems
	if len(reported) > maxReportedErrors {
		reported = reported[:maxReportedErrors]
	}
	report := &ValidationReport{
		CreatedAt:               fitsynth.NowISO(),
		SourceDistillationRunID: latest.RunID,
		NumRows:                 len(rows),
		SplitSizes:              sizes,
		NumErrors:               len(problems),
		Valid:                   len(problems) == 0,
		Errors:                  reported,
	}
	path, err := writeReport(reportsRoot, runID, "validation_report.json", report)
	if err != nil {
		return nil, "", err
	}
	return report, path, nil
}

// missingKeys returns the required keys absent from m, preserving the
// order of required.
func missingKeys(m map[string]any, required []string) []string {
	var missing []string
	for _, key := range required {
		if _, ok := m[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// textField renders a field for emptiness checks. Null counts as empty;
// other non-string values keep their printed form.
func textField(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
