// Package distill joins validated teacher responses back to their source
// queries and emits instruction-tuning records with a deterministic
// stratified train/val/test split.
package distill

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"unicode/utf8"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/query"
	"github.com/fitsense/fitsynth/teacher"
)

// Context carries the query-side fields a tuning example keeps.
type Context struct {
	PromptType                string               `json:"prompt_type"`
	SliceTags                 query.SliceTags      `json:"slice_tags"`
	ExpectedSafetyConstraints []string             `json:"expected_safety_constraints"`
	ContextSummary            query.ContextSummary `json:"context_summary"`
}

// Metadata carries the teacher-side provenance of a tuning example.
type Metadata struct {
	Provider         string `json:"provider"`
	ModelName        string `json:"model_name"`
	AttemptCount     int    `json:"attempt_count"`
	LatencyMS        int64  `json:"latency_ms"`
	SourceQueryRunID string `json:"source_query_run_id"`
	CreatedAt        string `json:"created_at"`
}

// Record is one instruction-tuning example.
type Record struct {
	RecordID    string   `json:"record_id"`
	Instruction string   `json:"instruction"`
	Context     Context  `json:"context"`
	Response    string   `json:"response"`
	Metadata    Metadata `json:"metadata"`
}

// FilterSettings echoes the applied filters into summary.json.
type FilterSettings struct {
	MinResponseChars      int  `json:"min_response_chars"`
	RequirePostValidation bool `json:"require_post_validation"`
	RejectOnSafetyFlags   bool `json:"reject_on_safety_flags"`
}

// Summary mirrors the run's summary.json.
type Summary struct {
	RunID              string               `json:"run_id"`
	RunDir             string               `json:"run_dir"`
	SourceTeacherRunID string               `json:"source_teacher_run_id"`
	SourceQueryRunID   string               `json:"source_query_run_id"`
	NumAll             int                  `json:"num_all"`
	NumTrain           int                  `json:"num_train"`
	NumVal             int                  `json:"num_val"`
	NumTest            int                  `json:"num_test"`
	Filters            FilterSettings       `json:"filters"`
	Split              fitsynth.SplitRatios `json:"split"`
	CreatedAt          string               `json:"created_at"`
}

// Latest is the pointer payload the distillation stage publishes.
type Latest struct {
	RunID              string `json:"run_id"`
	RunDir             string `json:"run_dir"`
	SourceTeacherRunID string `json:"source_teacher_run_id"`
	SourceQueryRunID   string `json:"source_query_run_id"`
	NumAll             int    `json:"num_all"`
}

// Result describes a completed distillation run.
type Result struct {
	RunID    string
	RunDir   string
	NumAll   int
	NumTrain int
	NumVal   int
	NumTest  int
}

// Build filters the latest teacher run, joins survivors to their source
// queries and writes all_records.jsonl plus per-split files.
func Build(cfg fitsynth.Config, rawRoot, runID string) (*Result, error) {
	dc := cfg.Phase5.Distillation
	if math.Abs(dc.Split.TrainRatio+dc.Split.ValRatio+dc.Split.TestRatio-1.0) > 1e-9 {
		return nil, fmt.Errorf("%w: phase5.distillation.split ratios must sum to 1.0", fitsynth.ErrInvalidConfig)
	}

	var teacherLatest teacher.Latest
	if err := fitsynth.ReadLatest(rawRoot, fitsynth.DatasetTeacher, &teacherLatest); err != nil {
		return nil, fmt.Errorf("distillation needs a teacher run first: %w", err)
	}
	if teacherLatest.SourceQueryRunID == "" {
		return nil, fmt.Errorf("%w: teacher_outputs latest.json missing source_query_run_id", fitsynth.ErrMissingArtifact)
	}

	responses, err := teacher.ReadAll(filepath.Join(teacherLatest.RunDir, "responses.jsonl"))
	if err != nil {
		return nil, err
	}
	queryPath := filepath.Join(fitsynth.RunDir(rawRoot, fitsynth.DatasetQueries, teacherLatest.SourceQueryRunID), "queries.jsonl")
	queries, err := query.ReadAll(queryPath)
	if err != nil {
		return nil, fmt.Errorf("query run referenced by teacher outputs: %w", err)
	}
	queryIndex := make(map[string]query.Record, len(queries))
	for _, q := range queries {
		queryIndex[q.QueryID] = q
	}

	nowISO := fitsynth.NowISO()
	var records []Record
	for _, t := range filterResponses(responses, dc) {
		q, ok := queryIndex[t.QueryID]
		if !ok || q.ScenarioID != t.ScenarioID || q.UserID != t.UserID || q.PromptType != t.PromptType {
			continue
		}
		records = append(records, Record{
			RecordID:    fitsynth.StableID("distill_record", t.QueryID),
			Instruction: t.PromptText,
			Context: Context{
				PromptType:                q.PromptType,
				SliceTags:                 q.SliceTags,
				ExpectedSafetyConstraints: q.ExpectedSafetyConstraints,
				ContextSummary:            q.ContextSummary,
			},
			Response: t.ResponseText,
			Metadata: Metadata{
				Provider:         t.Provider,
				ModelName:        t.ModelName,
				AttemptCount:     t.AttemptCount,
				LatencyMS:        t.LatencyMS,
				SourceQueryRunID: teacherLatest.SourceQueryRunID,
				CreatedAt:        nowISO,
			},
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records remain after filtering and join; check teacher outputs and filter settings", fitsynth.ErrEmptyDataset)
	}

	labels := assignSplits(records, dc.Split)
	var train, val, test []Record
	for i, r := range records {
		switch labels[i] {
		case SplitTrain:
			train = append(train, r)
		case SplitVal:
			val = append(val, r)
		default:
			test = append(test, r)
		}
	}

	runDir := fitsynth.RunDir(rawRoot, fitsynth.DatasetDistillation, runID)
	files := []struct {
		name string
		rows []Record
	}{
		{"all_records.jsonl", records},
		{"train.jsonl", train},
		{"val.jsonl", val},
		{"test.jsonl", test},
	}
	for _, f := range files {
		rows := f.rows
		if err := fitsynth.WriteJSONL(filepath.Join(runDir, f.name), len(rows), func(i int) any { return rows[i] }); err != nil {
			return nil, err
		}
	}

	summary := Summary{
		RunID:              runID,
		RunDir:             runDir,
		SourceTeacherRunID: teacherLatest.RunID,
		SourceQueryRunID:   teacherLatest.SourceQueryRunID,
		NumAll:             len(records),
		NumTrain:           len(train),
		NumVal:             len(val),
		NumTest:            len(test),
		Filters: FilterSettings{
			MinResponseChars:      dc.MinResponseChars,
			RequirePostValidation: dc.RequirePostValidation,
			RejectOnSafetyFlags:   dc.RejectOnSafetyFlags,
		},
		Split:     dc.Split,
		CreatedAt: fitsynth.NowISO(),
	}
	if err := fitsynth.WriteJSON(filepath.Join(runDir, "summary.json"), summary); err != nil {
		return nil, err
	}

	latest := Latest{
		RunID:              runID,
		RunDir:             runDir,
		SourceTeacherRunID: teacherLatest.RunID,
		SourceQueryRunID:   teacherLatest.SourceQueryRunID,
		NumAll:             len(records),
	}
	if err := fitsynth.PublishLatest(rawRoot, fitsynth.DatasetDistillation, latest); err != nil {
		return nil, err
	}

	return &Result{
		RunID:    runID,
		RunDir:   runDir,
		NumAll:   len(records),
		NumTrain: len(train),
		NumVal:   len(val),
		NumTest:  len(test),
	}, nil
}

// filterResponses keeps successful responses that clear the length,
// post-validation and safety gates.
func filterResponses(responses []teacher.Record, dc fitsynth.DistillationConfig) []teacher.Record {
	kept := make([]teacher.Record, 0, len(responses))
	for _, r := range responses {
		if r.Status != teacher.StatusSuccess {
			continue
		}
		if utf8.RuneCountInString(r.ResponseText) < dc.MinResponseChars {
			continue
		}
		if dc.RequirePostValidation && !r.PostValidation.IsValid {
			continue
		}
		if dc.RejectOnSafetyFlags && len(r.SafetyFlags) != 0 {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// ReadAll loads a records file (all_records.jsonl or one split) in order.
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
