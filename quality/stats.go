package quality

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/distill"
)

// ResponseLength summarizes the response length distribution in runes.
type ResponseLength struct {
	Min  int     `json:"min"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
}

// StatsReport mirrors stats_report.json.
type StatsReport struct {
	CreatedAt               string         `json:"created_at"`
	SourceDistillationRunID string         `json:"source_distillation_run_id"`
	NumRows                 int            `json:"num_rows"`
	SplitSizes              SplitSizes     `json:"split_sizes"`
	PromptTypeCounts        map[string]int `json:"prompt_type_counts"`
	GoalTypeCounts          map[string]int `json:"goal_type_counts"`
	ActivityLevelCounts     map[string]int `json:"activity_level_counts"`
	ResponseLength          ResponseLength `json:"response_length"`
}

// Stats computes descriptive statistics over the latest distillation run
// and writes stats_report.json.
func Stats(rawRoot, reportsRoot, runID string) (*StatsReport, string, error) {
	latest, err := latestDistillation(rawRoot)
	if err != nil {
		return nil, "", err
	}
	records, err := distill.ReadAll(filepath.Join(latest.RunDir, "all_records.jsonl"))
	if err != nil {
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", fmt.Errorf("%w: distillation dataset is empty", fitsynth.ErrEmptyDataset)
	}

	promptCounts := map[string]int{}
	goalCounts := map[string]int{}
	activityCounts := map[string]int{}
	lengths := make([]int, 0, len(records))
	sum := 0
	for _, r := range records {
		promptCounts[orUnknown(r.Context.PromptType)]++
		goalCounts[orUnknown(r.Context.SliceTags.GoalType)]++
		activityCounts[orUnknown(r.Context.SliceTags.ActivityLevel)]++
		n := responseLen(r)
		lengths = append(lengths, n)
		sum += n
	}
	sort.Ints(lengths)

	sizes, err := readSplitSizes(latest.RunDir, true)
	if err != nil {
		return nil, "", err
	}

	report := &StatsReport{
		CreatedAt:               fitsynth.NowISO(),
		SourceDistillationRunID: latest.RunID,
		NumRows:                 len(records),
		SplitSizes:              sizes,
		PromptTypeCounts:        promptCounts,
		GoalTypeCounts:          goalCounts,
		ActivityLevelCounts:     activityCounts,
		ResponseLength: ResponseLength{
			Min:  lengths[0],
			P50:  quantile(lengths, 0.5),
			P95:  quantile(lengths, 0.95),
			Max:  lengths[len(lengths)-1],
			Mean: float64(sum) / float64(len(lengths)),
		},
	}
	path, err := writeReport(reportsRoot, runID, "stats_report.json", report)
	if err != nil {
		return nil, "", err
	}
	return report, path, nil
}

// quantile returns the linearly interpolated q-quantile of ascending
// sorted values.
func quantile(sorted []int, q float64) float64 {
	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	if lo+1 >= len(sorted) {
		return float64(sorted[len(sorted)-1])
	}
	frac := h - float64(lo)
	return float64(sorted[lo]) + frac*(float64(sorted[lo+1])-float64(sorted[lo]))
}
