package quality

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/distill"
	"github.com/fitsense/fitsynth/query"
)

// SliceGroup is one demographic value with its record count and mean
// response length.
type SliceGroup struct {
	Group           string  `json:"group"`
	N               int     `json:"n"`
	MeanResponseLen float64 `json:"mean_response_len"`
}

// SliceReport summarizes one slicing dimension.
type SliceReport struct {
	GroupCol string       `json:"group_col"`
	Groups   []SliceGroup `json:"groups"`
	MaxGap   float64      `json:"max_gap"`
}

// FlaggedSlice names a dimension whose response-length gap exceeds the
// configured threshold.
type FlaggedSlice struct {
	GroupCol  string  `json:"group_col"`
	MaxGap    float64 `json:"max_gap"`
	Threshold float64 `json:"threshold"`
}

// BiasReport mirrors bias_report.json.
type BiasReport struct {
	CreatedAt                      string         `json:"created_at"`
	SourceDistillationRunID        string         `json:"source_distillation_run_id"`
	NumRows                        int            `json:"num_rows"`
	MinGroupSize                   int            `json:"min_group_size"`
	MaxMeanResponseLenGapThreshold float64        `json:"max_mean_response_len_gap_threshold"`
	SliceReports                   []SliceReport  `json:"slice_reports"`
	FlaggedSlices                  []FlaggedSlice `json:"flagged_slices"`
	BiasAlert                      bool           `json:"bias_alert"`
}

// sliceDims are analyzed in this order.
var sliceDims = []struct {
	name    string
	extract func(query.SliceTags) string
}{
	{"age_band", func(t query.SliceTags) string { return t.AgeBand }},
	{"sex", func(t query.SliceTags) string { return t.Sex }},
	{"goal_type", func(t query.SliceTags) string { return t.GoalType }},
	{"activity_level", func(t query.SliceTags) string { return t.ActivityLevel }},
	{"condition_flag", func(t query.SliceTags) string { return t.ConditionFlag }},
}

// BiasSlicing compares mean response lengths across demographic slices
// of the latest distillation run and writes bias_report.json.
func BiasSlicing(cfg fitsynth.Config, rawRoot, reportsRoot, runID string) (*BiasReport, string, error) {
	bc := cfg.Phase6.BiasSlicing

	latest, err := latestDistillation(rawRoot)
	if err != nil {
		return nil, "", err
	}
	records, err := distill.ReadAll(filepath.Join(latest.RunDir, "all_records.jsonl"))
	if err != nil {
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", fmt.Errorf("%w: no distillation rows found", fitsynth.ErrEmptyDataset)
	}

	sliceReports := make([]SliceReport, 0, len(sliceDims))
	for _, dim := range sliceDims {
		sliceReports = append(sliceReports, summarizeSlice(records, dim.name, dim.extract, bc.MinGroupSize))
	}

	flagged := []FlaggedSlice{}
	for _, r := range sliceReports {
		if r.MaxGap > bc.MaxMeanResponseLengthGap {
			flagged = append(flagged, FlaggedSlice{
				GroupCol:  r.GroupCol,
				MaxGap:    r.MaxGap,
				Threshold: bc.MaxMeanResponseLengthGap,
			})
		}
	}

	report := &BiasReport{
		CreatedAt:                      fitsynth.NowISO(),
		SourceDistillationRunID:        latest.RunID,
		NumRows:                        len(records),
		MinGroupSize:                   bc.MinGroupSize,
		MaxMeanResponseLenGapThreshold: bc.MaxMeanResponseLengthGap,
		SliceReports:                   sliceReports,
		FlaggedSlices:                  flagged,
		BiasAlert:                      len(flagged) > 0,
	}
	path, err := writeReport(reportsRoot, runID, "bias_report.json", report)
	if err != nil {
		return nil, "", err
	}
	return report, path, nil
}

// summarizeSlice groups records by one tag, drops groups below the
// minimum size and reports the spread of mean response lengths.
func summarizeSlice(records []distill.Record, name string, extract func(query.SliceTags) string, minGroupSize int) SliceReport {
	type agg struct {
		n   int
		sum int
	}
	byGroup := map[string]*agg{}
	for _, r := range records {
		key := orUnknown(extract(r.Context.SliceTags))
		a := byGroup[key]
		if a == nil {
			a = &agg{}
			byGroup[key] = a
		}
		a.n++
		a.sum += responseLen(r)
	}

	keys := make([]string, 0, len(byGroup))
	for key, a := range byGroup {
		if a.n >= minGroupSize {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	groups := make([]SliceGroup, 0, len(keys))
	minMean, maxMean := 0.0, 0.0
	for i, key := range keys {
		a := byGroup[key]
		mean := float64(a.sum) / float64(a.n)
		groups = append(groups, SliceGroup{Group: key, N: a.n, MeanResponseLen: mean})
		if i == 0 || mean < minMean {
			minMean = mean
		}
		if i == 0 || mean > maxMean {
			maxMean = mean
		}
	}
	if len(groups) == 0 {
		return SliceReport{GroupCol: name, Groups: groups, MaxGap: 0}
	}
	return SliceReport{GroupCol: name, Groups: groups, MaxGap: maxMean - minMean}
}
