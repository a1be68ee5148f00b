package quality

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/distill"
)

// AnomalyCounts carries the raw counts behind each flag.
type AnomalyCounts struct {
	NumRows          int `json:"num_rows"`
	DuplicateRecords int `json:"duplicate_records"`
	MissingResponses int `json:"missing_responses"`
	ShortResponses   int `json:"short_responses"`
	LongResponses    int `json:"long_responses"`
}

// SplitCheck compares observed split ratios to the ones the builder
// recorded in its summary.
type SplitCheck struct {
	Sizes          SplitSizes     `json:"sizes"`
	ObservedRatios SplitFractions `json:"observed_ratios"`
	ExpectedRatios SplitFractions `json:"expected_ratios"`
	Deviation      SplitFractions `json:"deviation"`
	Tolerance      float64        `json:"tolerance"`
}

// AnomalyFlags is one boolean per check; the alerts list preserves this
// declaration order.
type AnomalyFlags struct {
	DuplicateRecords bool `json:"duplicate_records"`
	MissingResponses bool `json:"missing_responses"`
	ShortResponses   bool `json:"short_responses"`
	LongResponses    bool `json:"long_responses"`
	SplitImbalance   bool `json:"split_imbalance"`
}

// AnomalyReport mirrors anomaly_report.json.
type AnomalyReport struct {
	CreatedAt               string        `json:"created_at"`
	SourceDistillationRunID string        `json:"source_distillation_run_id"`
	Counts                  AnomalyCounts `json:"counts"`
	Split                   SplitCheck    `json:"split"`
	Anomalies               AnomalyFlags  `json:"anomalies"`
	Severity                string        `json:"severity"`
	Alerts                  []string      `json:"alerts"`
}

// Severity levels. Duplicates and missing responses are critical because
// they corrupt training; everything else warns.
const (
	SeverityNone     = "none"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// DetectAnomalies scans the latest distillation run for duplicate IDs,
// empty or out-of-bounds responses and split imbalance, then writes
// anomaly_report.json.
func DetectAnomalies(cfg fitsynth.Config, rawRoot, reportsRoot, runID string) (*AnomalyReport, string, error) {
	ac := cfg.Phase6.AnomalyDetection

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

	seen := make(map[string]bool, len(records))
	duplicates := 0
	missing := 0
	shortCount := 0
	longCount := 0
	for _, r := range records {
		if seen[r.RecordID] {
			duplicates++
		}
		seen[r.RecordID] = true
		if strings.TrimSpace(r.Response) == "" {
			missing++
		}
		n := responseLen(r)
		if n < ac.MinResponseChars {
			shortCount++
		}
		if n > ac.MaxResponseChars {
			longCount++
		}
	}

	sizes, err := readSplitSizes(latest.RunDir, true)
	if err != nil {
		return nil, "", err
	}
	total := sizes.Train + sizes.Val + sizes.Test
	if total < 1 {
		total = 1
	}
	observed := SplitFractions{
		Train: float64(sizes.Train) / float64(total),
		Val:   float64(sizes.Val) / float64(total),
		Test:  float64(sizes.Test) / float64(total),
	}
	expected, err := expectedRatios(latest.RunDir)
	if err != nil {
		return nil, "", err
	}
	deviation := SplitFractions{
		Train: math.Abs(observed.Train - expected.Train),
		Val:   math.Abs(observed.Val - expected.Val),
		Test:  math.Abs(observed.Test - expected.Test),
	}

	tolerance := ac.SplitRatioTolerance
	flags := AnomalyFlags{
		DuplicateRecords: duplicates > ac.DuplicateRecordThreshold,
		MissingResponses: missing > ac.MissingResponseThreshold,
		ShortResponses:   shortCount > 0,
		LongResponses:    longCount > 0,
		SplitImbalance:   deviation.Train > tolerance || deviation.Val > tolerance || deviation.Test > tolerance,
	}

	severity := SeverityNone
	if flags.DuplicateRecords || flags.MissingResponses || flags.ShortResponses || flags.LongResponses || flags.SplitImbalance {
		severity = SeverityWarning
	}
	if flags.DuplicateRecords || flags.MissingResponses {
		severity = SeverityCritical
	}

	report := &AnomalyReport{
		CreatedAt:               fitsynth.NowISO(),
		SourceDistillationRunID: latest.RunID,
		Counts: AnomalyCounts{
			NumRows:          len(records),
			DuplicateRecords: duplicates,
			MissingResponses: missing,
			ShortResponses:   shortCount,
			LongResponses:    longCount,
		},
		Split: SplitCheck{
			Sizes:          sizes,
			ObservedRatios: observed,
			ExpectedRatios: expected,
			Deviation:      deviation,
			Tolerance:      tolerance,
		},
		Anomalies: flags,
		Severity:  severity,
		Alerts:    alertNames(flags),
	}
	path, err := writeReport(reportsRoot, runID, "anomaly_report.json", report)
	if err != nil {
		return nil, "", err
	}
	return report, path, nil
}

// expectedRatios reads the split ratios the builder recorded; a missing
// summary falls back to the default 0.8/0.1/0.1.
func expectedRatios(runDir string) (SplitFractions, error) {
	expected := SplitFractions{Train: 0.8, Val: 0.1, Test: 0.1}
	var summary struct {
		Split *fitsynth.SplitRatios `json:"split"`
	}
	err := fitsynth.ReadJSONInto(filepath.Join(runDir, "summary.json"), &summary)
	if err != nil {
		if errors.Is(err, fitsynth.ErrMissingArtifact) {
			return expected, nil
		}
		return expected, err
	}
	if summary.Split != nil {
		expected = SplitFractions{
			Train: summary.Split.TrainRatio,
			Val:   summary.Split.ValRatio,
			Test:  summary.Split.TestRatio,
		}
	}
	return expected, nil
}

func alertNames(flags AnomalyFlags) []string {
	alerts := []string{}
	if flags.DuplicateRecords {
		alerts = append(alerts, "duplicate_records")
	}
	if flags.MissingResponses {
		alerts = append(alerts, "missing_responses")
	}
	if flags.ShortResponses {
		alerts = append(alerts, "short_responses")
	}
	if flags.LongResponses {
		alerts = append(alerts, "long_responses")
	}
	if flags.SplitImbalance {
		alerts = append(alerts, "split_imbalance")
	}
	return alerts
}
