package quality

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/distill"
)

func cleanRecords(n int) []distill.Record {
	records := make([]distill.Record, n)
	for i := range records {
		records[i] = fixtureRecord(i, "plan_creation", "fat_loss", response(80))
	}
	return records
}

func defaultSummary() *distill.Summary {
	return &distill.Summary{
		RunID: "d1",
		Split: fitsynth.SplitRatios{TrainRatio: 0.8, ValRatio: 0.1, TestRatio: 0.1},
	}
}

func TestDetectAnomalies_CleanRun(t *testing.T) {
	root := t.TempDir()
	all := cleanRecords(10)
	writeFixtureRun(t, root, all, all[:8], all[8:9], all[9:], defaultSummary())

	report, _, err := DetectAnomalies(fitsynth.DefaultConfig(), root, t.TempDir(), "r1")
	if err != nil {
		t.Fatalf("DetectAnomalies error: %v", err)
	}
	if report.Counts != (AnomalyCounts{NumRows: 10}) {
		t.Errorf("counts = %+v, want only num_rows set", report.Counts)
	}
	if report.Anomalies != (AnomalyFlags{}) {
		t.Errorf("anomalies = %+v, want none", report.Anomalies)
	}
	if report.Severity != SeverityNone {
		t.Errorf("severity = %q, want %q", report.Severity, SeverityNone)
	}
	if len(report.Alerts) != 0 {
		t.Errorf("alerts = %v, want empty", report.Alerts)
	}
	if math.Abs(report.Split.ObservedRatios.Train-0.8) > 1e-12 {
		t.Errorf("observed train ratio = %v", report.Split.ObservedRatios.Train)
	}
	if report.Split.Deviation != (SplitFractions{}) {
		t.Errorf("deviation = %+v, want zeros", report.Split.Deviation)
	}
}

func TestDetectAnomalies_FlagsAndSeverity(t *testing.T) {
	root := t.TempDir()
	dup := fixtureRecord(2, "plan_creation", "fat_loss", response(80))
	dup.RecordID = "rec-0"
	all := []distill.Record{
		fixtureRecord(0, "plan_creation", "fat_loss", response(80)),
		fixtureRecord(1, "plan_creation", "fat_loss", response(80)),
		dup,
		fixtureRecord(3, "plan_creation", "fat_loss", ""),
		fixtureRecord(4, "plan_creation", "fat_loss", "tiny"),
		fixtureRecord(5, "plan_creation", "fat_loss", response(3001)),
	}
	writeFixtureRun(t, root, all, all, []distill.Record{}, []distill.Record{}, defaultSummary())

	report, _, err := DetectAnomalies(fitsynth.DefaultConfig(), root, t.TempDir(), "r1")
	if err != nil {
		t.Fatalf("DetectAnomalies error: %v", err)
	}
	want := AnomalyCounts{NumRows: 6, DuplicateRecords: 1, MissingResponses: 1, ShortResponses: 2, LongResponses: 1}
	if report.Counts != want {
		t.Errorf("counts = %+v, want %+v", report.Counts, want)
	}
	if report.Severity != SeverityCritical {
		t.Errorf("severity = %q, want %q", report.Severity, SeverityCritical)
	}
	wantAlerts := []string{"duplicate_records", "missing_responses", "short_responses", "long_responses"}
	if !reflect.DeepEqual(report.Alerts, wantAlerts) {
		t.Errorf("alerts = %v, want %v", report.Alerts, wantAlerts)
	}
	// 6/0/0 against 0.8/0.1/0.1 stays inside the default 0.25 tolerance.
	if report.Anomalies.SplitImbalance {
		t.Errorf("split imbalance flagged: %+v", report.Split)
	}
}

func TestDetectAnomalies_SplitImbalance(t *testing.T) {
	root := t.TempDir()
	all := cleanRecords(10)
	writeFixtureRun(t, root, all, all, []distill.Record{}, []distill.Record{}, defaultSummary())

	cfg := fitsynth.DefaultConfig()
	cfg.Phase6.AnomalyDetection.SplitRatioTolerance = 0.15

	report, _, err := DetectAnomalies(cfg, root, t.TempDir(), "r1")
	if err != nil {
		t.Fatalf("DetectAnomalies error: %v", err)
	}
	if !report.Anomalies.SplitImbalance {
		t.Fatalf("split imbalance not flagged: %+v", report.Split)
	}
	if report.Severity != SeverityWarning {
		t.Errorf("severity = %q, want %q", report.Severity, SeverityWarning)
	}
	if !reflect.DeepEqual(report.Alerts, []string{"split_imbalance"}) {
		t.Errorf("alerts = %v", report.Alerts)
	}
}

func TestDetectAnomalies_DefaultExpectedRatios(t *testing.T) {
	root := t.TempDir()
	all := cleanRecords(10)
	// No summary.json in the run directory.
	writeFixtureRun(t, root, all, all[:8], all[8:9], all[9:], nil)

	report, _, err := DetectAnomalies(fitsynth.DefaultConfig(), root, t.TempDir(), "r1")
	if err != nil {
		t.Fatalf("DetectAnomalies error: %v", err)
	}
	if report.Split.ExpectedRatios != (SplitFractions{Train: 0.8, Val: 0.1, Test: 0.1}) {
		t.Errorf("expected_ratios = %+v, want defaults", report.Split.ExpectedRatios)
	}
	if report.Anomalies.SplitImbalance {
		t.Errorf("split imbalance flagged: %+v", report.Split)
	}
}

func TestDetectAnomalies_EmptyDataset(t *testing.T) {
	root := t.TempDir()
	writeFixtureRun(t, root, []distill.Record{}, []distill.Record{}, []distill.Record{}, []distill.Record{}, nil)

	_, _, err := DetectAnomalies(fitsynth.DefaultConfig(), root, t.TempDir(), "r1")
	if !errors.Is(err, fitsynth.ErrEmptyDataset) {
		t.Errorf("expected ErrEmptyDataset, got: %v", err)
	}
}
