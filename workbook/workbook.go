// Package workbook renders the latest distillation run to an .xlsx
// file for manual inspection.
package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/distill"
	"github.com/fitsense/fitsynth/quality"
)

const (
	sheetSummary = "Summary"
	sheetRecords = "Records"
	sheetSlices  = "Slices"
)

// Result describes a written workbook.
type Result struct {
	Path       string
	NumRecords int
	Sheets     []string
}

// Build writes a workbook with a summary sheet and a per-record sheet
// for the latest distillation run. When the newest quality-gate report
// directory carries a bias report, its slice groups get a third sheet.
func Build(rawRoot, reportsRoot, outPath string) (*Result, error) {
	var latest distill.Latest
	if err := fitsynth.ReadLatest(rawRoot, fitsynth.DatasetDistillation, &latest); err != nil {
		return nil, fmt.Errorf("workbook needs a distillation run first: %w", err)
	}
	var summary distill.Summary
	if err := fitsynth.ReadJSONInto(filepath.Join(latest.RunDir, "summary.json"), &summary); err != nil {
		return nil, err
	}
	records, err := distill.ReadAll(filepath.Join(latest.RunDir, "all_records.jsonl"))
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, fmt.Errorf("naming summary sheet: %w", err)
	}
	if err := writeSummarySheet(f, summary); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetRecords); err != nil {
		return nil, fmt.Errorf("adding records sheet: %w", err)
	}
	if err := writeRecordsSheet(f, records); err != nil {
		return nil, err
	}
	sheets := []string{sheetSummary, sheetRecords}

	if bias, ok := loadBiasReport(reportsRoot); ok {
		if _, err := f.NewSheet(sheetSlices); err != nil {
			return nil, fmt.Errorf("adding slices sheet: %w", err)
		}
		if err := writeSlicesSheet(f, bias); err != nil {
			return nil, err
		}
		sheets = append(sheets, sheetSlices)
	}

	if dir := filepath.Dir(outPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating workbook directory: %w", err)
		}
	}
	if err := f.SaveAs(outPath); err != nil {
		return nil, fmt.Errorf("saving workbook %s: %w", outPath, err)
	}

	return &Result{Path: outPath, NumRecords: len(records), Sheets: sheets}, nil
}

func writeSummarySheet(f *excelize.File, s distill.Summary) error {
	rows := [][]any{
		{"run_id", s.RunID},
		{"created_at", s.CreatedAt},
		{"source_teacher_run_id", s.SourceTeacherRunID},
		{"source_query_run_id", s.SourceQueryRunID},
		{"num_all", s.NumAll},
		{"num_train", s.NumTrain},
		{"num_val", s.NumVal},
		{"num_test", s.NumTest},
		{"train_ratio", s.Split.TrainRatio},
		{"val_ratio", s.Split.ValRatio},
		{"test_ratio", s.Split.TestRatio},
		{"min_response_chars", s.Filters.MinResponseChars},
		{"require_post_validation", s.Filters.RequirePostValidation},
		{"reject_on_safety_flags", s.Filters.RejectOnSafetyFlags},
	}
	for i, row := range rows {
		if err := setRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheetSummary, "A", "A", 26)
}

func writeRecordsSheet(f *excelize.File, records []distill.Record) error {
	header := []any{
		"record_id", "prompt_type", "goal_type", "age_band", "sex",
		"activity_level", "condition_flag", "response_chars",
	}
	if err := setRow(f, sheetRecords, 1, header); err != nil {
		return err
	}
	for i, r := range records {
		tags := r.Context.SliceTags
		row := []any{
			r.RecordID, r.Context.PromptType, tags.GoalType, tags.AgeBand,
			tags.Sex, tags.ActivityLevel, tags.ConditionFlag,
			utf8.RuneCountInString(r.Response),
		}
		if err := setRow(f, sheetRecords, i+2, row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheetRecords, "A", "A", 40)
}

func writeSlicesSheet(f *excelize.File, bias *quality.BiasReport) error {
	header := []any{"group_col", "group", "n", "mean_response_len", "max_gap", "flagged"}
	if err := setRow(f, sheetSlices, 1, header); err != nil {
		return err
	}

	flagged := map[string]bool{}
	for _, fs := range bias.FlaggedSlices {
		flagged[fs.GroupCol] = true
	}

	row := 2
	for _, slice := range bias.SliceReports {
		for _, g := range slice.Groups {
			values := []any{slice.GroupCol, g.Group, g.N, g.MeanResponseLen, slice.MaxGap, flagged[slice.GroupCol]}
			if err := setRow(f, sheetSlices, row, values); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

// loadBiasReport looks for bias_report.json under the newest quality
// report directory. Absent reports just skip the slices sheet.
func loadBiasReport(reportsRoot string) (*quality.BiasReport, bool) {
	entries, err := os.ReadDir(filepath.Join(reportsRoot, "phase6"))
	if err != nil {
		return nil, false
	}
	newest := ""
	for _, e := range entries {
		if e.IsDir() && e.Name() > newest {
			newest = e.Name()
		}
	}
	if newest == "" {
		return nil, false
	}
	var report quality.BiasReport
	if err := fitsynth.ReadJSONInto(filepath.Join(reportsRoot, "phase6", newest, "bias_report.json"), &report); err != nil {
		return nil, false
	}
	return &report, true
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
