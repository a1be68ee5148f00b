package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/catalog"
	"github.com/fitsense/fitsynth/quality"
	"github.com/fitsense/fitsynth/workbook"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the distillation dataset against the record schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(resolveRunID())
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compute dataset composition and response-length statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(resolveRunID())
	},
}

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Detect duplicates, degenerate responses and split imbalance",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnomalies(resolveRunID())
	},
}

var biasCmd = &cobra.Command{
	Use:   "bias",
	Short: "Compare response lengths across demographic slices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBias(resolveRunID())
	},
}

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Run all four quality analyzers under one run id",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQualityGate(resolveRunID())
	},
}

var (
	runsDataset string
	runsLimit   int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs recorded in the catalog",
	RunE:  runRuns,
}

var workbookOut string

var workbookCmd = &cobra.Command{
	Use:   "workbook",
	Short: "Render the latest distillation run to an .xlsx workbook",
	RunE:  runWorkbook,
}

func init() {
	runsCmd.Flags().StringVar(&runsDataset, "dataset", "", "Filter to one dataset")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum rows to list")
	workbookCmd.Flags().StringVar(&workbookOut, "out", "", "Output path (default: <reports-root>/distillation_workbook.xlsx)")
}

func runValidate(id string) error {
	report, path, err := quality.Validate(rawRoot, reportsRoot, id)
	if err != nil {
		return err
	}
	log.Info("validation report written",
		"report", path,
		"rows", report.NumRows,
		"errors", report.NumErrors,
		"valid", report.Valid)
	return nil
}

func runStats(id string) error {
	report, path, err := quality.Stats(rawRoot, reportsRoot, id)
	if err != nil {
		return err
	}
	log.Info("stats report written",
		"report", path,
		"rows", report.NumRows,
		"mean_response_len", report.ResponseLength.Mean)
	return nil
}

func runAnomalies(id string) error {
	report, path, err := quality.DetectAnomalies(cfg, rawRoot, reportsRoot, id)
	if err != nil {
		return err
	}
	log.Info("anomaly report written",
		"report", path,
		"severity", report.Severity,
		"alerts", strings.Join(report.Alerts, ","))
	return nil
}

func runBias(id string) error {
	report, path, err := quality.BiasSlicing(cfg, rawRoot, reportsRoot, id)
	if err != nil {
		return err
	}
	log.Info("bias report written",
		"report", path,
		"rows", report.NumRows,
		"bias_alert", report.BiasAlert,
		"flagged_slices", len(report.FlaggedSlices))
	return nil
}

// runQualityGate runs every analyzer even when one fails so a single
// broken report does not hide the others.
func runQualityGate(id string) error {
	return errors.Join(
		runValidate(id),
		runStats(id),
		runAnomalies(id),
		runBias(id),
	)
}

func runRuns(cmd *cobra.Command, args []string) error {
	if !cfg.Catalog.Enabled {
		return fmt.Errorf("%w: catalog.enabled is false; no run lineage is recorded", fitsynth.ErrInvalidConfig)
	}
	cat, err := catalog.Open(cfg.Catalog.DBPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	runs, err := cat.List(context.Background(), runsDataset, runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	fmt.Printf("%-22s  %-16s  %-19s  %s\n", "DATASET", "RUN_ID", "CREATED_AT", "RUN_DIR")
	for _, r := range runs {
		fmt.Printf("%-22s  %-16s  %-19s  %s\n", r.Dataset, r.RunID, r.CreatedAt, r.RunDir)
	}
	return nil
}

func runWorkbook(cmd *cobra.Command, args []string) error {
	out := workbookOut
	if out == "" {
		out = filepath.Join(reportsRoot, "distillation_workbook.xlsx")
	}
	result, err := workbook.Build(rawRoot, reportsRoot, out)
	if err != nil {
		return err
	}
	log.Info("workbook written",
		"path", result.Path,
		"records", result.NumRecords,
		"sheets", strings.Join(result.Sheets, ","))
	return nil
}
