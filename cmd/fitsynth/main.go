// Command fitsynth drives the FitSense synthetic-data pipeline:
// entity synthesis, query synthesis, teacher invocation, distillation
// and the quality gate, stage by stage or end to end.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/catalog"
	"github.com/fitsense/fitsynth/logging"
)

var (
	// Global flags
	paramsPath  string
	rawRoot     string
	reportsRoot string
	runID       string

	cfg fitsynth.Config
	log *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fitsynth",
	Short: "FitSense synthetic-data and distillation pipeline",
	Long: `fitsynth runs the FitSense coaching pipeline:
synthetic profiles and workouts -> coaching queries -> teacher responses
-> distillation dataset -> quality reports.

Every stage writes a timestamped run directory and publishes a
latest.json pointer the next stage consumes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = fitsynth.LoadConfig(paramsPath)
		if err != nil {
			return err
		}
		if rawRoot == "" {
			rawRoot = cfg.Paths.RawDataDir
		}
		if reportsRoot == "" {
			reportsRoot = cfg.Paths.ReportsDir
		}
		log, err = logging.New(cfg.Logging.Level, cfg.Paths.LogsDir, cfg.Logging.FileName)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&paramsPath, "params", "params.yaml", "Path to params.yaml")
	rootCmd.PersistentFlags().StringVar(&rawRoot, "raw-root", "", "Raw data root (default: paths.raw_data_dir)")
	rootCmd.PersistentFlags().StringVar(&reportsRoot, "reports-root", "", "Reports root (default: paths.reports_dir)")
	rootCmd.PersistentFlags().StringVar(&runID, "run-id", "", "Run identifier (default: UTC timestamp)")

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(workoutsCmd)
	rootCmd.AddCommand(queriesCmd)
	rootCmd.AddCommand(teacherCmd)
	rootCmd.AddCommand(distillCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(anomaliesCmd)
	rootCmd.AddCommand(biasCmd)
	rootCmd.AddCommand(qualityCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(workbookCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveRunID honors --run-id and otherwise mints a fresh timestamp id.
func resolveRunID() string {
	if runID != "" {
		return runID
	}
	return fitsynth.NewRunID()
}

// recordRun indexes a published run in the catalog when enabled.
// Catalog problems are warnings; the pointer files stay authoritative.
func recordRun(dataset, id, dir string, meta map[string]any) {
	if !cfg.Catalog.Enabled {
		return
	}
	cat, err := catalog.Open(cfg.Catalog.DBPath)
	if err != nil {
		log.Warn("catalog unavailable", "db_path", cfg.Catalog.DBPath, "error", err)
		return
	}
	defer cat.Close()
	if err := cat.RecordRun(context.Background(), catalog.Run{
		Dataset: dataset,
		RunID:   id,
		RunDir:  dir,
		Meta:    meta,
	}); err != nil {
		log.Warn("catalog record failed", "dataset", dataset, "run_id", id, "error", err)
	}
}

func countsMeta(counts map[string]int) map[string]any {
	meta := make(map[string]any, len(counts))
	for k, v := range counts {
		meta[k] = v
	}
	return meta
}
