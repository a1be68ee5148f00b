package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/distill"
	"github.com/fitsense/fitsynth/query"
	"github.com/fitsense/fitsynth/synth"
	"github.com/fitsense/fitsynth/teacher"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Validate config plumbing and write the phase-1 sanity report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeBootstrap()
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Generate synthetic users, medical profiles and targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateProfiles(resolveRunID())
	},
}

var workoutsCmd = &cobra.Command{
	Use:   "workouts",
	Short: "Generate synthetic plans, workouts and daily logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateWorkouts(resolveRunID())
	},
}

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Synthesize coaching queries from the latest entity runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateQueries(resolveRunID())
	},
}

var teacherCmd = &cobra.Command{
	Use:   "teacher",
	Short: "Send the latest query run to the teacher model",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return invokeTeacher(ctx, resolveRunID())
	},
}

var distillCmd = &cobra.Command{
	Use:   "distill",
	Short: "Filter and join teacher outputs into the distillation dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		return buildDistillation(resolveRunID())
	},
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run every stage end to end under one run id",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		id := resolveRunID()
		if err := writeBootstrap(); err != nil {
			return err
		}
		if err := generateProfiles(id); err != nil {
			return err
		}
		if err := generateWorkouts(id); err != nil {
			return err
		}
		if err := generateQueries(id); err != nil {
			return err
		}
		if err := invokeTeacher(ctx, id); err != nil {
			return err
		}
		if err := buildDistillation(id); err != nil {
			return err
		}
		return runQualityGate(id)
	},
}

// bootstrapReport mirrors phase1_bootstrap.json.
type bootstrapReport struct {
	Project      string `json:"project"`
	Seed         int64  `json:"seed"`
	HashSeed     string `json:"hash_seed"`
	TimestampUTC string `json:"timestamp_utc"`
	Status       string `json:"status"`
	Phase        string `json:"phase"`
}

func writeBootstrap() error {
	path := filepath.Join(reportsRoot, "phase1_bootstrap.json")
	report := bootstrapReport{
		Project:      cfg.Project.Name,
		Seed:         cfg.Reproducibility.Seed,
		HashSeed:     cfg.Reproducibility.HashSeed,
		TimestampUTC: fitsynth.NowISO(),
		Status:       "ok",
		Phase:        "phase1_scaffold",
	}
	if err := fitsynth.WriteJSON(path, report); err != nil {
		return err
	}
	log.Info("bootstrap completed", "report", path, "seed", cfg.Reproducibility.Seed)
	return nil
}

func generateProfiles(id string) error {
	result, err := synth.GenerateProfiles(cfg, rawRoot, id)
	if err != nil {
		return err
	}
	log.Info("profiles generated",
		"run_id", result.RunID,
		"run_dir", result.RunDir,
		"users", result.Counts["users"])
	recordRun(fitsynth.DatasetProfiles, result.RunID, result.RunDir, countsMeta(result.Counts))
	return nil
}

func generateWorkouts(id string) error {
	result, err := synth.GenerateWorkouts(cfg, rawRoot, id)
	if err != nil {
		return err
	}
	log.Info("workouts generated",
		"run_id", result.RunID,
		"run_dir", result.RunDir,
		"workouts", result.Counts["workouts"],
		"workout_sets", result.Counts["workout_sets"])
	recordRun(fitsynth.DatasetWorkouts, result.RunID, result.RunDir, countsMeta(result.Counts))
	return nil
}

func generateQueries(id string) error {
	result, err := query.Generate(cfg, rawRoot, id)
	if err != nil {
		return err
	}
	log.Info("queries generated",
		"run_id", result.RunID,
		"run_dir", result.RunDir,
		"queries", result.NumQueries)
	recordRun(fitsynth.DatasetQueries, result.RunID, result.RunDir, map[string]any{
		"num_queries": result.NumQueries,
	})
	return nil
}

func invokeTeacher(ctx context.Context, id string) error {
	result, err := teacher.Run(ctx, cfg, rawRoot, id, log)
	if err != nil {
		return err
	}
	log.Info("teacher invocation completed",
		"run_id", result.RunID,
		"run_dir", result.RunDir,
		"requests", result.NumRequests,
		"success", result.SuccessCount,
		"failed", result.FailedCount)
	recordRun(fitsynth.DatasetTeacher, result.RunID, result.RunDir, map[string]any{
		"num_requests":  result.NumRequests,
		"success_count": result.SuccessCount,
		"failed_count":  result.FailedCount,
	})
	return nil
}

func buildDistillation(id string) error {
	result, err := distill.Build(cfg, rawRoot, id)
	if err != nil {
		return err
	}
	log.Info("distillation dataset built",
		"run_id", result.RunID,
		"run_dir", result.RunDir,
		"all", result.NumAll,
		"train", result.NumTrain,
		"val", result.NumVal,
		"test", result.NumTest)
	recordRun(fitsynth.DatasetDistillation, result.RunID, result.RunDir, map[string]any{
		"num_all":   result.NumAll,
		"num_train": result.NumTrain,
		"num_val":   result.NumVal,
		"num_test":  result.NumTest,
	})
	return nil
}
