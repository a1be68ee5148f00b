// Package quality analyzes the latest distillation run and writes the
// phase6 JSON reports: structural validation, descriptive stats, anomaly
// alerts and bias slicing.
package quality

import (
	"errors"
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/distill"
)

const reportsPhase = "phase6"

// SplitSizes counts records per split file.
type SplitSizes struct {
	Train int `json:"train"`
	Val   int `json:"val"`
	Test  int `json:"test"`
}

// SplitFractions holds one ratio-like number per split.
type SplitFractions struct {
	Train float64 `json:"train"`
	Val   float64 `json:"val"`
	Test  float64 `json:"test"`
}

func latestDistillation(rawRoot string) (distill.Latest, error) {
	var latest distill.Latest
	if err := fitsynth.ReadLatest(rawRoot, fitsynth.DatasetDistillation, &latest); err != nil {
		return latest, fmt.Errorf("quality checks need a distillation run first: %w", err)
	}
	return latest, nil
}

// writeReport stores a report under <reportsRoot>/phase6/<runID>/ and
// returns the written path.
func writeReport(reportsRoot, runID, name string, report any) (string, error) {
	path := filepath.Join(reportsRoot, reportsPhase, runID, name)
	if err := fitsynth.WriteJSON(path, report); err != nil {
		return "", err
	}
	return path, nil
}

func splitCount(runDir, name string, strict bool) (int, error) {
	n := 0
	err := fitsynth.ReadJSONL(filepath.Join(runDir, name+".jsonl"), func([]byte) error {
		n++
		return nil
	})
	if err != nil {
		if !strict && errors.Is(err, fitsynth.ErrMissingArtifact) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// readSplitSizes counts rows per split file. Lenient callers treat a
// missing file as zero; strict callers propagate the error.
func readSplitSizes(runDir string, strict bool) (SplitSizes, error) {
	var sizes SplitSizes
	var err error
	if sizes.Train, err = splitCount(runDir, "train", strict); err != nil {
		return sizes, err
	}
	if sizes.Val, err = splitCount(runDir, "val", strict); err != nil {
		return sizes, err
	}
	if sizes.Test, err = splitCount(runDir, "test", strict); err != nil {
		return sizes, err
	}
	return sizes, nil
}

func responseLen(r distill.Record) int {
	return utf8.RuneCountInString(r.Response)
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
