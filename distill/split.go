package distill

import (
	"crypto/sha256"
	"math"
	"sort"

	"github.com/fitsense/fitsynth"
)

// Split labels assigned to distillation records.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// hashToUnitInterval maps a record ID to [0, 1) using the first 48 bits
// of its SHA-256 digest. Placement depends only on the ID, so a record
// never migrates between splits across runs.
func hashToUnitInterval(value string) float64 {
	sum := sha256.Sum256([]byte(value))
	v := uint64(0)
	for _, b := range sum[:6] {
		v = v<<8 | uint64(b)
	}
	return float64(v) / float64(uint64(1)<<48)
}

// strataKey buckets a record for stratification on prompt type and goal.
func strataKey(r Record) string {
	promptType := r.Context.PromptType
	if promptType == "" {
		promptType = "unknown"
	}
	goal := r.Context.SliceTags.GoalType
	if goal == "" {
		goal = "unknown"
	}
	return promptType + "|" + goal
}

// assignSplits labels every record train, val or test. Records are
// ordered inside each stratum by their hash position, quotas use floored
// ratios, and strata with at least three records are corrected so the
// minor splits stay non-empty. Strata with one or two records cannot
// feed all three splits; leftovers land in test.
func assignSplits(records []Record, ratios fitsynth.SplitRatios) []string {
	groups := make(map[string][]int)
	var keys []string
	for i, r := range records {
		key := strataKey(r)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}
	sort.Strings(keys)

	labels := make([]string, len(records))
	for _, key := range keys {
		idxs := groups[key]
		units := make(map[int]float64, len(idxs))
		for _, i := range idxs {
			units[i] = hashToUnitInterval(records[i].RecordID)
		}
		sort.SliceStable(idxs, func(a, b int) bool {
			return units[idxs[a]] < units[idxs[b]]
		})

		n := len(idxs)
		nTrain := int(math.Floor(float64(n) * ratios.TrainRatio))
		nVal := int(math.Floor(float64(n) * ratios.ValRatio))
		nTest := n - nTrain - nVal

		if n >= 3 && nVal == 0 {
			nVal = 1
			nTrain--
			if nTrain < 1 {
				nTrain = 1
			}
			nTest = n - nTrain - nVal
		}
		if n >= 3 && nTest == 0 {
			nTest = 1
			nTrain--
			if nTrain < 1 {
				nTrain = 1
			}
			nVal = n - nTrain - nTest
		}

		for pos, i := range idxs {
			switch {
			case pos < nTrain:
				labels[i] = SplitTrain
			case pos < nTrain+nVal:
				labels[i] = SplitVal
			default:
				labels[i] = SplitTest
			}
		}
	}
	return labels
}
