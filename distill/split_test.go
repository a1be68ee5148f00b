package distill

import (
	"fmt"
	"math"
	"testing"

	"github.com/fitsense/fitsynth"
)

func TestHashToUnitInterval_Golden(t *testing.T) {
	cases := []struct {
		value string
		want  float64
	}{
		{"a", 0.791374270522379},
		{"fitsense-record", 0.7434132410910763},
		{"97bb51c8-f4d7-5a09-bf60-7a4451bb9c93", 0.9278004244918954},
	}
	for _, tc := range cases {
		got := hashToUnitInterval(tc.value)
		if math.Abs(got-tc.want) > 1e-15 {
			t.Errorf("hashToUnitInterval(%q) = %v, want %v", tc.value, got, tc.want)
		}
		if got < 0 || got >= 1 {
			t.Errorf("hashToUnitInterval(%q) = %v, outside [0, 1)", tc.value, got)
		}
	}
}

func strataRecords(stratum string, n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			RecordID: fmt.Sprintf("%s-record-%d", stratum, i),
			Context:  Context{PromptType: stratum},
		}
	}
	return records
}

func countLabels(labels []string) map[string]int {
	counts := map[string]int{}
	for _, l := range labels {
		counts[l]++
	}
	return counts
}

func TestAssignSplits_Quotas(t *testing.T) {
	ratios := fitsynth.SplitRatios{TrainRatio: 0.8, ValRatio: 0.1, TestRatio: 0.1}
	cases := []struct {
		n                     int
		train, val, testCount int
	}{
		{10, 8, 1, 1},
		{5, 3, 1, 1},
		{4, 2, 1, 1},
		{3, 1, 1, 1},
		{2, 1, 0, 1},
		{1, 0, 0, 1},
	}
	for _, tc := range cases {
		labels := assignSplits(strataRecords("p", tc.n), ratios)
		counts := countLabels(labels)
		if counts[SplitTrain] != tc.train || counts[SplitVal] != tc.val || counts[SplitTest] != tc.testCount {
			t.Errorf("n=%d: counts = %v, want train=%d val=%d test=%d",
				tc.n, counts, tc.train, tc.val, tc.testCount)
		}
	}
}

func TestAssignSplits_PerStratum(t *testing.T) {
	ratios := fitsynth.SplitRatios{TrainRatio: 0.8, ValRatio: 0.1, TestRatio: 0.1}
	records := append(strataRecords("alpha", 10), strataRecords("beta", 10)...)
	labels := assignSplits(records, ratios)

	for _, stratum := range []string{"alpha", "beta"} {
		counts := map[string]int{}
		for i, r := range records {
			if r.Context.PromptType == stratum {
				counts[labels[i]]++
			}
		}
		if counts[SplitTrain] != 8 || counts[SplitVal] != 1 || counts[SplitTest] != 1 {
			t.Errorf("stratum %s: counts = %v, want 8/1/1", stratum, counts)
		}
	}
}

func TestAssignSplits_Deterministic(t *testing.T) {
	ratios := fitsynth.SplitRatios{TrainRatio: 0.8, ValRatio: 0.1, TestRatio: 0.1}
	records := append(strataRecords("alpha", 7), strataRecords("beta", 3)...)

	first := assignSplits(records, ratios)
	second := assignSplits(records, ratios)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("label %d changed between runs: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestStrataKey_Fallbacks(t *testing.T) {
	r := Record{}
	if got := strataKey(r); got != "unknown|unknown" {
		t.Errorf("strataKey(empty) = %q", got)
	}
	r.Context.PromptType = "plan_creation"
	r.Context.SliceTags.GoalType = "fat_loss"
	if got := strataKey(r); got != "plan_creation|fat_loss" {
		t.Errorf("strataKey = %q", got)
	}
}
