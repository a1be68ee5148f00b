// Package fitsynth is the shared substrate of the dataset synthesis
// pipeline: configuration, sentinel errors, stable identifiers, seeded
// randomness, and the run-directory protocol the stages publish through.
//
// The pipeline itself lives in the stage packages (synth, query,
// teacher, distill, quality), each of which consumes the previous
// stage's latest.json pointer and publishes its own.
package fitsynth

import (
	"math"
	"time"
)

// TimestampLayout renders timestamps with microsecond precision, the
// resolution the artifact tables carry.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// DateLayout renders calendar dates in artifact tables.
const DateLayout = "2006-01-02"

// NowISO returns the current UTC time in TimestampLayout. Stages stamp
// reports and summaries with it.
func NowISO() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Round1 rounds to one decimal place, halves away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round2 rounds to two decimal places, halves away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
