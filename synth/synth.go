// Package synth generates the seeded synthetic entity tables the rest
// of the pipeline is built on: users with profiles, goals, conditions,
// medications and targets, plus workout plans, executed sessions and
// daily health logs. Each generator writes one run directory of CSV
// tables and publishes a latest.json pointer.
package synth

import (
	"path/filepath"
	"strconv"

	"github.com/fitsense/fitsynth"
)

// Latest is the pointer payload both entity generators publish.
type Latest struct {
	RunID       string         `json:"run_id"`
	RunDir      string         `json:"run_dir"`
	Seed        int64          `json:"seed"`
	AsOfDate    string         `json:"as_of_date"`
	TableCounts map[string]int `json:"table_counts"`
}

// Result describes a completed generator run.
type Result struct {
	RunID  string
	RunDir string
	Counts map[string]int
}

// table accumulates one CSV artifact.
type table struct {
	name   string
	header []string
	rows   [][]string
}

func newTable(name string, header ...string) *table {
	return &table{name: name, header: header}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func writeTables(runDir string, tables []*table) (map[string]int, error) {
	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		path := filepath.Join(runDir, t.name+".csv")
		if err := fitsynth.WriteCSV(path, t.header, t.rows); err != nil {
			return nil, err
		}
		counts[t.name] = len(t.rows)
	}
	return counts, nil
}

func fmtInt(v int) string {
	return strconv.Itoa(v)
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fmtBool(v bool) string {
	return strconv.FormatBool(v)
}
