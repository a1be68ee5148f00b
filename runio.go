package fitsynth

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Dataset names under the raw-data root. Each holds timestamped run
// directories plus a latest.json pointer.
const (
	DatasetProfiles     = "synthetic_profiles"
	DatasetWorkouts     = "synthetic_workouts"
	DatasetQueries      = "synthetic_queries"
	DatasetTeacher      = "teacher_outputs"
	DatasetDistillation = "distillation_dataset"
)

// NewRunID returns a UTC timestamp run identifier, e.g. 20260217T093000Z.
func NewRunID() string {
	return time.Now().UTC().Format("20060102T150405Z")
}

// RunDir is the directory a run writes its artifacts into.
func RunDir(root, dataset, runID string) string {
	return filepath.Join(root, dataset, runID)
}

// latestPath is the pointer file consumed by downstream stages.
func latestPath(root, dataset string) string {
	return filepath.Join(root, dataset, "latest.json")
}

// PublishLatest atomically replaces the dataset's latest.json with the
// given payload. Downstream readers never observe a partial pointer.
func PublishLatest(root, dataset string, payload any) error {
	dir := filepath.Join(root, dataset)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating dataset dir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding latest pointer for %s: %w", dataset, err)
	}
	tmp, err := os.CreateTemp(dir, "latest-*.json")
	if err != nil {
		return fmt.Errorf("staging latest pointer for %s: %w", dataset, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing latest pointer for %s: %w", dataset, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing latest pointer for %s: %w", dataset, err)
	}
	if err := os.Rename(tmpName, latestPath(root, dataset)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing latest pointer for %s: %w", dataset, err)
	}
	return nil
}

// ReadLatest decodes the dataset's latest.json into the given pointer.
// A missing pointer means the upstream stage has not run.
func ReadLatest(root, dataset string, into any) error {
	path := latestPath(root, dataset)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s run not found, expected pointer at %s", ErrMissingPointer, dataset, path)
		}
		return fmt.Errorf("reading latest pointer %s: %w", path, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decoding latest pointer %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadJSONInto decodes a JSON file into the given pointer.
func ReadJSONInto(path string, into any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingArtifact, path)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// WriteJSONL writes n records as compact JSON lines. The at callback
// returns the value for each line in order.
func WriteJSONL(path string, n int, at func(i int) any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := 0; i < n; i++ {
		if err := enc.Encode(at(i)); err != nil {
			f.Close()
			return fmt.Errorf("encoding line %d of %s: %w", i, path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Close()
}

// ReadJSONL streams a JSON-lines file, calling fn with each raw line.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingArtifact, path)
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		if err := fn(raw); err != nil {
			return fmt.Errorf("line %d of %s: %w", line, path, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	return nil
}

// ReadJSONLMaps loads a JSON-lines file into generic row maps. The
// validation analyzer uses this so missing fields stay detectable.
func ReadJSONLMaps(path string) ([]map[string]any, error) {
	var rows []map[string]any
	err := ReadJSONL(path, func(line []byte) error {
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			return err
		}
		rows = append(rows, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// WriteCSV writes a header row plus data rows, creating parent
// directories. Every cell is already rendered as a string.
func WriteCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("writing header of %s: %w", path, err)
	}
	for i, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("writing row %d of %s: %w", i, path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Close()
}

// CSVTable is a CSV file loaded whole, with column access by name.
type CSVTable struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ReadCSV loads a CSV file produced by WriteCSV.
func ReadCSV(path string) (*CSVTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s has no header", ErrMissingArtifact, path)
	}
	t := &CSVTable{Header: all[0], Rows: all[1:], index: make(map[string]int, len(all[0]))}
	for i, col := range t.Header {
		t.index[col] = i
	}
	return t, nil
}

// Value returns the named column of a row, or "" when absent.
func (t *CSVTable) Value(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
