package teacher

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/logging"
	"github.com/fitsense/fitsynth/query"
)

// Record is one teacher invocation outcome. Failed queries keep their
// slot with a terminal failure record so every query is accounted for.
type Record struct {
	ResponseID       string         `json:"response_id"`
	QueryID          string         `json:"query_id"`
	ScenarioID       string         `json:"scenario_id"`
	UserID           string         `json:"user_id"`
	PromptType       string         `json:"prompt_type"`
	PromptText       string         `json:"prompt_text"`
	Provider         string         `json:"provider"`
	ModelName        string         `json:"model_name"`
	Status           string         `json:"status"`
	AttemptCount     int            `json:"attempt_count"`
	LatencyMS        int64          `json:"latency_ms"`
	RequestPayload   any            `json:"request_payload"`
	ResponseText     string         `json:"response_text"`
	RawResponse      any            `json:"raw_response"`
	Error            *string        `json:"error"`
	SafetyFlags      []string       `json:"safety_flags"`
	PostValidation   PostValidation `json:"post_validation"`
	SourceQueryRunID string         `json:"source_query_run_id"`
	CreatedAt        string         `json:"created_at"`
}

// Summary mirrors the run's summary.json.
type Summary struct {
	RunID            string `json:"run_id"`
	RunDir           string `json:"run_dir"`
	SourceQueryRunID string `json:"source_query_run_id"`
	Provider         string `json:"provider"`
	ModelName        string `json:"model_name"`
	NumRequests      int    `json:"num_requests"`
	SuccessCount     int    `json:"success_count"`
	FailedCount      int    `json:"failed_count"`
	CreatedAt        string `json:"created_at"`
}

// Latest is the pointer payload the teacher stage publishes.
type Latest struct {
	RunID            string `json:"run_id"`
	RunDir           string `json:"run_dir"`
	SourceQueryRunID string `json:"source_query_run_id"`
	NumRequests      int    `json:"num_requests"`
	Provider         string `json:"provider"`
	ModelName        string `json:"model_name"`
}

// Result describes a completed teacher run.
type Result struct {
	RunID        string
	RunDir       string
	NumRequests  int
	SuccessCount int
	FailedCount  int
}

// Run sends every query from the latest query run to the configured
// provider and writes responses.jsonl, a CSV mirror and summary.json.
// Individual query failures do not stop the batch; cancellation does.
func Run(ctx context.Context, cfg fitsynth.Config, rawRoot, runID string, log *logging.Logger) (*Result, error) {
	provider, err := NewProvider(cfg.Phase4.TeacherLLM)
	if err != nil {
		return nil, err
	}
	return runWithProvider(ctx, cfg, rawRoot, runID, provider, log)
}

func runWithProvider(ctx context.Context, cfg fitsynth.Config, rawRoot, runID string, provider Provider, log *logging.Logger) (*Result, error) {
	tc := cfg.Phase4.TeacherLLM

	var queriesLatest query.Latest
	if err := fitsynth.ReadLatest(rawRoot, fitsynth.DatasetQueries, &queriesLatest); err != nil {
		return nil, fmt.Errorf("teacher invocation needs a query run first: %w", err)
	}
	queries, err := query.ReadAll(filepath.Join(queriesLatest.RunDir, "queries.jsonl"))
	if err != nil {
		return nil, err
	}
	if tc.MaxQueries != nil {
		n := *tc.MaxQueries
		if n < 0 {
			n = 0
		}
		if n < len(queries) {
			queries = queries[:n]
		}
	}

	log.Info("invoking teacher", "provider", tc.Provider, "model", tc.ModelName, "num_queries", len(queries))

	records := make([]Record, 0, len(queries))
	successCount := 0
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome := invokeWithRetry(ctx, provider, q, tc, log)
		if outcome.status == StatusSuccess {
			successCount++
		}

		flags := []string{}
		if outcome.responseText != "" {
			flags = DetectSafetyFlags(outcome.responseText)
		}

		records = append(records, Record{
			ResponseID:       fitsynth.StableID("teacher_response", q.QueryID),
			QueryID:          q.QueryID,
			ScenarioID:       q.ScenarioID,
			UserID:           q.UserID,
			PromptType:       q.PromptType,
			PromptText:       q.PromptText,
			Provider:         tc.Provider,
			ModelName:        tc.ModelName,
			Status:           outcome.status,
			AttemptCount:     outcome.attemptCount,
			LatencyMS:        outcome.latencyMS,
			RequestPayload:   outcome.requestPayload,
			ResponseText:     outcome.responseText,
			RawResponse:      outcome.rawResponse,
			Error:            outcome.err,
			SafetyFlags:      flags,
			PostValidation:   PostValidate(outcome.responseText),
			SourceQueryRunID: queriesLatest.RunID,
			CreatedAt:        fitsynth.NowISO(),
		})
	}

	runDir := fitsynth.RunDir(rawRoot, fitsynth.DatasetTeacher, runID)
	if err := fitsynth.WriteJSONL(filepath.Join(runDir, "responses.jsonl"), len(records), func(i int) any { return records[i] }); err != nil {
		return nil, err
	}
	if err := writeCSVMirror(filepath.Join(runDir, "responses.csv"), records); err != nil {
		return nil, err
	}

	summary := Summary{
		RunID:            runID,
		RunDir:           runDir,
		SourceQueryRunID: queriesLatest.RunID,
		Provider:         tc.Provider,
		ModelName:        tc.ModelName,
		NumRequests:      len(records),
		SuccessCount:     successCount,
		FailedCount:      len(records) - successCount,
		CreatedAt:        fitsynth.NowISO(),
	}
	if err := fitsynth.WriteJSON(filepath.Join(runDir, "summary.json"), summary); err != nil {
		return nil, err
	}

	latest := Latest{
		RunID:            runID,
		RunDir:           runDir,
		SourceQueryRunID: queriesLatest.RunID,
		NumRequests:      len(records),
		Provider:         tc.Provider,
		ModelName:        tc.ModelName,
	}
	if err := fitsynth.PublishLatest(rawRoot, fitsynth.DatasetTeacher, latest); err != nil {
		return nil, err
	}

	return &Result{
		RunID:        runID,
		RunDir:       runDir,
		NumRequests:  len(records),
		SuccessCount: successCount,
		FailedCount:  len(records) - successCount,
	}, nil
}

type invokeOutcome struct {
	status         string
	attemptCount   int
	latencyMS      int64
	requestPayload any
	responseText   string
	rawResponse    any
	err            *string
}

// invokeWithRetry runs up to MaxRetries attempts with a linear backoff
// between them. After the final failure it returns a terminal outcome
// instead of an error so the batch keeps going.
func invokeWithRetry(ctx context.Context, provider Provider, q query.Record, tc fitsynth.TeacherConfig, log *logging.Logger) invokeOutcome {
	retries := tc.MaxRetries
	if retries < 1 {
		retries = 1
	}
	backoff := time.Duration(tc.RetryBackoffSeconds * float64(time.Second))

	lastErr := "unknown_error"
	for attempt := 1; attempt <= retries; attempt++ {
		start := time.Now()
		resp, err := provider.Invoke(ctx, q)
		if err == nil {
			return invokeOutcome{
				status:         StatusSuccess,
				attemptCount:   attempt,
				latencyMS:      time.Since(start).Milliseconds(),
				requestPayload: resp.RequestPayload,
				responseText:   resp.ResponseText,
				rawResponse:    resp.RawResponse,
			}
		}
		lastErr = err.Error()
		log.Warn("teacher attempt failed", "query_id", q.QueryID, "attempt", attempt, "max_retries", retries, "error", lastErr)

		if attempt < retries {
			select {
			case <-time.After(backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return invokeOutcome{status: StatusFailed, attemptCount: attempt, err: &lastErr}
			}
		}
	}
	return invokeOutcome{status: StatusFailed, attemptCount: retries, err: &lastErr}
}

// ReadAll loads a responses.jsonl file in record order.
func ReadAll(path string) ([]Record, error) {
	var records []Record
	err := fitsynth.ReadJSONL(path, func(line []byte) error {
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// writeCSVMirror renders the records as a CSV with nested fields
// JSON-encoded. Payloads absent on failed invocations render empty.
func writeCSVMirror(path string, records []Record) error {
	header := []string{
		"response_id", "query_id", "scenario_id", "user_id", "prompt_type",
		"prompt_text", "provider", "model_name", "status", "attempt_count",
		"latency_ms", "request_payload", "response_text", "raw_response",
		"error", "safety_flags", "post_validation", "source_query_run_id",
		"created_at",
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		payload, err := jsonCell(r.RequestPayload)
		if err != nil {
			return err
		}
		raw, err := jsonCell(r.RawResponse)
		if err != nil {
			return err
		}
		flags, err := json.Marshal(r.SafetyFlags)
		if err != nil {
			return err
		}
		post, err := json.Marshal(r.PostValidation)
		if err != nil {
			return err
		}
		errCell := ""
		if r.Error != nil {
			errCell = *r.Error
		}
		rows = append(rows, []string{
			r.ResponseID, r.QueryID, r.ScenarioID, r.UserID, r.PromptType,
			r.PromptText, r.Provider, r.ModelName, r.Status,
			strconv.Itoa(r.AttemptCount), strconv.FormatInt(r.LatencyMS, 10),
			payload, r.ResponseText, raw, errCell, string(flags), string(post),
			r.SourceQueryRunID, r.CreatedAt,
		})
	}
	return fitsynth.WriteCSV(path, header, rows)
}

func jsonCell(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
