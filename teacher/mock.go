package teacher

import (
	"context"
	"fmt"
	"strings"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/query"
)

// mockProvider answers deterministically from the query's slice tags and
// safety constraints. It keeps the full pipeline runnable offline and is
// the default backend.
type mockProvider struct {
	modelName string
}

func newMockProvider(cfg fitsynth.TeacherConfig) *mockProvider {
	name := cfg.ModelName
	if name == "" {
		name = "teacher-mock-v1"
	}
	return &mockProvider{modelName: name}
}

type mockRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
}

func (p *mockProvider) Invoke(_ context.Context, q query.Record) (*Response, error) {
	return &Response{
		ResponseText:   mockResponse(q),
		RequestPayload: mockRequest{Provider: "mock", Model: p.modelName, Prompt: q.PromptText},
		RawResponse:    map[string]bool{"mock": true},
	}, nil
}

func mockResponse(q query.Record) string {
	goal := q.SliceTags.GoalType
	if goal == "" {
		goal = "general_fitness"
	}
	activity := q.SliceTags.ActivityLevel
	if activity == "" {
		activity = "moderate"
	}
	switch q.PromptType {
	case "plan_creation":
		return fmt.Sprintf("Weekly Plan (goal: %s, activity: %s): 4 training days, 2 active recovery days, 1 rest day. "+
			"Main lifts at RIR 2-3, accessory work at RIR 1-2, and progressive overload of 2-5%% weekly. Safety: %s.",
			goal, activity, constraintsText(q.ExpectedSafetyConstraints))
	case "plan_modification":
		return "Plan Update: reduce total set volume by 10% for high-fatigue patterns, keep primary compound movement first, " +
			"and rotate one accessory exercise to reduce overuse risk. Maintain progression only when form is stable."
	case "safety_adjustment":
		return "Safety Adjustments: remove contraindicated high-impact or high-spinal-load movements, substitute with " +
			"supported variants, cap effort to RIR >= 2, and add longer rest intervals with pain-monitoring checkpoints."
	case "progress_adaptation":
		return "Adaptation Strategy: if plateau persists for 2 weeks, apply a deload week (-20% volume), then resume " +
			"progressive loading with smaller increments and readiness-based set adjustments."
	default:
		return "Provide safe, goal-aligned guidance with explicit progression and recovery instructions."
	}
}

func constraintsText(constraints []string) string {
	if len(constraints) == 0 {
		return "respect safety constraints"
	}
	if len(constraints) > 3 {
		constraints = constraints[:3]
	}
	return strings.Join(constraints, "; ")
}
