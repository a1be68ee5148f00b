// Package teacher sends synthesized queries to the configured teacher
// model and records every outcome, success or terminal failure, as a
// response artifact the distillation stage can join against.
package teacher

import (
	"context"
	"fmt"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/query"
)

// systemPrompt frames every teacher call.
const systemPrompt = "You are a senior fitness coach AI. Produce safe, structured, concise guidance. " +
	"Respect medical constraints and avoid unsafe exercise recommendations."

// Invocation statuses recorded on teacher responses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Response is a successful provider invocation.
type Response struct {
	ResponseText   string
	RequestPayload any
	RawResponse    any
}

// Provider answers one query per call. Any returned error is treated as
// transient and retried by the invoker; configuration problems must be
// caught at construction instead.
type Provider interface {
	Invoke(ctx context.Context, q query.Record) (*Response, error)
}

// NewProvider creates the configured teacher backend. Unknown provider
// names, a missing endpoint or a missing API key fail here, before any
// query is spent.
func NewProvider(cfg fitsynth.TeacherConfig) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, fitsynth.ErrProviderNotSpecified
	case "mock":
		return newMockProvider(cfg), nil
	case "openai_compatible":
		return newOpenAICompatProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", fitsynth.ErrUnknownProvider, cfg.Provider)
	}
}
