package teacher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fitsense/fitsynth"
	"github.com/fitsense/fitsynth/query"
)

// openAICompatProvider talks to any chat-completions endpoint that speaks
// the OpenAI wire shape. One Invoke is one POST; the invoker owns retries.
type openAICompatProvider struct {
	endpoint  string
	apiKey    string
	modelName string
	temp      float64
	topP      float64
	maxTokens int
	client    *http.Client
}

func newOpenAICompatProvider(cfg fitsynth.TeacherConfig) (*openAICompatProvider, error) {
	endpoint := strings.TrimSpace(cfg.EndpointURL)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: phase4.teacher_llm.endpoint_url is required for the openai_compatible provider", fitsynth.ErrInvalidConfig)
	}
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", fitsynth.ErrMissingAPIKey, keyEnv)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &openAICompatProvider{
		endpoint:  endpoint,
		apiKey:    apiKey,
		modelName: cfg.ModelName,
		temp:      cfg.Temperature,
		topP:      cfg.TopP,
		maxTokens: cfg.MaxOutputTokens,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openAICompatProvider) Invoke(ctx context.Context, q query.Record) (*Response, error) {
	payload := chatCompletionRequest{
		Model: p.modelName,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: q.PromptText},
		},
		Temperature: p.temp,
		TopP:        p.topP,
		MaxTokens:   p.maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding teacher request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building teacher request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("teacher request failed: %w", err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading teacher response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("teacher endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding teacher response: %w", err)
	}
	var content string
	if len(parsed.Choices) > 0 {
		content = strings.TrimSpace(parsed.Choices[0].Message.Content)
	}
	if content == "" {
		return nil, errors.New("teacher response content is empty")
	}

	var rawAny any
	if err := json.Unmarshal(raw, &rawAny); err != nil {
		return nil, fmt.Errorf("decoding teacher response: %w", err)
	}
	return &Response{ResponseText: content, RequestPayload: payload, RawResponse: rawAny}, nil
}
