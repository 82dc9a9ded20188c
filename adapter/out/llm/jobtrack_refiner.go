// Package llm implements the OpenAI-backed field refiner.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"
	"jobtrack_server/pkg/resilience"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const (
	DefaultModel = "gpt-4o-mini"

	maxBodyChars   = 2000
	refineTimeout  = 15 * time.Second
	refinerMaxToks = 100
)

const systemPrompt = `You extract job application details from a single email.
Reply with a JSON object {"company": string, "role": string}.
Use the exact wording that appears in the email. Use "" when a value is not stated.`

// RefinerConfig configures the OpenAI client.
type RefinerConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// HTTPClient overrides the transport; nil uses the library default.
	HTTPClient *http.Client
}

// OpenAIRefiner proposes company and role values for messages the heuristics
// could not resolve. The engine verifies every proposal against the text.
type OpenAIRefiner struct {
	client *openai.Client
	model  string
	cb     *gobreaker.CircuitBreaker
}

// NewOpenAIRefiner returns nil when no API key is configured, which disables refinement.
func NewOpenAIRefiner(cfg RefinerConfig) *OpenAIRefiner {
	if cfg.APIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIRefiner{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		cb:     resilience.NewBreaker(resilience.DefaultBreakerConfig("openai-refiner")),
	}
}

func (r *OpenAIRefiner) Refine(ctx context.Context, msg *domain.NormalizedMessage) (*out.RefinedFields, error) {
	ctx, cancel := context.WithTimeout(ctx, refineTimeout)
	defer cancel()

	// An open breaker fails fast; the engine keeps the heuristic values.
	res, err := r.cb.Execute(func() (interface{}, error) {
		return r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: r.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: buildPrompt(msg)},
			},
			Temperature: 0,
			MaxTokens:   refinerMaxToks,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}
	resp := res.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("refine: empty response")
	}

	var fields out.RefinedFields
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &fields); err != nil {
		return nil, fmt.Errorf("refine: decode response: %w", err)
	}
	fields.Company = strings.TrimSpace(fields.Company)
	fields.Role = strings.TrimSpace(fields.Role)
	return &fields, nil
}

func buildPrompt(msg *domain.NormalizedMessage) string {
	var sb strings.Builder
	sb.WriteString("Subject: ")
	sb.WriteString(msg.Subject)
	sb.WriteString("\nFrom: ")
	sb.WriteString(msg.From)
	sb.WriteString("\n\n")
	sb.WriteString(truncate(msg.Body, maxBodyChars))
	return sb.String()
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

var _ out.FieldRefiner = (*OpenAIRefiner)(nil)
