package providers

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 500
	summaryTimeout     = 30 * time.Second
)

// SummaryClient runs memory summarization against an OpenAI-compatible
// endpoint separate from the game master provider.
type SummaryClient struct {
	provider *chatCompletionsProvider
}

// NewSummaryClient accepts the base URL with or without a trailing /v1.
func NewSummaryClient(apiBase, apiKey, model string) (*SummaryClient, error) {
	base := normalizeBaseURL(apiBase)
	if base == "" {
		return nil, fmt.Errorf("summary API base not configured")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("summary model not configured")
	}
	p, err := newChatCompletionsProvider(
		ProviderSummary,
		base+"/v1",
		model,
		"",
		NewAPIKeyAuth(NewStaticTokenSource(apiKey, "summary.api_key")),
		nil,
	)
	if err != nil {
		return nil, err
	}
	return &SummaryClient{provider: p}, nil
}

// Summarize sends one system and one user message and returns the reply
// trimmed. Its signature matches memory.SummaryFunc.
func (c *SummaryClient) Summarize(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := c.provider.Generate(ctx, []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userPrompt},
	}, GenerateOptions{
		Temperature: Float64(summaryTemperature),
		MaxTokens:   summaryMaxTokens,
		Timeout:     summaryTimeout,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *SummaryClient) Model() string {
	return c.provider.DefaultModel()
}

// normalizeBaseURL strips surrounding space, trailing slashes and a trailing
// /v1 segment.
func normalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	base = strings.TrimSuffix(base, "/v1")
	return strings.TrimRight(base, "/")
}
