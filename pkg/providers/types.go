package providers

import (
	"context"
	"time"
)

// Message is one role-tagged chat message sent to the generator.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerateOptions tunes a single generation. Zero values fall back to the
// provider defaults. OnChunk is called with each streamed delta and only when
// Stream is set.
type GenerateOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	Stream      bool
	OnChunk     func(delta string)
	Timeout     time.Duration
}

// TextGenerator turns an ordered message list into generated text. Failures
// are *GenerationError values.
type TextGenerator interface {
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
	DefaultModel() string
}

// Float64 returns a pointer to v, for GenerateOptions.Temperature.
func Float64(v float64) *float64 {
	return &v
}
