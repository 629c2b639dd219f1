// Package embedding adapts remote embedding APIs to a single batch interface.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Dialect string

const (
	DialectAuto        Dialect = "auto"
	DialectOpenAI      Dialect = "openai"
	DialectDashScope   Dialect = "dashscope"
	DialectSiliconFlow Dialect = "siliconflow"
	DialectGemini      Dialect = "gemini"
)

var (
	ErrNotConfigured = errors.New("embedding endpoint not configured")
	ErrBadResponse   = errors.New("malformed embedding response")
)

const defaultTimeout = 30 * time.Second

type Config struct {
	URL      string
	APIKey   string
	Model    string
	Dialect  Dialect
	TaskType string
	Timeout  time.Duration
}

// New builds the adapter for cfg. Auto dialect picks by host.
func New(cfg Config) (Embedder, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is empty", ErrNotConfigured)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	dialect := cfg.Dialect
	if dialect == "" || dialect == DialectAuto {
		dialect = DetectDialect(cfg.URL)
	}
	switch dialect {
	case DialectGemini:
		return NewGeminiEmbedder(context.Background(), cfg)
	case DialectOpenAI, DialectDashScope, DialectSiliconFlow:
		return newHTTPEmbedder(cfg, dialect)
	default:
		return nil, fmt.Errorf("unknown embedding dialect %q", cfg.Dialect)
	}
}

// NormalizeBaseURL trims whitespace, a trailing /v1 and trailing slashes.
func NormalizeBaseURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, "/")
	s = strings.TrimSuffix(s, "/v1")
	return strings.TrimRight(s, "/")
}

// DetectDialect maps known vendor hosts to their dialect and everything else
// to the OpenAI-style endpoint.
func DetectDialect(raw string) Dialect {
	host := ""
	if u, err := url.Parse(strings.TrimSpace(raw)); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	if host == "" {
		lower := strings.ToLower(raw)
		switch {
		case strings.Contains(lower, "dashscope.aliyuncs.com"), strings.Contains(lower, "dashscope-intl.aliyuncs.com"):
			return DialectDashScope
		case strings.Contains(lower, "siliconflow.cn"):
			return DialectSiliconFlow
		}
		return DialectOpenAI
	}
	switch {
	case host == "dashscope.aliyuncs.com", host == "dashscope-intl.aliyuncs.com":
		return DialectDashScope
	case host == "siliconflow.cn", strings.HasSuffix(host, ".siliconflow.cn"):
		return DialectSiliconFlow
	case host == "generativelanguage.googleapis.com":
		return DialectGemini
	}
	return DialectOpenAI
}
