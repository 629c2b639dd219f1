package providers

import (
	"context"
	"net/http"
	"testing"
)

func TestStaticTokenSource_RejectsPlaceholderToken(t *testing.T) {
	src := NewStaticTokenSource("<OPENROUTER_API_KEY>", "providers.openrouter.api_key")
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected placeholder token to be rejected")
	}
}

func TestStaticTokenSource_RejectsEnvReferenceToken(t *testing.T) {
	src := NewStaticTokenSource("${OPENAI_API_KEY}", "providers.openai.api_key")
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected env reference token to be rejected")
	}
}

func TestStaticTokenSource_EmptyAndSource(t *testing.T) {
	src := NewStaticTokenSource("  ", "")
	if _, err := src.Token(context.Background()); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
	if got := src.Source(); got != "static" {
		t.Fatalf("expected fallback source name, got %q", got)
	}
}

func TestAPIKeyAuth_SetsBearerHeader(t *testing.T) {
	auth := NewAPIKeyAuth(NewStaticTokenSource(" sk-123 ", "test"))
	if auth.Mode() != authModeAPIKey {
		t.Fatalf("unexpected mode %q", auth.Mode())
	}
	req, err := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if err := auth.Apply(context.Background(), req); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sk-123" {
		t.Fatalf("unexpected header %q", got)
	}

	if err := NewAPIKeyAuth(nil).Apply(context.Background(), req); err == nil {
		t.Fatalf("expected nil source to fail")
	}
}
