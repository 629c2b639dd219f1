package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/dotsetgreg/studiogm/pkg/logger"
)

const dashScopeEmbeddingPath = "/api/v1/services/embeddings/text-embedding/text-embedding"

// HTTPEmbedder speaks the OpenAI-style, DashScope and SiliconFlow dialects.
type HTTPEmbedder struct {
	base       string
	apiKey     string
	model      string
	dialect    Dialect
	httpClient *http.Client
}

func newHTTPEmbedder(cfg Config, dialect Dialect) (*HTTPEmbedder, error) {
	base := NormalizeBaseURL(cfg.URL)
	if base == "" {
		return nil, fmt.Errorf("%w: url is empty", ErrNotConfigured)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is empty", ErrNotConfigured)
	}
	return &HTTPEmbedder{
		base:       base,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dialect:    dialect,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (e *HTTPEmbedder) Model() string { return e.model }

func (e *HTTPEmbedder) Dialect() Dialect { return e.dialect }

func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var (
		vecs [][]float32
		err  error
	)
	switch e.dialect {
	case DialectDashScope:
		vecs, err = e.embedDashScope(ctx, texts)
	default:
		vecs, err = e.embedOpenAI(ctx, texts)
	}
	if err != nil {
		return nil, err
	}
	logger.DebugCF("embedding", "Embedded batch", map[string]interface{}{
		"dialect": string(e.dialect),
		"model":   e.model,
		"count":   len(vecs),
	})
	return vecs, nil
}

func (e *HTTPEmbedder) embedOpenAI(ctx context.Context, texts []string) ([][]float32, error) {
	body := map[string]interface{}{
		"model":           e.model,
		"input":           texts,
		"encoding_format": "float",
	}
	var payload struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := e.post(ctx, e.base+"/v1/embeddings", body, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d inputs", ErrBadResponse, len(payload.Data), len(texts))
	}
	if e.dialect == DialectSiliconFlow {
		sort.SliceStable(payload.Data, func(i, j int) bool { return payload.Data[i].Index < payload.Data[j].Index })
	}
	out := make([][]float32, len(payload.Data))
	for i, d := range payload.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: item %d has no embedding", ErrBadResponse, i)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

func (e *HTTPEmbedder) embedDashScope(ctx context.Context, texts []string) ([][]float32, error) {
	body := map[string]interface{}{
		"model": e.model,
		"input": map[string]interface{}{"texts": texts},
	}
	var payload struct {
		Output struct {
			Embeddings []struct {
				TextIndex int       `json:"text_index"`
				Embedding []float32 `json:"embedding"`
			} `json:"embeddings"`
		} `json:"output"`
	}
	if err := e.post(ctx, dashScopeEndpoint(e.base), body, &payload); err != nil {
		return nil, err
	}
	items := payload.Output.Embeddings
	if len(items) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d inputs (dashscope)", ErrBadResponse, len(items), len(texts))
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].TextIndex < items[j].TextIndex })
	out := make([][]float32, len(items))
	for i, it := range items {
		if len(it.Embedding) == 0 {
			return nil, fmt.Errorf("%w: item %d has no embedding (dashscope)", ErrBadResponse, i)
		}
		out[i] = it.Embedding
	}
	return out, nil
}

// dashScopeEndpoint resolves the native text-embedding endpoint from either a
// full endpoint URL or any URL on the DashScope host.
func dashScopeEndpoint(base string) string {
	trimmed := strings.TrimRight(base, "/")
	if strings.Contains(trimmed, dashScopeEmbeddingPath) {
		return trimmed
	}
	if u, err := url.Parse(trimmed); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host + dashScopeEmbeddingPath
	}
	if strings.HasSuffix(trimmed, "/api") {
		return trimmed + strings.TrimPrefix(dashScopeEmbeddingPath, "/api")
	}
	return trimmed + dashScopeEmbeddingPath
}

func (e *HTTPEmbedder) post(ctx context.Context, endpoint string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send embedding request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 500 {
			msg = msg[:500] + "..."
		}
		return fmt.Errorf("embedding request failed: status=%d body=%s", resp.StatusCode, msg)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
