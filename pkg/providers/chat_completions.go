// StudioGM - AI narrated game studio simulation
// License: MIT
//
// Copyright (c) 2026 StudioGM contributors

package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/studiogm/pkg/logger"
)

const (
	defaultHTTPTimeout = 300 * time.Second
	maxSSELineBytes    = 1 << 20
	sseDone            = "[DONE]"
)

type chatCompletionsProvider struct {
	providerName string
	apiBase      string
	defaultModel string
	auth         AuthStrategy
	httpClient   *http.Client
	extraHeaders map[string]string
}

func newChatCompletionsProvider(providerName, apiBase, defaultModel, proxy string, auth AuthStrategy, extraHeaders map[string]string) (*chatCompletionsProvider, error) {
	providerName = strings.TrimSpace(strings.ToLower(providerName))
	if providerName == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		return nil, fmt.Errorf("%s API base not configured", providerName)
	}
	if auth == nil {
		return nil, fmt.Errorf("%s auth is not configured", providerName)
	}

	client := &http.Client{Timeout: defaultHTTPTimeout}
	proxy = strings.TrimSpace(proxy)
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse %s proxy: %w", providerName, err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	cleanHeaders := map[string]string{}
	for k, v := range extraHeaders {
		name := strings.TrimSpace(k)
		value := strings.TrimSpace(v)
		if name == "" || value == "" {
			continue
		}
		cleanHeaders[name] = value
	}

	return &chatCompletionsProvider{
		providerName: providerName,
		apiBase:      apiBase,
		defaultModel: strings.TrimSpace(defaultModel),
		auth:         auth,
		httpClient:   client,
		extraHeaders: cleanHeaders,
	}, nil
}

// Generate posts messages to {apiBase}/chat/completions. With opts.Stream the
// reply is read as server-sent events and each delta is passed to
// opts.OnChunk. A server that ignores the stream flag and answers with plain
// JSON is handled the same as a batch call.
func (p *chatCompletionsProvider) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	if p == nil {
		return "", &GenerationError{Kind: KindGeneric, Provider: "unknown", Message: "provider not initialized"}
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = p.DefaultModel()
	}

	requestBody := map[string]interface{}{
		"model":    model,
		"messages": messages,
	}
	if opts.Stream {
		requestBody["stream"] = true
	}
	if opts.MaxTokens > 0 {
		requestBody["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		requestBody["temperature"] = *opts.Temperature
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", &GenerationError{Kind: KindGeneric, Provider: p.providerName, Message: "marshal request", Err: err}
	}

	endpoint := p.apiBase + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", &GenerationError{Kind: KindGeneric, Provider: p.providerName, Message: "create request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	if opts.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if err := p.auth.Apply(ctx, req); err != nil {
		return "", &GenerationError{Kind: KindCredentials, Provider: p.providerName, Err: fmt.Errorf("apply %s auth: %w", p.providerName, err)}
	}
	for name, value := range p.extraHeaders {
		req.Header.Set(name, value)
	}

	generationID := uuid.NewString()
	started := time.Now()
	logger.DebugCF("provider", "Generation request", map[string]interface{}{
		"provider":      p.providerName,
		"model":         model,
		"messages":      len(messages),
		"stream":        opts.Stream,
		"generation_id": generationID,
	})

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, p.providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := augmentProviderError(p.providerName, extractAPIError(body))
		return "", statusError(p.providerName, resp.StatusCode, msg)
	}

	var content string
	if opts.Stream && isEventStream(resp.Header.Get("Content-Type")) {
		content, err = readEventStream(resp.Body, opts.OnChunk)
	} else {
		var body []byte
		body, err = io.ReadAll(resp.Body)
		if err == nil {
			content, err = parseChatCompletionsResponse(body)
			if err != nil {
				return "", &GenerationError{Kind: KindGeneric, Provider: p.providerName, Message: "parse response", Err: err}
			}
			if opts.Stream && opts.OnChunk != nil && content != "" {
				opts.OnChunk(content)
			}
		}
	}
	if err != nil {
		return "", transportError(ctx, p.providerName, err)
	}

	logger.DebugCF("provider", "Generation complete", map[string]interface{}{
		"provider":      p.providerName,
		"generation_id": generationID,
		"chars":         len(content),
		"elapsed_ms":    time.Since(started).Milliseconds(),
	})
	return content, nil
}

func (p *chatCompletionsProvider) DefaultModel() string {
	if p == nil {
		return ""
	}
	return p.defaultModel
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/event-stream"
}

// readEventStream accumulates choices[0].delta.content from "data:" lines
// until [DONE] or EOF. Comment lines and other SSE fields are ignored.
func readEventStream(r io.Reader, onChunk func(string)) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxSSELineBytes)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == sseDone {
			break
		}
		if data == "" {
			continue
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content interface{} `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return out.String(), errors.New(chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := flattenMessageContent(chunk.Choices[0].Delta.Content)
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return out.String(), err
	}
	return out.String(), nil
}

func parseChatCompletionsResponse(body []byte) (string, error) {
	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content interface{} `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", err
	}
	if len(apiResponse.Choices) == 0 {
		return "", nil
	}
	return flattenMessageContent(apiResponse.Choices[0].Message.Content), nil
}

func flattenMessageContent(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				parts = append(parts, text)
				continue
			}
			if content, ok := m["content"].(string); ok {
				parts = append(parts, content)
			}
		}
		return strings.Join(parts, "")
	default:
		return ""
	}
}

func extractAPIError(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "empty response body"
	}

	var payload struct {
		Error struct {
			Message string      `json:"message"`
			Type    string      `json:"type"`
			Code    interface{} `json:"code"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Error.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}

	if len(trimmed) > 2000 {
		return trimmed[:2000] + "..."
	}
	return trimmed
}
