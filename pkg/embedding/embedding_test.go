package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"https://api.example.com/v1/":   "https://api.example.com",
		" https://api.example.com/v1 ":  "https://api.example.com",
		"https://api.example.com//":     "https://api.example.com",
		"https://api.example.com/other": "https://api.example.com/other",
		"":                              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeBaseURL(in), in)
	}
}

func TestDetectDialect(t *testing.T) {
	assert.Equal(t, DialectDashScope, DetectDialect("https://dashscope.aliyuncs.com/compatible-mode/v1"))
	assert.Equal(t, DialectDashScope, DetectDialect("https://dashscope-intl.aliyuncs.com"))
	assert.Equal(t, DialectSiliconFlow, DetectDialect("https://api.siliconflow.cn/v1"))
	assert.Equal(t, DialectGemini, DetectDialect("https://generativelanguage.googleapis.com"))
	assert.Equal(t, DialectOpenAI, DetectDialect("https://api.openai.com/v1"))
	assert.Equal(t, DialectOpenAI, DetectDialect("https://notsiliconflow.cn.example.com"))
}

func TestNew_RequiresConfiguration(t *testing.T) {
	_, err := New(Config{URL: "https://api.openai.com", Model: "m"})
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = New(Config{APIKey: "k", Model: "m"})
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = New(Config{URL: "https://api.openai.com", APIKey: "k"})
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = New(Config{URL: "https://api.openai.com", APIKey: "k", Model: "m", Dialect: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestOpenAIDialect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		assert.Equal(t, "float", body["encoding_format"])
		assert.Equal(t, []interface{}{"a", "b"}, body["input"])
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]},{"index":1,"embedding":[0,1]}]}`))
	}))
	defer srv.Close()

	emb, err := New(Config{URL: srv.URL + "/v1/", APIKey: "sk-test", Model: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", emb.Model())

	vecs, err := emb.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestSiliconFlowDialectSortsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	emb, err := New(Config{URL: srv.URL, APIKey: "k", Model: "BAAI/bge-m3", Dialect: DialectSiliconFlow})
	require.NoError(t, err)
	vecs, err := emb.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestDashScopeDialect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, dashScopeEmbeddingPath, r.URL.Path)
		var body struct {
			Model string `json:"model"`
			Input struct {
				Texts []string `json:"texts"`
			} `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"a", "b"}, body.Input.Texts)
		_, _ = w.Write([]byte(`{"output":{"embeddings":[{"text_index":1,"embedding":[0,2]},{"text_index":0,"embedding":[3,0]}]}}`))
	}))
	defer srv.Close()

	emb, err := New(Config{URL: srv.URL + "/compatible-mode/v1", APIKey: "k", Model: "text-embedding-v3", Dialect: DialectDashScope})
	require.NoError(t, err)
	vecs, err := emb.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 0}, {0, 2}}, vecs)
}

func TestEmbed_ErrorsOnMismatchAndStatus(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	emb, err := New(Config{URL: srv.URL, APIKey: "k", Model: "m"})
	require.NoError(t, err)

	_, err = emb.Embed(context.Background(), []string{"a", "b"})
	assert.True(t, errors.Is(err, ErrBadResponse), "got %v", err)

	status.Store(http.StatusUnauthorized)
	_, err = emb.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=401")
}

func TestDashScopeEndpoint(t *testing.T) {
	assert.Equal(t, "https://dashscope.aliyuncs.com"+dashScopeEmbeddingPath, dashScopeEndpoint("https://dashscope.aliyuncs.com/compatible-mode"))
	full := "https://dashscope.aliyuncs.com" + dashScopeEmbeddingPath
	assert.Equal(t, full, dashScopeEndpoint(full+"/"))
}
