package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	GM           GMConfig           `json:"gm"`
	Providers    ProvidersConfig    `json:"providers"`
	Summary      SummaryConfig      `json:"summary"`
	Embedding    EmbeddingConfig    `json:"embedding"`
	VectorMemory VectorMemoryConfig `json:"vector_memory"`
	MemorySum    MemorySummary      `json:"memory_summary"`
	Memory       MemoryConfig       `json:"memory"`
	mu           sync.RWMutex
}

type GMConfig struct {
	Workspace          string  `json:"workspace" env:"STUDIOGM_GM_WORKSPACE"`
	Provider           string  `json:"provider" env:"STUDIOGM_GM_PROVIDER"`
	Model              string  `json:"model" env:"STUDIOGM_GM_MODEL"`
	MaxTokens          int     `json:"max_tokens" env:"STUDIOGM_GM_MAX_TOKENS"`
	Temperature        float64 `json:"temperature" env:"STUDIOGM_GM_TEMPERATURE"`
	Streaming          bool    `json:"streaming" env:"STUDIOGM_GM_STREAMING"`
	TimeoutSeconds     int     `json:"timeout_seconds" env:"STUDIOGM_GM_TIMEOUT_SECONDS"`
	HistoryWindow      int     `json:"history_window" env:"STUDIOGM_GM_HISTORY_WINDOW"`
	StateHistoryWindow int     `json:"state_history_window" env:"STUDIOGM_GM_STATE_HISTORY_WINDOW"`
	ExtraSystemPrompt  string  `json:"extra_system_prompt,omitempty" env:"STUDIOGM_GM_EXTRA_SYSTEM_PROMPT"`
	PromptsFile        string  `json:"prompts_file,omitempty" env:"STUDIOGM_GM_PROMPTS_FILE"`
	StrictValues       bool    `json:"strict_values" env:"STUDIOGM_GM_STRICT_VALUES"`
}

type ProvidersConfig struct {
	OpenRouter ProviderConfig `json:"openrouter"`
	OpenAI     OpenAIConfig   `json:"openai"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"STUDIOGM_PROVIDERS_OPENROUTER_API_KEY"`
	APIBase string `json:"api_base" env:"STUDIOGM_PROVIDERS_OPENROUTER_API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"STUDIOGM_PROVIDERS_OPENROUTER_PROXY"`
}

type OpenAIConfig struct {
	APIKey       string `json:"api_key" env:"STUDIOGM_PROVIDERS_OPENAI_API_KEY"`
	APIBase      string `json:"api_base" env:"STUDIOGM_PROVIDERS_OPENAI_API_BASE"`
	Proxy        string `json:"proxy,omitempty" env:"STUDIOGM_PROVIDERS_OPENAI_PROXY"`
	Organization string `json:"organization,omitempty" env:"STUDIOGM_PROVIDERS_OPENAI_ORGANIZATION"`
	Project      string `json:"project,omitempty" env:"STUDIOGM_PROVIDERS_OPENAI_PROJECT"`
}

// SummaryConfig points at the chat endpoint used to condense mid-term memory.
// An empty APIBase or APIKey disables the remote call.
type SummaryConfig struct {
	APIBase string `json:"api_base" env:"STUDIOGM_SUMMARY_API_BASE"`
	APIKey  string `json:"api_key" env:"STUDIOGM_SUMMARY_API_KEY"`
	Model   string `json:"model" env:"STUDIOGM_SUMMARY_MODEL"`
}

type EmbeddingConfig struct {
	URL      string `json:"url" env:"STUDIOGM_EMBEDDING_URL"`
	APIKey   string `json:"api_key" env:"STUDIOGM_EMBEDDING_API_KEY"`
	Model    string `json:"model" env:"STUDIOGM_EMBEDDING_MODEL"`
	Dialect  string `json:"dialect" env:"STUDIOGM_EMBEDDING_DIALECT"`
	TaskType string `json:"task_type,omitempty" env:"STUDIOGM_EMBEDDING_TASK_TYPE"`
}

type VectorMemoryConfig struct {
	Enabled          bool    `json:"enabled" env:"STUDIOGM_VECTOR_MEMORY_ENABLED"`
	AutoIndex        bool    `json:"auto_index" env:"STUDIOGM_VECTOR_MEMORY_AUTO_INDEX"`
	MaxRetrieveCount int     `json:"max_retrieve_count" env:"STUDIOGM_VECTOR_MEMORY_MAX_RETRIEVE_COUNT"`
	MinSimilarity    float64 `json:"min_similarity" env:"STUDIOGM_VECTOR_MEMORY_MIN_SIMILARITY"`
	TagWeight        float64 `json:"tag_weight" env:"STUDIOGM_VECTOR_MEMORY_TAG_WEIGHT"`
	VectorWeight     float64 `json:"vector_weight" env:"STUDIOGM_VECTOR_MEMORY_VECTOR_WEIGHT"`
}

type MemorySummary struct {
	MidTermThreshold int  `json:"mid_term_threshold" env:"STUDIOGM_MEMORY_SUMMARY_MID_TERM_THRESHOLD"`
	BatchSize        int  `json:"batch_size" env:"STUDIOGM_MEMORY_SUMMARY_BATCH_SIZE"`
	AutoSummarize    bool `json:"auto_summarize" env:"STUDIOGM_MEMORY_SUMMARY_AUTO_SUMMARIZE"`
}

type MemoryConfig struct {
	ShortTermCapacity int `json:"short_term_capacity" env:"STUDIOGM_MEMORY_SHORT_TERM_CAPACITY"`
}

func DefaultConfig() *Config {
	return &Config{
		GM: GMConfig{
			Workspace:          "~/.studiogm/workspace",
			Provider:           "openrouter",
			Model:              "openai/gpt-5.2",
			MaxTokens:          4096,
			Temperature:        0.8,
			Streaming:          true,
			TimeoutSeconds:     300,
			HistoryWindow:      5,
			StateHistoryWindow: 3,
		},
		Providers: ProvidersConfig{
			OpenRouter: ProviderConfig{},
			OpenAI:     OpenAIConfig{},
		},
		Summary: SummaryConfig{
			Model: "gpt-4o-mini",
		},
		Embedding: EmbeddingConfig{
			Dialect: "auto",
		},
		VectorMemory: VectorMemoryConfig{
			Enabled:          true,
			AutoIndex:        true,
			MaxRetrieveCount: 10,
			MinSimilarity:    0.3,
			TagWeight:        0.4,
			VectorWeight:     0.6,
		},
		MemorySum: MemorySummary{
			MidTermThreshold: 15,
			BatchSize:        8,
			AutoSummarize:    true,
		},
		Memory: MemoryConfig{
			ShortTermCapacity: 10,
		},
	}
}

// LoadConfig reads path over the defaults and then applies STUDIOGM_* environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.GM.Workspace)
}

// SavesDBPath is the SQLite file holding save slots.
func (c *Config) SavesDBPath() string {
	return filepath.Join(c.WorkspacePath(), "state", "saves.db")
}

// MemoryDBPath is the SQLite file holding the vector memory index of every save.
func (c *Config) MemoryDBPath() string {
	return filepath.Join(c.WorkspacePath(), "state", "memory.db")
}

// LogPath is where file logging goes when enabled.
func (c *Config) LogPath() string {
	return filepath.Join(c.WorkspacePath(), "logs", "studiogm.log")
}

func (c *Config) SummaryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strings.TrimSpace(c.Summary.APIBase) != "" && strings.TrimSpace(c.Summary.APIKey) != ""
}

func (c *Config) EmbeddingEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if strings.TrimSpace(c.Embedding.APIKey) == "" || strings.TrimSpace(c.Embedding.Model) == "" {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(c.Embedding.Dialect), "gemini") {
		return true
	}
	return strings.TrimSpace(c.Embedding.URL) != ""
}

func DefaultConfigPath() string {
	return expandHome("~/.studiogm/config.json")
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
