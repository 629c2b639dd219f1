package memory

import "context"

// Store persists vector entries, partitioned by save id. Entries are written
// whole so readers never observe a partial entry.
type Store interface {
	Close() error
	PutEntry(ctx context.Context, saveID string, entry Entry) error
	PutEntries(ctx context.Context, saveID string, entries []Entry) error
	ListEntries(ctx context.Context, saveID string) ([]Entry, error)
	GetEntry(ctx context.Context, saveID, id string) (Entry, error)
	DeleteEntry(ctx context.Context, saveID, id string) error
	ClearEntries(ctx context.Context, saveID string) error
	CountEntries(ctx context.Context, saveID string) (int, error)
}

// Embedder produces remote embeddings. It matches embedding.Embedder so the
// adapters can be passed straight in.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SummaryFunc asks a chat model to condense memories. A nil SummaryFunc means
// no summarization endpoint is configured.
type SummaryFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
