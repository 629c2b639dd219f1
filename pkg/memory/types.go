package memory

type VectorType string

const (
	VectorTFIDF     VectorType = "tfidf"
	VectorEmbedding VectorType = "embedding"
)

type Category string

const (
	CategoryDevelopment Category = "development"
	CategoryFinance     Category = "finance"
	CategoryHR          Category = "hr"
	CategoryMarketing   Category = "marketing"
	CategoryCompetition Category = "competition"
	CategoryCommunity   Category = "community"
	CategoryEvent       Category = "event"
	CategoryOther       Category = "other"
)

// Importance levels used by the game loop when indexing memories.
const (
	ImportancePlayerAction = 5
	ImportanceOpening      = 6
	ImportanceImported     = 7
	ImportanceSummary      = 8
)

// Entry is one durable, content-addressed memory in the vector index.
type Entry struct {
	ID             string        `json:"id"`
	Content        string        `json:"content"`
	Tags           []string      `json:"tags"`
	Vector         []float32     `json:"vector"`
	VectorType     VectorType    `json:"vectorType"`
	EmbeddingModel string        `json:"embeddingModel,omitempty"`
	Timestamp      int64         `json:"timestamp"`
	Importance     int           `json:"importance"`
	Category       Category      `json:"category"`
	Metadata       EntryMetadata `json:"metadata"`
}

type EntryMetadata struct {
	People []string `json:"people,omitempty"`
}

type SearchResult struct {
	Entry       Entry    `json:"entry"`
	Score       float64  `json:"score"`
	MatchedTags []string `json:"matchedTags"`
}

// SearchContext carries recent events that sharpen a query. Only the first
// three are used.
type SearchContext struct {
	RecentEvents []string
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type Stats struct {
	Total            int                `json:"total"`
	ByCategory       map[Category]int   `json:"byCategory"`
	TopTags          []TagCount         `json:"topTags"`
	ByVectorType     map[VectorType]int `json:"byVectorType"`
	ByEmbeddingModel map[string]int     `json:"byEmbeddingModel"`
}

// SummaryResult reports what CheckAndSummarize did. ConsumedCount is the
// number of mid-term items, taken from the front, that Summaries replace.
type SummaryResult struct {
	Triggered     bool     `json:"triggered"`
	Summaries     []string `json:"summaries,omitempty"`
	ConsumedCount int      `json:"consumedCount,omitempty"`
}

type RebuildOptions struct {
	Importance int
	BatchSize  int
	OnProgress func(done, total int)
}

type RebuildResult struct {
	Imported       int        `json:"imported"`
	VectorType     VectorType `json:"vectorType"`
	EmbeddingModel string     `json:"embeddingModel,omitempty"`
}
