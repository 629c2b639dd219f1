package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotsetgreg/studiogm/pkg/logger"
)

const (
	defaultRebuildBatch = 24
	maxRebuildBatch     = 64
	rebuildConcurrency  = 4
	topTagLimit         = 20
)

// Index is the per-save vector memory: tagged, vectorized entries with hybrid
// retrieval and mid-term summarization.
type Index struct {
	store     Store
	saveID    string
	embedder  Embedder
	summarize SummaryFunc
	policy    Policy
	now       func() time.Time

	summarizing atomic.Bool
	closed      atomic.Bool
}

type IndexOption func(*Index)

// WithEmbedder enables remote embeddings. A nil embedder keeps local vectors.
func WithEmbedder(e Embedder) IndexOption {
	return func(x *Index) { x.embedder = e }
}

func WithSummaryFunc(fn SummaryFunc) IndexOption {
	return func(x *Index) { x.summarize = fn }
}

func WithPolicy(p Policy) IndexOption {
	return func(x *Index) { x.policy = p.normalized() }
}

func WithClock(now func() time.Time) IndexOption {
	return func(x *Index) { x.now = now }
}

func NewIndex(store Store, saveID string, opts ...IndexOption) (*Index, error) {
	if strings.TrimSpace(saveID) == "" {
		return nil, ErrNoSaveID
	}
	if store == nil {
		return nil, fmt.Errorf("new memory index: nil store")
	}
	x := &Index{
		store:  store,
		saveID: saveID,
		policy: DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// Close detaches the index. The store is shared and stays open.
func (x *Index) Close() error {
	x.closed.Store(true)
	return nil
}

func (x *Index) SaveID() string { return x.saveID }

func (x *Index) Policy() Policy { return x.policy }

func (x *Index) Enabled() bool { return x.policy.Enabled && !x.closed.Load() }

// CanAutoIndex reports whether the game loop should write memories as they
// are produced.
func (x *Index) CanAutoIndex() bool { return x.Enabled() && x.policy.AutoIndex }

// EmbeddingModel returns the remote model name, or "" when local vectors are
// used.
func (x *Index) EmbeddingModel() string {
	if x.embedder == nil {
		return ""
	}
	return x.embedder.Model()
}

func (x *Index) build(content string, importance int, vec []float32, model string) Entry {
	tags := ExtractTags(content)
	e := Entry{
		ID:         StableID(content),
		Content:    content,
		Tags:       tags,
		Vector:     vec,
		VectorType: VectorTFIDF,
		Timestamp:  x.now().UnixMilli(),
		Importance: importance,
		Category:   InferCategory(content, tags),
		Metadata:   EntryMetadata{People: peopleFromTags(tags)},
	}
	if model != "" {
		e.VectorType = VectorEmbedding
		e.EmbeddingModel = model
	}
	if e.Vector == nil {
		e.Vector = vectorize(content)
	}
	return e
}

// embed returns unit vectors for texts, or nil when no embedder is set or the
// call fails. Failures are logged and never returned.
func (x *Index) embed(ctx context.Context, texts []string) ([][]float32, string) {
	if x.embedder == nil || len(texts) == 0 {
		return nil, ""
	}
	vecs, err := x.embedder.Embed(ctx, texts)
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts))
	}
	if err != nil {
		logger.WarnCF("vector", "Embedding failed, using local vectors", map[string]interface{}{
			"model": x.embedder.Model(),
			"count": len(texts),
			"error": err,
		})
		return nil, ""
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		out[i] = NormalizeVector(v)
	}
	return out, x.embedder.Model()
}

// AddMemory indexes content and upserts it by content hash. Empty content is
// a no-op that returns a nil entry.
func (x *Index) AddMemory(ctx context.Context, content string, importance int) (*Entry, error) {
	if x.closed.Load() {
		return nil, ErrIndexClosed
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, nil
	}

	var entry Entry
	if vecs, model := x.embed(ctx, []string{trimmed}); vecs != nil {
		entry = x.build(trimmed, importance, vecs[0], model)
	} else {
		entry = x.build(trimmed, importance, nil, "")
	}
	if err := x.store.PutEntry(ctx, x.saveID, entry); err != nil {
		return nil, err
	}
	logger.DebugCF("vector", "Memory indexed", map[string]interface{}{
		"id":          entry.ID,
		"category":    string(entry.Category),
		"tags":        strings.Join(entry.Tags, ","),
		"vector_type": string(entry.VectorType),
	})
	return &entry, nil
}

// ImportLongTerm indexes each non-blank memory at imported importance.
func (x *Index) ImportLongTerm(ctx context.Context, memories []string) (int, error) {
	count := 0
	for _, m := range memories {
		if strings.TrimSpace(m) == "" {
			continue
		}
		if _, err := x.AddMemory(ctx, m, ImportanceImported); err != nil {
			return count, err
		}
		count++
	}
	logger.InfoCF("vector", "Imported long-term memories", map[string]interface{}{"count": count})
	return count, nil
}

// Rebuild clears the save's entries and re-indexes memories in batches.
// Batches embed concurrently; each batch falls back to local vectors on its
// own, and batches are written in input order.
func (x *Index) Rebuild(ctx context.Context, memories []string, opts RebuildOptions) (RebuildResult, error) {
	if x.closed.Load() {
		return RebuildResult{}, ErrIndexClosed
	}
	list := make([]string, 0, len(memories))
	for _, m := range memories {
		if t := strings.TrimSpace(m); t != "" {
			list = append(list, t)
		}
	}
	importance := opts.Importance
	if importance == 0 {
		importance = ImportanceImported
	}
	size := opts.BatchSize
	if size == 0 {
		size = defaultRebuildBatch
	}
	if size < 1 {
		size = 1
	}
	if size > maxRebuildBatch {
		size = maxRebuildBatch
	}

	if err := x.store.ClearEntries(ctx, x.saveID); err != nil {
		return RebuildResult{}, err
	}

	var chunks [][]string
	for i := 0; i < len(list); i += size {
		end := min(i+size, len(list))
		chunks = append(chunks, list[i:end])
	}
	built := make([][]Entry, len(chunks))
	models := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vecs, model := x.embed(gctx, chunk)
			entries := make([]Entry, len(chunk))
			for j, content := range chunk {
				if vecs != nil {
					entries[j] = x.build(content, importance, vecs[j], model)
				} else {
					entries[j] = x.build(content, importance, nil, "")
				}
			}
			built[i] = entries
			models[i] = model
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RebuildResult{}, fmt.Errorf("rebuild vector memory: %w", err)
	}

	res := RebuildResult{VectorType: VectorTFIDF}
	done := 0
	for i, entries := range built {
		if err := x.store.PutEntries(ctx, x.saveID, entries); err != nil {
			return res, err
		}
		res.Imported += len(entries)
		if models[i] != "" {
			res.VectorType = VectorEmbedding
			res.EmbeddingModel = models[i]
		}
		done += len(entries)
		if opts.OnProgress != nil {
			opts.OnProgress(done, len(list))
		}
	}
	logger.InfoCF("vector", "Vector memory rebuilt", map[string]interface{}{
		"imported":    res.Imported,
		"total":       len(list),
		"vector_type": string(res.VectorType),
		"model":       res.EmbeddingModel,
	})
	return res, nil
}

// All returns every entry of the save.
func (x *Index) All(ctx context.Context) ([]Entry, error) {
	if x.closed.Load() {
		return nil, ErrIndexClosed
	}
	return x.store.ListEntries(ctx, x.saveID)
}

func (x *Index) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		ByCategory:       map[Category]int{},
		TopTags:          []TagCount{},
		ByVectorType:     map[VectorType]int{},
		ByEmbeddingModel: map[string]int{},
	}
	entries, err := x.All(ctx)
	if err != nil {
		return st, err
	}
	tagCounts := map[string]int{}
	for _, e := range entries {
		st.ByCategory[e.Category]++
		vt := e.VectorType
		if vt == "" {
			vt = VectorTFIDF
		}
		st.ByVectorType[vt]++
		if vt == VectorEmbedding && e.EmbeddingModel != "" {
			st.ByEmbeddingModel[e.EmbeddingModel]++
		}
		for _, t := range e.Tags {
			tagCounts[t]++
		}
	}
	st.Total = len(entries)
	for tag, n := range tagCounts {
		st.TopTags = append(st.TopTags, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(st.TopTags, func(i, j int) bool {
		if st.TopTags[i].Count != st.TopTags[j].Count {
			return st.TopTags[i].Count > st.TopTags[j].Count
		}
		return st.TopTags[i].Tag < st.TopTags[j].Tag
	})
	if len(st.TopTags) > topTagLimit {
		st.TopTags = st.TopTags[:topTagLimit]
	}
	return st, nil
}

func (x *Index) Delete(ctx context.Context, id string) error {
	if x.closed.Load() {
		return ErrIndexClosed
	}
	if err := x.store.DeleteEntry(ctx, x.saveID, id); err != nil {
		return err
	}
	logger.InfoCF("vector", "Memory deleted", map[string]interface{}{"id": id})
	return nil
}

func (x *Index) Clear(ctx context.Context) error {
	if x.closed.Load() {
		return ErrIndexClosed
	}
	if err := x.store.ClearEntries(ctx, x.saveID); err != nil {
		return err
	}
	logger.InfoCF("vector", "Vector memory cleared", map[string]interface{}{"save_id": x.saveID})
	return nil
}
