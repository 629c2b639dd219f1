package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

type fakeEmbedder struct {
	model string
	dims  int
	fail  func(texts []string) bool
}

func (f *fakeEmbedder) Model() string { return f.model }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.fail != nil && f.fail(texts) {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dims)
		vec[0] = 1
		vec[1] = float32(len(text) % 7)
		out[i] = vec
	}
	return out, nil
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestIndex(t *testing.T, store Store, opts ...IndexOption) *Index {
	t.Helper()
	idx, err := NewIndex(store, "save-1", opts...)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	return idx
}

func TestAddMemory_IdempotentByContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	idx := newTestIndex(t, store)

	first, err := idx.AddMemory(ctx, "Hired  a new\tartist", ImportancePlayerAction)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := idx.AddMemory(ctx, " Hired a new artist ", ImportanceSummary)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, second.ID)
	}
	n, err := store.CountEntries(ctx, "save-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one entry, got %d", n)
	}
	got, err := store.GetEntry(ctx, "save-1", first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Importance != ImportanceSummary {
		t.Fatalf("last write should win, importance = %d", got.Importance)
	}
}

func TestAddMemory_EmptyContentIsNoop(t *testing.T) {
	idx := newTestIndex(t, newTestStore(t))
	entry, err := idx.AddMemory(context.Background(), "   \n", 5)
	if err != nil || entry != nil {
		t.Fatalf("expected nil entry and nil error, got %v, %v", entry, err)
	}
}

func TestAddMemory_EmbeddingFailureFallsBackToLocal(t *testing.T) {
	emb := &fakeEmbedder{model: "fake", dims: 4, fail: func([]string) bool { return true }}
	idx := newTestIndex(t, newTestStore(t), WithEmbedder(emb))
	entry, err := idx.AddMemory(context.Background(), "玩家反馈Bug", 5)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if entry.VectorType != VectorTFIDF || len(entry.Vector) != VocabularySize() {
		t.Fatalf("expected local vector, got %s/%d", entry.VectorType, len(entry.Vector))
	}
}

func TestSearch_VectorTypeGating(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	local := newTestIndex(t, store)

	if _, err := local.AddMemory(ctx, "玩家反馈Bug太多", 5); err != nil {
		t.Fatalf("add: %v", err)
	}
	embedded := Entry{
		ID:             "mem_embedded",
		Content:        "玩家反馈Bug太多 (embedded)",
		Tags:           ExtractTags("玩家反馈Bug太多"),
		Vector:         []float32{1, 0, 0},
		VectorType:     VectorEmbedding,
		EmbeddingModel: "fake",
		Importance:     5,
		Category:       CategoryDevelopment,
	}
	if err := store.PutEntry(ctx, "save-1", embedded); err != nil {
		t.Fatalf("put: %v", err)
	}

	results, err := local.Search(ctx, "玩家反馈Bug太多", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Entry.VectorType != VectorTFIDF {
		t.Fatalf("local query must only see local entries, got %+v", results)
	}

	remote := newTestIndex(t, store, WithEmbedder(&fakeEmbedder{model: "fake", dims: 3}))
	results, err = remote.Search(ctx, "玩家反馈Bug太多", &SearchContext{RecentEvents: []string{"a", "b", "c", "d"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "mem_embedded" {
		t.Fatalf("embedding query must only see embedding entries, got %+v", results)
	}

	otherModel := newTestIndex(t, store, WithEmbedder(&fakeEmbedder{model: "other", dims: 3}))
	results, err = otherModel.Search(ctx, "玩家反馈Bug太多", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Entry.VectorType != VectorTFIDF {
		t.Fatalf("unknown model must fall back to local entries, got %+v", results)
	}
}

func TestSearch_RanksAndFallsBackBelowThreshold(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, newTestStore(t))
	for _, m := range []string{"融资成功，资金充足", "玩家反馈Bug太多", "A quiet afternoon"} {
		if _, err := idx.AddMemory(ctx, m, 5); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	results, err := idx.Search(ctx, "玩家反馈Bug", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Content != "玩家反馈Bug太多" {
		t.Fatalf("expected the community memory only, got %+v", results)
	}
	if len(results[0].MatchedTags) == 0 {
		t.Fatalf("expected matched tags")
	}

	results, err = idx.Search(ctx, "zzz", nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("below-threshold results should fall back to the full ranking, got %d", len(results))
	}
}

func TestSearch_DisabledReturnsNothing(t *testing.T) {
	p := DefaultPolicy()
	p.Enabled = false
	idx := newTestIndex(t, newTestStore(t), WithPolicy(p))
	results, err := idx.Search(context.Background(), "anything", nil)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected no results, got %v, %v", results, err)
	}
}

func TestSummarize_FallsBackToComposite(t *testing.T) {
	idx := newTestIndex(t, newTestStore(t), WithSummaryFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("endpoint unreachable")
	}))
	got := idx.Summarize(context.Background(), []string{"first", "second"})
	if len(got) != 1 || got[0] != "[Composite summary] first; second" {
		t.Fatalf("summaries = %v", got)
	}

	long := strings.Repeat("x", 500)
	noFn := newTestIndex(t, newTestStore(t))
	got = noFn.Summarize(context.Background(), []string{long})
	if len(got) != 1 || len([]rune(got[0])) != len([]rune(compositeSummaryPrefix))+200 {
		t.Fatalf("composite summary not truncated: %d", len(got[0]))
	}
}

func TestSummarize_KeepsLongLines(t *testing.T) {
	var gotUser string
	idx := newTestIndex(t, newTestStore(t), WithSummaryFunc(func(_ context.Context, _, user string) (string, error) {
		gotUser = user
		return "[2024-1-1 to 2024-2-1] Shipped the demo and raised funds\nshort\n\n[2024-2-2 to 2024-3-1] Hired two artists for the sequel", nil
	}))
	got := idx.Summarize(context.Background(), []string{"a", "b"})
	if len(got) != 2 {
		t.Fatalf("summaries = %v", got)
	}
	if !strings.Contains(gotUser, "1. a\n2. b") {
		t.Fatalf("prompt must number the batch: %q", gotUser)
	}
}

func TestCheckAndSummarize(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	p := DefaultPolicy()
	p.MidTermThreshold = 3
	p.BatchSize = 2
	idx := newTestIndex(t, store, WithPolicy(p), WithSummaryFunc(func(context.Context, string, string) (string, error) {
		return "[2024-1-1 to 2024-1-9] The studio survived its first month", nil
	}))

	if res := idx.CheckAndSummarize(ctx, []string{"a", "b"}); res.Triggered {
		t.Fatalf("below threshold must not trigger")
	}
	res := idx.CheckAndSummarize(ctx, []string{"a", "b", "c"})
	if !res.Triggered || res.ConsumedCount != 2 || len(res.Summaries) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	entries, err := idx.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(entries) != 1 || entries[0].Importance != ImportanceSummary {
		t.Fatalf("summary should be indexed at summary importance, got %+v", entries)
	}
}

func TestCheckAndSummarize_BusyConsumesNothing(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	p := DefaultPolicy()
	p.MidTermThreshold = 2
	p.BatchSize = 2
	idx := newTestIndex(t, newTestStore(t), WithPolicy(p), WithSummaryFunc(func(context.Context, string, string) (string, error) {
		close(started)
		<-release
		return "[2024-1-1 to 2024-1-9] Long enough summary line", nil
	}))

	done := make(chan []string, 1)
	go func() { done <- idx.Summarize(ctx, []string{"a", "b"}) }()
	<-started

	if res := idx.CheckAndSummarize(ctx, []string{"x", "y", "z"}); res.Triggered || res.ConsumedCount != 0 {
		t.Fatalf("overlapping summarization must be dropped, got %+v", res)
	}
	close(release)
	if got := <-done; len(got) != 1 {
		t.Fatalf("first summarization = %v", got)
	}
}

func TestRebuild_BatchesAndFallsBackPerBatch(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{model: "fake", dims: 4, fail: func(texts []string) bool {
		for _, text := range texts {
			if strings.Contains(text, "fail") {
				return true
			}
		}
		return false
	}}
	idx := newTestIndex(t, newTestStore(t), WithEmbedder(emb))
	if _, err := idx.AddMemory(ctx, "stale memory", 5); err != nil {
		t.Fatalf("add: %v", err)
	}

	var progress [][2]int
	res, err := idx.Rebuild(ctx, []string{"one", "two", "three", "please fail", "five", "  "}, RebuildOptions{
		BatchSize:  2,
		OnProgress: func(done, total int) { progress = append(progress, [2]int{done, total}) },
	})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if res.Imported != 5 || res.VectorType != VectorEmbedding || res.EmbeddingModel != "fake" {
		t.Fatalf("unexpected result %+v", res)
	}
	want := [][2]int{{2, 5}, {4, 5}, {5, 5}}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v", progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("progress = %v, want %v", progress, want)
		}
	}

	st, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 5 || st.ByVectorType[VectorEmbedding] != 3 || st.ByVectorType[VectorTFIDF] != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.ByEmbeddingModel["fake"] != 3 {
		t.Fatalf("by model = %v", st.ByEmbeddingModel)
	}
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, newTestStore(t))
	entry, err := idx.AddMemory(ctx, "Launched on Steam", 5)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := idx.Delete(ctx, entry.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := idx.Delete(ctx, entry.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
	if _, err := idx.AddMemory(ctx, "Launched on Switch", 5); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := idx.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	st, err := idx.Stats(ctx)
	if err != nil || st.Total != 0 {
		t.Fatalf("expected empty index, got %+v, %v", st, err)
	}

	_ = idx.Close()
	if _, err := idx.AddMemory(ctx, "after close", 5); !errors.Is(err, ErrIndexClosed) {
		t.Fatalf("err = %v, want ErrIndexClosed", err)
	}
}

func TestFormatForPrompt(t *testing.T) {
	if FormatForPrompt(nil, "") != "" {
		t.Fatalf("empty results must render nothing")
	}
	got := FormatForPrompt([]SearchResult{
		{Entry: Entry{Content: "Shipped Moonfall"}, MatchedTags: []string{"发布", "Moonfall"}},
		{Entry: Entry{Content: "Quiet month"}},
	}, "")
	want := "[Relevant long-term memories]\n- [发布,Moonfall] Shipped Moonfall\n- Quiet month"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
