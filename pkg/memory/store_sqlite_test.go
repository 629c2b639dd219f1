package memory

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dotsetgreg/studiogm/pkg/logger"
)

func TestSQLiteStore_PartitionsBySave(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	a := Entry{ID: "mem_1", Content: "save a", Tags: []string{"x"}, Vector: []float32{0.6, 0.8}, Importance: 5, Category: CategoryOther}
	b := Entry{ID: "mem_1", Content: "save b", Importance: 7, Category: CategoryFinance, VectorType: VectorEmbedding, EmbeddingModel: "m"}
	if err := store.PutEntry(ctx, "a", a); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := store.PutEntries(ctx, "b", []Entry{b}); err != nil {
		t.Fatalf("put b: %v", err)
	}

	got, err := store.GetEntry(ctx, "a", "mem_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "save a" || got.VectorType != VectorTFIDF || len(got.Vector) != 2 || got.Tags[0] != "x" {
		t.Fatalf("unexpected entry %+v", got)
	}

	if err := store.ClearEntries(ctx, "a"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.GetEntry(ctx, "a", "mem_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	n, err := store.CountEntries(ctx, "b")
	if err != nil || n != 1 {
		t.Fatalf("save b should be untouched, count=%d err=%v", n, err)
	}
	if err := store.PutEntry(ctx, "", a); !errors.Is(err, ErrNoSaveID) {
		t.Fatalf("err = %v, want ErrNoSaveID", err)
	}
}

func TestSQLiteStore_CorruptTagsLoadWithWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger.UseLogger(zap.New(core))
	t.Cleanup(func() { logger.UseLogger(zap.NewNop()) })

	ctx := context.Background()
	store := newTestStore(t)
	if err := store.PutEntry(ctx, "a", Entry{ID: "mem_1", Content: "budget talk", Tags: []string{"budget"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, `UPDATE vector_memories SET tags_json = '{broken', metadata_json = 'nope' WHERE id = 'mem_1'`); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	got, err := store.GetEntry(ctx, "a", "mem_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "budget talk" || len(got.Tags) != 0 || len(got.Metadata.People) != 0 {
		t.Fatalf("unexpected entry %+v", got)
	}
	warned := logs.FilterField(zap.String("component", "vector")).FilterField(zap.String("id", "mem_1"))
	if warned.Len() != 2 {
		t.Fatalf("expected two vector warnings, got %d", warned.Len())
	}
}
