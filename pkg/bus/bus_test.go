package bus

import (
	"context"
	"testing"
	"time"
)

func TestEventBus_PublishDropsWhenBufferFull(t *testing.T) {
	b := New(4)
	defer b.Close()

	for i := 0; i < cap(b.events); i++ {
		b.Publish(Event{TurnID: "t", Kind: KindPhase, Phase: "generating"})
	}

	b.Publish(Event{TurnID: "t", Kind: KindCommitted})
	if b.Dropped() != 1 {
		t.Fatalf("expected dropped count 1, got %d", b.Dropped())
	}
}

func TestEventBus_ConsumeInOrder(t *testing.T) {
	b := New(0)
	defer b.Close()

	b.Publish(Event{TurnID: "t", Kind: KindPhase, Phase: "building"})
	b.Publish(Event{TurnID: "t", Kind: KindCommitted})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first, ok := b.Consume(ctx)
	if !ok || first.Phase != "building" || first.Terminal() {
		t.Fatalf("unexpected first event %+v ok=%v", first, ok)
	}
	if first.At.IsZero() {
		t.Fatalf("expected publish to stamp the event time")
	}
	second, ok := b.Consume(ctx)
	if !ok || second.Kind != KindCommitted || !second.Terminal() {
		t.Fatalf("unexpected second event %+v ok=%v", second, ok)
	}
}

func TestEventBus_DrainEmptiesBuffer(t *testing.T) {
	b := New(8)
	defer b.Close()
	for i := 0; i < 3; i++ {
		b.Publish(Event{Kind: KindPhase})
	}
	if n := b.Drain(); n != 3 {
		t.Fatalf("expected 3 drained, got %d", n)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.Consume(ctx); ok {
		t.Fatalf("expected nothing left after drain")
	}
}

func TestEventBus_ClosedReturnsFalse(t *testing.T) {
	b := New(1)
	b.Close()
	b.Publish(Event{Kind: KindFailed})

	if _, ok := b.Consume(context.Background()); ok {
		t.Fatalf("expected closed consume to return ok=false")
	}
}
