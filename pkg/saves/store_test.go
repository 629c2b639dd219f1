package saves

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/studiogm/pkg/gamestate"
	"github.com/dotsetgreg/studiogm/pkg/tree"
)

func newTestStore(t *testing.T, now *time.Time) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "saves.db"), WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newGame(t *testing.T, name string) *gamestate.GameState {
	t.Helper()
	gs, err := gamestate.NewGame(gamestate.CompanyCreation{
		CompanyName: name,
		Founder:     "Sam",
		StartYear:   2024,
		Character: gamestate.Character{
			Attributes: gamestate.Attributes{Tech: 3, Creativity: 3},
		},
	}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return gs
}

func TestSaveLoadRoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s := newTestStore(t, &now)
	ctx := context.Background()

	gs := newGame(t, "Pixel Forge")
	gs.History = append(gs.History, gamestate.NewPlayerMessage("hello", "2024-1-1"))
	gs.Memory.LongTerm = []string{"founded in a garage"}

	sum, err := s.Save(ctx, gs)
	require.NoError(t, err)
	assert.Equal(t, gs.SaveID(), sum.ID)
	assert.Equal(t, "Pixel Forge", sum.Company)
	assert.Equal(t, "2024-1-1", sum.GameTime)
	assert.True(t, now.Equal(sum.UpdatedAt))

	loaded, err := s.Load(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, gs.History, loaded.History)
	assert.Equal(t, gs.Memory.LongTerm, loaded.Memory.LongTerm)
	updated, _ := tree.Get(loaded.Tree, "metadata.updated_at")
	assert.Equal(t, "2026-05-04T10:00:00Z", updated)

	tree.Unset(loaded.Tree, "metadata.updated_at")
	want := tree.CopyMap(gs.Tree)
	tree.Unset(want, "metadata.updated_at")
	if diff := cmp.Diff(want, loaded.Tree); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveOverwritesAndLists(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s := newTestStore(t, &now)
	ctx := context.Background()

	first := newGame(t, "First")
	second := newGame(t, "Second")
	_, err := s.Save(ctx, first)
	require.NoError(t, err)
	now = now.Add(time.Minute)
	_, err = s.Save(ctx, second)
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Second", list[0].Company)
	assert.Equal(t, "First", list[1].Company)

	now = now.Add(time.Minute)
	require.NoError(t, first.AdvanceTime(24*60))
	_, err = s.Save(ctx, first)
	require.NoError(t, err)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.SaveID(), latest.ID)
	assert.Equal(t, "2024-1-2", latest.GameTime)

	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestLoadAndDeleteMissing(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, &now)
	ctx := context.Background()

	_, err := s.Load(ctx, "save_missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "save_missing"), ErrNotFound)

	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, &now)
	ctx := context.Background()

	gs := newGame(t, "Gone Soon")
	sum, err := s.Save(ctx, gs)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, sum.ID))

	_, err = s.Load(ctx, sum.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRequiresID(t *testing.T) {
	now := time.Now()
	s := newTestStore(t, &now)
	gs := newGame(t, "No ID")
	tree.Unset(gs.Tree, "metadata.save_id")

	_, err := s.Save(context.Background(), gs)
	assert.ErrorIs(t, err, ErrNoSaveID)
}
