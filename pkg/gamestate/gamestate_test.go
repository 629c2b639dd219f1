package gamestate

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/studiogm/pkg/commands"
	"github.com/dotsetgreg/studiogm/pkg/memory"
	"github.com/dotsetgreg/studiogm/pkg/tree"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCreation() CompanyCreation {
	return CompanyCreation{
		CompanyName: "Pixel Forge",
		Founder:     "Sam",
		StartYear:   2024,
		Difficulty:  "normal",
		Character: Character{
			Attributes: Attributes{Tech: 5, Creativity: 4, Marketing: 3, Networking: 3, Management: 3, Luck: 2},
		},
	}
}

func TestNewGame_StartingFunds(t *testing.T) {
	gs, err := NewGame(newTestCreation(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 11_000_000.0, gs.Funds())

	c := newTestCreation()
	c.Character.Talents = []Talent{{Name: "Rich Heir", Cost: 3}}
	gs, err = NewGame(c, testNow)
	require.NoError(t, err)
	assert.Equal(t, 16_000_000.0, gs.Funds())
}

func TestNewGame_AwardWinnerAwareness(t *testing.T) {
	c := newTestCreation()
	gs, err := NewGame(c, testNow)
	require.NoError(t, err)
	v, _ := tree.Get(gs.Tree, "company.info.awareness")
	assert.Equal(t, 0.0, v)

	c.Character.Talents = []Talent{{Name: TalentAwardWinner}}
	gs, err = NewGame(c, testNow)
	require.NoError(t, err)
	v, _ = tree.Get(gs.Tree, "company.info.awareness")
	assert.Equal(t, 20.0, v)
}

func TestNewGame_Layout(t *testing.T) {
	gs, err := NewGame(newTestCreation(), testNow)
	require.NoError(t, err)

	ts, ok := gs.Time()
	require.True(t, ok)
	assert.Equal(t, Time{Year: 2024, Month: 1, Day: 1, Hour: 9}, ts)
	assert.Equal(t, "2024-1-1", gs.TimeLabel())
	assert.Equal(t, "Pixel Forge", gs.CompanyName())
	assert.Equal(t, "Pixel Forge - new save", gs.SaveName())
	assert.Regexp(t, `^save_[0-9a-f-]{36}$`, gs.SaveID())

	for _, d := range Departments {
		eff, _ := tree.Get(gs.Tree, "company.departments."+d+".efficiency")
		morale, _ := tree.Get(gs.Tree, "company.departments."+d+".morale")
		assert.Equal(t, 50.0, eff, d)
		assert.Equal(t, 70.0, morale, d)
	}
	for _, p := range Platforms {
		_, ok := tree.Get(gs.Tree, "market.platforms."+p)
		assert.True(t, ok, p)
	}

	require.Equal(t, 1, gs.EmployeeCount())
	employees, _ := tree.Get(gs.Tree, "company.employees")
	for id, raw := range employees.(map[string]any) {
		emp := raw.(map[string]any)
		assert.Equal(t, id, emp["id"])
		assert.Equal(t, "CEO", emp["position"])
		skills := emp["skills"].(map[string]any)
		assert.Equal(t, 50.0, skills["programming"])
		assert.Equal(t, 28.0, skills["art"])
		assert.Equal(t, 45.0, skills["design"])
		assert.Equal(t, 25.0, skills["testing"])
	}
}

func TestNewGame_SkillsCapAt100(t *testing.T) {
	c := newTestCreation()
	c.Character.Attributes.Tech = 15
	gs, err := NewGame(c, testNow)
	require.NoError(t, err)
	employees, _ := tree.Get(gs.Tree, "company.employees")
	for _, raw := range employees.(map[string]any) {
		skills := raw.(map[string]any)["skills"].(map[string]any)
		assert.Equal(t, 100.0, skills["programming"])
		assert.Equal(t, 75.0, skills["testing"])
	}
}

func TestNewGame_Validation(t *testing.T) {
	for name, mutate := range map[string]func(*CompanyCreation){
		"no company": func(c *CompanyCreation) { c.CompanyName = " " },
		"no founder": func(c *CompanyCreation) { c.Founder = "" },
		"no year":    func(c *CompanyCreation) { c.StartYear = 0 },
	} {
		c := newTestCreation()
		mutate(&c)
		_, err := NewGame(c, testNow)
		assert.True(t, errors.Is(err, ErrInvalidCreation), name)
	}
}

func TestTimeAdvance(t *testing.T) {
	cases := []struct {
		name    string
		start   Time
		minutes int
		want    Time
	}{
		{"minutes only", Time{2024, 1, 1, 9, 0}, 30, Time{2024, 1, 1, 9, 30}},
		{"hour carry", Time{2024, 1, 1, 9, 45}, 30, Time{2024, 1, 1, 10, 15}},
		{"day carry", Time{2024, 1, 1, 23, 0}, 120, Time{2024, 1, 2, 1, 0}},
		{"month carry", Time{2024, 1, 30, 9, 0}, 24 * 60, Time{2024, 2, 1, 9, 0}},
		{"year carry", Time{2024, 12, 30, 23, 59}, 1, Time{2025, 1, 1, 0, 0}},
		{"many days", Time{2024, 1, 1, 0, 0}, 61 * 24 * 60, Time{2024, 3, 2, 0, 0}},
		{"negative ignored", Time{2024, 1, 1, 9, 0}, -5, Time{2024, 1, 1, 9, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.start.Advance(tc.minutes))
		})
	}
}

func TestGameState_AdvanceTime(t *testing.T) {
	gs, err := NewGame(newTestCreation(), testNow)
	require.NoError(t, err)
	require.NoError(t, gs.AdvanceTime(16*60))
	assert.Equal(t, "2024-1-2", gs.TimeLabel())

	empty := &GameState{Tree: map[string]any{}}
	assert.True(t, errors.Is(empty.AdvanceTime(5), ErrNoClock))
}

func TestDumpLoad_RoundTrip(t *testing.T) {
	gs, err := NewGame(newTestCreation(), testNow)
	require.NoError(t, err)
	gs.History = append(gs.History,
		NewPlayerMessage("hire an artist", "2024-1-1"),
		NewGMMessage("You post a job ad.", "2024-1-1", []string{"wait"}, commands.ChangeLog{
			Changes:   []commands.Change{{Key: "company.finance.funds", Action: commands.ActionAdd, OldValue: 1.0, NewValue: 2.0}},
			Timestamp: testNow,
		}, "hire an artist"),
	)
	gs.Memory.Append("posted a job ad", "2024-1-1", 0)
	gs.Memory.LongTerm = append(gs.Memory.LongTerm, "an older summary")

	doc := Dump(gs)
	_, hasHistory := tree.Get(gs.Tree, "system.history")
	assert.False(t, hasHistory, "Dump must not write into the live tree")

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	back, err := Load(decoded)
	require.NoError(t, err)
	if diff := cmp.Diff(gs, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpCompact_KeepsTail(t *testing.T) {
	gs := &GameState{Tree: map[string]any{}}
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		gs.History = append(gs.History, NewPlayerMessage(s, ""))
	}
	doc := DumpCompact(gs, 3)
	hist, ok := tree.Get(doc, "system.history.narrative")
	require.True(t, ok)
	items := hist.([]any)
	require.Len(t, items, 3)
	assert.Equal(t, "c", items[0].(map[string]any)["content"])
	assert.Len(t, gs.History, 5)
}

func TestLoad_FillsNamespacesAndRejectsScalars(t *testing.T) {
	gs, err := Load(map[string]any{"company": map[string]any{"info": map[string]any{"name": "X"}}})
	require.NoError(t, err)
	for _, root := range commands.Roots {
		assert.IsType(t, map[string]any{}, gs.Tree[root], root)
	}
	assert.Equal(t, "X", gs.CompanyName())
	assert.Equal(t, []Message{}, gs.History)
	assert.Equal(t, memory.Tiers{ShortTerm: []string{}, MidTerm: []string{}, LongTerm: []string{}}, gs.Memory)

	_, err = Load(map[string]any{"market": "nope"})
	assert.True(t, errors.Is(err, ErrInvalidDocument))
	_, err = Load(nil)
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}

func TestApply_CommitsThroughDocument(t *testing.T) {
	gs, err := NewGame(newTestCreation(), testNow)
	require.NoError(t, err)
	gs.Memory.Append("kept", "2024-1-1", 0)

	in := commands.NewInterpreter()
	next, log, err := gs.Apply(in, []commands.Command{
		{Action: commands.ActionAdd, Key: "company.finance.funds", Value: -500.0},
		{Action: commands.ActionSet, Key: "hacker.root", Value: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 11_000_000.0-500, next.Funds())
	assert.Equal(t, 11_000_000.0, gs.Funds())
	assert.Equal(t, 1, log.Len())
	assert.Equal(t, gs.Memory, next.Memory)
	_, ok := next.Tree["hacker"]
	assert.False(t, ok)
}

func TestApply_RollsBackCommandsThatBreakTheDocument(t *testing.T) {
	gs, err := NewGame(newTestCreation(), testNow)
	require.NoError(t, err)
	gs.Memory.Append("kept", "2024-1-1", 0)
	gs.History = append(gs.History, NewPlayerMessage("hire someone", "2024-1-1"))

	in := commands.NewInterpreter()
	next, log, err := gs.Apply(in, []commands.Command{
		{Action: commands.ActionSet, Key: "market", Value: 5.0},
		{Action: commands.ActionSet, Key: "system.memory.short_term", Value: "oops"},
		{Action: commands.ActionPush, Key: "system.history.narrative", Value: "not a message"},
		{Action: commands.ActionAdd, Key: "company.finance.funds", Value: -500.0},
	})
	require.NoError(t, err)
	assert.Equal(t, 11_000_000.0-500, next.Funds())
	assert.IsType(t, map[string]any{}, next.Tree["market"])
	assert.Equal(t, gs.Memory, next.Memory)
	assert.Len(t, next.History, 1)
	require.Len(t, log.Skipped, 3)
	for _, sk := range log.Skipped {
		assert.Contains(t, sk.Reason, commands.ErrBadShape.Error(), sk.Key)
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	gs, err := NewGame(newTestCreation(), testNow)
	require.NoError(t, err)
	later := testNow.Add(time.Hour)
	data, err := Marshal(gs, later)
	require.NoError(t, err)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	updated, _ := tree.Get(back.Tree, "metadata.updated_at")
	assert.Equal(t, later.Format(time.RFC3339), updated)
	assert.Equal(t, gs.SaveID(), back.SaveID())

	_, err = Unmarshal([]byte("{"))
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}
