package response

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/studiogm/pkg/commands"
)

func TestParse_TrailingCommaInFence(t *testing.T) {
	raw := "```json\n{\"text\":\"hi\",\"tavern_commands\":[],\"action_options\":[\"a\"],}\n```"
	resp, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)
	assert.Equal(t, []string{"a"}, resp.ActionOptions)
	assert.NotNil(t, resp.Commands)
	assert.Empty(t, resp.Commands)
}

func TestParse_RoundTrip(t *testing.T) {
	want := Response{
		Text:          "Your studio opens its doors.",
		MidTermMemory: "Founded Pixel Forge",
		Commands: []commands.Command{
			{Action: commands.ActionAdd, Key: "company.finance.funds", Value: -500.0},
			{Action: commands.ActionPush, Key: "market.trends", Value: map[string]any{"name": "roguelike", "heat": 80.0}},
			{Action: commands.ActionDelete, Key: "project.focus"},
		},
		ActionOptions: []string{"hire", "rest"},
		StatusBar:     map[string]any{"mood": "hopeful"},
	}
	data, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := Parse(string(data))
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Strategies(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		text string
	}{
		{"prose around object", `Sure! {"text":"a {b} c","action_options":["x"]} hope that helps`, "a {b} c"},
		{"truncated object", `{"text":"cut","action_options":["x"]`, "cut"},
		{"thinking block", `<thinking>{ not json }</thinking>{"text":"after"}`, "after"},
		{"full-width punctuation and bare keys", `{text："你好"，action_options：["a"]}`, "你好"},
		{"raw newline in string", "{\"text\":\"line1\nline2\"}", "line1\nline2"},
		{"single quoted key", `{'text': "hi"}`, "hi"},
		{"smart quotes", `{“text”: “quoted”}`, "quoted"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := Parse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.text, resp.Text)
		})
	}
}

func TestParse_CommandsFieldAndValidation(t *testing.T) {
	raw := `{"text":"t","commands":[
		"junk",
		{"action":"explode","key":"company.a"},
		{"action":"set"},
		{"action":"set","key":""},
		{"action":"add","key":"company.finance.funds","value":-5}
	]}`
	resp, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, commands.Command{Action: commands.ActionAdd, Key: "company.finance.funds", Value: -5.0}, resp.Commands[0])
}

func TestParse_PrefersTavernCommands(t *testing.T) {
	resp, err := Parse(`{"tavern_commands":[{"action":"delete","key":"market.x"}],"commands":[{"action":"delete","key":"market.y"}]}`)
	require.NoError(t, err)
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, "market.x", resp.Commands[0].Key)
}

func TestParse_Defaults(t *testing.T) {
	resp, err := Parse(`{"commands":"not an array","action_options":[]}`)
	require.NoError(t, err)
	assert.Equal(t, Placeholder, resp.Text)
	assert.Equal(t, "", resp.MidTermMemory)
	assert.Equal(t, []commands.Command{}, resp.Commands)
	assert.Equal(t, DefaultOptions, resp.ActionOptions)
	assert.Nil(t, resp.StatusBar)
}

func TestParse_NoJSON(t *testing.T) {
	for _, raw := range []string{"", "   ", "just prose", "[1,2,3]"} {
		_, err := Parse(raw)
		assert.True(t, errors.Is(err, ErrNoJSON), "raw %q: %v", raw, err)
	}
}

func TestFallback(t *testing.T) {
	resp := Fallback("plain story", "", nil)
	assert.Equal(t, "plain story", resp.Text)
	assert.Equal(t, []commands.Command{}, resp.Commands)
	assert.Equal(t, DefaultOptions, resp.ActionOptions)

	resp.ActionOptions[0] = "mutated"
	assert.Equal(t, "continue", DefaultOptions[0])

	assert.Equal(t, Placeholder, Fallback("  ", "", nil).Text)
}

func TestRepair_Idempotent(t *testing.T) {
	inputs := []string{
		`{a：1，b：[1,2,]，}`,
		"{'k': \"v\tw\"}",
		`{"done": true}`,
	}
	for _, in := range inputs {
		once := Repair(in)
		assert.Equal(t, once, Repair(once), in)
	}
}

func TestRepair_FoldsOnlyPunctuation(t *testing.T) {
	got := Repair(`{"text":"销量突破１００万　份"，"n"：1，}`)
	assert.Equal(t, `{"text":"销量突破１００万　份","n":1}`, got)

	resp, err := Parse("```json\n{\"text\":\"销量突破１００万　份\",\"action_options\":[\"a\"],}\n```")
	require.NoError(t, err)
	assert.Equal(t, "销量突破１００万　份", resp.Text)
}
