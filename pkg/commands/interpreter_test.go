package commands

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/studiogm/pkg/tree"
)

func baseState() map[string]any {
	return map[string]any{
		"metadata": map[string]any{"time": map[string]any{"year": 2024.0, "month": 1.0, "day": 1.0}},
		"company": map[string]any{
			"finance": map[string]any{"funds": 1000.0},
			"tags":    []any{map[string]any{"a": 1.0}, map[string]any{"b": 2.0}},
		},
		"project": map[string]any{},
		"market":  map[string]any{"trends": []any{"roguelike", "cozy"}},
		"system":  map[string]any{},
	}
}

func mustGet(t *testing.T, doc map[string]any, key string) any {
	t.Helper()
	v, ok := tree.Get(doc, key)
	require.True(t, ok, "missing %s", key)
	return v
}

func TestApply_AddDecrementsFunds(t *testing.T) {
	in := NewInterpreter()
	out, log := in.Apply([]Command{{Action: ActionAdd, Key: "company.finance.funds", Value: -500.0}}, baseState())

	assert.Equal(t, 500.0, mustGet(t, out, "company.finance.funds"))
	require.Len(t, log.Changes, 1)
	assert.Equal(t, 1000.0, log.Changes[0].OldValue)
	assert.Equal(t, 500.0, log.Changes[0].NewValue)
}

func TestApply_AddOnMissingPathStartsAtZero(t *testing.T) {
	in := NewInterpreter()
	out, _ := in.Apply([]Command{{Action: ActionAdd, Key: "company.finance.loans", Value: "250"}}, baseState())
	assert.Equal(t, 250.0, mustGet(t, out, "company.finance.loans"))
}

func TestApply_AddNonNumericIsSkippedButLogged(t *testing.T) {
	in := NewInterpreter()
	out, log := in.Apply([]Command{{Action: ActionAdd, Key: "company.finance.funds", Value: "lots"}}, baseState())

	assert.Equal(t, 1000.0, mustGet(t, out, "company.finance.funds"))
	require.Len(t, log.Changes, 1)
	assert.Equal(t, log.Changes[0].OldValue, log.Changes[0].NewValue)
	require.Len(t, log.Skipped, 1)
}

func TestApply_NamespaceGuard(t *testing.T) {
	in := NewInterpreter()
	state := baseState()
	cmds := []Command{
		{Action: ActionSet, Key: "secrets.token", Value: "x"},
		{Action: ActionSet, Key: "companyX.funds", Value: 1.0},
		{Action: ActionSet, Key: "Company.finance.funds", Value: 1.0},
		{Action: ActionDelete, Key: ""},
	}
	out, log := in.Apply(cmds, state)

	if diff := cmp.Diff(baseState(), out); diff != "" {
		t.Fatalf("state changed (-want +got):\n%s", diff)
	}
	assert.Empty(t, log.Changes)
	assert.Len(t, log.Skipped, 4)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := NewInterpreter()
	state := baseState()
	_, _ = in.Apply([]Command{
		{Action: ActionSet, Key: "company.finance.funds", Value: 1.0},
		{Action: ActionPush, Key: "market.trends", Value: "soulslike"},
		{Action: ActionDelete, Key: "metadata.time"},
	}, state)

	if diff := cmp.Diff(baseState(), state); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
}

func TestApply_SetDeepCopiesValue(t *testing.T) {
	in := NewInterpreter()
	value := map[string]any{"name": "Moonfall", "progress": map[string]any{"code": 10.0}}
	out, _ := in.Apply([]Command{{Action: ActionSet, Key: "project.current.p1", Value: value}}, baseState())

	value["progress"].(map[string]any)["code"] = 99.0
	assert.Equal(t, 10.0, mustGet(t, out, "project.current.p1.progress.code"))
}

func TestApply_Push(t *testing.T) {
	in := NewInterpreter()
	out, _ := in.Apply([]Command{
		{Action: ActionPush, Key: "market.trends", Value: "soulslike"},
		{Action: ActionPush, Key: "market.world_events", Value: map[string]any{"title": "expo"}},
		{Action: ActionPush, Key: "company.finance.funds", Value: 1.0},
	}, baseState())

	assert.Equal(t, []any{"roguelike", "cozy", "soulslike"}, mustGet(t, out, "market.trends"))
	assert.Equal(t, []any{map[string]any{"title": "expo"}}, mustGet(t, out, "market.world_events"))
	assert.Equal(t, []any{1.0}, mustGet(t, out, "company.finance.funds"))
}

func TestApply_DeleteRemovesKey(t *testing.T) {
	in := NewInterpreter()
	out, log := in.Apply([]Command{{Action: ActionDelete, Key: "company.finance.funds"}}, baseState())

	finance := mustGet(t, out, "company.finance").(map[string]any)
	_, present := finance["funds"]
	assert.False(t, present)
	require.Len(t, log.Changes, 1)
	assert.Nil(t, log.Changes[0].NewValue)
}

func TestApply_PullStructuralEquality(t *testing.T) {
	in := NewInterpreter()
	out, _ := in.Apply([]Command{
		{Action: ActionPull, Key: "company.tags", Value: map[string]any{"a": 1.0}},
		{Action: ActionPull, Key: "market.trends", Value: "cozy"},
		{Action: ActionPull, Key: "company.finance.funds", Value: 1000.0},
	}, baseState())

	assert.Equal(t, []any{map[string]any{"b": 2.0}}, mustGet(t, out, "company.tags"))
	assert.Equal(t, []any{"roguelike"}, mustGet(t, out, "market.trends"))
	assert.Equal(t, 1000.0, mustGet(t, out, "company.finance.funds"))
}

func TestApply_PreservesOrderAndContinuesAfterFailure(t *testing.T) {
	in := NewInterpreter(WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }))
	out, log := in.Apply([]Command{
		{Action: ActionAdd, Key: "company.finance.funds", Value: 1.0},
		{Action: "explode", Key: "company.finance.funds", Value: 1.0},
		{Action: ActionSet, Key: "market.trends.9", Value: "gap"},
		{Action: ActionAdd, Key: "company.finance.funds", Value: 2.0},
	}, baseState())

	assert.Equal(t, 1003.0, mustGet(t, out, "company.finance.funds"))
	keys := make([]string, 0, len(log.Changes))
	for _, c := range log.Changes {
		keys = append(keys, string(c.Action))
	}
	assert.Equal(t, []string{"add", "explode", "set", "add"}, keys)
	assert.Len(t, log.Skipped, 2)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), log.Timestamp)
}

func TestApply_StrictRulesRollBackViolations(t *testing.T) {
	in := NewInterpreter(WithRules(StrictRules()...))
	state := baseState()
	require.NoError(t, tree.Set(state, "company.departments.rnd.morale", 70.0))

	out, log := in.Apply([]Command{
		{Action: ActionAdd, Key: "company.departments.rnd.morale", Value: 50.0},
		{Action: ActionSet, Key: "company.employees.e1.salary", Value: -10.0},
		{Action: ActionAdd, Key: "company.departments.rnd.morale", Value: 10.0},
	}, state)

	assert.Equal(t, 80.0, mustGet(t, out, "company.departments.rnd.morale"))
	_, ok := tree.Get(out, "company.employees.e1.salary")
	assert.False(t, ok)
	assert.Len(t, log.Skipped, 2)
}

func TestApply_RootMustStayObject(t *testing.T) {
	in := NewInterpreter()
	out, log := in.Apply([]Command{
		{Action: ActionSet, Key: "market", Value: 5.0},
		{Action: ActionPush, Key: "system", Value: "x"},
		{Action: ActionAdd, Key: "company.finance.funds", Value: -500.0},
		{Action: ActionDelete, Key: "project"},
	}, baseState())

	assert.Equal(t, map[string]any{"trends": []any{"roguelike", "cozy"}}, out["market"])
	assert.Equal(t, map[string]any{}, out["system"])
	assert.Equal(t, 500.0, mustGet(t, out, "company.finance.funds"))
	_, ok := out["project"]
	assert.False(t, ok)
	require.Len(t, log.Skipped, 2)
	assert.Equal(t, "market", log.Skipped[0].Key)
	assert.Equal(t, "system", log.Skipped[1].Key)
	require.Len(t, log.Changes, 4)
	assert.Equal(t, log.Changes[0].OldValue, log.Changes[0].NewValue)
}

func TestApplyChecked_RollsBackRejectedCommand(t *testing.T) {
	in := NewInterpreter()
	check := func(key string, doc map[string]any) error {
		if v, ok := tree.Get(doc, "system.locked"); ok && v != true {
			return assert.AnError
		}
		return nil
	}
	state := baseState()
	require.NoError(t, tree.Set(state, "system.locked", true))

	out, log := in.ApplyChecked([]Command{
		{Action: ActionSet, Key: "system.locked", Value: "no"},
		{Action: ActionAdd, Key: "company.finance.funds", Value: 1.0},
	}, state, check)

	assert.Equal(t, true, mustGet(t, out, "system.locked"))
	assert.Equal(t, 1001.0, mustGet(t, out, "company.finance.funds"))
	require.Len(t, log.Skipped, 1)
	assert.Contains(t, log.Skipped[0].Reason, ErrBadShape.Error())
}

func TestRuleMatches(t *testing.T) {
	r := NonNegative("company.employees.*.salary")
	assert.True(t, r.Matches("company.employees.e1.salary"))
	assert.False(t, r.Matches("company.employees.e1.salary.base"))
	assert.False(t, r.Matches("company.employees.salary"))
}

func TestFormatChange(t *testing.T) {
	got := FormatChange(Change{Key: "company.finance.funds", Action: ActionAdd, OldValue: 1000.0, NewValue: 500.0})
	assert.Equal(t, "add company.finance.funds: 1000 -> 500", got)
	got = FormatChange(Change{Key: "market.x", Action: ActionSet})
	assert.Equal(t, "set market.x: <none> -> <none>", got)
}
