// Package gamestate holds the live world document of one save: the five
// namespace tree, the narrative history and the three memory tiers.
package gamestate

import (
	"github.com/dotsetgreg/studiogm/pkg/commands"
	"github.com/dotsetgreg/studiogm/pkg/memory"
	"github.com/dotsetgreg/studiogm/pkg/tree"
)

// GameState is the world snapshot. Tree never carries system.history or
// system.memory; those live in History and Memory and are merged back by Dump.
type GameState struct {
	Tree    map[string]any
	History []Message
	Memory  memory.Tiers
}

// Clone returns a copy sharing nothing with gs.
func (gs *GameState) Clone() *GameState {
	if gs == nil {
		return nil
	}
	history := make([]Message, len(gs.History))
	copy(history, gs.History)
	for i := range history {
		history[i].ActionOptions = append([]string(nil), history[i].ActionOptions...)
	}
	return &GameState{
		Tree:    tree.CopyMap(gs.Tree),
		History: history,
		Memory:  gs.Memory.Clone(),
	}
}

// Time is the current in-game time. ok is false when metadata.time is absent
// or unreadable.
func (gs *GameState) Time() (Time, bool) {
	return timeFromTree(gs.Tree)
}

// TimeLabel formats the current date, or "" when the clock is unset.
func (gs *GameState) TimeLabel() string {
	t, ok := gs.Time()
	if !ok {
		return ""
	}
	return t.Format()
}

// AdvanceTime moves metadata.time forward by minutes.
func (gs *GameState) AdvanceTime(minutes int) error {
	t, ok := gs.Time()
	if !ok {
		return ErrNoClock
	}
	return tree.Set(gs.Tree, timePath, t.Advance(minutes).toTree())
}

func (gs *GameState) SaveID() string {
	return gs.stringAt("metadata.save_id")
}

func (gs *GameState) SaveName() string {
	return gs.stringAt("metadata.save_name")
}

func (gs *GameState) CompanyName() string {
	return gs.stringAt("company.info.name")
}

// Funds reads company.finance.funds; missing or non-numeric reads as zero.
func (gs *GameState) Funds() float64 {
	v, _ := tree.Get(gs.Tree, "company.finance.funds")
	f, _ := tree.AsNumber(v)
	return f
}

// EmployeeCount is the number of entries under company.employees.
func (gs *GameState) EmployeeCount() int {
	v, _ := tree.Get(gs.Tree, "company.employees")
	m, _ := v.(map[string]any)
	return len(m)
}

// Apply runs cmds through in and returns the resulting state. gs is left
// untouched. A command that would leave the document unloadable is rolled
// back and reported as skipped.
func (gs *GameState) Apply(in *commands.Interpreter, cmds []commands.Command) (*GameState, commands.ChangeLog, error) {
	next, log := in.ApplyChecked(cmds, Dump(gs), checkCommand)
	state, err := Load(next)
	if err != nil {
		return nil, log, err
	}
	return state, log, nil
}

func (gs *GameState) stringAt(path string) string {
	v, _ := tree.Get(gs.Tree, path)
	s, _ := v.(string)
	return s
}
