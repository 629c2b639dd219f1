package commands

import (
	"time"
)

type Action string

const (
	ActionSet    Action = "set"
	ActionAdd    Action = "add"
	ActionPush   Action = "push"
	ActionDelete Action = "delete"
	ActionPull   Action = "pull"
)

func (a Action) Valid() bool {
	switch a {
	case ActionSet, ActionAdd, ActionPush, ActionDelete, ActionPull:
		return true
	default:
		return false
	}
}

// Command is one state mutation emitted by the game master. Value is decoded
// JSON and its meaning depends on Action.
type Command struct {
	Action Action `json:"action"`
	Key    string `json:"key"`
	Value  any    `json:"value,omitempty"`
}

// Change records the value at Key before and after one attempted command.
// Absent values are nil.
type Change struct {
	Key      string `json:"key"`
	Action   Action `json:"action"`
	OldValue any    `json:"oldValue"`
	NewValue any    `json:"newValue"`
}

type Skipped struct {
	Key    string `json:"key"`
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

type ChangeLog struct {
	Changes   []Change  `json:"changes"`
	Skipped   []Skipped `json:"skipped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (l ChangeLog) Len() int { return len(l.Changes) }
