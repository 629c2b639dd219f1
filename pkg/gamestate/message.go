package gamestate

import (
	"strings"

	"github.com/dotsetgreg/studiogm/pkg/commands"
)

type MessageType string

const (
	MessagePlayer MessageType = "player"
	MessageGM     MessageType = "gm"
)

// Message is one entry of the narrative history.
type Message struct {
	Type          MessageType         `json:"type"`
	Role          string              `json:"role"`
	Content       string              `json:"content"`
	Time          string              `json:"time"`
	ActionOptions []string            `json:"actionOptions,omitempty"`
	StateChanges  *commands.ChangeLog `json:"stateChanges,omitempty"`
	PlayerInput   string              `json:"playerInput,omitempty"`
}

func NewPlayerMessage(input, timeLabel string) Message {
	return Message{
		Type:    MessagePlayer,
		Role:    "user",
		Content: input,
		Time:    timeLabel,
	}
}

// NewGMMessage records a game master turn. playerInput is empty for the
// opening narration.
func NewGMMessage(text, timeLabel string, options []string, changes commands.ChangeLog, playerInput string) Message {
	msg := Message{
		Type:          MessageGM,
		Role:          "assistant",
		Content:       text,
		Time:          timeLabel,
		ActionOptions: append([]string(nil), options...),
		PlayerInput:   playerInput,
	}
	if len(changes.Changes) > 0 || len(changes.Skipped) > 0 {
		log := changes
		msg.StateChanges = &log
	}
	return msg
}

// ChatRole maps the history entry onto a chat completion role.
func (m Message) ChatRole() string {
	if m.Role != "" {
		return m.Role
	}
	if m.Type == MessageGM {
		return "assistant"
	}
	return "user"
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}
