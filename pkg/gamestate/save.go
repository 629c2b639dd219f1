package gamestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/studiogm/pkg/commands"
	"github.com/dotsetgreg/studiogm/pkg/memory"
	"github.com/dotsetgreg/studiogm/pkg/tree"
)

// SaveVersion is written to metadata.version by NewGame.
const SaveVersion = 1

var (
	ErrInvalidDocument = errors.New("invalid save document")
	ErrNoClock         = errors.New("metadata.time is not set")
)

// Dump renders gs as a save document with history and memory merged under
// system. The result shares nothing with gs.
func Dump(gs *GameState) map[string]any {
	return dump(gs, -1)
}

// DumpCompact is Dump with the history cut to its last keep entries. It is
// the form embedded in prompts.
func DumpCompact(gs *GameState, keep int) map[string]any {
	if keep < 0 {
		keep = 0
	}
	return dump(gs, keep)
}

func dump(gs *GameState, keep int) map[string]any {
	doc := tree.CopyMap(gs.Tree)
	if doc == nil {
		doc = map[string]any{}
	}
	history := gs.History
	if keep >= 0 && len(history) > keep {
		history = history[len(history)-keep:]
	}
	hist, err := tree.Normalize(history)
	if err != nil || hist == nil {
		hist = []any{}
	}
	mem, err := tree.Normalize(gs.Memory.Clone())
	if err != nil {
		mem = map[string]any{"short_term": []any{}, "mid_term": []any{}, "long_term": []any{}}
	}
	_ = tree.Set(doc, "system.history", map[string]any{"narrative": hist})
	_ = tree.Set(doc, "system.memory", mem)
	return doc
}

// Load builds a GameState from a save document. Missing namespaces are created
// empty. A namespace holding something other than an object is an error.
func Load(doc map[string]any) (*GameState, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	working := tree.CopyMap(doc)
	for _, root := range commands.Roots {
		v, ok := working[root]
		if !ok || v == nil {
			working[root] = map[string]any{}
			continue
		}
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Errorf("%w: %s is %T, not an object", ErrInvalidDocument, root, v)
		}
	}

	history, tiers, err := decodeSystem(working)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	gs := &GameState{Tree: working, History: history, Memory: tiers}
	tree.Unset(working, "system.history")
	tree.Unset(working, "system.memory")
	if gs.History == nil {
		gs.History = []Message{}
	}
	gs.Memory = gs.Memory.Clone()
	return gs, nil
}

// Marshal encodes the full save document, stamping metadata.updated_at.
func Marshal(gs *GameState, now time.Time) ([]byte, error) {
	doc := Dump(gs)
	_ = tree.Set(doc, "metadata.updated_at", now.UTC().Format(time.RFC3339))
	return json.Marshal(doc)
}

func Unmarshal(data []byte) (*GameState, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return Load(doc)
}

// decodeSystem reads the history and memory tiers merged under system.
func decodeSystem(doc map[string]any) ([]Message, memory.Tiers, error) {
	var (
		history []Message
		tiers   memory.Tiers
	)
	if raw, ok := tree.Get(doc, "system.history.narrative"); ok {
		if err := decodeInto(raw, &history); err != nil {
			return nil, memory.Tiers{}, fmt.Errorf("history: %w", err)
		}
	}
	if raw, ok := tree.Get(doc, "system.memory"); ok {
		if err := decodeInto(raw, &tiers); err != nil {
			return nil, memory.Tiers{}, fmt.Errorf("memory: %w", err)
		}
	}
	return history, tiers, nil
}

// checkCommand keeps commands under system from leaving history or memory in
// a form Load cannot read.
func checkCommand(key string, doc map[string]any) error {
	if key != "system" && !strings.HasPrefix(key, "system.") {
		return nil
	}
	_, _, err := decodeSystem(doc)
	return err
}

func decodeInto(raw any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
