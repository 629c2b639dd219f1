package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/studiogm/pkg/logger"
	"github.com/dotsetgreg/studiogm/pkg/tree"
)

// Roots are the namespaces a command key may start with.
var Roots = []string{"metadata", "company", "project", "market", "system"}

var (
	ErrInvalidKey     = errors.New("key outside allowed namespaces")
	ErrUnknownAction  = errors.New("unknown action")
	ErrNotNumeric     = errors.New("add value is not numeric")
	ErrRuleViolation  = errors.New("value rejected by rule")
	ErrMissingPayload = errors.New("value is required")
	ErrBadShape       = errors.New("command breaks document shape")
)

// DocumentCheck inspects the document after the command at key has run. A
// non-nil error rolls the command back.
type DocumentCheck func(key string, doc map[string]any) error

type Interpreter struct {
	roots map[string]struct{}
	rules []Rule
	now   func() time.Time
}

type Option func(*Interpreter)

// WithRules installs value checks evaluated after each mutation.
func WithRules(rules ...Rule) Option {
	return func(in *Interpreter) {
		in.rules = append(in.rules, rules...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(in *Interpreter) {
		if now != nil {
			in.now = now
		}
	}
}

func NewInterpreter(opts ...Option) *Interpreter {
	in := &Interpreter{
		roots: make(map[string]struct{}, len(Roots)),
		now:   time.Now,
	}
	for _, r := range Roots {
		in.roots[r] = struct{}{}
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// ValidKey reports whether key's first path component is one of Roots.
func (in *Interpreter) ValidKey(key string) bool {
	segs, err := tree.Split(key)
	if err != nil {
		return false
	}
	_, ok := in.roots[segs[0]]
	return ok
}

// Apply runs cmds in order against a deep copy of state and returns the copy
// with its change log. state itself is never modified. A failing command is
// skipped and the rest of the batch still runs.
func (in *Interpreter) Apply(cmds []Command, state map[string]any) (map[string]any, ChangeLog) {
	return in.ApplyChecked(cmds, state, nil)
}

// ApplyChecked is Apply with an extra per-command document check. Every
// namespace root must stay an object (or be absent) whether or not check is
// set.
func (in *Interpreter) ApplyChecked(cmds []Command, state map[string]any, check DocumentCheck) (map[string]any, ChangeLog) {
	working := tree.CopyMap(state)
	if working == nil {
		working = map[string]any{}
	}
	log := ChangeLog{
		Changes:   make([]Change, 0, len(cmds)),
		Timestamp: in.now().UTC(),
	}

	for _, cmd := range cmds {
		if !in.ValidKey(cmd.Key) {
			logger.WarnCF("commands", "Rejected command key", map[string]interface{}{
				"key":    cmd.Key,
				"action": string(cmd.Action),
			})
			log.Skipped = append(log.Skipped, Skipped{Key: cmd.Key, Action: cmd.Action, Reason: ErrInvalidKey.Error()})
			continue
		}

		oldRaw, hadOld := tree.Get(working, cmd.Key)
		oldValue := tree.DeepCopy(oldRaw)

		err := in.execute(cmd, working)
		if err == nil {
			err = in.checkRules(cmd, working)
		}
		if err == nil {
			err = in.checkShape(cmd.Key, working)
		}
		if err == nil && check != nil {
			if cerr := check(cmd.Key, working); cerr != nil {
				err = fmt.Errorf("%w: %v", ErrBadShape, cerr)
			}
		}
		if err != nil {
			restore(working, cmd.Key, oldValue, hadOld)
			logger.WarnCF("commands", "Command failed", map[string]interface{}{
				"key":    cmd.Key,
				"action": string(cmd.Action),
				"error":  err.Error(),
			})
			log.Skipped = append(log.Skipped, Skipped{Key: cmd.Key, Action: cmd.Action, Reason: err.Error()})
		}

		newRaw, _ := tree.Get(working, cmd.Key)
		log.Changes = append(log.Changes, Change{
			Key:      cmd.Key,
			Action:   cmd.Action,
			OldValue: oldValue,
			NewValue: tree.DeepCopy(newRaw),
		})
		logger.DebugCF("commands", "Applied command", map[string]interface{}{
			"key":    cmd.Key,
			"action": string(cmd.Action),
		})
	}

	return working, log
}

func (in *Interpreter) execute(cmd Command, doc map[string]any) error {
	switch cmd.Action {
	case ActionSet:
		return tree.Set(doc, cmd.Key, tree.DeepCopy(cmd.Value))

	case ActionAdd:
		delta, ok := tree.AsNumber(cmd.Value)
		if !ok {
			return fmt.Errorf("%w: %v", ErrNotNumeric, cmd.Value)
		}
		current, _ := tree.Get(doc, cmd.Key)
		base, ok := tree.AsNumber(current)
		if !ok {
			base = 0
		}
		return tree.Set(doc, cmd.Key, base+delta)

	case ActionPush:
		current, _ := tree.Get(doc, cmd.Key)
		if arr, ok := current.([]any); ok {
			return tree.Set(doc, cmd.Key, append(arr, tree.DeepCopy(cmd.Value)))
		}
		return tree.Set(doc, cmd.Key, []any{tree.DeepCopy(cmd.Value)})

	case ActionDelete:
		tree.Unset(doc, cmd.Key)
		return nil

	case ActionPull:
		current, _ := tree.Get(doc, cmd.Key)
		arr, ok := current.([]any)
		if !ok {
			return nil
		}
		kept := make([]any, 0, len(arr))
		for _, item := range arr {
			if !tree.Equal(item, cmd.Value) {
				kept = append(kept, item)
			}
		}
		return tree.Set(doc, cmd.Key, kept)

	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, cmd.Action)
	}
}

func (in *Interpreter) checkRules(cmd Command, doc map[string]any) error {
	if len(in.rules) == 0 {
		return nil
	}
	value, present := tree.Get(doc, cmd.Key)
	for _, rule := range in.rules {
		if !rule.Matches(cmd.Key) {
			continue
		}
		if !present {
			continue
		}
		if err := rule.Check(value); err != nil {
			return fmt.Errorf("%w %s: %v", ErrRuleViolation, rule.Pattern, err)
		}
	}
	return nil
}

// checkShape rejects a command that left its namespace root holding
// something other than an object.
func (in *Interpreter) checkShape(key string, doc map[string]any) error {
	segs, err := tree.Split(key)
	if err != nil {
		return err
	}
	v, ok := doc[segs[0]]
	if !ok || v == nil {
		return nil
	}
	if _, isMap := v.(map[string]any); !isMap {
		return fmt.Errorf("%w: %s must stay an object", ErrBadShape, segs[0])
	}
	return nil
}

func restore(doc map[string]any, key string, old any, had bool) {
	if had {
		_ = tree.Set(doc, key, old)
		return
	}
	tree.Unset(doc, key)
}

// FormatChange renders one change for logs and the CLI.
func FormatChange(c Change) string {
	var b strings.Builder
	b.WriteString(string(c.Action))
	b.WriteString(" ")
	b.WriteString(c.Key)
	b.WriteString(": ")
	b.WriteString(formatValue(c.OldValue))
	b.WriteString(" -> ")
	b.WriteString(formatValue(c.NewValue))
	return b.String()
}

func formatValue(v any) string {
	if v == nil {
		return "<none>"
	}
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%g", f)
	}
	s := fmt.Sprintf("%v", v)
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}
