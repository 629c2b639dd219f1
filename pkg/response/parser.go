// Package response turns free-form game master output into a structured turn.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dotsetgreg/studiogm/pkg/commands"
	"github.com/dotsetgreg/studiogm/pkg/logger"
)

// ErrNoJSON means no strategy recovered a JSON object from the output.
var ErrNoJSON = errors.New("no JSON object in generator output")

// Placeholder stands in for a missing narrative.
const Placeholder = "(no narrative returned)"

// DefaultOptions are offered when the generator supplies none.
var DefaultOptions = []string{
	"continue",
	"view company status",
	"view market news",
	"manage staff",
	"free input",
}

// Response is one parsed game master turn. Commands is never nil and
// ActionOptions is never empty after Parse.
type Response struct {
	Text          string             `json:"text"`
	MidTermMemory string             `json:"mid_term_memory"`
	Commands      []commands.Command `json:"tavern_commands"`
	ActionOptions []string           `json:"action_options"`
	StatusBar     any                `json:"status_bar,omitempty"`
}

var (
	codeBlockRE = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?\\s*```")
	thinkingRE  = regexp.MustCompile(`(?is)<thinking>.*?</thinking>`)
)

// Parse extracts and normalizes a Response from raw generator text.
func Parse(raw string) (Response, error) {
	obj, strategy, err := ExtractObject(raw)
	if err != nil {
		return Response{}, err
	}
	logger.DebugCF("parser", "Parsed generator output", map[string]interface{}{"strategy": strategy})
	return normalize(obj), nil
}

// Fallback builds the degraded response used when Parse fails: the raw text
// becomes the narrative and nothing is applied.
func Fallback(raw, midTerm string, options []string) Response {
	if len(options) == 0 {
		options = DefaultOptions
	}
	text := raw
	if strings.TrimSpace(text) == "" {
		text = Placeholder
	}
	return Response{
		Text:          text,
		MidTermMemory: midTerm,
		Commands:      []commands.Command{},
		ActionOptions: append([]string(nil), options...),
	}
}

// ExtractObject runs the fallback strategies in order and returns the first
// JSON object found, along with the name of the strategy that produced it.
func ExtractObject(raw string) (map[string]any, string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, "", fmt.Errorf("%w: empty input", ErrNoJSON)
	}

	if obj, strategy, ok := fromText(trimmed); ok {
		return obj, strategy, nil
	}

	cleaned := strings.TrimSpace(thinkingRE.ReplaceAllString(trimmed, ""))
	if cleaned != trimmed {
		if obj, strategy, ok := fromText(cleaned); ok {
			return obj, "thinking/" + strategy, nil
		}
	}

	repaired := Repair(trimmed)
	if obj, ok := decodeObject(repaired); ok {
		return obj, "repair", nil
	}
	if candidate, ok := balancedObject(repaired); ok {
		if obj, ok := decodeObject(candidate); ok {
			return obj, "repair/object", nil
		}
	}

	return nil, "", fmt.Errorf("%w: %s", ErrNoJSON, preview(trimmed, 200))
}

// fromText applies the direct, code block and brace scanning strategies.
func fromText(s string) (map[string]any, string, bool) {
	if obj, ok := decodeObject(s); ok {
		return obj, "direct", true
	}
	if m := codeBlockRE.FindStringSubmatch(s); m != nil {
		if block := strings.TrimSpace(m[1]); block != "" {
			if obj, ok := decodeObject(block); ok {
				return obj, "code_block", true
			}
			if obj, ok := decodeObject(Repair(block)); ok {
				return obj, "code_block/repair", true
			}
		}
	}
	if candidate, ok := balancedObject(s); ok {
		if obj, ok := decodeObject(candidate); ok {
			return obj, "object", true
		}
		if obj, ok := decodeObject(Repair(candidate)); ok {
			return obj, "object/repair", true
		}
	}
	return nil, "", false
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// balancedObject returns the span from the first '{' to its matching '}'.
// Braces inside strings are ignored. Truncated input is closed with as many
// braces as are still open.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	if depth > 0 {
		return s[start:] + strings.Repeat("}", depth), true
	}
	return "", false
}

func normalize(obj map[string]any) Response {
	resp := Response{
		Text:          Placeholder,
		Commands:      []commands.Command{},
		ActionOptions: nil,
	}
	if text, ok := obj["text"].(string); ok && text != "" {
		resp.Text = text
	}
	if mid, ok := obj["mid_term_memory"].(string); ok {
		resp.MidTermMemory = mid
	}

	rawCmds, ok := obj["tavern_commands"].([]any)
	if !ok {
		rawCmds, _ = obj["commands"].([]any)
	}
	for _, item := range rawCmds {
		if cmd, ok := validateCommand(item); ok {
			resp.Commands = append(resp.Commands, cmd)
		}
	}
	if dropped := len(rawCmds) - len(resp.Commands); dropped > 0 {
		logger.WarnCF("parser", "Dropped malformed commands", map[string]interface{}{"count": dropped})
	}

	if opts, ok := obj["action_options"].([]any); ok {
		for _, o := range opts {
			if s, ok := o.(string); ok && strings.TrimSpace(s) != "" {
				resp.ActionOptions = append(resp.ActionOptions, s)
			}
		}
	}
	if len(resp.ActionOptions) == 0 {
		resp.ActionOptions = append([]string(nil), DefaultOptions...)
	}

	if sb, ok := obj["status_bar"]; ok && sb != nil {
		resp.StatusBar = sb
	}
	return resp
}

// validateCommand checks shape only: an object with a known verb and a
// non-empty string key. Payloads are checked when applied.
func validateCommand(item any) (commands.Command, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return commands.Command{}, false
	}
	action, ok := m["action"].(string)
	if !ok || !commands.Action(action).Valid() {
		return commands.Command{}, false
	}
	key, ok := m["key"].(string)
	if !ok || key == "" {
		return commands.Command{}, false
	}
	return commands.Command{Action: commands.Action(action), Key: key, Value: m["value"]}, true
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
