package gm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dotsetgreg/studiogm/pkg/gamestate"
	"github.com/dotsetgreg/studiogm/pkg/logger"
	"github.com/dotsetgreg/studiogm/pkg/memory"
	"github.com/dotsetgreg/studiogm/pkg/providers"
	"github.com/dotsetgreg/studiogm/pkg/tree"
)

const emptyTier = "(none)"

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands separators.
func FormatMoney(v float64) string {
	return moneyPrinter.Sprintf("%d", int64(v))
}

// systemPrompt is the rules, the compacted save document and any extra
// instructions.
func (e *Engine) systemPrompt(gs *gamestate.GameState, extra string) string {
	parts := e.prompts.rulesPrompt()

	doc := gamestate.DumpCompact(gs, e.settings.StateHistoryWindow)
	if data, err := json.MarshalIndent(doc, "", "  "); err == nil {
		parts = append(parts, e.prompts.StateHeader+"\n```json\n"+string(data)+"\n```")
	} else {
		logger.WarnCF("gm", "Failed to encode state for prompt", map[string]interface{}{"error": err})
	}
	if s := e.extraPrompt(extra); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, sectionSeparator)
}

func (e *Engine) extraPrompt(extra string) string {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		extra = strings.TrimSpace(e.settings.ExtraSystemPrompt)
	}
	if extra == "" {
		return ""
	}
	return e.prompts.ExtraHeader + "\n" + extra
}

// Memory renders the three tiers, or "" when all are empty.
func (l Library) Memory(t memory.Tiers) string {
	if t.Empty() {
		return ""
	}
	return fill(l.MemoryInject, map[string]string{
		"short_term_memory": numbered(t.ShortTerm),
		"mid_term_memory":   numbered(t.MidTerm),
		"long_term_memory":  numbered(t.LongTerm),
	})
}

func numbered(items []string) string {
	if len(items) == 0 {
		return emptyTier
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, it)
	}
	return strings.Join(lines, "\n")
}

// turnMessages assembles the ordered message list for a player turn.
func (e *Engine) turnMessages(gs *gamestate.GameState, input, retrieval, extra string) []providers.Message {
	msgs := []providers.Message{{Role: providers.RoleSystem, Content: e.systemPrompt(gs, extra)}}
	if inject := e.prompts.Memory(gs.Memory); inject != "" {
		msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: inject})
	}
	if retrieval != "" {
		msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: retrieval})
	}
	msgs = append(msgs, historyMessages(gs.History, e.settings.HistoryWindow)...)
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: input})

	logger.DebugCF("gm", "Turn messages built", map[string]interface{}{
		"messages":    len(msgs),
		"system_size": len(msgs[0].Content),
		"retrieval":   retrieval != "",
	})
	return msgs
}

func historyMessages(history []gamestate.Message, window int) []providers.Message {
	if window <= 0 {
		return nil
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}
	out := make([]providers.Message, 0, len(history))
	for _, m := range history {
		if m.IsEmpty() {
			continue
		}
		out = append(out, providers.Message{Role: m.ChatRole(), Content: m.Content})
	}
	return out
}

// openingMessages is the rules plus opening instructions and the company brief.
func (e *Engine) openingMessages(gs *gamestate.GameState, extra string) []providers.Message {
	parts := append(e.prompts.rulesPrompt(), nonEmpty(e.prompts.Opening)...)
	if s := e.extraPrompt(extra); s != "" {
		parts = append(parts, s)
	}
	return []providers.Message{
		{Role: providers.RoleSystem, Content: strings.Join(parts, sectionSeparator)},
		{Role: providers.RoleUser, Content: e.prompts.Brief(gs)},
	}
}

var attributeOrder = []string{"tech", "creativity", "marketing", "networking", "management", "luck"}

// Brief describes the new company from the save document.
func (l Library) Brief(gs *gamestate.GameState) string {
	year := ""
	if t, ok := gs.Time(); ok {
		year = fmt.Sprint(t.Year)
	}
	attrs := ""
	if m, ok := getMap(gs.Tree, "metadata.character.attributes"); ok {
		vals := make([]string, 0, len(attributeOrder))
		for _, k := range attributeOrder {
			n, _ := tree.AsNumber(m[k])
			vals = append(vals, fmt.Sprintf("%s %d", k, int(n)))
		}
		attrs = "\n- CEO attributes: " + strings.Join(vals, " / ")
	}
	talents := ""
	if raw, ok := tree.Get(gs.Tree, "metadata.character.talents"); ok {
		if list, ok := raw.([]any); ok && len(list) > 0 {
			names := make([]string, 0, len(list))
			for _, item := range list {
				t, _ := item.(map[string]any)
				name, _ := t["name"].(string)
				if name == "" {
					continue
				}
				desc, _ := t["description"].(string)
				names = append(names, fmt.Sprintf("%s(%s)", name, desc))
			}
			if len(names) > 0 {
				talents = "\n- CEO talents: " + strings.Join(names, ", ")
			}
		}
	}
	return fill(l.OpeningBrief, map[string]string{
		"company_name": gs.CompanyName(),
		"founder":      stringAt(gs.Tree, "company.info.founder"),
		"funds":        FormatMoney(gs.Funds()),
		"year":         year,
		"difficulty":   stringAt(gs.Tree, "metadata.character.difficulty"),
		"attributes":   attrs,
		"talents":      talents,
	})
}

// StateSummary renders the status block shown by the CLI.
func (l Library) StateSummary(gs *gamestate.GameState) string {
	gameTime := "unknown"
	if t, ok := gs.Time(); ok {
		gameTime = t.Format() + " " + t.Clock()
	}
	return fill(l.StateInject, map[string]string{
		"game_time":        gameTime,
		"company_name":     gs.CompanyName(),
		"company_size":     stringAt(gs.Tree, "company.info.size"),
		"reputation":       fmt.Sprint(int(numberAt(gs.Tree, "company.info.reputation"))),
		"awareness":        fmt.Sprint(int(numberAt(gs.Tree, "company.info.awareness"))),
		"funds":            FormatMoney(gs.Funds()),
		"monthly_income":   FormatMoney(numberAt(gs.Tree, "company.finance.monthly_income")),
		"monthly_expense":  FormatMoney(numberAt(gs.Tree, "company.finance.monthly_expense")),
		"employee_count":   fmt.Sprint(gs.EmployeeCount()),
		"avg_satisfaction": averageSatisfaction(gs),
		"current_projects": projectList(gs.Tree, "project.current", "overall"),
		"released_games":   projectList(gs.Tree, "project.released", ""),
		"focus_project":    orNone(stringAt(gs.Tree, "project.focus")),
	})
}

func averageSatisfaction(gs *gamestate.GameState) string {
	employees, ok := getMap(gs.Tree, "company.employees")
	if !ok || len(employees) == 0 {
		return emptyTier
	}
	total, n := 0.0, 0
	for _, raw := range employees {
		emp, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := tree.AsNumber(emp["satisfaction"]); ok {
			total += v
			n++
		}
	}
	if n == 0 {
		return emptyTier
	}
	return fmt.Sprintf("%.0f", total/float64(n))
}

// projectList lists the entries under path by name, with the progress field
// when one is given.
func projectList(doc map[string]any, path, progressField string) string {
	m, ok := getMap(doc, path)
	if !ok || len(m) == 0 {
		return emptyTier
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		name := id
		entry, _ := m[id].(map[string]any)
		if n, ok := entry["name"].(string); ok && n != "" {
			name = n
		}
		line := "- " + name
		if progressField != "" {
			if p, ok := tree.Get(entry, "progress."+progressField); ok {
				if v, ok := tree.AsNumber(p); ok {
					line += fmt.Sprintf(" (%d%%)", int(v))
				}
			}
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func getMap(doc map[string]any, path string) (map[string]any, bool) {
	raw, ok := tree.Get(doc, path)
	if !ok {
		return nil, false
	}
	m, ok := raw.(map[string]any)
	return m, ok
}

func stringAt(doc map[string]any, path string) string {
	raw, _ := tree.Get(doc, path)
	s, _ := raw.(string)
	return s
}

func numberAt(doc map[string]any, path string) float64 {
	raw, _ := tree.Get(doc, path)
	v, _ := tree.AsNumber(raw)
	return v
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return emptyTier
	}
	return s
}
