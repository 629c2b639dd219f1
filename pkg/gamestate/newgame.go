package gamestate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/studiogm/pkg/memory"
)

const (
	baseFunds          = 1_000_000
	fundsPerAttrPoint  = 500_000
	richHeirBonus      = 5_000_000
	awardWinnerBonus   = 20
	founderAge         = 25
	defaultSlogan      = "Make good games"
	defaultCompanySize = "startup"
)

// Talent names with a mechanical effect at company creation.
const (
	TalentRichHeir    = "rich heir"
	TalentAwardWinner = "award winner"
)

// Departments in the order they are created.
var Departments = []string{"rnd", "art", "design", "qa", "marketing", "operations", "admin"}

// Platforms mirrored under market.platforms.
var Platforms = []string{"steam", "wegame", "bilibili", "weibo", "tieba", "qq", "discord", "twitter"}

var ErrInvalidCreation = errors.New("invalid company creation")

type Attributes struct {
	Tech       int `json:"tech"`
	Creativity int `json:"creativity"`
	Marketing  int `json:"marketing"`
	Networking int `json:"networking"`
	Management int `json:"management"`
	Luck       int `json:"luck"`
}

func (a Attributes) Total() int {
	return a.Tech + a.Creativity + a.Marketing + a.Networking + a.Management + a.Luck
}

type Talent struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Cost        int    `json:"cost,omitempty"`
}

// Character is the founder build chosen on the creation screen.
type Character struct {
	Difficulty   string     `json:"difficulty"`
	TalentPoints int        `json:"talent_points"`
	Attributes   Attributes `json:"attributes"`
	Talents      []Talent   `json:"talents"`
	CEOName      string     `json:"ceo_name"`
}

func (c Character) HasTalent(name string) bool {
	for _, t := range c.Talents {
		if strings.EqualFold(strings.TrimSpace(t.Name), name) {
			return true
		}
	}
	return false
}

type CompanyCreation struct {
	CompanyName string    `json:"company_name"`
	Founder     string    `json:"founder"`
	Slogan      string    `json:"slogan,omitempty"`
	StartYear   int       `json:"start_year"`
	Difficulty  string    `json:"difficulty"`
	Character   Character `json:"character"`
}

// StartingFunds is sum(attributes)*500,000 + 1,000,000, plus 5,000,000 for a
// rich heir.
func StartingFunds(c Character) float64 {
	funds := c.Attributes.Total()*fundsPerAttrPoint + baseFunds
	if c.HasTalent(TalentRichHeir) {
		funds += richHeirBonus
	}
	return float64(funds)
}

// NewGame builds the initial state of a fresh company. The clock starts at
// 09:00 on January 1st of the start year.
func NewGame(c CompanyCreation, now time.Time) (*GameState, error) {
	if strings.TrimSpace(c.CompanyName) == "" {
		return nil, fmt.Errorf("%w: company name is empty", ErrInvalidCreation)
	}
	if strings.TrimSpace(c.Founder) == "" {
		return nil, fmt.Errorf("%w: founder name is empty", ErrInvalidCreation)
	}
	if c.StartYear <= 0 {
		return nil, fmt.Errorf("%w: start year %d", ErrInvalidCreation, c.StartYear)
	}

	start := StartTime(c.StartYear)
	created := now.UTC().Format(time.RFC3339)
	slogan := strings.TrimSpace(c.Slogan)
	if slogan == "" {
		slogan = defaultSlogan
	}
	awareness := 0.0
	if c.Character.HasTalent(TalentAwardWinner) {
		awareness += awardWinnerBonus
	}
	character := c.Character
	if character.Difficulty == "" {
		character.Difficulty = c.Difficulty
	}
	if character.CEOName == "" {
		character.CEOName = c.Founder
	}
	characterTree := map[string]any{
		"difficulty":    character.Difficulty,
		"talent_points": float64(character.TalentPoints),
		"ceo_name":      character.CEOName,
		"attributes":    attributesTree(character.Attributes),
		"talents":       talentsTree(character.Talents),
	}

	founderID := "emp_" + uuid.NewString()
	doc := map[string]any{
		"metadata": map[string]any{
			"version":      float64(SaveVersion),
			"save_id":      "save_" + uuid.NewString(),
			"save_name":    c.CompanyName + " - new save",
			"created_at":   created,
			"updated_at":   created,
			"play_seconds": 0.0,
			"time":         start.toTree(),
			"character":    characterTree,
		},
		"company": map[string]any{
			"info": map[string]any{
				"name":       c.CompanyName,
				"founder":    c.Founder,
				"founded":    start.toTree(),
				"slogan":     slogan,
				"reputation": 0.0,
				"awareness":  awareness,
				"size":       defaultCompanySize,
				"logo":       "",
			},
			"finance":     defaultFinance(StartingFunds(character)),
			"departments": defaultDepartments(),
			"employees": map[string]any{
				founderID: founderEmployee(founderID, c.Founder, character.Attributes, start),
			},
			"office": map[string]any{
				"type":       "apartment",
				"area":       30.0,
				"rent":       0.0,
				"capacity":   3.0,
				"facilities": []any{"personal computer", "network"},
				"location":   "home",
				"decor":      "basic",
			},
			"recruitment": map[string]any{
				"postings":   []any{},
				"candidates": []any{},
			},
		},
		"project": map[string]any{
			"current":  map[string]any{},
			"released": map[string]any{},
			"focus":    nil,
		},
		"market": map[string]any{
			"platforms":    defaultPlatforms(),
			"competitors":  map[string]any{},
			"trends":       []any{},
			"world_events": []any{},
		},
		"system": map[string]any{
			"config": map[string]any{
				"difficulty": c.Difficulty,
				"language":   "en",
			},
			"cache": map[string]any{},
		},
	}

	return &GameState{
		Tree:    doc,
		History: []Message{},
		Memory:  memory.Tiers{ShortTerm: []string{}, MidTerm: []string{}, LongTerm: []string{}},
	}, nil
}

func defaultFinance(funds float64) map[string]any {
	budget := make(map[string]any, len(Departments))
	for _, d := range Departments {
		budget[d] = 0.0
	}
	return map[string]any{
		"funds":             funds,
		"monthly_income":    0.0,
		"monthly_expense":   0.0,
		"income_details":    []any{},
		"expense_details":   []any{},
		"department_budget": budget,
		"history":           []any{},
		"loans":             []any{},
		"investors":         []any{},
	}
}

func defaultDepartments() map[string]any {
	out := make(map[string]any, len(Departments))
	for _, d := range Departments {
		out[d] = map[string]any{
			"lead":         nil,
			"members":      []any{},
			"tasks":        []any{},
			"efficiency":   50.0,
			"morale":       70.0,
			"budget_usage": 0.0,
		}
	}
	return out
}

func defaultPlatforms() map[string]any {
	return map[string]any{
		"steam":    map[string]any{"pages": map[string]any{}},
		"wegame":   map[string]any{"pages": map[string]any{}},
		"bilibili": map[string]any{"topics": map[string]any{}},
		"weibo":    map[string]any{"trending": []any{}, "posts": []any{}, "controversies": []any{}},
		"tieba":    map[string]any{"forums": map[string]any{}},
		"qq":       map[string]any{"groups": map[string]any{}},
		"discord":  map[string]any{"servers": map[string]any{}},
		"twitter":  map[string]any{"tweets": []any{}, "topic_heat": 0.0, "overseas_attention": 0.0},
	}
}

func founderEmployee(id, name string, a Attributes, start Time) map[string]any {
	skill := func(v int) float64 {
		return float64(min(100, v))
	}
	return map[string]any{
		"id":         id,
		"name":       name,
		"age":        float64(founderAge),
		"position":   "CEO",
		"department": "admin",
		"skills": map[string]any{
			"programming":   skill(a.Tech * 10),
			"art":           skill(a.Creativity * 7),
			"design":        skill((a.Creativity + a.Tech) * 5),
			"testing":       skill(a.Tech * 5),
			"marketing":     skill(a.Marketing * 10),
			"management":    skill(a.Management * 10),
			"creativity":    skill(a.Creativity * 10),
			"communication": skill(a.Networking * 10),
		},
		"personality":      "visionary leader",
		"salary":           0.0,
		"satisfaction":     100.0,
		"loyalty":          100.0,
		"experience":       0.0,
		"hired":            start.toTree(),
		"status":           "normal",
		"is_management":    true,
		"management_style": "democratic",
		"current_task":     nil,
		"memories":         []any{},
		"strengths":        []any{"full-stack development", "project management"},
		"weaknesses":       []any{"inexperienced"},
	}
}

func attributesTree(a Attributes) map[string]any {
	return map[string]any{
		"tech":       float64(a.Tech),
		"creativity": float64(a.Creativity),
		"marketing":  float64(a.Marketing),
		"networking": float64(a.Networking),
		"management": float64(a.Management),
		"luck":       float64(a.Luck),
	}
}

func talentsTree(talents []Talent) []any {
	out := make([]any, 0, len(talents))
	for _, t := range talents {
		out = append(out, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"cost":        float64(t.Cost),
		})
	}
	return out
}
