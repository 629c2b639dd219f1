package commands

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/studiogm/pkg/tree"
)

// Rule is an optional value-level check for keys matching Pattern. Pattern is
// a dot path where "*" matches exactly one segment.
type Rule struct {
	Pattern string
	Check   func(value any) error
}

func (r Rule) Matches(key string) bool {
	want := strings.Split(r.Pattern, ".")
	got := strings.Split(key, ".")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != "*" && want[i] != got[i] {
			return false
		}
	}
	return true
}

// Range accepts numbers within [min, max]. Non-numeric values are rejected.
func Range(pattern string, min, max float64) Rule {
	return Rule{
		Pattern: pattern,
		Check: func(value any) error {
			n, ok := tree.AsNumber(value)
			if !ok {
				return fmt.Errorf("want a number, got %T", value)
			}
			if n < min || n > max {
				return fmt.Errorf("%g outside [%g, %g]", n, min, max)
			}
			return nil
		},
	}
}

func NonNegative(pattern string) Rule {
	return Rule{
		Pattern: pattern,
		Check: func(value any) error {
			n, ok := tree.AsNumber(value)
			if !ok {
				return fmt.Errorf("want a number, got %T", value)
			}
			if n < 0 {
				return fmt.Errorf("%g is negative", n)
			}
			return nil
		},
	}
}

// StrictRules bounds the percentage style fields of the company schema and
// keeps headcounts and prices from going negative. Funds may go negative.
func StrictRules() []Rule {
	return []Rule{
		Range("company.departments.*.efficiency", 0, 100),
		Range("company.departments.*.morale", 0, 100),
		Range("company.employees.*.satisfaction", 0, 100),
		Range("company.employees.*.loyalty", 0, 100),
		Range("company.info.reputation", -100, 100),
		Range("company.info.awareness", 0, 100),
		NonNegative("company.employees.*.salary"),
		NonNegative("company.office.capacity"),
		NonNegative("project.current.*.price"),
		NonNegative("project.released.*.sales"),
	}
}
