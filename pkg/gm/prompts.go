package gm

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

const sectionSeparator = "\n\n---\n\n"

// Library is the set of prompt sections the engine assembles into messages.
// Templates use {{name}} placeholders.
type Library struct {
	SystemRole      string `yaml:"system_role"`
	OutputFormat    string `yaml:"output_format"`
	BusinessRules   string `yaml:"business_rules"`
	DataStructure   string `yaml:"data_structure"`
	Opening         string `yaml:"opening"`
	OpeningBrief    string `yaml:"opening_brief"`
	MemoryInject    string `yaml:"memory_inject"`
	StateInject     string `yaml:"state_inject"`
	StateHeader     string `yaml:"state_header"`
	ExtraHeader     string `yaml:"extra_header"`
	RetrievalHeader string `yaml:"retrieval_header"`
}

// DefaultLibrary returns the embedded prompts.
func DefaultLibrary() Library {
	var lib Library
	if err := decodeLibrary(bytes.NewReader(defaultPromptsYAML), &lib); err != nil {
		panic(fmt.Sprintf("gm: embedded prompts.yaml is invalid: %v", err))
	}
	return lib
}

// LoadLibrary overlays the YAML file at path on the defaults. An empty path
// returns the defaults. Unknown keys are an error.
func LoadLibrary(path string) (Library, error) {
	lib := DefaultLibrary()
	if strings.TrimSpace(path) == "" {
		return lib, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return lib, fmt.Errorf("open prompts file: %w", err)
	}
	defer f.Close()
	if err := decodeLibrary(f, &lib); err != nil {
		return DefaultLibrary(), fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	return lib, nil
}

func decodeLibrary(r io.Reader, lib *Library) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(lib); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// rulesPrompt joins the sections shared by every turn.
func (l Library) rulesPrompt() []string {
	return nonEmpty(l.SystemRole, l.OutputFormat, l.BusinessRules, l.DataStructure)
}

func nonEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// fill replaces {{key}} placeholders. Unknown placeholders are left as is.
func fill(tmpl string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
