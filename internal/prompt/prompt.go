// Package prompt provides the instruction texts for the supervisor, wiki and
// response steps. Defaults are embedded; a YAML file may override any of them.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Set holds one instruction text per routing step.
type Set struct {
	Supervisor string `yaml:"supervisor"`
	Wiki       string `yaml:"wiki"`
	Response   string `yaml:"response"`
}

// Default returns the embedded instruction texts.
func Default() Set {
	var s Set
	if err := yaml.Unmarshal(defaultPrompts, &s); err != nil {
		panic(fmt.Sprintf("prompt: embedded prompts.yaml: %v", err))
	}
	return s.trimmed()
}

// Load reads an override file. Keys missing from the file keep their
// defaults. An empty path returns the defaults.
func Load(path string) (Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("prompt: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse overlays YAML-encoded instruction texts on the defaults.
func Parse(data []byte) (Set, error) {
	var override Set
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Set{}, fmt.Errorf("prompt: parse: %w", err)
	}
	s := Default()
	override = override.trimmed()
	if override.Supervisor != "" {
		s.Supervisor = override.Supervisor
	}
	if override.Wiki != "" {
		s.Wiki = override.Wiki
	}
	if override.Response != "" {
		s.Response = override.Response
	}
	return s, nil
}

func (s Set) trimmed() Set {
	return Set{
		Supervisor: strings.TrimSpace(s.Supervisor),
		Wiki:       strings.TrimSpace(s.Wiki),
		Response:   strings.TrimSpace(s.Response),
	}
}
