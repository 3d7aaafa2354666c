package ruleset

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default_ruleset.yaml
var defaultDocument []byte

var (
	defaultOnce    sync.Once
	defaultRuleset *Ruleset
	defaultErr     error
)

// Parse decodes a YAML ruleset document and validates it.
func Parse(data []byte) (*Ruleset, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ruleset yaml: %w", err)
	}
	return New(doc)
}

// Load reads a ruleset from path. An empty path returns the embedded default ruleset.
func Load(path string) (*Ruleset, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load ruleset %s: %w", path, err)
	}
	return rs, nil
}

// Default returns the embedded ruleset shipped with the binary.
func Default() (*Ruleset, error) {
	defaultOnce.Do(func() {
		defaultRuleset, defaultErr = Parse(defaultDocument)
	})
	return defaultRuleset, defaultErr
}

// MustDefault is Default for callers that cannot proceed without a ruleset.
func MustDefault() *Ruleset {
	rs, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded ruleset is invalid: %v", err))
	}
	return rs
}

// Marshal encodes the ruleset back to YAML.
func Marshal(rs *Ruleset) ([]byte, error) {
	data, err := yaml.Marshal(rs.Document())
	if err != nil {
		return nil, fmt.Errorf("marshal ruleset: %w", err)
	}
	return data, nil
}
