// Package catalog loads the set of execution environments the daemon was
// started with. The catalog is supplied once at startup and never
// changes at runtime (spec.md's Out-of-scope list excludes environment
// discovery and dynamic env addition) — this package only parses and
// validates it.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimeoutSeconds = 30
	defaultMemoryMB       = 512
)

// Environment describes one named execution environment: which
// interpreter it speaks, and the two commands used to run code against
// it — one per call for ephemeral execution, one persistent process per
// session.
type Environment struct {
	Name            string   `yaml:"name"`
	InterpreterType string   `yaml:"interpreter_type"`
	EphemeralExec   []string `yaml:"ephemeral_exec"`
	SessionExec     []string `yaml:"session_exec"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
	MemoryMB        int      `yaml:"memory_mb"`
}

func (e *Environment) applyDefaults() {
	if e.TimeoutSeconds <= 0 {
		e.TimeoutSeconds = defaultTimeoutSeconds
	}
	if e.MemoryMB <= 0 {
		e.MemoryMB = defaultMemoryMB
	}
}

func (e *Environment) validate() error {
	if e.Name == "" {
		return fmt.Errorf("catalog: environment entry missing name")
	}
	if e.InterpreterType == "" {
		return fmt.Errorf("catalog: environment %q missing interpreter_type", e.Name)
	}
	if len(e.EphemeralExec) == 0 {
		return fmt.Errorf("catalog: environment %q missing ephemeral_exec", e.Name)
	}
	if len(e.SessionExec) == 0 {
		return fmt.Errorf("catalog: environment %q missing session_exec", e.Name)
	}
	return nil
}

// document is the top-level shape of the catalog YAML file.
type document struct {
	Environments []Environment `yaml:"environments"`
}

// Catalog is an immutable, name-indexed set of environments.
type Catalog struct {
	byName map[string]Environment
	names  []string
}

// Load reads and parses a catalog file from disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Catalog from YAML bytes, applying defaults and
// rejecting duplicate or incomplete environment entries.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}

	c := &Catalog{byName: make(map[string]Environment, len(doc.Environments))}
	for _, env := range doc.Environments {
		env.applyDefaults()
		if err := env.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[env.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate environment %q", env.Name)
		}
		c.byName[env.Name] = env
		c.names = append(c.names, env.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Lookup returns the named environment, if present.
func (c *Catalog) Lookup(name string) (Environment, bool) {
	env, ok := c.byName[name]
	return env, ok
}

// Names returns every environment name, sorted, for use in user-facing
// "unknown environment" error messages.
func (c *Catalog) Names() []string {
	return c.names
}
