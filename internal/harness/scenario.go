package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: a fixture catalog and a list
// of searches with their expected compilation and results.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is a YAML file of entries to import before the steps run.
	// Relative paths are resolved against the scenario file.
	Catalog string `yaml:"catalog,omitempty"`

	// Parameter is the variable scripts use for the entry. Default: gall.
	Parameter string `yaml:"parameter,omitempty"`

	// Culture is the host culture used while folding. Default: en-US.
	Culture string `yaml:"culture,omitempty"`

	// Variables are set in the host session before any step runs.
	Variables map[string]any `yaml:"variables,omitempty"`

	// Steps run in order against the same catalog and session.
	Steps []Step `yaml:"steps"`
}

// Step is one search.
type Step struct {
	Name              string `yaml:"name"`
	SearchText        string `yaml:"search_text,omitempty"`
	Where             string `yaml:"where,omitempty"`
	OrderBy           string `yaml:"order_by,omitempty"`
	OrderByDescending string `yaml:"order_by_descending,omitempty"`
	Skip              *int   `yaml:"skip,omitempty"`
	Take              *int   `yaml:"take,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect lists what a step must produce. Empty fields are not checked.
type Expect struct {
	// Error is the expected failure class; see ErrorClasses. A step with
	// an expected error checks nothing else.
	Error string `yaml:"error,omitempty"`

	// Lambda is the String() form of the compiled filter.
	Lambda string `yaml:"lambda,omitempty"`

	// OrderLambda is the String() form of the compiled sort key.
	OrderLambda string `yaml:"order_lambda,omitempty"`

	// SQLContains lists fragments the generated SQL must contain.
	SQLContains []string `yaml:"sql_contains,omitempty"`

	// Params is the exact parameter list, when given.
	Params []any `yaml:"params,omitempty"`

	// Results is the exact list of entry names, in order, when given.
	Results []string `yaml:"results,omitempty"`

	// Count is the expected number of results, when given.
	Count *int `yaml:"count,omitempty"`
}

// Error classes a step can expect.
const (
	ErrorSyntax         = "syntax"
	ErrorUnsupported    = "unsupported"
	ErrorTypeMismatch   = "type_mismatch"
	ErrorEvaluation     = "evaluation"
	ErrorInvalidRequest = "invalid_request"
)

// ErrorClasses lists the valid values of Expect.Error.
var ErrorClasses = []string{ErrorSyntax, ErrorUnsupported, ErrorTypeMismatch, ErrorEvaluation, ErrorInvalidRequest}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Catalog != "" {
		if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
			return fmt.Errorf("catalog file not found: %s", s.Catalog)
		}
	}

	seen := make(map[string]bool)
	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if seen[step.Name] {
			return fmt.Errorf("steps[%d]: duplicate name %q", i, step.Name)
		}
		seen[step.Name] = true

		if e := step.Expect.Error; e != "" && !slices.Contains(ErrorClasses, e) {
			return fmt.Errorf("steps[%d].expect: unknown error class %q", i, e)
		}
		if step.Expect.Count != nil && *step.Expect.Count < 0 {
			return fmt.Errorf("steps[%d].expect: count must be non-negative", i)
		}
	}
	return nil
}
