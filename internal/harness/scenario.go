package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/callrecon/internal/call"
)

// Scenario is one scripted run of the engine.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Now is the RFC 3339 start time of the scenario clock. Its offset is
	// also the display zone of the live view.
	Now string `yaml:"now"`

	// Source is the provenance string sent with every payload.
	Source string `yaml:"source,omitempty"`

	// MatchWindow and MaxCandidates override the engine defaults.
	MatchWindow   string `yaml:"match_window,omitempty"`
	MaxCandidates int    `yaml:"max_candidates,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is a single scenario action. Exactly one field is set.
type Step struct {
	Rows        []call.Row `yaml:"rows,omitempty"`
	Advance     string     `yaml:"advance,omitempty"`
	Deliver     string     `yaml:"deliver,omitempty"`
	Acknowledge string     `yaml:"acknowledge,omitempty"`
	Sweep       bool       `yaml:"sweep,omitempty"`
	Restart     bool       `yaml:"restart,omitempty"`
}

// Deliver outcomes.
const (
	DeliverOK   = "ok"
	DeliverFail = "fail"
)

// Assertion checks the trace or the persisted records.
type Assertion struct {
	Type string `yaml:"type"`

	// Kind filters deliveries by "create" or "update" (delivery_count,
	// delivery_contains). Empty matches both.
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of deliveries (delivery_count).
	Count *int `yaml:"count,omitempty"`

	// Payload is the subset of payload fields to find (delivery_contains).
	Payload map[string]any `yaml:"payload,omitempty"`

	// Phone, At and State select and check a record (record_state).
	Phone      string `yaml:"phone,omitempty"`
	At         string `yaml:"at,omitempty"`
	State      string `yaml:"state,omitempty"`
	CalledBack *bool  `yaml:"called_back,omitempty"`
}

// Assertion type constants.
const (
	AssertDeliveryCount    = "delivery_count"
	AssertDeliveryContains = "delivery_contains"
	AssertRecordState      = "record_state"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios lists the .yaml and .yml files under dir, sorted. A
// non-empty filter is a glob matched against the file name without its
// extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	sort.Strings(files)
	return files, err
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
		return fmt.Errorf("now: %w", err)
	}
	if s.MatchWindow != "" {
		if _, err := time.ParseDuration(s.MatchWindow); err != nil {
			return fmt.Errorf("match_window: %w", err)
		}
	}
	if s.MaxCandidates < 0 {
		return fmt.Errorf("max_candidates must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	if step.Rows != nil {
		set++
	}
	if step.Advance != "" {
		set++
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("advance must not go backwards")
		}
	}
	if step.Deliver != "" {
		set++
		if step.Deliver != DeliverOK && step.Deliver != DeliverFail {
			return fmt.Errorf("deliver must be %q or %q, got %q", DeliverOK, DeliverFail, step.Deliver)
		}
	}
	if step.Acknowledge != "" {
		set++
		if _, err := call.ParseRecordKey(step.Acknowledge); err != nil {
			return fmt.Errorf("acknowledge: %w", err)
		}
	}
	if step.Sweep {
		set++
	}
	if step.Restart {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of rows, advance, deliver, acknowledge, sweep or restart is required")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Kind {
	case "", "create", "update":
	default:
		return fmt.Errorf("unknown delivery kind %q", a.Kind)
	}

	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertDeliveryCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("non-negative count is required for %s", a.Type)
		}
	case AssertDeliveryContains:
		if len(a.Payload) == 0 {
			return fmt.Errorf("payload is required for %s", a.Type)
		}
	case AssertRecordState:
		if a.Phone == "" || a.At == "" {
			return fmt.Errorf("phone and at are required for %s", a.Type)
		}
		if _, err := time.Parse(time.RFC3339, a.At); err != nil {
			return fmt.Errorf("at: %w", err)
		}
		switch call.State(a.State) {
		case call.StateMissedPending, call.StateReclassifiedAnswered:
		default:
			return fmt.Errorf("unknown record state %q", a.State)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
