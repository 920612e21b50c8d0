package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Policy is the inline CUE offline configuration the scenario
	// runs under.
	Policy string `yaml:"policy"`

	// StartTime is the unix time the scenario clock starts at.
	// Defaults to 1700000000.
	StartTime int64 `yaml:"startTime,omitempty"`

	// Steps is the ordered run lifecycle to execute.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state after all steps ran.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one lifecycle action. Exactly one field must be set.
type Step struct {
	Ingest     *IngestStep     `yaml:"ingest,omitempty"`
	SetVersion *SetVersionStep `yaml:"setVersion,omitempty"`
	Configure  *ConfigureStep  `yaml:"configure,omitempty"`
	Stop       *StopStep       `yaml:"stop,omitempty"`
	Advance    *AdvanceStep    `yaml:"advance,omitempty"`
	Release    *ReleaseStep    `yaml:"release,omitempty"`
}

// IngestStep registers a run from an inline trigger menu.
type IngestStep struct {
	Run     uint32                         `yaml:"run"`
	Process string                         `yaml:"process,omitempty"`
	HLTKey  string                         `yaml:"hltKey,omitempty"`
	Streams map[string]map[string][]string `yaml:"streams,omitempty"`

	// ExpectError names the configuration error code the step must
	// fail with. An empty value means the step must succeed.
	ExpectError string `yaml:"expectError,omitempty"`
}

// SetVersionStep records a stream's online software version.
type SetVersionStep struct {
	Run     uint32 `yaml:"run"`
	Stream  string `yaml:"stream"`
	Version string `yaml:"version"`
}

// ConfigureStep configures one stream of a run.
type ConfigureStep struct {
	Run    uint32 `yaml:"run"`
	Stream string `yaml:"stream"`

	ExpectError string `yaml:"expectError,omitempty"`
}

// StopStep marks a run as ended at the current scenario clock.
type StopStep struct {
	Run uint32 `yaml:"run"`
}

// AdvanceStep moves the scenario clock forward.
type AdvanceStep struct {
	Seconds int64 `yaml:"seconds"`
}

// ReleaseStep runs one release pass.
type ReleaseStep struct {
	ExpectError bool `yaml:"expectError,omitempty"`
}

// Assertion validates final state. Exactly one field must be set.
type Assertion struct {
	// Workflow asserts a workflow with the given properties was
	// submitted.
	Workflow *WorkflowAssertion `yaml:"workflow,omitempty"`

	// WorkflowCount asserts the total number of submissions.
	WorkflowCount *int `yaml:"workflowCount,omitempty"`

	// Released asserts a (run, dataset) pair is no longer pending.
	Released *ReleasedAssertion `yaml:"released,omitempty"`

	// PendingCount asserts the number of unreleased pairs whose run
	// has ended.
	PendingCount *int `yaml:"pendingCount,omitempty"`

	// Fileset asserts a fileset subscription was registered.
	Fileset *FilesetAssertion `yaml:"fileset,omitempty"`
}

// WorkflowAssertion is a subset match on one submitted workflow.
type WorkflowAssertion struct {
	Name string `yaml:"name"`
	Task string `yaml:"task,omitempty"`

	Priority  *int   `yaml:"priority,omitempty"`
	Memory    *int   `yaml:"memory,omitempty"`
	Multicore *int   `yaml:"multicore,omitempty"`
	GlobalTag string `yaml:"globalTag,omitempty"`
	Input     string `yaml:"input,omitempty"`
	Outputs   *int   `yaml:"outputs,omitempty"`
	Subs      *int   `yaml:"subs,omitempty"`
	Scenario  string `yaml:"scenario,omitempty"`
}

// ReleasedAssertion names a pair that must have been released.
type ReleasedAssertion struct {
	Run     uint32 `yaml:"run"`
	Dataset string `yaml:"dataset"`
}

// FilesetAssertion names a fileset subscription that must exist.
type FilesetAssertion struct {
	Workflow         string `yaml:"workflow"`
	Name             string `yaml:"name"`
	AlternativeClose *bool  `yaml:"alternativeClose,omitempty"`
}

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// LoadScenarioDir loads every .yaml scenario in a directory, sorted
// by file name.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	scenarios := make([]*Scenario, 0, len(matches))
	for _, path := range matches {
		sc, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func (sc *Scenario) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if sc.Policy == "" {
		return fmt.Errorf("policy is required")
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range sc.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	for i, a := range sc.Assertions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("assertion %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Step) validate() error {
	n := 0
	if s.Ingest != nil {
		n++
	}
	if s.SetVersion != nil {
		n++
	}
	if s.Configure != nil {
		n++
	}
	if s.Stop != nil {
		n++
	}
	if s.Advance != nil {
		n++
	}
	if s.Release != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("exactly one action per step, got %d", n)
	}
	return nil
}

func (a *Assertion) validate() error {
	n := 0
	if a.Workflow != nil {
		n++
	}
	if a.WorkflowCount != nil {
		n++
	}
	if a.Released != nil {
		n++
	}
	if a.PendingCount != nil {
		n++
	}
	if a.Fileset != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("exactly one check per assertion, got %d", n)
	}
	return nil
}
