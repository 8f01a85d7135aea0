package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of transactions and queries.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Signer is the default signer name for steps without "as".
	// Defaults to "alice".
	Signer string `yaml:"signer,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one init, invoke or view. Exactly one of Init, Invoke and View
// is set.
type Step struct {
	Init   string `yaml:"init,omitempty"`
	Invoke string `yaml:"invoke,omitempty"`
	View   string `yaml:"view,omitempty"`

	// Account is the target address. Optional for init, where an empty
	// address is generated.
	Account string `yaml:"account,omitempty"`

	// Program overrides the program named in an invoke transaction.
	// Defaults to the program of the account.
	Program string `yaml:"program,omitempty"`

	// As names the signer.
	As string `yaml:"as,omitempty"`

	// Policy is the write policy of an init step.
	Policy string `yaml:"policy,omitempty"`

	Args map[string]any `yaml:"args,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Kind returns "init", "invoke" or "view".
func (s Step) Kind() string {
	switch {
	case s.Init != "":
		return StepInit
	case s.Invoke != "":
		return StepInvoke
	default:
		return StepView
	}
}

// Step kinds.
const (
	StepInit   = "init"
	StepInvoke = "invoke"
	StepView   = "view"
)

// Expect is the expected outcome of a step. Unset fields are not checked.
type Expect struct {
	// Status is "ok" or "failed" (transactions only).
	Status string `yaml:"status,omitempty"`

	// Code is the error code of a failed transaction or view.
	Code string `yaml:"code,omitempty"`

	// Event is the emitted event name.
	Event string `yaml:"event,omitempty"`

	// Result is a subset match against the transaction result, or against
	// an object returned by a view.
	Result map[string]any `yaml:"result,omitempty"`

	// Value is an exact match against a view's return value.
	Value any `yaml:"value,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Event is the event name (event_count).
	Event string `yaml:"event,omitempty"`

	// Count is the expected number of events (event_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected event order (event_order).
	Events []string `yaml:"events,omitempty"`

	// Account, Query and Args select the state to check (final_state).
	Account string         `yaml:"account,omitempty"`
	Query   string         `yaml:"query,omitempty"`
	Args    map[string]any `yaml:"args,omitempty"`

	// Expect is a subset match for object results (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Value is an exact match for non-object results (final_state).
	Value any `yaml:"value,omitempty"`
}

// Assertion types.
const (
	AssertEventCount = "event_count"
	AssertEventOrder = "event_order"
	AssertFinalState = "final_state"
	AssertReplay     = "replay"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must not be empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	set := 0
	for _, v := range []string{s.Init, s.Invoke, s.View} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of init, invoke and view is required", index)
	}

	switch s.Kind() {
	case StepInit:
		if len(s.Args) > 0 {
			return fmt.Errorf("steps[%d]: init takes policy, not args", index)
		}
	case StepInvoke, StepView:
		if s.Account == "" {
			return fmt.Errorf("steps[%d]: account is required for %s", index, s.Kind())
		}
		if s.Policy != "" {
			return fmt.Errorf("steps[%d]: policy is only valid for init", index)
		}
	}

	if e := s.Expect; e != nil {
		if e.Status != "" && e.Status != "ok" && e.Status != "failed" {
			return fmt.Errorf("steps[%d]: expect.status must be ok or failed", index)
		}
		if s.Kind() == StepView && (e.Status != "" || e.Event != "") {
			return fmt.Errorf("steps[%d]: views have no status or event", index)
		}
		if s.Kind() != StepView && e.Value != nil {
			return fmt.Errorf("steps[%d]: expect.value is only valid for view", index)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertFinalState:
		if a.Account == "" || a.Query == "" {
			return fmt.Errorf("assertions[%d]: account and query are required for final_state", index)
		}
		if len(a.Expect) == 0 && a.Value == nil {
			return fmt.Errorf("assertions[%d]: expect or value is required for final_state", index)
		}
	case AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
