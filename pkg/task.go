package pkg

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Task is one declarative desired-state assertion. It is immutable once the
// plan is built; the plan builder resolves it into one or more PlanSteps.
type Task struct {
	Name         string                 `yaml:"name"`
	Type         string                 `yaml:"type"`
	Params       map[string]interface{} `yaml:"params"`
	Loop         interface{}            `yaml:"loop"`
	When         string                 `yaml:"when"`
	Notify       []string               `yaml:"notify"`
	BecomeUser   string                 `yaml:"become_user"`
	Become       bool                   `yaml:"become"`
	IgnoreErrors bool                   `yaml:"ignore_errors"`
	Register     string                 `yaml:"register"`
	// Retryable opts a non-idempotent handler (shell) back into the
	// transient-failure retry loop. Nil means "use the handler's default".
	Retryable *bool `yaml:"retryable"`
}

func (t Task) String() string {
	return t.Name
}

// RunAs returns the user the task's commands should run as, or empty when no
// privilege escalation was requested.
func (t Task) RunAs() string {
	if t.BecomeUser != "" {
		return t.BecomeUser
	}
	if t.Become {
		return "root"
	}
	return ""
}

// UnmarshalYAML accepts the scalar shorthand for notify ("notify: restart x")
// alongside the list form.
func (t *Task) UnmarshalYAML(node *yaml.Node) error {
	type rawTask struct {
		Name         string                 `yaml:"name"`
		Type         string                 `yaml:"type"`
		Params       map[string]interface{} `yaml:"params"`
		Loop         interface{}            `yaml:"loop"`
		When         string                 `yaml:"when"`
		Notify       interface{}            `yaml:"notify"`
		BecomeUser   string                 `yaml:"become_user"`
		Become       bool                   `yaml:"become"`
		IgnoreErrors bool                   `yaml:"ignore_errors"`
		Register     string                 `yaml:"register"`
		Retryable    *bool                  `yaml:"retryable"`
	}
	var raw rawTask
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode task (line %d): %w", node.Line, err)
	}
	if raw.Type == "" {
		return fmt.Errorf("task %q has no type (line %d)", raw.Name, node.Line)
	}

	t.Name = raw.Name
	t.Type = raw.Type
	t.Params = raw.Params
	t.Loop = raw.Loop
	t.When = raw.When
	t.BecomeUser = raw.BecomeUser
	t.Become = raw.Become
	t.IgnoreErrors = raw.IgnoreErrors
	t.Register = raw.Register
	t.Retryable = raw.Retryable
	if t.Name == "" {
		t.Name = raw.Type
	}

	switch notify := raw.Notify.(type) {
	case nil:
	case string:
		t.Notify = []string{notify}
	case []interface{}:
		for i, item := range notify {
			name, ok := item.(string)
			if !ok {
				return fmt.Errorf("task %q notify entry %d is not a string (line %d)", t.Name, i, node.Line)
			}
			t.Notify = append(t.Notify, name)
		}
	default:
		return fmt.Errorf("task %q has invalid notify type %T (line %d)", t.Name, raw.Notify, node.Line)
	}
	return nil
}

// ProvidesVariables returns the names this task binds at runtime: its
// register target and, for set_fact tasks, the fact keys themselves. The plan
// builder defers interpolation of these names to execution time.
func (t Task) ProvidesVariables() []string {
	var names []string
	if t.Register != "" {
		names = append(names, t.Register)
	}
	if t.Type == "set_fact" {
		for key := range t.Params {
			names = append(names, key)
		}
	}
	return names
}
