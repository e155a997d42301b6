package pkg

import (
	"fmt"
	"time"
)

// Outcome is the terminal classification of one executed PlanStep.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeChanged Outcome = "changed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// PlanStep is one fully resolved, ordered unit of execution derived from a
// Task. Loop expansion yields one step per item; variables in name and
// params are substituted at build time except for names bound by earlier
// steps, which the engine re-templates at execution time.
type PlanStep struct {
	Index        int
	Name         string
	Type         string
	Params       map[string]interface{}
	When         string
	Item         interface{}
	HasItem      bool
	Notify       []string
	BecomeUser   string
	IgnoreErrors bool
	Register     string
	Retryable    *bool
	// deferred marks params still containing references to runtime-bound
	// names, requiring re-templating at execution time.
	deferred bool
}

func (s PlanStep) String() string {
	if s.HasItem {
		return fmt.Sprintf("%s (item=%v)", s.Name, s.Item)
	}
	return s.Name
}

// TaskResult records the terminal outcome of one attempted PlanStep. It is
// immutable after creation; one exists for every step that was attempted,
// including condition-skipped steps.
type TaskResult struct {
	Step     *PlanStep
	Outcome  Outcome
	Error    error
	Detail   string
	Duration time.Duration
	Facts    map[string]interface{}
}

// Failed reports whether the step failed.
func (r TaskResult) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// AsFacts renders the result as a fact map for `register`.
func (r TaskResult) AsFacts() map[string]interface{} {
	facts := map[string]interface{}{
		"changed": r.Outcome == OutcomeChanged,
		"failed":  r.Outcome == OutcomeFailed,
		"skipped": r.Outcome == OutcomeSkipped,
	}
	if r.Error != nil {
		facts["error"] = r.Error.Error()
	}
	for k, v := range r.Facts {
		facts[k] = v
	}
	return facts
}
