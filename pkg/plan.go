package pkg

import (
	"fmt"
	"strings"

	"github.com/convergerun/converge/pkg/common"
)

// BuildPlan expands a declarative task list plus variable bindings into the
// concrete ordered execution plan. Loops expand into one PlanStep per item
// with `item` bound in the iteration scope; `when` conditions are embedded
// for lazy evaluation at execution time, since later steps may mutate
// bindings through set_fact.
//
// Variable references are substituted at build time. A reference to a name
// that is neither bound nor provided by an earlier step's register/set_fact
// fails the build with UnresolvedVariableError before any remote operation
// is issued. References to runtime-provided names are deferred: the step is
// marked for re-templating against live bindings just before its probe.
//
// The resulting order is stable and deterministic for identical inputs.
func BuildPlan(tasks []Task, bindings *Bindings, registry *Registry) ([]PlanStep, error) {
	var steps []PlanStep
	scope := bindings.Flatten()
	provided := make(map[string]struct{})

	for _, task := range tasks {
		if _, err := registry.Resolve(task.Type); err != nil {
			return nil, err
		}

		if task.Loop != nil {
			items, err := resolveLoopItems(task, scope)
			if err != nil {
				return nil, err
			}
			for _, item := range items {
				step, err := resolveStep(task, scope, provided, item, true, len(steps))
				if err != nil {
					return nil, err
				}
				steps = append(steps, step)
			}
		} else {
			step, err := resolveStep(task, scope, provided, nil, false, len(steps))
			if err != nil {
				return nil, err
			}
			steps = append(steps, step)
		}

		for _, name := range task.ProvidesVariables() {
			provided[name] = struct{}{}
		}
	}
	return steps, nil
}

// resolveLoopItems turns a task's loop declaration into a concrete item
// slice. Loops must resolve at build time; a non-iterable value is an
// InvalidLoopError.
func resolveLoopItems(task Task, scope map[string]interface{}) ([]interface{}, error) {
	switch loop := task.Loop.(type) {
	case []interface{}:
		items := make([]interface{}, len(loop))
		for i, item := range loop {
			templated, err := TemplateValue(item, scope)
			if err != nil {
				return nil, fmt.Errorf("task %q: failed to template loop item %d: %w", task.Name, i, err)
			}
			items[i] = templated
		}
		return items, nil
	case string:
		for _, name := range VariableUsage(loop) {
			if _, ok := scope[rootName(name)]; !ok {
				return nil, &UnresolvedVariableError{Variable: name, Task: task.Name}
			}
		}
		expr := strings.TrimSpace(loop)
		if strings.HasPrefix(expr, "{{") && strings.HasSuffix(expr, "}}") {
			expr = strings.TrimSpace(expr[2 : len(expr)-2])
		}
		res, err := EvaluateExpression(expr, scope)
		if err != nil {
			return nil, fmt.Errorf("task %q: failed to evaluate loop expression: %w", task.Name, err)
		}
		if res == nil {
			return nil, &UnresolvedVariableError{Variable: expr, Task: task.Name}
		}
		items, ok := common.InterfaceToSlice(res)
		if !ok {
			return nil, &InvalidLoopError{Task: task.Name, Value: res}
		}
		return items, nil
	default:
		return nil, &InvalidLoopError{Task: task.Name, Value: task.Loop}
	}
}

// resolveStep produces one PlanStep from a task, substituting variables in
// the name and params against the build-time scope.
func resolveStep(task Task, scope map[string]interface{}, provided map[string]struct{}, item interface{}, hasItem bool, index int) (PlanStep, error) {
	stepScope := scope
	if hasItem {
		stepScope = common.CopyMap(scope)
		stepScope["item"] = item
	}

	deferred := false
	for _, name := range collectVariableUsage(task.Params) {
		root := rootName(name)
		if _, ok := stepScope[root]; ok {
			continue
		}
		if _, ok := provided[root]; ok {
			deferred = true
			continue
		}
		return PlanStep{}, &UnresolvedVariableError{Variable: name, Task: task.Name}
	}

	params := task.Params
	if !deferred {
		templated, err := TemplateValue(task.Params, stepScope)
		if err != nil {
			return PlanStep{}, fmt.Errorf("task %q: %w", task.Name, err)
		}
		if templated != nil {
			params = templated.(map[string]interface{})
		}
	}

	name := task.Name
	if nameResolvable(task.Name, stepScope) {
		templatedName, err := templateStringDeep(task.Name, stepScope)
		if err != nil {
			return PlanStep{}, fmt.Errorf("task %q: failed to template name: %w", task.Name, err)
		}
		name = templatedName
	}

	return PlanStep{
		Index:        index,
		Name:         name,
		Type:         task.Type,
		Params:       params,
		When:         task.When,
		Item:         item,
		HasItem:      hasItem,
		Notify:       append([]string(nil), task.Notify...),
		BecomeUser:   task.RunAs(),
		IgnoreErrors: task.IgnoreErrors,
		Register:     task.Register,
		Retryable:    task.Retryable,
		deferred:     deferred,
	}, nil
}

func nameResolvable(name string, scope map[string]interface{}) bool {
	for _, ref := range VariableUsage(name) {
		if _, ok := scope[rootName(ref)]; !ok {
			return false
		}
	}
	return true
}

// rootName strips attribute access from a variable reference, so
// "result.stdout" resolves against the binding "result".
func rootName(ref string) string {
	if i := strings.IndexByte(ref, '.'); i > 0 {
		return ref[:i]
	}
	return ref
}
