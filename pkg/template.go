package pkg

import (
	"fmt"

	"github.com/AlexanderGrooff/jinja-go"
	"github.com/convergerun/converge/pkg/common"
)

// TemplateString renders a Jinja-style template string against the given
// variables.
func TemplateString(s string, vars map[string]interface{}) (string, error) {
	if s == "" {
		return "", nil
	}
	res, err := jinja.TemplateString(s, vars)
	if err != nil {
		return "", fmt.Errorf("failed to template string: %w", err)
	}
	if s != res {
		common.DebugOutput("Templated %q into %q", s, res)
	}
	return res, nil
}

// EvaluateExpression evaluates a Jinja expression against the given
// variables and returns the raw result.
func EvaluateExpression(s string, vars map[string]interface{}) (interface{}, error) {
	res, err := jinja.EvaluateExpression(s, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression %q: %w", s, err)
	}
	return res, nil
}

// EvaluateCondition evaluates a Jinja expression and coerces the result to a
// boolean using the usual truthiness rules.
func EvaluateCondition(s string, vars map[string]interface{}) (bool, error) {
	res, err := EvaluateExpression(s, vars)
	if err != nil {
		return false, err
	}
	switch v := res.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	case string:
		return v != "" && v != "false" && v != "False", nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		if items, ok := common.InterfaceToSlice(res); ok {
			return len(items) > 0, nil
		}
		return true, nil
	}
}

// VariableUsage returns the variable names referenced by a template string.
func VariableUsage(s string) []string {
	vars, err := jinja.ParseVariables(s)
	if err != nil {
		return nil
	}
	return vars
}

// maxTemplateIterations bounds nested reference expansion.
const maxTemplateIterations = 10

// templateStringDeep renders a string repeatedly until it stops changing, so
// references whose expansion contains further references resolve fully.
func templateStringDeep(s string, vars map[string]interface{}) (string, error) {
	current := s
	for i := 0; i < maxTemplateIterations; i++ {
		rendered, err := TemplateString(current, vars)
		if err != nil {
			return "", err
		}
		if rendered == current {
			return rendered, nil
		}
		current = rendered
	}
	return "", fmt.Errorf("template expansion exceeded max iterations for: %s", s)
}

// TemplateValue recursively templates every string inside a value. Maps and
// slices are copied, never mutated in place. Map keys are not templated.
func TemplateValue(value interface{}, vars map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return templateStringDeep(v, vars)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, elem := range v {
			templated, err := TemplateValue(elem, vars)
			if err != nil {
				return nil, fmt.Errorf("failed to template value for key %q: %w", key, err)
			}
			out[key] = templated
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			templated, err := TemplateValue(elem, vars)
			if err != nil {
				return nil, fmt.Errorf("failed to template element %d: %w", i, err)
			}
			out[i] = templated
		}
		return out, nil
	default:
		return value, nil
	}
}

// collectVariableUsage walks a value and gathers every variable referenced by
// any string inside it.
func collectVariableUsage(value interface{}) []string {
	var vars []string
	switch v := value.(type) {
	case string:
		vars = append(vars, VariableUsage(v)...)
	case map[string]interface{}:
		for _, elem := range v {
			vars = append(vars, collectVariableUsage(elem)...)
		}
	case []interface{}:
		for _, elem := range v {
			vars = append(vars, collectVariableUsage(elem)...)
		}
	}
	return vars
}
