package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateString(t *testing.T) {
	out, err := TemplateString("hello {{ name }}", map[string]interface{}{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestTemplateStringEmpty(t *testing.T) {
	out, err := TemplateString("", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestTemplateValueRecursesWithoutMutating(t *testing.T) {
	vars := map[string]interface{}{"user": "deploy"}
	original := map[string]interface{}{
		"owner": "{{ user }}",
		"paths": []interface{}{"/home/{{ user }}", "/opt"},
		"count": 3,
	}
	out, err := TemplateValue(original, vars)
	require.NoError(t, err)

	templated := out.(map[string]interface{})
	assert.Equal(t, "deploy", templated["owner"])
	assert.Equal(t, []interface{}{"/home/deploy", "/opt"}, templated["paths"])
	assert.Equal(t, 3, templated["count"])
	// The input must stay untouched.
	assert.Equal(t, "{{ user }}", original["owner"])
}

func TestEvaluateConditionTruthiness(t *testing.T) {
	cases := []struct {
		expr string
		vars map[string]interface{}
		want bool
	}{
		{"true", nil, true},
		{"false", nil, false},
		{"enabled", map[string]interface{}{"enabled": true}, true},
		{"enabled", map[string]interface{}{"enabled": false}, false},
		{"count", map[string]interface{}{"count": 0}, false},
		{"count", map[string]interface{}{"count": 7}, true},
		{"name", map[string]interface{}{"name": ""}, false},
		{"name", map[string]interface{}{"name": "x"}, true},
	}
	for _, tc := range cases {
		got, err := EvaluateCondition(tc.expr, tc.vars)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, "expr %q with %v", tc.expr, tc.vars)
	}
}

func TestVariableUsage(t *testing.T) {
	vars := VariableUsage("{{ a }} and {{ b }}")
	assert.Contains(t, vars, "a")
	assert.Contains(t, vars, "b")
	assert.Empty(t, VariableUsage("no vars here"))
}
