package pkg

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nopHandler satisfies the Handler interface for plan-building tests, which
// never execute anything.
type nopHandler struct{}

func (nopHandler) Probe(*Closure, map[string]interface{}) (*StateDelta, error) {
	return &StateDelta{InSync: true}, nil
}

func (nopHandler) Apply(*Closure, map[string]interface{}) (*ApplyOutcome, error) {
	return &ApplyOutcome{}, nil
}

func planRegistry(types ...string) *Registry {
	r := NewRegistry()
	for _, t := range types {
		r.Register(t, nopHandler{})
	}
	return r
}

func TestBuildPlanExpandsLoop(t *testing.T) {
	tasks := []Task{{
		Name:   "create config dirs",
		Type:   "directory",
		Loop:   []interface{}{"alpha", "beta", "gamma"},
		Params: map[string]interface{}{"path": "/etc/app/{{ item }}"},
	}}
	steps, err := BuildPlan(tasks, NewBindings(nil, nil, nil), planRegistry("directory"))
	require.NoError(t, err)
	require.Len(t, steps, 3)

	wantPaths := []string{"/etc/app/alpha", "/etc/app/beta", "/etc/app/gamma"}
	for i, step := range steps {
		assert.Equal(t, i, step.Index)
		assert.True(t, step.HasItem)
		assert.Equal(t, wantPaths[i], step.Params["path"])
	}
	assert.Equal(t, "alpha", steps[0].Item)
	assert.Equal(t, "gamma", steps[2].Item)
}

func TestBuildPlanLoopFromVariable(t *testing.T) {
	bindings := NewBindings(nil, map[string]interface{}{
		"packages": []interface{}{"nginx", "curl"},
	}, nil)
	tasks := []Task{{
		Name:   "install",
		Type:   "package",
		Loop:   "{{ packages }}",
		Params: map[string]interface{}{"name": "{{ item }}"},
	}}
	steps, err := BuildPlan(tasks, bindings, planRegistry("package"))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "nginx", steps[0].Params["name"])
	assert.Equal(t, "curl", steps[1].Params["name"])
}

func TestBuildPlanInvalidLoop(t *testing.T) {
	tasks := []Task{{
		Name:   "bad loop",
		Type:   "shell",
		Loop:   42,
		Params: map[string]interface{}{"cmd": "true"},
	}}
	_, err := BuildPlan(tasks, NewBindings(nil, nil, nil), planRegistry("shell"))
	var loopErr *InvalidLoopError
	require.ErrorAs(t, err, &loopErr)
	assert.Equal(t, "bad loop", loopErr.Task)
}

func TestBuildPlanUndefinedVariable(t *testing.T) {
	tasks := []Task{{
		Name:   "broken",
		Type:   "shell",
		Params: map[string]interface{}{"cmd": "echo {{ no_such_var }}"},
	}}
	_, err := BuildPlan(tasks, NewBindings(nil, nil, nil), planRegistry("shell"))
	var varErr *UnresolvedVariableError
	require.ErrorAs(t, err, &varErr)
	assert.Equal(t, "no_such_var", varErr.Variable)
	assert.Equal(t, "broken", varErr.Task)
}

func TestBuildPlanUnknownTaskType(t *testing.T) {
	tasks := []Task{{Name: "x", Type: "teleport"}}
	_, err := BuildPlan(tasks, NewBindings(nil, nil, nil), planRegistry("shell"))
	var typeErr *UnknownTaskTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "teleport", typeErr.Type)
}

func TestBuildPlanDefersRegisteredNames(t *testing.T) {
	tasks := []Task{
		{
			Name:     "probe version",
			Type:     "shell",
			Params:   map[string]interface{}{"cmd": "cat /etc/version"},
			Register: "version_out",
		},
		{
			Name:   "report version",
			Type:   "shell",
			Params: map[string]interface{}{"cmd": "echo {{ version_out.stdout }}"},
		},
	}
	steps, err := BuildPlan(tasks, NewBindings(nil, nil, nil), planRegistry("shell"))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.False(t, steps[0].deferred)
	assert.True(t, steps[1].deferred)
	// Deferred params stay raw until execution time.
	assert.Equal(t, "echo {{ version_out.stdout }}", steps[1].Params["cmd"])
}

func TestBuildPlanDefersSetFactNames(t *testing.T) {
	tasks := []Task{
		{
			Name:   "choose port",
			Type:   "set_fact",
			Params: map[string]interface{}{"app_port": 8080},
		},
		{
			Name:   "open firewall",
			Type:   "shell",
			Params: map[string]interface{}{"cmd": "ufw allow {{ app_port }}"},
		},
	}
	steps, err := BuildPlan(tasks, NewBindings(nil, nil, nil), planRegistry("shell", "set_fact"))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.True(t, steps[1].deferred)
}

func TestBuildPlanSubstitutesBindings(t *testing.T) {
	bindings := NewBindings(
		map[string]interface{}{"app_root": "/opt/default"},
		map[string]interface{}{"app_root": "/opt/app", "app_user": "deploy"},
		nil,
	)
	tasks := []Task{{
		Name:   "deploy dir for {{ app_user }}",
		Type:   "directory",
		Params: map[string]interface{}{"path": "{{ app_root }}/releases", "owner": "{{ app_user }}"},
	}}
	steps, err := BuildPlan(tasks, bindings, planRegistry("directory"))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "/opt/app/releases", steps[0].Params["path"])
	assert.Equal(t, "deploy", steps[0].Params["owner"])
	assert.Equal(t, "deploy dir for deploy", steps[0].Name)
}

func TestBuildPlanKeepsConditionsRaw(t *testing.T) {
	tasks := []Task{{
		Name:   "conditional",
		Type:   "shell",
		When:   "some_fact_set_later",
		Params: map[string]interface{}{"cmd": "true"},
	}}
	steps, err := BuildPlan(tasks, NewBindings(nil, nil, nil), planRegistry("shell"))
	require.NoError(t, err)
	assert.Equal(t, "some_fact_set_later", steps[0].When)
}

func TestBuildPlanDeterministic(t *testing.T) {
	bindings := NewBindings(nil, map[string]interface{}{"items": []interface{}{"a", "b"}}, nil)
	tasks := []Task{
		{Name: "one", Type: "shell", Loop: "{{ items }}", Params: map[string]interface{}{"cmd": "echo {{ item }}"}},
		{Name: "two", Type: "shell", Params: map[string]interface{}{"cmd": "true"}},
	}
	first, err := BuildPlan(tasks, bindings, planRegistry("shell"))
	require.NoError(t, err)
	second, err := BuildPlan(tasks, bindings, planRegistry("shell"))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(first, second, cmp.AllowUnexported(PlanStep{})))
}

func TestBuildPlanErrorBeforeAnySteps(t *testing.T) {
	tasks := []Task{
		{Name: "fine", Type: "shell", Params: map[string]interface{}{"cmd": "true"}},
		{Name: "broken", Type: "shell", Params: map[string]interface{}{"cmd": "{{ missing }}"}},
	}
	steps, err := BuildPlan(tasks, NewBindings(nil, nil, nil), planRegistry("shell"))
	require.Error(t, err)
	assert.True(t, errors.As(err, new(*UnresolvedVariableError)))
	assert.Nil(t, steps)
}
