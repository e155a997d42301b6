package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTaskUnmarshalNotifyScalar(t *testing.T) {
	var task Task
	err := yaml.Unmarshal([]byte(`
name: edit config
type: file
params:
  path: /etc/app.conf
notify: restart app
`), &task)
	require.NoError(t, err)
	assert.Equal(t, []string{"restart app"}, task.Notify)
}

func TestTaskUnmarshalNotifyList(t *testing.T) {
	var task Task
	err := yaml.Unmarshal([]byte(`
name: edit config
type: file
notify:
  - restart app
  - reload proxy
`), &task)
	require.NoError(t, err)
	assert.Equal(t, []string{"restart app", "reload proxy"}, task.Notify)
}

func TestTaskUnmarshalRequiresType(t *testing.T) {
	var task Task
	err := yaml.Unmarshal([]byte(`name: nameless`), &task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no type")
}

func TestTaskUnmarshalDefaultsNameToType(t *testing.T) {
	var task Task
	err := yaml.Unmarshal([]byte(`type: shell`), &task)
	require.NoError(t, err)
	assert.Equal(t, "shell", task.Name)
}

func TestTaskRunAs(t *testing.T) {
	assert.Equal(t, "", Task{}.RunAs())
	assert.Equal(t, "root", Task{Become: true}.RunAs())
	assert.Equal(t, "deploy", Task{Become: true, BecomeUser: "deploy"}.RunAs())
	assert.Equal(t, "deploy", Task{BecomeUser: "deploy"}.RunAs())
}

func TestTaskProvidesVariables(t *testing.T) {
	assert.Empty(t, Task{Type: "shell"}.ProvidesVariables())
	assert.Equal(t, []string{"out"}, Task{Type: "shell", Register: "out"}.ProvidesVariables())

	setFact := Task{Type: "set_fact", Params: map[string]interface{}{"a": 1, "b": 2}}
	assert.ElementsMatch(t, []string{"a", "b"}, setFact.ProvidesVariables())
}
