package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convergerun/converge/pkg/runtime"
)

func TestServiceProbeActiveInSync(t *testing.T) {
	conn := newFakeConn()
	conn.respond = respondWith(map[string]*runtime.CommandResult{
		"is-active": runtime.NewCommandResult("", 0, "active\n", ""),
	})
	closure := testClosure(conn, nil)

	handler := &ServiceHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"name":  "nginx",
		"state": "started",
	})
	require.NoError(t, err)
	assert.True(t, delta.InSync)
}

func TestServiceProbeInactiveDrifts(t *testing.T) {
	conn := newFakeConn()
	conn.respond = respondWith(map[string]*runtime.CommandResult{
		"is-active": runtime.NewCommandResult("", 3, "inactive\n", ""),
	})
	closure := testClosure(conn, nil)

	handler := &ServiceHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"name":  "nginx",
		"state": "started",
	})
	require.NoError(t, err)
	assert.False(t, delta.InSync)
	assert.Contains(t, delta.Detail, "start")
}

func TestServiceRestartedNeverInSync(t *testing.T) {
	conn := newFakeConn()
	conn.respond = respondWith(map[string]*runtime.CommandResult{
		"is-active": runtime.NewCommandResult("", 0, "active\n", ""),
	})
	closure := testClosure(conn, nil)

	handler := &ServiceHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"name":  "nginx",
		"state": "restarted",
	})
	require.NoError(t, err)
	assert.False(t, delta.InSync)
}

func TestServiceProbeEnabledDrift(t *testing.T) {
	conn := newFakeConn()
	conn.respond = respondWith(map[string]*runtime.CommandResult{
		"is-active":  runtime.NewCommandResult("", 0, "active\n", ""),
		"is-enabled": runtime.NewCommandResult("", 1, "disabled\n", ""),
	})
	closure := testClosure(conn, nil)

	enabled := true
	handler := &ServiceHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"name":    "nginx",
		"state":   "started",
		"enabled": enabled,
	})
	require.NoError(t, err)
	assert.False(t, delta.InSync)
	assert.Contains(t, delta.Detail, "enable")
}

func TestServiceApplyRunsActions(t *testing.T) {
	conn := newFakeConn()
	closure := testClosure(conn, nil)

	handler := &ServiceHandler{}
	outcome, err := handler.Apply(closure, map[string]interface{}{
		"name":          "nginx",
		"state":         "restarted",
		"enabled":       true,
		"daemon_reload": true,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.True(t, conn.ran("systemctl daemon-reload"))
	assert.True(t, conn.ran("systemctl enable nginx"))
	assert.True(t, conn.ran("systemctl restart nginx"))
}

func TestServiceRequiresSomething(t *testing.T) {
	closure := testClosure(newFakeConn(), nil)
	handler := &ServiceHandler{}
	_, err := handler.Probe(closure, map[string]interface{}{"name": "nginx"})
	assert.Error(t, err)
}
