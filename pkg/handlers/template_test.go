package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.conf.j2")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTemplateProbeRendersAgainstBindings(t *testing.T) {
	src := writeTemplate(t, "listen {{ app_port }}\n")
	conn := newFakeConn()
	closure := testClosure(conn, map[string]interface{}{"app_port": 8080})

	handler := &TemplateHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"src":  src,
		"dest": "/etc/app.conf",
	})
	require.NoError(t, err)
	assert.False(t, delta.InSync)
	assert.Equal(t, "will create", delta.Detail)
}

func TestTemplateProbeInSyncWhenRenderedMatches(t *testing.T) {
	src := writeTemplate(t, "listen {{ app_port }}\n")
	conn := newFakeConn()
	conn.files["/etc/app.conf"] = "listen 8080\n"
	closure := testClosure(conn, map[string]interface{}{"app_port": 8080})

	handler := &TemplateHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"src":  src,
		"dest": "/etc/app.conf",
	})
	require.NoError(t, err)
	assert.True(t, delta.InSync)
}

func TestTemplateApplyWritesRendered(t *testing.T) {
	src := writeTemplate(t, "user {{ app_user }}\n")
	conn := newFakeConn()
	closure := testClosure(conn, map[string]interface{}{"app_user": "deploy"})

	handler := &TemplateHandler{}
	outcome, err := handler.Apply(closure, map[string]interface{}{
		"src":   src,
		"dest":  "/etc/app.conf",
		"mode":  "0640",
		"owner": "app",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.Equal(t, "user deploy\n", conn.files["/etc/app.conf"])
	assert.Equal(t, "app", conn.owners["/etc/app.conf"])
}

func TestTemplateTaskVarsShadowBindings(t *testing.T) {
	src := writeTemplate(t, "tier {{ tier }}\n")
	conn := newFakeConn()
	closure := testClosure(conn, map[string]interface{}{"tier": "play"})

	handler := &TemplateHandler{}
	_, err := handler.Apply(closure, map[string]interface{}{
		"src":  src,
		"dest": "/etc/tier.conf",
		"vars": map[string]interface{}{"tier": "override"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tier override\n", conn.files["/etc/tier.conf"])
}

func TestTemplateMissingSourceFails(t *testing.T) {
	closure := testClosure(newFakeConn(), nil)
	handler := &TemplateHandler{}
	_, err := handler.Probe(closure, map[string]interface{}{
		"src":  "/no/such/template.j2",
		"dest": "/etc/app.conf",
	})
	assert.Error(t, err)
}
