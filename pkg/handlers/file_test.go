package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProbeMissingFile(t *testing.T) {
	closure := testClosure(newFakeConn(), nil)
	handler := &FileHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"path":    "/etc/app.conf",
		"content": "port = 80\n",
	})
	require.NoError(t, err)
	assert.False(t, delta.InSync)
	assert.Equal(t, "will create", delta.Detail)
}

func TestFileProbeContentDriftShowsDiff(t *testing.T) {
	conn := newFakeConn()
	conn.files["/etc/app.conf"] = "port = 80\n"
	closure := testClosure(conn, nil)

	handler := &FileHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"path":    "/etc/app.conf",
		"content": "port = 8080\n",
	})
	require.NoError(t, err)
	assert.False(t, delta.InSync)
	assert.Contains(t, delta.Detail, "-port = 80")
	assert.Contains(t, delta.Detail, "+port = 8080")
}

func TestFileProbeInSync(t *testing.T) {
	conn := newFakeConn()
	conn.files["/etc/app.conf"] = "port = 80\n"
	closure := testClosure(conn, nil)

	handler := &FileHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"path":    "/etc/app.conf",
		"content": "port = 80\n",
	})
	require.NoError(t, err)
	assert.True(t, delta.InSync)
}

func TestFileProbeModeDrift(t *testing.T) {
	conn := newFakeConn()
	conn.files["/etc/secret"] = "x"
	conn.modes["/etc/secret"] = 0644
	closure := testClosure(conn, nil)

	handler := &FileHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"path":    "/etc/secret",
		"content": "x",
		"mode":    "0600",
	})
	require.NoError(t, err)
	assert.False(t, delta.InSync)
	assert.Contains(t, delta.Detail, "mode")
}

func TestFileApplyWrites(t *testing.T) {
	conn := newFakeConn()
	closure := testClosure(conn, nil)

	handler := &FileHandler{}
	outcome, err := handler.Apply(closure, map[string]interface{}{
		"path":    "/etc/app.conf",
		"content": "port = 80\n",
		"mode":    "0640",
		"owner":   "app",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.Equal(t, "port = 80\n", conn.files["/etc/app.conf"])
	assert.Equal(t, "app", conn.owners["/etc/app.conf"])
}

func TestFileAbsentRemoves(t *testing.T) {
	conn := newFakeConn()
	conn.files["/tmp/stale"] = "x"
	closure := testClosure(conn, nil)

	handler := &FileHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"path":  "/tmp/stale",
		"state": "absent",
	})
	require.NoError(t, err)
	assert.False(t, delta.InSync)

	outcome, err := handler.Apply(closure, map[string]interface{}{
		"path":  "/tmp/stale",
		"state": "absent",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.True(t, conn.ran("rm -f /tmp/stale"))
}

func TestFileRejectsContentAndSrc(t *testing.T) {
	closure := testClosure(newFakeConn(), nil)
	handler := &FileHandler{}
	_, err := handler.Probe(closure, map[string]interface{}{
		"path":    "/x",
		"content": "a",
		"src":     "/local/a",
	})
	assert.Error(t, err)
}
