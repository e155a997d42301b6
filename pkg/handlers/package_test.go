package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convergerun/converge/pkg"
	"github.com/convergerun/converge/pkg/runtime"
)

func dpkgResponder(installed string, queries *int) func(string) (*runtime.CommandResult, error) {
	return func(command string) (*runtime.CommandResult, error) {
		if queries != nil && containsDpkgQuery(command) {
			*queries++
		}
		if containsDpkgQuery(command) {
			return runtime.NewCommandResult(command, 0, installed, ""), nil
		}
		return runtime.NewCommandResult(command, 0, "", ""), nil
	}
}

func containsDpkgQuery(command string) bool {
	return len(command) >= 10 && command[:10] == "dpkg-query"
}

func TestPackageProbeInstalled(t *testing.T) {
	conn := newFakeConn()
	conn.respond = dpkgResponder("nginx\ncurl\n", nil)
	closure := testClosure(conn, nil)

	handler := &PackageHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{"name": "nginx"})
	require.NoError(t, err)
	assert.True(t, delta.InSync)
}

func TestPackageProbeMissing(t *testing.T) {
	conn := newFakeConn()
	conn.respond = dpkgResponder("curl\n", nil)
	closure := testClosure(conn, nil)

	handler := &PackageHandler{}
	delta, err := handler.Probe(closure, map[string]interface{}{
		"name": []interface{}{"nginx", "curl"},
	})
	require.NoError(t, err)
	assert.False(t, delta.InSync)
	assert.Contains(t, delta.Detail, "install nginx")
	assert.NotContains(t, delta.Detail, "curl")
}

func TestPackageProbeUsesFactCache(t *testing.T) {
	queries := 0
	conn := newFakeConn()
	conn.respond = dpkgResponder("curl\n", &queries)
	closure := testClosure(conn, nil)

	handler := &PackageHandler{}
	for i := 0; i < 3; i++ {
		_, err := handler.Probe(closure, map[string]interface{}{"name": "curl"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, queries)
}

func TestPackageApplyInvalidatesCache(t *testing.T) {
	queries := 0
	conn := newFakeConn()
	conn.respond = dpkgResponder("curl\n", &queries)
	closure := testClosure(conn, nil)

	handler := &PackageHandler{}
	_, err := handler.Probe(closure, map[string]interface{}{"name": "nginx"})
	require.NoError(t, err)

	outcome, err := handler.Apply(closure, map[string]interface{}{"name": "nginx"})
	require.NoError(t, err)
	assert.True(t, outcome.Changed)
	assert.True(t, conn.ran("apt-get install -y"))

	// The installed-set fact was invalidated, so the next probe queries again.
	_, err = handler.Probe(closure, map[string]interface{}{"name": "nginx"})
	require.NoError(t, err)
	assert.Equal(t, 2, queries)
}

func TestPackageApplyUpdateCache(t *testing.T) {
	conn := newFakeConn()
	closure := testClosure(conn, nil)

	handler := &PackageHandler{}
	_, err := handler.Apply(closure, map[string]interface{}{
		"name":         "nginx",
		"update_cache": true,
	})
	require.NoError(t, err)
	assert.True(t, conn.ran("apt-get update"))
}

func TestPackageApplyAbsent(t *testing.T) {
	conn := newFakeConn()
	closure := testClosure(conn, nil)

	handler := &PackageHandler{}
	_, err := handler.Apply(closure, map[string]interface{}{
		"name":  "nginx",
		"state": "absent",
	})
	require.NoError(t, err)
	assert.True(t, conn.ran("apt-get remove -y"))
}

func TestPackageLockErrorIsTransient(t *testing.T) {
	conn := newFakeConn()
	conn.respond = func(command string) (*runtime.CommandResult, error) {
		return runtime.NewCommandResult(command, 100, "", "Could not get lock /var/lib/dpkg/lock-frontend"), nil
	}
	closure := testClosure(conn, nil)

	handler := &PackageHandler{}
	_, err := handler.Apply(closure, map[string]interface{}{"name": "nginx"})
	require.Error(t, err)
	assert.True(t, pkg.IsTransient(err))
}

func TestPackageRequiresName(t *testing.T) {
	closure := testClosure(newFakeConn(), nil)
	handler := &PackageHandler{}
	_, err := handler.Probe(closure, map[string]interface{}{})
	assert.Error(t, err)
}
