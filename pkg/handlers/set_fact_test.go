package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFactPublishesParams(t *testing.T) {
	closure := testClosure(newFakeConn(), nil)
	handler := &SetFactHandler{}

	params := map[string]interface{}{"app_port": 8080, "app_user": "deploy"}
	delta, err := handler.Probe(closure, params)
	require.NoError(t, err)
	assert.False(t, delta.InSync)

	outcome, err := handler.Apply(closure, params)
	require.NoError(t, err)
	// Binding facts is not a remote-state change.
	assert.False(t, outcome.Changed)
	assert.Equal(t, 8080, outcome.Facts["app_port"])
	assert.Equal(t, "deploy", outcome.Facts["app_user"])
}

func TestSetFactRequiresParams(t *testing.T) {
	closure := testClosure(newFakeConn(), nil)
	handler := &SetFactHandler{}
	_, err := handler.Probe(closure, map[string]interface{}{})
	assert.Error(t, err)
}

func TestSetFactDoesNotAliasParams(t *testing.T) {
	closure := testClosure(newFakeConn(), nil)
	handler := &SetFactHandler{}

	params := map[string]interface{}{"key": "v1"}
	outcome, err := handler.Apply(closure, params)
	require.NoError(t, err)

	params["key"] = "v2"
	assert.Equal(t, "v1", outcome.Facts["key"])
}
