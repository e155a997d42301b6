package pkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadInventory(t *testing.T) {
	path := writeInventory(t, `
vars:
  region: eu-west
hosts:
  web1:
    host: 10.0.0.1
    vars:
      role: web
  db1:
    host: 10.0.0.2
    vars:
      region: us-east
`)
	inv, err := LoadInventory(path)
	require.NoError(t, err)
	require.Len(t, inv.Hosts, 2)

	web := inv.Hosts["web1"]
	assert.Equal(t, "web1", web.Name)
	assert.Equal(t, "10.0.0.1", web.Address())
	assert.Equal(t, "web", web.Vars["role"])
	// Shared vars fill in where the host does not override.
	assert.Equal(t, "eu-west", web.Vars["region"])
	assert.Equal(t, "us-east", inv.Hosts["db1"].Vars["region"])
}

func TestLoadInventoryRejectsEmpty(t *testing.T) {
	path := writeInventory(t, `hosts: {}`)
	_, err := LoadInventory(path)
	assert.Error(t, err)
}

func TestInventorySelectAll(t *testing.T) {
	inv := &Inventory{Hosts: map[string]*Host{
		"web1": {Name: "web1"},
		"web2": {Name: "web2"},
		"db1":  {Name: "db1"},
	}}
	hosts, err := inv.Select("")
	require.NoError(t, err)
	require.Len(t, hosts, 3)
	// Deterministic order by name.
	assert.Equal(t, "db1", hosts[0].Name)
	assert.Equal(t, "web1", hosts[1].Name)
	assert.Equal(t, "web2", hosts[2].Name)
}

func TestInventorySelectPatterns(t *testing.T) {
	inv := &Inventory{Hosts: map[string]*Host{
		"web1": {Name: "web1"},
		"web2": {Name: "web2"},
		"db1":  {Name: "db1"},
	}}
	hosts, err := inv.Select("web*")
	require.NoError(t, err)
	require.Len(t, hosts, 2)

	hosts, err = inv.Select("db1,web1")
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "db1", hosts[0].Name)
	assert.Equal(t, "web1", hosts[1].Name)
}

func TestInventorySelectUnmatchedPatternFails(t *testing.T) {
	inv := &Inventory{Hosts: map[string]*Host{"web1": {Name: "web1"}}}
	_, err := inv.Select("mail*")
	assert.Error(t, err)
}

func TestLocalInventory(t *testing.T) {
	inv := LocalInventory()
	hosts, err := inv.Select("")
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.True(t, hosts[0].IsLocal)
	assert.Equal(t, "localhost", hosts[0].Name)
}

func TestHostAddressFallsBackToName(t *testing.T) {
	h := &Host{Name: "web1"}
	assert.Equal(t, "web1", h.Address())
	h.Host = "192.168.1.5"
	assert.Equal(t, "192.168.1.5", h.Address())
}
