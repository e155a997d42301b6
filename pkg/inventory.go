package pkg

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/convergerun/converge/pkg/common"
	"github.com/convergerun/converge/pkg/config"
	"github.com/convergerun/converge/pkg/runtime"
)

// Host is one target in the inventory. Host-level vars form the
// highest-precedence static binding layer and also carry per-host transport
// settings (ssh_user, ssh_port, ssh_private_key_file).
type Host struct {
	Name    string                 `yaml:"-"`
	Host    string                 `yaml:"host"`
	Vars    map[string]interface{} `yaml:"vars"`
	IsLocal bool                   `yaml:"is_local"`
}

// Address returns what the transport should dial: the explicit host field
// when present, the inventory name otherwise.
func (h *Host) Address() string {
	if h.Host != "" {
		return h.Host
	}
	return h.Name
}

// Connect opens the transport for this host: an in-process local connection
// for local hosts, pooled SSH for everything else.
func (h *Host) Connect(cfg *config.Config) (runtime.Connection, error) {
	if h.IsLocal || h.Address() == "localhost" || h.Address() == "127.0.0.1" {
		return runtime.NewLocalConnection(h.Name), nil
	}
	return runtime.NewSSHConnection(h.Name, h.Address(), h.Vars, cfg)
}

// Inventory is the set of hosts a run can target, with optional vars shared
// by every host.
type Inventory struct {
	Hosts map[string]*Host       `yaml:"hosts"`
	Vars  map[string]interface{} `yaml:"vars"`
}

// LoadInventory reads a YAML inventory file.
func LoadInventory(filePath string) (*Inventory, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory %s: %w", filePath, err)
	}
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory %s: %w", filePath, err)
	}
	if len(inv.Hosts) == 0 {
		return nil, fmt.Errorf("inventory %s defines no hosts", filePath)
	}
	for name, host := range inv.Hosts {
		if host == nil {
			host = &Host{}
			inv.Hosts[name] = host
		}
		host.Name = name
		if host.Vars == nil {
			host.Vars = make(map[string]interface{})
		}
		// Shared inventory vars sit below host vars.
		for k, v := range inv.Vars {
			if _, ok := host.Vars[k]; !ok {
				host.Vars[k] = v
			}
		}
	}
	common.LogDebug("Loaded inventory", map[string]interface{}{
		"path":  filePath,
		"hosts": len(inv.Hosts),
	})
	return &inv, nil
}

// LocalInventory is the implicit single-host inventory used when no
// inventory file is given.
func LocalInventory() *Inventory {
	return &Inventory{
		Hosts: map[string]*Host{
			"localhost": {Name: "localhost", Vars: map[string]interface{}{}, IsLocal: true},
		},
	}
}

// Select returns the hosts matching a comma-separated list of glob patterns,
// sorted by name for deterministic fan-out order. An empty limit selects
// every host. A pattern matching nothing is an error, since a typo silently
// provisioning zero hosts is worse than failing.
func (inv *Inventory) Select(limit string) ([]*Host, error) {
	patterns := []string{"*"}
	if limit != "" {
		patterns = strings.Split(limit, ",")
	}
	selected := make(map[string]*Host)
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		matched := false
		for name, host := range inv.Hosts {
			ok, err := path.Match(pattern, name)
			if err != nil {
				return nil, fmt.Errorf("invalid limit pattern %q: %w", pattern, err)
			}
			if ok {
				selected[name] = host
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("limit pattern %q matches no host", pattern)
		}
	}
	hosts := make([]*Host, 0, len(selected))
	for _, host := range selected {
		hosts = append(hosts, host)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts, nil
}
