package pkg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/convergerun/converge/pkg/common"
)

// Playbook is the declarative input to a run: variables, the ordered task
// list, and the handlers that changed tasks may notify.
type Playbook struct {
	Name string `yaml:"name"`
	// Defaults are the lowest-precedence binding layer; play vars override
	// them, host vars override both.
	Defaults map[string]interface{} `yaml:"defaults"`
	Vars     map[string]interface{} `yaml:"vars"`
	Tasks    []Task                 `yaml:"tasks"`
	Handlers []Task                 `yaml:"handlers"`
}

// LoadPlaybook reads and parses a YAML playbook file.
func LoadPlaybook(filePath string) (*Playbook, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook %s: %w", filePath, err)
	}
	play, err := ParsePlaybook(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse playbook %s: %w", filePath, err)
	}
	common.LogDebug("Loaded playbook", map[string]interface{}{
		"path":     filePath,
		"name":     play.Name,
		"tasks":    len(play.Tasks),
		"handlers": len(play.Handlers),
	})
	return play, nil
}

// ParsePlaybook parses playbook YAML.
func ParsePlaybook(data []byte) (*Playbook, error) {
	var play Playbook
	if err := yaml.Unmarshal(data, &play); err != nil {
		return nil, err
	}
	if len(play.Tasks) == 0 {
		return nil, fmt.Errorf("playbook defines no tasks")
	}
	return &play, nil
}
