package handlers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/convergerun/converge/pkg"
)

// UserInput are the parameters for the user task type.
type UserInput struct {
	Name       string   `mapstructure:"name"`
	State      string   `mapstructure:"state"`
	Shell      string   `mapstructure:"shell"`
	Home       string   `mapstructure:"home"`
	Groups     []string `mapstructure:"groups"`
	System     bool     `mapstructure:"system"`
	CreateHome *bool    `mapstructure:"create_home"`
}

func (i *UserInput) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("user requires 'name'")
	}
	switch i.State {
	case "", "present", "absent":
	default:
		return fmt.Errorf("user state must be present or absent, got %q", i.State)
	}
	return nil
}

func (i *UserInput) absent() bool { return i.State == "absent" }

// passwdEntry is the subset of a passwd line the handler converges.
type passwdEntry struct {
	home  string
	shell string
}

// UserHandler converges a system account: presence, shell, home directory
// and supplementary group membership.
type UserHandler struct{}

func (h *UserHandler) lookup(closure *pkg.Closure, name string) (*passwdEntry, error) {
	rc, stdout, _, err := closure.RunCommand(fmt.Sprintf("getent passwd %s", name))
	if err != nil {
		return nil, err
	}
	if rc != 0 {
		return nil, nil
	}
	fields := strings.Split(strings.TrimSpace(stdout), ":")
	if len(fields) < 7 {
		return nil, fmt.Errorf("unexpected passwd entry for %s: %q", name, strings.TrimSpace(stdout))
	}
	return &passwdEntry{home: fields[5], shell: fields[6]}, nil
}

func (h *UserHandler) groups(closure *pkg.Closure, name string) ([]string, error) {
	rc, stdout, stderr, err := closure.RunCommand(fmt.Sprintf("id -Gn %s", name))
	if err != nil {
		return nil, err
	}
	if rc != 0 {
		return nil, fmt.Errorf("failed to list groups for %s: %s", name, strings.TrimSpace(stderr))
	}
	return strings.Fields(stdout), nil
}

func (h *UserHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	var input UserInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	entry, err := h.lookup(closure, input.Name)
	if err != nil {
		return nil, err
	}
	if input.absent() {
		if entry == nil {
			return &pkg.StateDelta{InSync: true, Detail: "already absent"}, nil
		}
		return &pkg.StateDelta{InSync: false, Detail: "will remove"}, nil
	}
	if entry == nil {
		return &pkg.StateDelta{InSync: false, Detail: "will create"}, nil
	}

	var drift []string
	if input.Shell != "" && entry.shell != input.Shell {
		drift = append(drift, fmt.Sprintf("shell %s -> %s", entry.shell, input.Shell))
	}
	if input.Home != "" && entry.home != input.Home {
		drift = append(drift, fmt.Sprintf("home %s -> %s", entry.home, input.Home))
	}
	if len(input.Groups) > 0 {
		current, gerr := h.groups(closure, input.Name)
		if gerr != nil {
			return nil, gerr
		}
		have := make(map[string]struct{}, len(current))
		for _, g := range current {
			have[g] = struct{}{}
		}
		var missing []string
		for _, g := range input.Groups {
			if _, ok := have[g]; !ok {
				missing = append(missing, g)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			drift = append(drift, fmt.Sprintf("add to groups %s", strings.Join(missing, ", ")))
		}
	}
	if len(drift) > 0 {
		return &pkg.StateDelta{InSync: false, Detail: strings.Join(drift, ", ")}, nil
	}
	return &pkg.StateDelta{InSync: true}, nil
}

func (h *UserHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	var input UserInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	entry, err := h.lookup(closure, input.Name)
	if err != nil {
		return nil, err
	}

	if input.absent() {
		if err := runChecked(closure, fmt.Sprintf("userdel %s", input.Name)); err != nil {
			return nil, err
		}
		return &pkg.ApplyOutcome{Changed: true, Detail: "removed"}, nil
	}

	if entry == nil {
		args := []string{"useradd"}
		if input.System {
			args = append(args, "--system")
		}
		createHome := input.CreateHome == nil || *input.CreateHome
		if createHome && !input.System {
			args = append(args, "--create-home")
		}
		if input.Shell != "" {
			args = append(args, "--shell", input.Shell)
		}
		if input.Home != "" {
			args = append(args, "--home-dir", input.Home)
		}
		if len(input.Groups) > 0 {
			args = append(args, "--groups", strings.Join(input.Groups, ","))
		}
		args = append(args, input.Name)
		if err := runChecked(closure, strings.Join(args, " ")); err != nil {
			return nil, err
		}
		return &pkg.ApplyOutcome{Changed: true, Detail: "created"}, nil
	}

	args := []string{"usermod"}
	if input.Shell != "" && entry.shell != input.Shell {
		args = append(args, "--shell", input.Shell)
	}
	if input.Home != "" && entry.home != input.Home {
		args = append(args, "--home", input.Home, "--move-home")
	}
	if len(input.Groups) > 0 {
		args = append(args, "--append", "--groups", strings.Join(input.Groups, ","))
	}
	if len(args) == 1 {
		return &pkg.ApplyOutcome{Changed: false}, nil
	}
	args = append(args, input.Name)
	if err := runChecked(closure, strings.Join(args, " ")); err != nil {
		return nil, err
	}
	return &pkg.ApplyOutcome{Changed: true, Detail: "updated"}, nil
}

func init() {
	pkg.RegisterHandler("user", &UserHandler{})
}
