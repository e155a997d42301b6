package handlers

import (
	"fmt"
	"strings"

	"github.com/convergerun/converge/pkg"
)

// ShellInput are the parameters for the shell task type.
type ShellInput struct {
	Cmd     string `mapstructure:"cmd"`
	Chdir   string `mapstructure:"chdir"`
	Creates string `mapstructure:"creates"`
	Removes string `mapstructure:"removes"`
}

func (i *ShellInput) Validate() error {
	if i.Cmd == "" {
		return fmt.Errorf("shell requires 'cmd'")
	}
	return nil
}

// ShellHandler runs an arbitrary command through /bin/bash. Arbitrary
// commands carry no idempotence guarantee, so the handler is excluded from
// automatic retry unless the task sets retryable.
type ShellHandler struct{}

// NonRetryable marks shell steps as unsafe to re-run automatically.
func (h *ShellHandler) NonRetryable() bool { return true }

func (h *ShellHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	var input ShellInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if input.Creates != "" {
		if _, err := closure.Conn.Stat(input.Creates); err == nil {
			return &pkg.StateDelta{InSync: true, Detail: fmt.Sprintf("%s exists", input.Creates)}, nil
		}
	}
	if input.Removes != "" {
		if _, err := closure.Conn.Stat(input.Removes); err != nil {
			return &pkg.StateDelta{InSync: true, Detail: fmt.Sprintf("%s absent", input.Removes)}, nil
		}
	}
	return &pkg.StateDelta{InSync: false, Detail: "command will run"}, nil
}

func (h *ShellHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	var input ShellInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	command := input.Cmd
	if input.Chdir != "" {
		command = fmt.Sprintf("cd %s && %s", input.Chdir, input.Cmd)
	}
	rc, stdout, stderr, err := closure.RunShell(command)
	if err != nil {
		return nil, err
	}
	if rc != 0 {
		return nil, fmt.Errorf("command exited %d: %s", rc, strings.TrimSpace(stderr))
	}
	return &pkg.ApplyOutcome{
		Changed: true,
		Detail:  strings.TrimSpace(stdout),
		Facts: map[string]interface{}{
			"stdout": strings.TrimSpace(stdout),
			"stderr": strings.TrimSpace(stderr),
			"rc":     rc,
		},
	}, nil
}

func init() {
	pkg.RegisterHandler("shell", &ShellHandler{})
}
