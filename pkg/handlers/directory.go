package handlers

import (
	"fmt"
	"strings"

	"github.com/convergerun/converge/pkg"
	"github.com/convergerun/converge/pkg/runtime"
)

// DirectoryInput are the parameters for the directory task type.
type DirectoryInput struct {
	Path  string `mapstructure:"path"`
	State string `mapstructure:"state"`
	Owner string `mapstructure:"owner"`
	Mode  string `mapstructure:"mode"`
}

func (i *DirectoryInput) Validate() error {
	if i.Path == "" {
		return fmt.Errorf("directory requires 'path'")
	}
	switch i.State {
	case "", "present", "absent":
	default:
		return fmt.Errorf("directory state must be present or absent, got %q", i.State)
	}
	return nil
}

func (i *DirectoryInput) absent() bool { return i.State == "absent" }

// DirectoryHandler converges a directory to exist (with owner and mode) or
// to be absent.
type DirectoryHandler struct{}

func (h *DirectoryHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	var input DirectoryInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	info, statErr := closure.Conn.Stat(input.Path)
	if input.absent() {
		if statErr != nil {
			return &pkg.StateDelta{InSync: true, Detail: "already absent"}, nil
		}
		return &pkg.StateDelta{InSync: false, Detail: "will remove"}, nil
	}
	if statErr != nil {
		return &pkg.StateDelta{InSync: false, Detail: "will create"}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s exists and is not a directory", input.Path)
	}

	var drift []string
	if input.Mode != "" {
		want, err := runtime.ParseFileMode(input.Mode)
		if err != nil {
			return nil, err
		}
		if info.Mode().Perm() != want.Perm() {
			drift = append(drift, fmt.Sprintf("mode %o -> %o", info.Mode().Perm(), want.Perm()))
		}
	}
	if input.Owner != "" {
		owner, err := statOwner(closure, input.Path)
		if err != nil {
			return nil, err
		}
		if owner != input.Owner {
			drift = append(drift, fmt.Sprintf("owner %s -> %s", owner, input.Owner))
		}
	}
	if len(drift) > 0 {
		return &pkg.StateDelta{InSync: false, Detail: strings.Join(drift, ", ")}, nil
	}
	return &pkg.StateDelta{InSync: true}, nil
}

func (h *DirectoryHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	var input DirectoryInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	if input.absent() {
		if err := runChecked(closure, fmt.Sprintf("rm -rf %s", input.Path)); err != nil {
			return nil, err
		}
		return &pkg.ApplyOutcome{Changed: true, Detail: "removed"}, nil
	}

	if err := runChecked(closure, fmt.Sprintf("mkdir -p %s", input.Path)); err != nil {
		return nil, err
	}
	if input.Mode != "" {
		if err := runChecked(closure, fmt.Sprintf("chmod %s %s", input.Mode, input.Path)); err != nil {
			return nil, err
		}
	}
	if input.Owner != "" {
		if err := runChecked(closure, fmt.Sprintf("chown %s %s", input.Owner, input.Path)); err != nil {
			return nil, err
		}
	}
	return &pkg.ApplyOutcome{Changed: true, Detail: "created"}, nil
}

// statOwner returns the owning user of a path.
func statOwner(closure *pkg.Closure, path string) (string, error) {
	rc, stdout, stderr, err := closure.RunCommand(fmt.Sprintf("stat -c %%U %s", path))
	if err != nil {
		return "", err
	}
	if rc != 0 {
		return "", fmt.Errorf("failed to stat owner of %s: %s", path, strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}

// runChecked executes a command and turns a non-zero exit into an error.
func runChecked(closure *pkg.Closure, command string) error {
	rc, _, stderr, err := closure.RunCommand(command)
	if err != nil {
		return err
	}
	if rc != 0 {
		return fmt.Errorf("%q exited %d: %s", command, rc, strings.TrimSpace(stderr))
	}
	return nil
}

func init() {
	pkg.RegisterHandler("directory", &DirectoryHandler{})
}
