package handlers

import (
	"fmt"
	"strings"

	"github.com/convergerun/converge/pkg"
)

// GitInput are the parameters for the git task type.
type GitInput struct {
	Repo    string `mapstructure:"repo"`
	Dest    string `mapstructure:"dest"`
	Version string `mapstructure:"version"`
	Force   bool   `mapstructure:"force"`
	Depth   int    `mapstructure:"depth"`
}

func (i *GitInput) Validate() error {
	if i.Repo == "" {
		return fmt.Errorf("git requires 'repo'")
	}
	if i.Dest == "" {
		return fmt.Errorf("git requires 'dest'")
	}
	return nil
}

// GitHandler converges a working tree to a repository checkout. Unknown SSH
// host keys are accepted on first contact so fresh hosts can clone without
// pre-seeded known_hosts.
type GitHandler struct{}

// gitEnv prefixes git commands so clones from SSH remotes work
// non-interactively.
const gitEnv = "GIT_SSH_COMMAND='ssh -o StrictHostKeyChecking=accept-new'"

func (h *GitHandler) headRev(closure *pkg.Closure, dest string) (string, error) {
	rc, stdout, stderr, err := closure.RunCommand(fmt.Sprintf("git -C %s rev-parse HEAD", dest))
	if err != nil {
		return "", err
	}
	if rc != 0 {
		return "", fmt.Errorf("failed to resolve HEAD in %s: %s", dest, strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}

func (h *GitHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	var input GitInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	if _, err := closure.Conn.Stat(input.Dest + "/.git"); err != nil {
		return &pkg.StateDelta{InSync: false, Detail: fmt.Sprintf("will clone %s", input.Repo)}, nil
	}

	rc, stdout, _, err := closure.RunCommand(fmt.Sprintf("git -C %s remote get-url origin", input.Dest))
	if err != nil {
		return nil, err
	}
	if rc != 0 || strings.TrimSpace(stdout) != input.Repo {
		if !input.Force {
			return nil, fmt.Errorf("%s tracks a different remote (%s); set force to replace it", input.Dest, strings.TrimSpace(stdout))
		}
		return &pkg.StateDelta{InSync: false, Detail: "will re-clone from new remote"}, nil
	}

	if input.Version == "" {
		return &pkg.StateDelta{InSync: true}, nil
	}
	head, err := h.headRev(closure, input.Dest)
	if err != nil {
		return nil, err
	}
	rc, stdout, _, err = closure.RunCommand(fmt.Sprintf("git -C %s rev-parse %s", input.Dest, input.Version))
	if err != nil {
		return nil, err
	}
	// An unresolvable version usually means the ref only exists upstream.
	if rc != 0 || strings.TrimSpace(stdout) != head {
		return &pkg.StateDelta{InSync: false, Detail: fmt.Sprintf("will check out %s", input.Version)}, nil
	}
	return &pkg.StateDelta{InSync: true}, nil
}

func (h *GitHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	var input GitInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	fresh := false
	if _, err := closure.Conn.Stat(input.Dest + "/.git"); err != nil {
		fresh = true
	} else if input.Force {
		rc, stdout, _, err := closure.RunCommand(fmt.Sprintf("git -C %s remote get-url origin", input.Dest))
		if err != nil {
			return nil, err
		}
		if rc != 0 || strings.TrimSpace(stdout) != input.Repo {
			if err := runChecked(closure, fmt.Sprintf("rm -rf %s", input.Dest)); err != nil {
				return nil, err
			}
			fresh = true
		}
	}

	if fresh {
		clone := fmt.Sprintf("%s git clone %s %s", gitEnv, input.Repo, input.Dest)
		if input.Depth > 0 {
			clone = fmt.Sprintf("%s git clone --depth %d %s %s", gitEnv, input.Depth, input.Repo, input.Dest)
		}
		if err := runShellChecked(closure, clone); err != nil {
			return nil, err
		}
	} else {
		if err := runShellChecked(closure, fmt.Sprintf("%s git -C %s fetch --tags origin", gitEnv, input.Dest)); err != nil {
			return nil, err
		}
	}

	if input.Version != "" {
		checkout := fmt.Sprintf("git -C %s checkout %s", input.Dest, input.Version)
		if input.Force {
			checkout = fmt.Sprintf("git -C %s checkout --force %s", input.Dest, input.Version)
		}
		if err := runShellChecked(closure, checkout); err != nil {
			return nil, err
		}
	}

	head, err := h.headRev(closure, input.Dest)
	if err != nil {
		return nil, err
	}
	return &pkg.ApplyOutcome{
		Changed: true,
		Detail:  fmt.Sprintf("at %s", head),
		Facts:   map[string]interface{}{"git_rev": head},
	}, nil
}

// runShellChecked is runChecked through a shell, for commands carrying env
// prefixes.
func runShellChecked(closure *pkg.Closure, command string) error {
	rc, _, stderr, err := closure.RunShell(command)
	if err != nil {
		return err
	}
	if rc != 0 {
		return fmt.Errorf("%q exited %d: %s", command, rc, strings.TrimSpace(stderr))
	}
	return nil
}

func init() {
	pkg.RegisterHandler("git", &GitHandler{})
}
