package runtime

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/convergerun/converge/pkg/common"
	"github.com/google/shlex"
)

// LocalConnection executes everything on the machine converge runs on.
// It is used for hosts marked local in the inventory.
type LocalConnection struct {
	host string
}

func NewLocalConnection(host string) *LocalConnection {
	if host == "" {
		host = "localhost"
	}
	return &LocalConnection{host: host}
}

func (lc *LocalConnection) Host() string { return lc.host }

func (lc *LocalConnection) Close() error { return nil }

func (lc *LocalConnection) Execute(command string, opts *CommandOptions) (*CommandResult, error) {
	if command == "" {
		return nil, fmt.Errorf("command is empty")
	}

	cmdToRun := buildCommand(command, opts)
	splitCmd, err := shlex.Split(cmdToRun)
	if err != nil {
		return nil, fmt.Errorf("failed to split command %q: %w", command, err)
	}
	prog := splitCmd[0]
	args := splitCmd[1:]
	absProg, err := exec.LookPath(prog)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s in $PATH: %w", prog, err)
	}
	cmd := exec.Command(absProg, args...)

	common.DebugOutput("Running local command: %s", cmd.String())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	rc := 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			rc = exitError.ExitCode()
		} else {
			return nil, fmt.Errorf("failed to execute command %q: %w", cmd.String(), err)
		}
	}

	if sudoErr := checkSudoPasswordError(stderr.String(), lc.host); sudoErr != nil {
		return NewCommandResult(cmdToRun, rc, stdout.String(), stderr.String()), sudoErr
	}
	return NewCommandResult(cmdToRun, rc, stdout.String(), stderr.String()), nil
}

func (lc *LocalConnection) Stat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

func (lc *LocalConnection) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read local file %s: %w", path, err)
	}
	return data, nil
}

func (lc *LocalConnection) WriteFile(path, content, owner, mode string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	perm := os.FileMode(0644)
	if mode != "" {
		parsed, err := ParseFileMode(mode)
		if err != nil {
			return err
		}
		perm = parsed
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("failed to write local file %s: %w", path, err)
	}
	// WriteFile does not change the mode of pre-existing files
	if mode != "" {
		if err := os.Chmod(path, perm); err != nil {
			return fmt.Errorf("failed to set mode on %s: %w", path, err)
		}
	}
	if owner != "" {
		result, err := lc.Execute(fmt.Sprintf("chown %s %s", owner, path), nil)
		if err != nil {
			return err
		}
		if result.Failed() {
			return fmt.Errorf("failed to chown %s to %s: %s", path, owner, result.Stderr)
		}
	}
	return nil
}

// ParseFileMode parses an octal mode string such as "0644" or "600".
func ParseFileMode(modeStr string) (os.FileMode, error) {
	parsed, err := strconv.ParseUint(modeStr, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid file mode %q: %w", modeStr, err)
	}
	return os.FileMode(parsed), nil
}
