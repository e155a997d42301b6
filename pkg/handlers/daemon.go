package handlers

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/convergerun/converge/pkg"
)

// DaemonInput are the parameters for the daemon task type.
type DaemonInput struct {
	Name    string `mapstructure:"name"`
	Command string `mapstructure:"command"`
	PidFile string `mapstructure:"pid_file"`
	Chdir   string `mapstructure:"chdir"`
	User    string `mapstructure:"user"`
}

func (i *DaemonInput) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("daemon requires 'name'")
	}
	if i.Command == "" {
		return fmt.Errorf("daemon requires 'command'")
	}
	return nil
}

func (i *DaemonInput) pidFile() string {
	if i.PidFile != "" {
		return i.PidFile
	}
	return fmt.Sprintf("/run/converge/%s.pid", i.Name)
}

// pidFactName is the fact under which the running PID is published, so later
// steps can reference it.
func (i *DaemonInput) pidFactName() string {
	return fmt.Sprintf("%s_pid", i.Name)
}

// DaemonHandler supervises a long-running process through a pidfile: probe
// checks the recorded PID is alive, apply starts the process detached and
// records the new PID. Stale pidfiles (recorded PID no longer running) read
// as not in sync and are overwritten by the next apply.
type DaemonHandler struct{}

func (h *DaemonHandler) runningPid(closure *pkg.Closure, pidFile string) (int, bool) {
	data, err := closure.Conn.ReadFile(pidFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	rc, _, _, err := closure.RunCommand(fmt.Sprintf("kill -0 %d", pid))
	if err != nil || rc != 0 {
		return 0, false
	}
	return pid, true
}

func (h *DaemonHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	var input DaemonInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if pid, running := h.runningPid(closure, input.pidFile()); running {
		return &pkg.StateDelta{InSync: true, Detail: fmt.Sprintf("running as pid %d", pid)}, nil
	}
	return &pkg.StateDelta{InSync: false, Detail: "not running"}, nil
}

func (h *DaemonHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	var input DaemonInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	pidFile := input.pidFile()
	if err := runChecked(closure, fmt.Sprintf("mkdir -p %s", filepath.Dir(pidFile))); err != nil {
		return nil, err
	}

	launch := input.Command
	if input.Chdir != "" {
		launch = fmt.Sprintf("cd %s && %s", input.Chdir, launch)
	}
	if input.User != "" {
		launch = fmt.Sprintf("runuser -u %s -- %s", input.User, input.Command)
		if input.Chdir != "" {
			launch = fmt.Sprintf("cd %s && %s", input.Chdir, launch)
		}
	}
	start := fmt.Sprintf("nohup %s >/dev/null 2>&1 & echo $! > %s", launch, pidFile)
	if err := runShellChecked(closure, start); err != nil {
		return nil, err
	}

	pid, running := h.runningPid(closure, pidFile)
	if !running {
		return nil, fmt.Errorf("daemon %s exited immediately after start", input.Name)
	}
	return &pkg.ApplyOutcome{
		Changed: true,
		Detail:  fmt.Sprintf("started as pid %d", pid),
		Facts:   map[string]interface{}{input.pidFactName(): pid},
	}, nil
}

// Rollback stops a process the failed apply may have left behind and clears
// the pidfile.
func (h *DaemonHandler) Rollback(closure *pkg.Closure, params map[string]interface{}) error {
	var input DaemonInput
	if err := decodeParams(params, &input); err != nil {
		return err
	}
	if err := input.Validate(); err != nil {
		return err
	}
	pidFile := input.pidFile()
	if pid, running := h.runningPid(closure, pidFile); running {
		if err := runChecked(closure, fmt.Sprintf("kill %d", pid)); err != nil {
			return err
		}
	}
	return runChecked(closure, fmt.Sprintf("rm -f %s", pidFile))
}

func init() {
	pkg.RegisterHandler("daemon", &DaemonHandler{})
}
