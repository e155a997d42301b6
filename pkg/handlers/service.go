package handlers

import (
	"fmt"
	"strings"

	"github.com/convergerun/converge/pkg"
)

// ServiceInput are the parameters for the service task type.
type ServiceInput struct {
	Name         string `mapstructure:"name"`
	State        string `mapstructure:"state"`
	Enabled      *bool  `mapstructure:"enabled"`
	DaemonReload bool   `mapstructure:"daemon_reload"`
}

func (i *ServiceInput) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("service requires 'name'")
	}
	switch i.State {
	case "", "started", "stopped", "restarted":
	default:
		return fmt.Errorf("service state must be started, stopped or restarted, got %q", i.State)
	}
	if i.State == "" && i.Enabled == nil && !i.DaemonReload {
		return fmt.Errorf("service requires 'state', 'enabled' or 'daemon_reload'")
	}
	return nil
}

// ServiceHandler converges a systemd unit's active and enabled state.
// state=restarted is imperative and never probes in sync, which makes it the
// natural body for a notified handler.
type ServiceHandler struct{}

func (h *ServiceHandler) isActive(closure *pkg.Closure, name string) (bool, error) {
	rc, stdout, _, err := closure.RunCommand(fmt.Sprintf("systemctl is-active %s", name))
	if err != nil {
		return false, err
	}
	return rc == 0 && strings.TrimSpace(stdout) == "active", nil
}

func (h *ServiceHandler) isEnabled(closure *pkg.Closure, name string) (bool, error) {
	rc, stdout, _, err := closure.RunCommand(fmt.Sprintf("systemctl is-enabled %s", name))
	if err != nil {
		return false, err
	}
	return rc == 0 && strings.TrimSpace(stdout) == "enabled", nil
}

func (h *ServiceHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	var input ServiceInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var drift []string
	switch input.State {
	case "restarted":
		drift = append(drift, "restart")
	case "started":
		active, err := h.isActive(closure, input.Name)
		if err != nil {
			return nil, err
		}
		if !active {
			drift = append(drift, "start")
		}
	case "stopped":
		active, err := h.isActive(closure, input.Name)
		if err != nil {
			return nil, err
		}
		if active {
			drift = append(drift, "stop")
		}
	}
	if input.Enabled != nil {
		enabled, err := h.isEnabled(closure, input.Name)
		if err != nil {
			return nil, err
		}
		if enabled != *input.Enabled {
			if *input.Enabled {
				drift = append(drift, "enable")
			} else {
				drift = append(drift, "disable")
			}
		}
	}
	if input.DaemonReload && len(drift) == 0 && input.State == "" && input.Enabled == nil {
		drift = append(drift, "daemon-reload")
	}
	if len(drift) == 0 {
		return &pkg.StateDelta{InSync: true}, nil
	}
	return &pkg.StateDelta{InSync: false, Detail: strings.Join(drift, ", ")}, nil
}

func (h *ServiceHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	var input ServiceInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var actions []string
	if input.DaemonReload {
		if err := runChecked(closure, "systemctl daemon-reload"); err != nil {
			return nil, err
		}
		actions = append(actions, "daemon-reload")
	}
	if input.Enabled != nil {
		verb := "enable"
		if !*input.Enabled {
			verb = "disable"
		}
		if err := runChecked(closure, fmt.Sprintf("systemctl %s %s", verb, input.Name)); err != nil {
			return nil, err
		}
		actions = append(actions, verb)
	}
	switch input.State {
	case "started":
		if err := runChecked(closure, fmt.Sprintf("systemctl start %s", input.Name)); err != nil {
			return nil, err
		}
		actions = append(actions, "start")
	case "stopped":
		if err := runChecked(closure, fmt.Sprintf("systemctl stop %s", input.Name)); err != nil {
			return nil, err
		}
		actions = append(actions, "stop")
	case "restarted":
		if err := runChecked(closure, fmt.Sprintf("systemctl restart %s", input.Name)); err != nil {
			return nil, err
		}
		actions = append(actions, "restart")
	}
	return &pkg.ApplyOutcome{Changed: true, Detail: strings.Join(actions, ", ")}, nil
}

func init() {
	pkg.RegisterHandler("service", &ServiceHandler{})
}
