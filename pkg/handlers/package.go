package handlers

import (
	"fmt"
	"strings"

	"github.com/convergerun/converge/pkg"
)

// PackageInput are the parameters for the package task type. Name accepts a
// single package or a list; a list converges in one package-manager
// transaction.
type PackageInput struct {
	Name        interface{} `mapstructure:"name"`
	State       string      `mapstructure:"state"`
	UpdateCache bool        `mapstructure:"update_cache"`
}

func (i *PackageInput) Validate() error {
	if len(i.names()) == 0 {
		return fmt.Errorf("package requires 'name'")
	}
	switch i.State {
	case "", "present", "absent":
	default:
		return fmt.Errorf("package state must be present or absent, got %q", i.State)
	}
	return nil
}

func (i *PackageInput) names() []string {
	switch v := i.Name.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []interface{}:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				names = append(names, s)
			}
		}
		return names
	case []string:
		return v
	default:
		return nil
	}
}

func (i *PackageInput) absent() bool { return i.State == "absent" }

// installedPackagesCacheKey memoizes the dpkg selection listing, which is the
// expensive query every package probe needs.
const installedPackagesCacheKey = "packages:installed"

// PackageHandler converges apt packages. The installed set is queried once
// per run through the fact cache and invalidated after every apply.
type PackageHandler struct{}

func (h *PackageHandler) installed(closure *pkg.Closure) (map[string]struct{}, error) {
	cached, err := closure.Cache.GetOrCompute(installedPackagesCacheKey, func() (interface{}, error) {
		rc, stdout, stderr, err := closure.RunCommand("dpkg-query -W -f '${Package}\\n'")
		if err != nil {
			return nil, err
		}
		if rc != 0 {
			return nil, fmt.Errorf("dpkg-query exited %d: %s", rc, strings.TrimSpace(stderr))
		}
		set := make(map[string]struct{})
		for _, line := range strings.Split(stdout, "\n") {
			if name := strings.TrimSpace(line); name != "" {
				set[name] = struct{}{}
			}
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return cached.(map[string]struct{}), nil
}

func (h *PackageHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	var input PackageInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	installed, err := h.installed(closure)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, name := range input.names() {
		_, have := installed[name]
		if input.absent() == have {
			pending = append(pending, name)
		}
	}
	if len(pending) == 0 {
		return &pkg.StateDelta{InSync: true}, nil
	}
	verb := "install"
	if input.absent() {
		verb = "remove"
	}
	return &pkg.StateDelta{
		InSync: false,
		Detail: fmt.Sprintf("%s %s", verb, strings.Join(pending, ", ")),
	}, nil
}

func (h *PackageHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	var input PackageInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	if input.UpdateCache {
		if err := h.runApt(closure, "apt-get update -q"); err != nil {
			return nil, err
		}
	}

	action := "install"
	if input.absent() {
		action = "remove"
	}
	command := fmt.Sprintf("DEBIAN_FRONTEND=noninteractive apt-get %s -y -q %s", action, strings.Join(input.names(), " "))
	if err := h.runApt(closure, command); err != nil {
		return nil, err
	}
	closure.Cache.Invalidate(installedPackagesCacheKey)
	return &pkg.ApplyOutcome{
		Changed: true,
		Detail:  fmt.Sprintf("%sed %s", action, strings.Join(input.names(), ", ")),
	}, nil
}

// runApt executes an apt command, classifying a held dpkg lock as transient
// so the step retries with backoff instead of failing outright.
func (h *PackageHandler) runApt(closure *pkg.Closure, command string) error {
	rc, _, stderr, err := closure.RunShell(command)
	if err != nil {
		return err
	}
	if rc != 0 {
		aptErr := fmt.Errorf("%q exited %d: %s", command, rc, strings.TrimSpace(stderr))
		if isAptLockError(stderr) {
			return &pkg.TransientError{Err: aptErr}
		}
		return aptErr
	}
	return nil
}

func isAptLockError(stderr string) bool {
	lowered := strings.ToLower(stderr)
	return strings.Contains(lowered, "could not get lock") ||
		strings.Contains(lowered, "temporarily unavailable") ||
		strings.Contains(lowered, "is another process using it")
}

func init() {
	pkg.RegisterHandler("package", &PackageHandler{})
}
