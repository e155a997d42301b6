package handlers

import (
	"fmt"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/convergerun/converge/pkg"
	"github.com/convergerun/converge/pkg/runtime"
)

// FileInput are the parameters for the file task type. Content may come
// inline or from a local source file; the two are mutually exclusive.
type FileInput struct {
	Path    string `mapstructure:"path"`
	State   string `mapstructure:"state"`
	Content string `mapstructure:"content"`
	Src     string `mapstructure:"src"`
	Owner   string `mapstructure:"owner"`
	Mode    string `mapstructure:"mode"`
}

func (i *FileInput) Validate() error {
	if i.Path == "" {
		return fmt.Errorf("file requires 'path'")
	}
	switch i.State {
	case "", "present", "absent":
	default:
		return fmt.Errorf("file state must be present or absent, got %q", i.State)
	}
	if i.Content != "" && i.Src != "" {
		return fmt.Errorf("file takes 'content' or 'src', not both")
	}
	if i.State == "absent" && (i.Content != "" || i.Src != "") {
		return fmt.Errorf("file state absent cannot carry content")
	}
	return nil
}

func (i *FileInput) absent() bool { return i.State == "absent" }

// desiredContent resolves the content the file should hold. With neither
// content nor src given the file is only required to exist.
func (i *FileInput) desiredContent() (string, bool, error) {
	if i.Content != "" {
		return i.Content, true, nil
	}
	if i.Src != "" {
		data, err := os.ReadFile(i.Src)
		if err != nil {
			return "", false, fmt.Errorf("failed to read source file %s: %w", i.Src, err)
		}
		return string(data), true, nil
	}
	return "", false, nil
}

// FileHandler converges one remote file: presence, content, owner and mode.
// Probe reports content drift as a unified diff.
type FileHandler struct{}

func (h *FileHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	var input FileInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	desired, hasContent, err := input.desiredContent()
	if err != nil {
		return nil, err
	}
	return probeFile(closure, input.Path, input.absent(), desired, hasContent, input.Mode, input.Owner)
}

func (h *FileHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	var input FileInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	if input.absent() {
		if err := runChecked(closure, fmt.Sprintf("rm -f %s", input.Path)); err != nil {
			return nil, err
		}
		return &pkg.ApplyOutcome{Changed: true, Detail: "removed"}, nil
	}

	desired, hasContent, err := input.desiredContent()
	if err != nil {
		return nil, err
	}
	if !hasContent {
		// Keep existing content when only presence is requested.
		if existing, rerr := closure.Conn.ReadFile(input.Path); rerr == nil {
			desired = string(existing)
		}
	}
	if err := closure.Conn.WriteFile(input.Path, desired, input.Owner, input.Mode); err != nil {
		return nil, err
	}
	return &pkg.ApplyOutcome{Changed: true, Detail: "written"}, nil
}

// probeFile is the shared presence/content/mode/owner check used by the file
// and template handlers.
func probeFile(closure *pkg.Closure, path string, absent bool, desired string, hasContent bool, mode, owner string) (*pkg.StateDelta, error) {
	info, statErr := closure.Conn.Stat(path)
	if absent {
		if statErr != nil {
			return &pkg.StateDelta{InSync: true, Detail: "already absent"}, nil
		}
		return &pkg.StateDelta{InSync: false, Detail: "will remove"}, nil
	}
	if statErr != nil {
		return &pkg.StateDelta{InSync: false, Detail: "will create"}, nil
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s exists and is a directory", path)
	}

	var drift []string
	if hasContent {
		existing, err := closure.Conn.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if string(existing) != desired {
			diff, derr := contentDiff(path, string(existing), desired)
			if derr != nil {
				return nil, derr
			}
			drift = append(drift, diff)
		}
	}
	if mode != "" {
		want, err := runtime.ParseFileMode(mode)
		if err != nil {
			return nil, err
		}
		if info.Mode().Perm() != want.Perm() {
			drift = append(drift, fmt.Sprintf("mode %o -> %o", info.Mode().Perm(), want.Perm()))
		}
	}
	if owner != "" {
		current, err := statOwner(closure, path)
		if err != nil {
			return nil, err
		}
		if current != owner {
			drift = append(drift, fmt.Sprintf("owner %s -> %s", current, owner))
		}
	}
	if len(drift) > 0 {
		return &pkg.StateDelta{InSync: false, Detail: strings.Join(drift, "\n")}, nil
	}
	return &pkg.StateDelta{InSync: true}, nil
}

func contentDiff(path, current, desired string) (string, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(current),
		B:        difflib.SplitLines(desired),
		FromFile: path,
		ToFile:   path + " (desired)",
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to diff %s: %w", path, err)
	}
	return strings.TrimRight(diff, "\n"), nil
}

func init() {
	pkg.RegisterHandler("file", &FileHandler{})
}
