package handlers

import (
	"fmt"
	"os"

	"github.com/convergerun/converge/pkg"
)

// TemplateInput are the parameters for the template task type.
type TemplateInput struct {
	Src   string                 `mapstructure:"src"`
	Dest  string                 `mapstructure:"dest"`
	Owner string                 `mapstructure:"owner"`
	Mode  string                 `mapstructure:"mode"`
	Vars  map[string]interface{} `mapstructure:"vars"`
}

func (i *TemplateInput) Validate() error {
	if i.Src == "" {
		return fmt.Errorf("template requires 'src'")
	}
	if i.Dest == "" {
		return fmt.Errorf("template requires 'dest'")
	}
	return nil
}

// TemplateHandler renders a local template against the run's bindings and
// converges the remote destination to the rendered content. Task-level vars
// shadow the bindings during rendering.
type TemplateHandler struct{}

func (h *TemplateHandler) render(closure *pkg.Closure, input *TemplateInput) (string, error) {
	raw, err := os.ReadFile(input.Src)
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", input.Src, err)
	}
	vars := closure.Vars()
	for k, v := range input.Vars {
		vars[k] = v
	}
	rendered, err := pkg.TemplateString(string(raw), vars)
	if err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", input.Src, err)
	}
	return rendered, nil
}

func (h *TemplateHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	var input TemplateInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	rendered, err := h.render(closure, &input)
	if err != nil {
		return nil, err
	}
	return probeFile(closure, input.Dest, false, rendered, true, input.Mode, input.Owner)
}

func (h *TemplateHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	var input TemplateInput
	if err := decodeParams(params, &input); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	rendered, err := h.render(closure, &input)
	if err != nil {
		return nil, err
	}
	if err := closure.Conn.WriteFile(input.Dest, rendered, input.Owner, input.Mode); err != nil {
		return nil, err
	}
	return &pkg.ApplyOutcome{Changed: true, Detail: fmt.Sprintf("rendered %s", input.Src)}, nil
}

func init() {
	pkg.RegisterHandler("template", &TemplateHandler{})
}
