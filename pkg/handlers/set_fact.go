package handlers

import (
	"fmt"

	"github.com/convergerun/converge/pkg"
	"github.com/convergerun/converge/pkg/common"
)

// SetFactHandler binds every parameter as a runtime fact. It touches no
// remote state and never reports a change, so it cannot notify handlers.
type SetFactHandler struct{}

func (h *SetFactHandler) Probe(closure *pkg.Closure, params map[string]interface{}) (*pkg.StateDelta, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("set_fact requires at least one fact")
	}
	return &pkg.StateDelta{InSync: false, Detail: fmt.Sprintf("bind %d fact(s)", len(params))}, nil
}

func (h *SetFactHandler) Apply(closure *pkg.Closure, params map[string]interface{}) (*pkg.ApplyOutcome, error) {
	return &pkg.ApplyOutcome{
		Changed: false,
		Detail:  fmt.Sprintf("bound %d fact(s)", len(params)),
		Facts:   common.CopyMap(params),
	}, nil
}

func init() {
	pkg.RegisterHandler("set_fact", &SetFactHandler{})
}
