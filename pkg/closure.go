package pkg

import (
	"github.com/convergerun/converge/pkg/common"
	"github.com/convergerun/converge/pkg/config"
	"github.com/convergerun/converge/pkg/runtime"
)

// Closure carries everything a handler needs to act on one host: the
// connection, the layered bindings, the per-run fact cache and the step-local
// extra facts (the loop item, mostly).
type Closure struct {
	Host       *Host
	Conn       runtime.Connection
	Bindings   *Bindings
	Cache      *FactCache
	Config     *config.Config
	ExtraFacts map[string]interface{}
	becomeUser string
}

// Vars merges the layered bindings with the step-local extra facts, the
// latter winning.
func (c *Closure) Vars() map[string]interface{} {
	vars := c.Bindings.Flatten()
	if c.Host != nil {
		vars["inventory_hostname"] = c.Host.Name
	}
	for k, v := range c.ExtraFacts {
		vars[k] = v
	}
	return vars
}

// RunCommand executes a command through the closure's connection, applying
// the step's privilege escalation. Returns exit code, stdout and stderr.
func (c *Closure) RunCommand(command string) (int, string, string, error) {
	opts := new(runtime.CommandOptions).WithBecomeUser(c.becomeUser)
	result, err := c.Conn.Execute(command, opts)
	if err != nil {
		return -1, "", "", err
	}
	return result.ExitCode, result.Stdout, result.Stderr, nil
}

// RunShell is RunCommand through /bin/bash -c, for commands that need shell
// features.
func (c *Closure) RunShell(command string) (int, string, string, error) {
	opts := new(runtime.CommandOptions).WithBecomeUser(c.becomeUser).WithShell()
	result, err := c.Conn.Execute(command, opts)
	if err != nil {
		return -1, "", "", err
	}
	return result.ExitCode, result.Stdout, result.Stderr, nil
}

// BecomeUser returns the user commands run as, empty when unescalated.
func (c *Closure) BecomeUser() string {
	return c.becomeUser
}

// IsCheckMode reports whether the run is probe-only.
func (c *Closure) IsCheckMode() bool {
	return c.Config != nil && c.Config.CheckMode
}

// withStep derives a step-scoped closure carrying the step's loop item and
// privilege escalation. The bindings and cache are shared, not copied.
func (c *Closure) withStep(step *PlanStep) *Closure {
	derived := &Closure{
		Host:       c.Host,
		Conn:       c.Conn,
		Bindings:   c.Bindings,
		Cache:      c.Cache,
		Config:     c.Config,
		ExtraFacts: common.CopyMap(c.ExtraFacts),
		becomeUser: step.BecomeUser,
	}
	if derived.ExtraFacts == nil {
		derived.ExtraFacts = make(map[string]interface{})
	}
	if step.HasItem {
		derived.ExtraFacts["item"] = step.Item
	}
	return derived
}
