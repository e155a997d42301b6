package pkg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convergerun/converge/pkg/common"
	"github.com/convergerun/converge/pkg/config"
	"github.com/convergerun/converge/pkg/runtime"
)

// Engine drives one playbook run against one host: it builds the plan,
// walks each step through the probe/apply state machine, retries transient
// failures with bounded exponential backoff, and flushes queued handlers at
// the end of the run. An Engine instance owns its fact cache and bindings
// for the duration of a run and is not safe for concurrent use; run one
// engine per host.
type Engine struct {
	registry *Registry
	cfg      *config.Config
	reporter *Reporter
}

func NewEngine(registry *Registry, cfg *config.Config) *Engine {
	return &Engine{
		registry: registry,
		cfg:      cfg,
		reporter: &Reporter{},
	}
}

// Run executes a playbook against one connected host and returns the run
// report. Plan-build errors surface before any remote operation; the
// returned report then carries no results. A non-nil report is returned
// alongside the error for failed and cancelled runs so callers can still
// render what happened.
func (e *Engine) Run(ctx context.Context, host *Host, conn runtime.Connection, play *Playbook, extraVars map[string]interface{}) (*RunReport, error) {
	runID := uuid.New().String()
	start := time.Now()

	bindings := NewBindings(play.Defaults, play.Vars, host.Vars)
	bindings.SetFacts(extraVars)

	tracker, err := NewHandlerTracker(play.Handlers)
	if err != nil {
		return nil, err
	}
	if err := tracker.Validate(play.Tasks); err != nil {
		return nil, err
	}

	plan, err := BuildPlan(play.Tasks, bindings, e.registry)
	if err != nil {
		return nil, err
	}
	common.LogInfo("Plan built", map[string]interface{}{
		"host":  host.Name,
		"steps": len(plan),
		"tasks": len(play.Tasks),
	})

	report := &RunReport{RunID: runID, Host: host.Name}
	closure := &Closure{
		Host:     host,
		Conn:     conn,
		Bindings: bindings,
		Cache:    NewFactCache(),
		Config:   e.cfg,
	}

	var runErr error
	for i := range plan {
		if cerr := ctx.Err(); cerr != nil {
			// The step about to run gets a failed result so the report shows
			// where the run was interrupted.
			interrupted := &TaskResult{Step: &plan[i], Outcome: OutcomeFailed, Error: cerr}
			e.finishStep(closure, report, interrupted)
			report.Halted = true
			report.FirstFailure = interrupted
			runErr = cerr
			break
		}
		step := &plan[i]
		result := e.executeStep(ctx, closure, step)
		e.finishStep(closure, report, result)
		if result.Failed() && !step.IgnoreErrors {
			report.Halted = true
			report.FirstFailure = result
			break
		}
		if result.Outcome == OutcomeChanged {
			for _, name := range step.Notify {
				if nerr := tracker.Notify(name); nerr != nil {
					// Validate already checked every target, so this only
					// fires on a tracker bug.
					return report, nerr
				}
			}
		}
	}

	// Queued handlers run even when the run halted: a changed step may have
	// left a service mid-reconfiguration that only its handler completes.
	e.runHandlers(ctx, closure, bindings, tracker, report)

	report.Duration = time.Since(start)
	e.reporter.LogSummary(report)
	recordRunMetrics(report.Succeeded(), report.Duration)

	if runErr != nil {
		return report, runErr
	}
	if report.FirstFailure != nil {
		return report, fmt.Errorf("run halted at step %q: %w", report.FirstFailure.Step.Name, report.FirstFailure.Error)
	}
	return report, nil
}

// finishStep records a result everywhere it needs to land: the report, the
// logs, the metrics and the bindings (register targets and handler facts).
func (e *Engine) finishStep(closure *Closure, report *RunReport, result *TaskResult) {
	report.Record(result)
	e.reporter.LogStep(report.Host, result)
	recordStepMetrics(result.Step.Type, result.Outcome, result.Duration)
	if result.Step.Register != "" {
		closure.Bindings.SetFact(result.Step.Register, result.AsFacts())
	}
	if len(result.Facts) > 0 {
		closure.Bindings.SetFacts(result.Facts)
	}
}

// executeStep walks one step through the state machine. Every path produces
// a TaskResult; errors never escape as bare errors.
func (e *Engine) executeStep(ctx context.Context, closure *Closure, step *PlanStep) *TaskResult {
	start := time.Now()
	result := &TaskResult{Step: step}
	defer func() { result.Duration = time.Since(start) }()

	stepClosure := closure.withStep(step)
	vars := stepClosure.Vars()

	// Steps referencing register/set_fact output carry raw params until now,
	// when the providing steps have run and the names are live.
	params := step.Params
	if step.deferred {
		templated, err := TemplateValue(step.Params, vars)
		if err != nil {
			result.Outcome = OutcomeFailed
			result.Error = fmt.Errorf("failed to resolve parameters for step %q: %w", step.Name, err)
			return result
		}
		if templated != nil {
			params = templated.(map[string]interface{})
		}
		if name, err := templateStringDeep(step.Name, vars); err == nil {
			step.Name = name
		}
	}

	// Conditions evaluate lazily against live bindings, so a set_fact from an
	// earlier step can gate later ones.
	if step.When != "" {
		met, err := EvaluateCondition(step.When, vars)
		if err != nil {
			result.Outcome = OutcomeFailed
			result.Error = fmt.Errorf("failed to evaluate condition %q for step %q: %w", step.When, step.Name, err)
			return result
		}
		if !met {
			result.Outcome = OutcomeSkipped
			result.Detail = fmt.Sprintf("condition %q not met", step.When)
			return result
		}
	}

	handler, err := e.registry.Resolve(step.Type)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err
		return result
	}

	e.converge(ctx, stepClosure, step, handler, params, result)
	return result
}

// converge runs the probe/apply cycle with bounded retries. Only transient
// failures retry, each retry re-probes first, and handlers without an
// idempotent apply never retry unless the step opts in.
func (e *Engine) converge(ctx context.Context, closure *Closure, step *PlanStep, handler Handler, params map[string]interface{}, result *TaskResult) {
	maxAttempts := e.cfg.Retry.MaxRetries + 1
	retryable := true
	if nr, ok := handler.(NonRetryable); ok && nr.NonRetryable() {
		retryable = false
	}
	if step.Retryable != nil {
		retryable = *step.Retryable
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		common.DebugOutput("[%s] probing (attempt %d/%d)", step.String(), attempt, maxAttempts)
		delta, err := handler.Probe(closure, params)
		if err != nil {
			perr := &ProbeError{Step: step.Name, Err: err}
			if e.shouldRetry(perr, retryable, attempt, maxAttempts) {
				e.backoff(ctx, step, attempt)
				if cerr := ctx.Err(); cerr != nil {
					result.Outcome = OutcomeFailed
					result.Error = cerr
					return
				}
				continue
			}
			result.Outcome = OutcomeFailed
			result.Error = perr
			return
		}

		if delta.InSync {
			result.Outcome = OutcomeOK
			result.Detail = delta.Detail
			return
		}

		if closure.IsCheckMode() {
			result.Outcome = OutcomeChanged
			result.Detail = checkModeDetail(delta.Detail)
			return
		}

		common.DebugOutput("[%s] applying", step.String())
		outcome, err := handler.Apply(closure, params)
		if err != nil {
			aerr := &ApplyError{Step: step.Name, Err: err}
			if e.shouldRetry(aerr, retryable, attempt, maxAttempts) {
				e.backoff(ctx, step, attempt)
				if cerr := ctx.Err(); cerr != nil {
					result.Outcome = OutcomeFailed
					result.Error = cerr
					return
				}
				continue
			}
			e.rollback(closure, step, handler, params)
			result.Outcome = OutcomeFailed
			result.Error = aerr
			return
		}

		if outcome.Changed {
			result.Outcome = OutcomeChanged
		} else {
			result.Outcome = OutcomeOK
		}
		result.Detail = outcome.Detail
		result.Facts = outcome.Facts
		return
	}
}

// rollback undoes a partial apply for handlers that support it, so a failed
// step does not leave half-converged remote state behind.
func (e *Engine) rollback(closure *Closure, step *PlanStep, handler Handler, params map[string]interface{}) {
	rb, ok := handler.(Rollbacker)
	if !ok {
		return
	}
	if err := rb.Rollback(closure, params); err != nil {
		common.LogWarn("Rollback failed", map[string]interface{}{
			"step":  step.String(),
			"error": err.Error(),
		})
		return
	}
	common.LogInfo("Rolled back partial apply", map[string]interface{}{
		"step": step.String(),
	})
}

func (e *Engine) shouldRetry(err error, retryable bool, attempt, maxAttempts int) bool {
	return retryable && attempt < maxAttempts && IsTransient(err)
}

// backoff sleeps before a retry, doubling from the configured base up to the
// configured cap. Cancellation cuts the sleep short; the caller then fails
// the step instead of launching another attempt.
func (e *Engine) backoff(ctx context.Context, step *PlanStep, attempt int) {
	delay := e.cfg.Retry.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= e.cfg.Retry.MaxBackoff {
			delay = e.cfg.Retry.MaxBackoff
			break
		}
	}
	common.LogWarn("Transient failure, retrying", map[string]interface{}{
		"step":    step.String(),
		"attempt": attempt,
		"backoff": delay.String(),
	})
	recordRetryMetric(step.Type)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// runHandlers flushes the queued handlers in declaration order. Handler
// failures are recorded like step failures but do not stop the remaining
// queued handlers.
func (e *Engine) runHandlers(ctx context.Context, closure *Closure, bindings *Bindings, tracker *HandlerTracker, report *RunReport) {
	if !tracker.HasPending() {
		return
	}
	pending := tracker.Pending()
	common.LogInfo("Running notified handlers", map[string]interface{}{
		"host":     report.Host,
		"handlers": len(pending),
	})
	plan, err := BuildPlan(pending, bindings, e.registry)
	if err != nil {
		common.LogError("Failed to build handler plan", map[string]interface{}{
			"host":  report.Host,
			"error": err.Error(),
		})
		if report.FirstFailure == nil {
			report.Halted = true
		}
		return
	}
	for i := range plan {
		if ctx.Err() != nil {
			report.Halted = true
			return
		}
		step := &plan[i]
		result := e.executeStep(ctx, closure, step)
		e.finishStep(closure, report, result)
		if result.Failed() && !step.IgnoreErrors && report.FirstFailure == nil {
			report.Halted = true
			report.FirstFailure = result
		}
	}
	tracker.Reset()
}

func checkModeDetail(detail string) string {
	if detail == "" {
		return "would change"
	}
	return "would change: " + detail
}
