package pkg

import (
	"fmt"
	"time"

	"github.com/convergerun/converge/pkg/common"
)

// RunReport aggregates the results of one run against one host.
type RunReport struct {
	RunID   string
	Host    string
	Results []*TaskResult
	OK      int
	Changed int
	Failed  int
	Skipped int
	// Ignored counts failures on steps marked ignore_errors; they do not
	// count as Failed and do not fail the run.
	Ignored  int
	Halted   bool
	Duration time.Duration
	// FirstFailure is the result that halted the run, nil when the run
	// completed (ignored failures do not halt and are not recorded here).
	FirstFailure *TaskResult
}

// Record folds one step result into the report counters.
func (r *RunReport) Record(result *TaskResult) {
	r.Results = append(r.Results, result)
	switch result.Outcome {
	case OutcomeOK:
		r.OK++
	case OutcomeChanged:
		r.Changed++
	case OutcomeFailed:
		if result.Step != nil && result.Step.IgnoreErrors {
			r.Ignored++
		} else {
			r.Failed++
		}
	case OutcomeSkipped:
		r.Skipped++
	}
}

// Succeeded reports whether the run completed with failed_count zero.
func (r *RunReport) Succeeded() bool {
	return !r.Halted && r.Failed == 0
}

// Summary renders the counters in one line.
func (r *RunReport) Summary() string {
	return fmt.Sprintf("ok=%d changed=%d failed=%d skipped=%d ignored=%d", r.OK, r.Changed, r.Failed, r.Skipped, r.Ignored)
}

// Reporter emits per-step and per-run log lines as execution progresses.
type Reporter struct{}

// LogStep logs one step result at a level matching its outcome.
func (rep *Reporter) LogStep(host string, result *TaskResult) {
	fields := map[string]interface{}{
		"host":     host,
		"step":     result.Step.String(),
		"type":     result.Step.Type,
		"outcome":  string(result.Outcome),
		"duration": result.Duration.Round(time.Millisecond).String(),
	}
	if result.Detail != "" {
		fields["detail"] = result.Detail
	}
	msg := fmt.Sprintf("%s: %s", result.Step.Name, result.Outcome)
	switch {
	case result.Outcome == OutcomeFailed && result.Step.IgnoreErrors:
		fields["ignored"] = true
		fields["error"] = result.Error.Error()
		common.LogWarn(msg, fields)
	case result.Outcome == OutcomeFailed:
		fields["error"] = result.Error.Error()
		common.LogError(msg, fields)
	case result.Outcome == OutcomeSkipped:
		common.LogDebug(msg, fields)
	default:
		common.LogInfo(msg, fields)
	}
}

// LogSummary logs the final run summary.
func (rep *Reporter) LogSummary(report *RunReport) {
	fields := map[string]interface{}{
		"host":     report.Host,
		"ok":       report.OK,
		"changed":  report.Changed,
		"failed":   report.Failed,
		"skipped":  report.Skipped,
		"ignored":  report.Ignored,
		"halted":   report.Halted,
		"duration": report.Duration.Round(time.Millisecond).String(),
	}
	if report.FirstFailure != nil {
		fields["first_failure"] = report.FirstFailure.Step.String()
	}
	if report.Succeeded() {
		common.LogInfo("Run complete", fields)
	} else {
		common.LogError("Run failed", fields)
	}
}
