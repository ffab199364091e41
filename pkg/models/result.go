package models

import "time"

// StepStatus is the outcome of a single step or of a whole run.
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusFailure StepStatus = "failure"
	StatusPartial StepStatus = "partial"
)

// RunState is the coordinator state of a run.
type RunState string

const (
	RunStatePending         RunState = "pending"
	RunStateRunning         RunState = "running"
	RunStateSucceeded       RunState = "succeeded"
	RunStateFailed          RunState = "failed"
	RunStatePartiallyFailed RunState = "partially_failed"
)

// Status maps a terminal state onto the result status.
func (s RunState) Status() StepStatus {
	switch s {
	case RunStateFailed:
		return StatusFailure
	case RunStatePartiallyFailed:
		return StatusPartial
	case RunStatePending, RunStateRunning, RunStateSucceeded:
	}

	return StatusSuccess
}

// StepResult is the record of one executed step, or of one loop iteration
// when nested under a loop result.
type StepResult struct {
	StepID     string       `json:"stepId"`
	Kind       string       `json:"kind,omitempty"`
	Status     StepStatus   `json:"status"`
	Success    bool         `json:"success"`
	Outputs    any          `json:"outputs"`
	Error      string       `json:"error,omitempty"`
	Index      *int         `json:"index,omitempty"`
	Iterations []StepResult `json:"iterations,omitempty"`

	// Err keeps the typed error for in-process callers.
	Err error `json:"-"`
}

// NewSuccessResult records a successful step.
func NewSuccessResult(stepID, kind string, outputs any) StepResult {
	return StepResult{
		StepID:  stepID,
		Kind:    kind,
		Status:  StatusSuccess,
		Success: true,
		Outputs: outputs,
	}
}

// NewFailureResult records a failed step.
func NewFailureResult(stepID, kind string, err error) StepResult {
	result := StepResult{
		StepID:  stepID,
		Kind:    kind,
		Status:  StatusFailure,
		Success: false,
		Outputs: map[string]any{},
		Err:     err,
	}

	if err != nil {
		result.Error = err.Error()
	}

	return result
}

// AutomationResults is the result trail of one run.
type AutomationResults struct {
	RunID        string       `json:"runId"`
	AutomationID string       `json:"automationId"`
	Status       StepStatus   `json:"status"`
	Steps        []StepResult `json:"steps"`
	Error        string       `json:"error,omitempty"`
	StartedAt    time.Time    `json:"startedAt"`
	FinishedAt   time.Time    `json:"finishedAt"`
}

// Failed returns the top-level and nested results that did not succeed.
func (r *AutomationResults) Failed() []StepResult {
	return collectFailed(nil, r.Steps)
}

func collectFailed(acc, results []StepResult) []StepResult {
	for _, result := range results {
		if !result.Success {
			acc = append(acc, result)
		}

		acc = collectFailed(acc, result.Iterations)
	}

	return acc
}

// Step returns the first result recorded for stepID.
func (r *AutomationResults) Step(stepID string) (StepResult, bool) {
	for _, result := range r.Steps {
		if result.StepID == stepID {
			return result, true
		}
	}

	return StepResult{}, false
}
