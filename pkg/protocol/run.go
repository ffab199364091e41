package protocol

import "context"

// RunInfo identifies the run a step executes in.
type RunInfo struct {
	RunID        string
	AutomationID string
	StepID       string

	// Depth is the sub-automation nesting depth; top-level runs have depth 0.
	Depth int
}

type runInfoKey struct{}

// WithRun stores run information on ctx for step executors.
func WithRun(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunFromContext returns the run information stored by WithRun.
func RunFromContext(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)

	return info, ok
}
