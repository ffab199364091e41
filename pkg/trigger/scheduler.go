package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukex/stepflow/pkg/metrics"
	"github.com/dukex/stepflow/pkg/models"
)

// Scheduler fires CRON-triggered automations. Sync reconciles the cron jobs
// with the stored automations and can be called repeatedly.
type Scheduler struct {
	runner Runner
	logger *slog.Logger
	cron   *cron.Cron

	mu     sync.Mutex
	jobs   map[string]job
	ctx    context.Context
	cancel context.CancelFunc
}

type job struct {
	entry      cron.EntryID
	expression string
}

func NewScheduler(runner Runner, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "cron_scheduler")

	return &Scheduler{
		runner: runner,
		logger: logger,
		cron: cron.New(
			cron.WithParser(models.CronParser),
			cron.WithLocation(time.UTC),
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DiscardLogger),
				cron.Recover(cronLogger{logger: logger}),
			),
		),
		jobs: make(map[string]job),
	}
}

// Start syncs the jobs and starts the cron loop. Runs use ctx; cancelling it
// cancels in-flight runs at their next step boundary.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.Sync(ctx); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Starting cron scheduler", "jobs", s.Len())
	s.cron.Start()

	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Cron scheduler stopped")
}

// Sync adds jobs for new or changed CRON automations and removes jobs whose
// automation is gone. An automation with an invalid expression is skipped.
func (s *Scheduler) Sync(ctx context.Context) error {
	defs, err := s.runner.Matching(ctx, models.TriggerTypeCron, "")
	if err != nil {
		return fmt.Errorf("failed to load cron automations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(defs))

	for _, def := range defs {
		schedule, err := models.NewSchedule(def, time.Now().UTC())
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping automation with invalid schedule", "automation_id", def.ID, "error", err)

			continue
		}

		seen[def.ID] = true

		if current, ok := s.jobs[def.ID]; ok {
			if current.expression == schedule.CronExpression {
				continue
			}

			s.cron.Remove(current.entry)
		}

		entry, err := s.cron.AddFunc(schedule.CronExpression, s.fire(def.ID))
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to add cron job", "automation_id", def.ID, "error", err)
			delete(s.jobs, def.ID)

			continue
		}

		s.jobs[def.ID] = job{entry: entry, expression: schedule.CronExpression}
		s.logger.DebugContext(ctx, "Scheduled automation",
			"automation_id", def.ID, "cron", schedule.CronExpression, "next_due_at", schedule.NextDueAt)
	}

	for id, current := range s.jobs {
		if !seen[id] {
			s.cron.Remove(current.entry)
			delete(s.jobs, id)
		}
	}

	return nil
}

// Len returns the number of scheduled automations.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.jobs)
}

func (s *Scheduler) fire(automationID string) func() {
	return func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		if ctx == nil {
			ctx = context.Background()
		}

		if _, err := s.Fire(ctx, automationID, time.Now()); err != nil {
			s.logger.ErrorContext(ctx, "Cron run failed", "automation_id", automationID, "error", err)
		}
	}
}

// Fire runs one CRON automation as if its schedule was due at now.
func (s *Scheduler) Fire(ctx context.Context, automationID string, now time.Time) (*models.AutomationResults, error) {
	metrics.RecordTrigger(string(models.TriggerTypeCron))

	outputs := Outputs(models.TriggerTypeCron, map[string]any{
		"timestamp": now.UTC().Format(time.RFC3339),
	})

	results, err := s.runner.Execute(ctx, automationID, models.TriggerEvent{
		Type:    models.TriggerTypeCron,
		Outputs: outputs,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Cron automation finished",
		"automation_id", automationID, "run_id", results.RunID, "status", results.Status)

	return results, nil
}

// cronLogger routes cron's panic recovery into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
