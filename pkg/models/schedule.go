package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronParser accepts the standard 5-field cron format (minute hour day month weekday)
// plus descriptors such as @hourly.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var ErrInvalidSchedule = errors.New("invalid schedule configuration")

// Schedule tracks the next due time of an automation with a CRON trigger.
type Schedule struct {
	AutomationID string `json:"automation_id" validate:"required"`

	// CronExpression is read from the trigger's "expression" input.
	CronExpression string `json:"cron_expression" validate:"required"`

	NextDueAt time.Time `json:"next_due_at"`
	LastRunAt time.Time `json:"last_run_at,omitzero"`
}

// NewSchedule builds the schedule of a CRON-triggered automation.
func NewSchedule(def *AutomationDefinition, now time.Time) (*Schedule, error) {
	if def.Trigger.Type != TriggerTypeCron {
		return nil, fmt.Errorf("%w: automation %s is not cron triggered", ErrInvalidSchedule, def.ID)
	}

	expression, _ := def.Trigger.Inputs["expression"].(string)
	schedule := &Schedule{
		AutomationID:   def.ID,
		CronExpression: expression,
	}

	if err := schedule.advance(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// MarkRun records a firing at now and computes the following due time.
func (s *Schedule) MarkRun(now time.Time) error {
	s.LastRunAt = now

	return s.advance(now)
}

func (s *Schedule) advance(reference time.Time) error {
	parsed, err := ParseCron(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = parsed.Next(reference)

	return nil
}

// IsDue checks if the schedule should fire at the given time.
func (s *Schedule) IsDue(now time.Time) bool {
	return !s.NextDueAt.IsZero() && !s.NextDueAt.After(now)
}

// ParseCron parses a cron expression with CronParser.
func ParseCron(expression string) (cron.Schedule, error) {
	if expression == "" {
		return nil, fmt.Errorf("%w: empty cron expression", ErrInvalidSchedule)
	}

	parsed, err := CronParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return parsed, nil
}
