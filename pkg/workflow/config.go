package workflow

import (
	"time"

	"github.com/dukex/stepflow/pkg/loop"
	"github.com/dukex/stepflow/pkg/models"
)

// Config holds the engine options of the coordinator.
type Config struct {
	// MaxLoopIterations caps the iterations of every loop step.
	MaxLoopIterations int

	// RunTimeout bounds a whole run. Zero disables it.
	RunTimeout time.Duration

	// SubAutomationTimeout bounds an automation started by another one.
	SubAutomationTimeout time.Duration

	// MaxNesting is the deepest sub-automation chain allowed. Zero disables
	// sub-automations; a negative value means the default.
	MaxNesting int

	// NoMatchPolicy applies to branch steps that do not set onNoMatch.
	NoMatchPolicy models.NoMatchPolicy
}

func DefaultConfig() Config {
	return Config{
		MaxLoopIterations:    loop.DefaultMaxIterations,
		SubAutomationTimeout: 60 * time.Second,
		MaxNesting:           5,
		NoMatchPolicy:        models.NoMatchStop,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()

	if c.MaxLoopIterations <= 0 {
		c.MaxLoopIterations = defaults.MaxLoopIterations
	}

	if c.SubAutomationTimeout <= 0 {
		c.SubAutomationTimeout = defaults.SubAutomationTimeout
	}

	if c.MaxNesting < 0 {
		c.MaxNesting = defaults.MaxNesting
	}

	if c.NoMatchPolicy == "" || !c.NoMatchPolicy.Valid() {
		c.NoMatchPolicy = defaults.NoMatchPolicy
	}

	return c
}
