package persistence_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukex/stepflow/pkg/persistence"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		err := persistence.NewAutomationError("AutomationByID", "automation-123", persistence.ErrAutomationNotFound)

		assert.True(t, persistence.IsAutomationNotFound(err))
		assert.True(t, errors.Is(err, persistence.ErrAutomationNotFound))
		assert.False(t, persistence.IsAutomationNotFound(errors.New("disk full")))
	})

	t.Run("automation error contains context", func(t *testing.T) {
		err := persistence.NewAutomationError("DeleteAutomation", "automation-123", persistence.ErrAutomationNotFound)

		assert.Contains(t, err.Error(), "DeleteAutomation")
		assert.Contains(t, err.Error(), "automation-123")
		assert.Contains(t, err.Error(), "automation not found")
	})
}
