package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/persistence"
)

// MockPersistence is an automation store whose answers are set per test.
type MockPersistence struct {
	mock.Mock
}

var _ persistence.Persistence = (*MockPersistence)(nil)

func (m *MockPersistence) Automations(ctx context.Context) ([]*models.AutomationDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AutomationDefinition), args.Error(1)
}

func (m *MockPersistence) SaveAutomation(ctx context.Context, automation *models.AutomationDefinition) error {
	args := m.Called(ctx, automation)

	return args.Error(0)
}

func (m *MockPersistence) AutomationByID(ctx context.Context, id string) (*models.AutomationDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AutomationDefinition), args.Error(1)
}

func (m *MockPersistence) DeleteAutomation(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
