package rows

import (
	"context"
	"log/slog"

	"github.com/dukex/stepflow/pkg/eventbus"
	"github.com/dukex/stepflow/pkg/events"
)

// PublishingStore wraps a Store and publishes a row event after every
// successful write. Row triggers listen for these events.
type PublishingStore struct {
	Store

	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewPublishingStore(store Store, publisher eventbus.EventPublisher, logger *slog.Logger) *PublishingStore {
	return &PublishingStore{
		Store:     store,
		publisher: publisher,
		logger:    logger.With("module", "rows"),
	}
}

func (s *PublishingStore) Create(ctx context.Context, tableID string, data map[string]any) (*Row, error) {
	row, err := s.Store.Create(ctx, tableID, data)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.RowCreatedEvent, row, nil)

	return row, nil
}

func (s *PublishingStore) Update(ctx context.Context, tableID, rowID string, data map[string]any) (*Row, *Row, error) {
	row, old, err := s.Store.Update(ctx, tableID, rowID, data)
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events.RowUpdatedEvent, row, old)

	return row, old, nil
}

func (s *PublishingStore) Delete(ctx context.Context, tableID, rowID string) (*Row, error) {
	row, err := s.Store.Delete(ctx, tableID, rowID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.RowDeletedEvent, row, nil)

	return row, nil
}

// publish never fails the write; a lost event is logged.
func (s *PublishingStore) publish(ctx context.Context, eventType events.EventType, row, old *Row) {
	var oldRow map[string]any
	if old != nil {
		oldRow = old.Map()
	}

	event := events.NewRowChanged(eventType, row.TableID, row.ID, row.Revision, row.Map(), oldRow)

	if err := s.publisher.Publish(ctx, row.TableID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish row event",
			"type", eventType,
			"table_id", row.TableID,
			"row_id", row.ID,
			"error", err,
		)
	}
}
