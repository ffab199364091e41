// Package memory is an in-process row store.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/stepflow/pkg/rows"
)

type Store struct {
	mu     sync.RWMutex
	tables map[string]map[string]*rows.Row
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		tables: make(map[string]map[string]*rows.Row),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(_ context.Context, tableID string, data map[string]any) (*rows.Row, error) {
	if err := rows.CheckTable(tableID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	row := &rows.Row{
		ID:        uuid.NewString(),
		TableID:   tableID,
		Revision:  1,
		Data:      maps.Clone(data),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if row.Data == nil {
		row.Data = map[string]any{}
	}

	table, ok := s.tables[tableID]
	if !ok {
		table = make(map[string]*rows.Row)
		s.tables[tableID] = table
	}

	table[row.ID] = row

	return clone(row), nil
}

func (s *Store) Get(_ context.Context, tableID, rowID string) (*rows.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.tables[tableID][rowID]
	if !ok {
		return nil, rows.NotFound(tableID, rowID)
	}

	return clone(row), nil
}

func (s *Store) Update(_ context.Context, tableID, rowID string, data map[string]any) (*rows.Row, *rows.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tables[tableID][rowID]
	if !ok {
		return nil, nil, rows.NotFound(tableID, rowID)
	}

	old := clone(row)

	maps.Copy(row.Data, data)
	row.Revision++
	row.UpdatedAt = s.now()

	return clone(row), old, nil
}

func (s *Store) Delete(_ context.Context, tableID, rowID string) (*rows.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.tables[tableID][rowID]
	if !ok {
		return nil, rows.NotFound(tableID, rowID)
	}

	delete(s.tables[tableID], rowID)

	return row, nil
}

func (s *Store) Query(_ context.Context, tableID string, query rows.Query) ([]*rows.Row, error) {
	s.mu.RLock()

	all := make([]*rows.Row, 0, len(s.tables[tableID]))
	for _, row := range s.tables[tableID] {
		all = append(all, clone(row))
	}

	s.mu.RUnlock()

	return rows.Apply(all, query)
}

func clone(row *rows.Row) *rows.Row {
	out := *row
	out.Data = maps.Clone(row.Data)

	return &out
}
