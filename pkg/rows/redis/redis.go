// Package redis stores rows in Redis, one hash per table keyed by row id.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dukex/stepflow/pkg/rows"
)

const defaultPrefix = "stepflow:rows"

// maxRetries bounds optimistic transaction retries on concurrent updates.
const maxRetries = 5

type Store struct {
	client goredis.UniversalClient
	prefix string
}

// NewStore uses client with keys under prefix. An empty prefix means
// "stepflow:rows".
func NewStore(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Store{client: client, prefix: prefix}
}

// Open connects to the Redis server at url, e.g. redis://localhost:6379/0.
func Open(ctx context.Context, url string) (*Store, error) {
	options, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewStore(client, ""), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(tableID string) string {
	return s.prefix + ":" + tableID
}

func (s *Store) Create(ctx context.Context, tableID string, data map[string]any) (*rows.Row, error) {
	if err := rows.CheckTable(tableID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
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

	payload, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}

	if err := s.client.HSet(ctx, s.key(tableID), row.ID, payload).Err(); err != nil {
		return nil, fmt.Errorf("failed to store row: %w", err)
	}

	return row, nil
}

func (s *Store) Get(ctx context.Context, tableID, rowID string) (*rows.Row, error) {
	return s.get(ctx, s.client, tableID, rowID)
}

// hashReader is satisfied by both the client and a transaction.
type hashReader interface {
	HGet(ctx context.Context, key, field string) *goredis.StringCmd
}

func (s *Store) get(ctx context.Context, client hashReader, tableID, rowID string) (*rows.Row, error) {
	payload, err := client.HGet(ctx, s.key(tableID), rowID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, rows.NotFound(tableID, rowID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load row: %w", err)
	}

	return decode(payload)
}

// Update merges data inside a WATCH transaction so concurrent writers never
// lose a revision.
func (s *Store) Update(ctx context.Context, tableID, rowID string, data map[string]any) (*rows.Row, *rows.Row, error) {
	key := s.key(tableID)

	var updated, old *rows.Row

	txn := func(tx *goredis.Tx) error {
		current, err := s.get(ctx, tx, tableID, rowID)
		if err != nil {
			return err
		}

		old = current

		next := *current
		next.Data = maps.Clone(current.Data)
		maps.Copy(next.Data, data)
		next.Revision++
		next.UpdatedAt = time.Now().UTC()

		payload, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("failed to encode row: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return pipe.HSet(ctx, key, rowID, payload).Err()
		})
		if err != nil {
			return err
		}

		updated = &next

		return nil
	}

	for range maxRetries {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}

		if err != nil {
			return nil, nil, err
		}

		return updated, old, nil
	}

	return nil, nil, fmt.Errorf("failed to update row %s/%s: too many concurrent writers", tableID, rowID)
}

func (s *Store) Delete(ctx context.Context, tableID, rowID string) (*rows.Row, error) {
	row, err := s.Get(ctx, tableID, rowID)
	if err != nil {
		return nil, err
	}

	removed, err := s.client.HDel(ctx, s.key(tableID), rowID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to delete row: %w", err)
	}

	if removed == 0 {
		return nil, rows.NotFound(tableID, rowID)
	}

	return row, nil
}

func (s *Store) Query(ctx context.Context, tableID string, query rows.Query) ([]*rows.Row, error) {
	payloads, err := s.client.HGetAll(ctx, s.key(tableID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}

	all := make([]*rows.Row, 0, len(payloads))

	for _, payload := range payloads {
		row, err := decode([]byte(payload))
		if err != nil {
			return nil, err
		}

		all = append(all, row)
	}

	return rows.Apply(all, query)
}

func decode(payload []byte) (*rows.Row, error) {
	var row rows.Row
	if err := json.Unmarshal(payload, &row); err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}

	if row.Data == nil {
		row.Data = map[string]any{}
	}

	return &row, nil
}
