package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/greenscore/internal/presence"
)

const keyPrefix = "presence:"

// putAttempts bounds optimistic retries when the key changes mid-Put.
const putAttempts = 5

// PresenceStore keeps presence entries in Redis. Each key lives until the
// entry's ExpiresAt, so Redis evicts stale pairs on its own.
type PresenceStore struct {
	client *redis.Client
}

// NewPresenceStore constructs a PresenceStore over client.
func NewPresenceStore(client *redis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

func key(k string) string {
	return keyPrefix + k
}

// Get retrieves an entry.
// Returns nil, nil on a cache miss (not an error).
func (s *PresenceStore) Get(ctx context.Context, k string) (*presence.Entry, error) {
	val, err := s.client.Get(ctx, key(k)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get for %s: %w", k, err)
	}

	var entry presence.Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("unmarshaling cached entry for %s: %w", k, err)
	}

	return &entry, nil
}

// Put stores entry for the span between its CreatedAt and ExpiresAt. An
// existing entry is replaced only once it has expired as of entry.CreatedAt.
// The check and the write run in one WATCH transaction on the key.
func (s *PresenceStore) Put(ctx context.Context, k string, entry *presence.Entry) error {
	if entry == nil {
		return nil
	}

	ttl := entry.ExpiresAt.Sub(entry.CreatedAt)
	if ttl <= 0 {
		return nil
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling entry for %s: %w", k, err)
	}

	rk := key(k)
	txf := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, rk).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var existing presence.Entry
			if json.Unmarshal(val, &existing) == nil && existing.ExpiresAt.After(entry.CreatedAt) {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, b, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < putAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, rk)
		if errors.Is(err, redis.TxFailedErr) {
			// Another writer touched the key; re-read and decide again.
			continue
		}
		if err != nil {
			return fmt.Errorf("cache set for %s: %w", k, err)
		}
		return nil
	}
	return fmt.Errorf("cache set for %s: %w", k, redis.TxFailedErr)
}
