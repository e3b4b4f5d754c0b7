package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "voicegateway:crm"
	maxUpdateAttempts  = 10
)

// ErrUpdateConflict is returned when concurrent writers keep invalidating an update
var ErrUpdateConflict = errors.New("contact update conflict")

// RedisStore keeps contacts in a Redis hash keyed by contact id, with a
// sorted set ordering them by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// RedisOption configures a RedisStore
type RedisOption func(*RedisStore)

// WithRedisPrefix sets the key prefix. Default is "voicegateway:crm".
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed contact store
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) contactsKey() string { return s.prefix + ":contacts" }
func (s *RedisStore) orderKey() string    { return s.prefix + ":order" }
func (s *RedisStore) updatedKey() string  { return s.prefix + ":last_updated" }

// Get returns the contact with id
func (s *RedisStore) Get(ctx context.Context, id string) (Contact, error) {
	data, err := s.client.HGet(ctx, s.contactsKey(), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("redis hget failed: %w", err)
	}

	var c Contact
	if err := json.Unmarshal(data, &c); err != nil {
		return Contact{}, fmt.Errorf("failed to unmarshal contact: %w", err)
	}
	return c, nil
}

// Save writes c. The creation order entry is only added on first save.
func (s *RedisStore) Save(ctx context.Context, c Contact) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.contactsKey(), c.ContactID, data)
	pipe.ZAddNX(ctx, s.orderKey(), redis.Z{Score: float64(c.CreatedAt.UnixNano()), Member: c.ContactID})
	pipe.Set(ctx, s.updatedKey(), s.now().UTC().Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Update applies fn to the stored contact inside a WATCH transaction on
// the contacts hash. A concurrent write restarts the read-modify-write.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(c *Contact) error) (Contact, error) {
	var updated Contact
	txf := func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, s.contactsKey(), id).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("redis hget failed: %w", err)
		}

		var c Contact
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal contact: %w", err)
		}
		if err := fn(&c); err != nil {
			return err
		}
		c.ContactID = id

		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal contact: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.contactsKey(), id, raw)
			pipe.Set(ctx, s.updatedKey(), s.now().UTC().Format(time.RFC3339Nano), 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = c
		return nil
	}

	for range maxUpdateAttempts {
		err := s.client.Watch(ctx, txf, s.contactsKey())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Contact{}, err
		}
		return updated, nil
	}
	return Contact{}, ErrUpdateConflict
}

// Delete removes the contact with id, reporting whether it existed
func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	pipe := s.client.TxPipeline()
	delCmd := pipe.HDel(ctx, s.contactsKey(), id)
	pipe.ZRem(ctx, s.orderKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis pipeline failed: %w", err)
	}
	if delCmd.Val() == 0 {
		return false, nil
	}

	if err := s.client.Set(ctx, s.updatedKey(), s.now().UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return true, fmt.Errorf("redis set failed: %w", err)
	}
	return true, nil
}

// List returns every contact ordered by creation time
func (s *RedisStore) List(ctx context.Context) ([]Contact, error) {
	ids, err := s.client.ZRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange failed: %w", err)
	}
	if len(ids) == 0 {
		return []Contact{}, nil
	}

	values, err := s.client.HMGet(ctx, s.contactsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget failed: %w", err)
	}

	contacts := make([]Contact, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// order entry without a contact
			continue
		}
		var c Contact
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contact %s: %w", ids[i], err)
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// LastUpdated returns the time of the last write, zero if nothing was written
func (s *RedisStore) LastUpdated(ctx context.Context) (time.Time, error) {
	raw, err := s.client.Get(ctx, s.updatedKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("redis get failed: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last_updated: %w", err)
	}
	return t, nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
