package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/moviegraph/store"
)

// RedisJournal implements store.Journal using Redis. Entries are JSON strings; a sorted set
// scored by start time indexes them.
type RedisJournal struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ store.Journal = (*RedisJournal)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "moviegraph:"
	TTL      time.Duration // Expiration for entries, default 0 (no expiration)
}

// NewRedisJournal creates a new Redis journal
func NewRedisJournal(opts RedisOptions) *RedisJournal {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "moviegraph:"
	}

	return &RedisJournal{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

func (s *RedisJournal) entryKey(id string) string {
	return fmt.Sprintf("%sjournal:entry:%s", s.prefix, id)
}

func (s *RedisJournal) indexKey() string {
	return s.prefix + "journal:index"
}

// Append stores an entry
func (s *RedisJournal) Append(ctx context.Context, entry *store.Entry) error {
	data, err := store.Encode(entry)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.entryKey(entry.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(entry.StartedAt.UnixMilli()),
		Member: entry.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append journal entry to redis: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID
func (s *RedisJournal) Get(ctx context.Context, id string) (*store.Entry, error) {
	data, err := s.client.Get(ctx, s.entryKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", store.ErrEntryNotFound, id)
		}
		return nil, fmt.Errorf("failed to load journal entry from redis: %w", err)
	}
	return store.Decode(data)
}

// List returns entries newest first. Index members whose entry expired are pruned.
func (s *RedisJournal) List(ctx context.Context, limit int) ([]*store.Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	if len(ids) == 0 {
		return []*store.Entry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}

	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch journal entries: %w", err)
	}

	entries := make([]*store.Entry, 0, len(results))
	var expired []any
	for i, result := range results {
		data, ok := result.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		entry, err := store.Decode([]byte(data))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune journal index: %w", err)
		}
	}
	return entries, nil
}

// Close closes the client
func (s *RedisJournal) Close() error {
	return s.client.Close()
}
