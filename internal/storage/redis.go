package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisTrackersKey = "trackers"
	redisHistoryKey  = "history"
	redisLedgerKey   = "ledger"

	redisOpTimeout = 5 * time.Second
)

// RedisStore keeps the same three artifacts as FileStore in Redis, so
// several deployments can share one state backend. Trackers and history
// live in single keys as JSON blobs; the ledger is a list, appended one
// entry per element.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr and verifies the connection with a ping.
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	if prefix == "" {
		prefix = "reversal-bot"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(name string) string {
	return r.prefix + ":" + name
}

func (r *RedisStore) LoadTrackers() (map[string]*TradeTracker, error) {
	trackers := make(map[string]*TradeTracker)
	if err := r.getJSON(redisTrackersKey, &trackers); err != nil {
		return nil, err
	}
	return trackers, nil
}

func (r *RedisStore) SaveTrackers(trackers map[string]*TradeTracker) error {
	return r.setJSON(redisTrackersKey, trackers)
}

func (r *RedisStore) LoadHistory() (HistoryMap, error) {
	history := make(HistoryMap)
	if err := r.getJSON(redisHistoryKey, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (r *RedisStore) SaveHistory(history HistoryMap) error {
	return r.setJSON(redisHistoryKey, history)
}

func (r *RedisStore) LoadLedger() ([]LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := r.client.LRange(ctx, r.key(redisLedgerKey), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger from redis: %w", err)
	}

	ledger := make([]LedgerEntry, 0, len(raw))
	for _, item := range raw {
		var entry LedgerEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to parse ledger entry: %w", err)
		}
		ledger = append(ledger, entry)
	}
	return ledger, nil
}

func (r *RedisStore) AppendLedger(entries []LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	values := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal ledger entry: %w", err)
		}
		values = append(values, data)
	}
	if err := r.client.RPush(ctx, r.key(redisLedgerKey), values...).Err(); err != nil {
		return fmt.Errorf("failed to append ledger to redis: %w", err)
	}
	return nil
}

func (r *RedisStore) getJSON(name string, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s from redis: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (r *RedisStore) setJSON(name string, v interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if err := r.client.Set(ctx, r.key(name), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s to redis: %w", name, err)
	}
	return nil
}
