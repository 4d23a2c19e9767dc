package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	fgcheckpoint "github.com/randalmurphal/flowgraph/pkg/flowgraph/checkpoint"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces checkpoint keys.
const DefaultRedisPrefix = "pipeline:checkpoint:"

const redisTimeout = 5 * time.Second

type redisClient interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// RedisStore keeps each run as a Redis hash of sealed checkpoints keyed by
// node. It lets several driver processes share runs, e.g. an approval
// listener resuming a run started elsewhere. Sequence numbers come from a
// shared counter hash, so concurrent writers never reuse one.
type RedisStore struct {
	client redisClient
	prefix string
}

// NewRedisStore connects to the Redis server at url (redis://host:port/db).
func NewRedisStore(url string) (*RedisStore, error) {
	if url == "" {
		url = "redis://127.0.0.1:6379"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), prefix: DefaultRedisPrefix}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) runKey(runID string) string {
	return s.prefix + "run:" + runID
}

func (s *RedisStore) seqKey() string {
	return s.prefix + "seq"
}

// Save implements Store.
func (s *RedisStore) Save(runID, nodeID string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	seq, err := s.client.HIncrBy(ctx, s.seqKey(), runID, 1).Result()
	if err != nil {
		return fmt.Errorf("next sequence %s: %w", runID, err)
	}
	out, err := Seal(Record{RunID: runID, NodeID: nodeID, Sequence: int(seq), SavedAt: time.Now().UTC(), Data: data})
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.runKey(runID), nodeID, out).Err(); err != nil {
		return fmt.Errorf("save checkpoint %s/%s: %w", runID, nodeID, err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(runID, nodeID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	data, err := s.client.HGet(ctx, s.runKey(runID), nodeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s/%s: %w", runID, nodeID, err)
	}
	rec, err := openFor(data, runID, nodeID)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// List implements Store. A field that fails verification fails the whole
// listing.
func (s *RedisStore) List(runID string) ([]fgcheckpoint.Info, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, s.runKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints %s: %w", runID, err)
	}
	infos := make([]fgcheckpoint.Info, 0, len(fields))
	for nodeID, data := range fields {
		rec, err := openFor([]byte(data), runID, nodeID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, rec.Info(len(data)))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Sequence < infos[j].Sequence })
	return infos, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(runID, nodeID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.client.HDel(ctx, s.runKey(runID), nodeID).Err(); err != nil {
		return fmt.Errorf("delete checkpoint %s/%s: %w", runID, nodeID, err)
	}
	return nil
}

// DeleteRun implements Store.
func (s *RedisStore) DeleteRun(runID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.runKey(runID)).Err(); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if err := s.client.HDel(ctx, s.seqKey(), runID).Err(); err != nil {
		return fmt.Errorf("delete sequence %s: %w", runID, err)
	}
	return nil
}

// Runs implements Store.
func (s *RedisStore) Runs() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	prefix := s.runKey("")
	var out []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan runs: %w", err)
		}
		for _, k := range keys {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(out)
	return out, nil
}
