package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisHashKey is the single hash holding every agent record, keyed by
// agent_id, per the external interfaces contract (spec §6):
// "acgs2:registry:agents".
const redisHashKey = "acgs2:registry:agents"

var (
	poolMu   sync.Mutex
	poolsURL = map[string]*redis.Client{}
)

// sharedClient lazily constructs one connection pool per redisURL,
// reused across all Distributed registries opened against it, rather
// than dialing per-call. A parse failure is not cached, so a
// transient misconfiguration can be corrected without restarting the
// process.
func sharedClient(redisURL string) (*redis.Client, error) {
	poolMu.Lock()
	defer poolMu.Unlock()

	if client, ok := poolsURL[redisURL]; ok {
		return client, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("registry: invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	poolsURL[redisURL] = client
	return client, nil
}

// Distributed is a Redis-hash-backed Registry for multi-process
// deployments. Redis unavailability surfaces as an error; callers
// (the Bus) must treat that as "agent not registered" rather than
// retrying indefinitely.
type Distributed struct {
	client  *redis.Client
	timeout time.Duration
}

// NewDistributed opens (or reuses) a connection pool against redisURL.
func NewDistributed(redisURL string, timeout time.Duration) (*Distributed, error) {
	client, err := sharedClient(redisURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Distributed{client: client, timeout: timeout}, nil
}

func (d *Distributed) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

func (d *Distributed) Register(ctx context.Context, rec Record) (bool, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = time.Now().UTC()
	}
	rec.UpdatedAt = rec.RegisteredAt
	if rec.Status == "" {
		rec.Status = StatusActive
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("registry: marshal record: %w", err)
	}

	// HSETNX provides the no-overwrite create semantics.
	created, err := d.client.HSetNX(ctx, redisHashKey, rec.AgentID, payload).Result()
	if err != nil {
		return false, fmt.Errorf("registry: redis HSETNX: %w", err)
	}
	return created, nil
}

func (d *Distributed) Unregister(ctx context.Context, agentID string) (bool, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	removed, err := d.client.HDel(ctx, redisHashKey, agentID).Result()
	if err != nil {
		return false, fmt.Errorf("registry: redis HDEL: %w", err)
	}
	return removed > 0, nil
}

func (d *Distributed) Get(ctx context.Context, agentID string) (Record, bool, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	raw, err := d.client.HGet(ctx, redisHashKey, agentID).Result()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("registry: redis HGET: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, false, fmt.Errorf("registry: unmarshal record: %w", err)
	}
	return rec, true, nil
}

func (d *Distributed) ListAgents(ctx context.Context) ([]string, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	ids, err := d.client.HKeys(ctx, redisHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: redis HKEYS: %w", err)
	}
	return ids, nil
}

func (d *Distributed) Exists(ctx context.Context, agentID string) (bool, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	ok, err := d.client.HExists(ctx, redisHashKey, agentID).Result()
	if err != nil {
		return false, fmt.Errorf("registry: redis HEXISTS: %w", err)
	}
	return ok, nil
}

func (d *Distributed) UpdateMetadata(ctx context.Context, agentID string, mutate func(*Record)) (bool, error) {
	rec, ok, err := d.Get(ctx, agentID)
	if err != nil || !ok {
		return false, err
	}

	mutate(&rec)
	rec.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("registry: marshal record: %w", err)
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	if err := d.client.HSet(ctx, redisHashKey, agentID, payload).Err(); err != nil {
		return false, fmt.Errorf("registry: redis HSET: %w", err)
	}
	return true, nil
}

func (d *Distributed) Clear(ctx context.Context) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.client.Del(ctx, redisHashKey).Err(); err != nil {
		return fmt.Errorf("registry: redis DEL: %w", err)
	}
	return nil
}
