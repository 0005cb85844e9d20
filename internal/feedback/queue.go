// Package feedback turns newly confirmed entities and zones into search
// sources for the next ingestion cycle. Terms travel over a one-way queue
// that the next cycle drains.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/steliosspap/Argos-public-sub005/internal/config"
	"github.com/steliosspap/Argos-public-sub005/internal/model"
)

// ErrQueueFull is returned by Push when a bounded queue has no room.
var ErrQueueFull = errors.New("feedback: queue full")

// Term kinds.
const (
	KindEntity = "entity"
	KindZone   = "zone"
)

// Term is one discovery hint.
type Term struct {
	Kind       string           `json:"kind"`
	Text       string           `json:"text"`
	EntityType model.EntityType `json:"entity_type,omitempty"`
	Zone       string           `json:"zone,omitempty"`
	At         time.Time        `json:"at"`
}

type Queue interface {
	Push(ctx context.Context, t Term) error
	// Drain removes and returns up to max terms in push order.
	Drain(ctx context.Context, max int) ([]Term, error)
	Close() error
}

// Open builds the queue backend selected by cfg.
func Open(cfg config.FeedbackConfig) (Queue, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryQueue(cfg.Capacity), nil
	case "redis":
		return NewRedisQueue(cfg.RedisURL, cfg.Queue)
	default:
		return nil, fmt.Errorf("unknown feedback backend %q", cfg.Backend)
	}
}

// MemoryQueue is a bounded in-process queue.
type MemoryQueue struct {
	ch chan Term
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryQueue{ch: make(chan Term, capacity)}
}

func (q *MemoryQueue) Push(_ context.Context, t Term) error {
	select {
	case q.ch <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Drain(_ context.Context, max int) ([]Term, error) {
	var out []Term
	for len(out) < max {
		select {
		case t := <-q.ch:
			out = append(out, t)
		default:
			return out, nil
		}
	}
	return out, nil
}

func (q *MemoryQueue) Len() int { return len(q.ch) }

func (q *MemoryQueue) Close() error { return nil }

// RedisQueue is a Redis list: producers RPUSH JSON terms, the cycle LPOPs.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(url, key string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "parse redis url")
	}
	return NewRedisQueueWithClient(redis.NewClient(opts), key), nil
}

func NewRedisQueueWithClient(c *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: c, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, t Term) error {
	b, err := json.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "encode term")
	}
	return eris.Wrapf(q.client.RPush(ctx, q.key, b).Err(), "rpush %s", q.key)
}

func (q *RedisQueue) Drain(ctx context.Context, max int) ([]Term, error) {
	var out []Term
	for len(out) < max {
		raw, err := q.client.LPop(ctx, q.key).Bytes()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return out, eris.Wrapf(err, "lpop %s", q.key)
		}
		var t Term
		if err := json.Unmarshal(raw, &t); err != nil {
			// a foreign or corrupt entry; drop it and keep draining
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (q *RedisQueue) Close() error { return q.client.Close() }
