// Package redisqueue implements queue.ResponseQueue on top of Redis lists so
// the process accepting a POSTed request and the process serving the SSE
// stream can be different processes or machines. Each session owns a message
// list, a sequence counter, and a liveness marker key; the marker carries an
// idle TTL that is refreshed on every push and pop, which expires abandoned
// sessions even if no process gets to close them explicitly.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/mcputil/go-mcp-sse/queue"
)

// Config contains configuration options for the Redis queue. Defaults can be
// loaded from the environment via envdecode.
type Config struct {
	// Client is the Redis client to use. If nil, a client is created for
	// Addr and owned (and closed) by the queue.
	Client redis.UniversalClient

	// Addr is the Redis address used when Client is nil. ENV: REDIS_ADDR
	Addr string `env:"REDIS_ADDR,default=localhost:6379"`

	// KeyPrefix is prepended to all keys. ENV: MCP_QUEUE_KEY_PREFIX
	KeyPrefix string `env:"MCP_QUEUE_KEY_PREFIX,default=mcp:queue:"`

	// SessionTTL is the idle lifetime of a session's keys.
	// ENV: MCP_QUEUE_SESSION_TTL
	SessionTTL time.Duration `env:"MCP_QUEUE_SESSION_TTL,default=30m"`
}

// Queue implements queue.ResponseQueue using Redis lists.
type Queue struct {
	client     redis.UniversalClient
	ownsClient bool
	keyPrefix  string
	sessionTTL time.Duration
}

// New creates a Redis-backed queue from cfg, applying defaults for zero
// fields.
func New(cfg Config) *Queue {
	client := cfg.Client
	owns := false
	if client == nil {
		addr := cfg.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
		owns = true
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:queue:"
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Queue{client: client, ownsClient: owns, keyPrefix: prefix, sessionTTL: ttl}
}

// NewFromEnv builds a queue with Config populated via envdecode.
func NewFromEnv() (*Queue, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode queue config: %w", err)
	}
	q := New(cfg)
	if err := q.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return q, nil
}

// Shutdown closes the Redis client if the queue created it.
func (q *Queue) Shutdown() error {
	if q.ownsClient {
		return q.client.Close()
	}
	return nil
}

func (q *Queue) listKey(sessionID string) string { return q.keyPrefix + "msgs:" + sessionID }
func (q *Queue) seqKey(sessionID string) string  { return q.keyPrefix + "seq:" + sessionID }
func (q *Queue) liveKey(sessionID string) string { return q.keyPrefix + "live:" + sessionID }

func (q *Queue) Register(ctx context.Context, sessionID string) error {
	if err := q.client.Set(ctx, q.liveKey(sessionID), "1", q.sessionTTL).Err(); err != nil {
		return fmt.Errorf("register session %s: %w", sessionID, err)
	}
	return nil
}

func (q *Queue) Push(ctx context.Context, sessionID string, payload []byte) error {
	live, err := q.client.Exists(ctx, q.liveKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("check session %s: %w", sessionID, err)
	}
	if live == 0 {
		return queue.ErrSessionClosed
	}

	seq, err := q.client.Incr(ctx, q.seqKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("next sequence for %s: %w", sessionID, err)
	}
	msg := queue.Message{
		SessionID:  sessionID,
		Seq:        uint64(seq),
		Payload:    append([]byte(nil), payload...),
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, q.listKey(sessionID), data)
	pipe.Expire(ctx, q.listKey(sessionID), q.sessionTTL)
	pipe.Expire(ctx, q.seqKey(sessionID), q.sessionTTL)
	pipe.Expire(ctx, q.liveKey(sessionID), q.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push to %s: %w", sessionID, err)
	}
	return nil
}

// blockSlice bounds each BLPOP so the loop can re-check session liveness; a
// DEL of the list key does not wake a blocked BLPOP.
const blockSlice = 500 * time.Millisecond

func (q *Queue) Pop(ctx context.Context, sessionID string, timeout time.Duration) (*queue.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		live, err := q.client.Exists(ctx, q.liveKey(sessionID)).Result()
		if err != nil {
			return nil, fmt.Errorf("check session %s: %w", sessionID, err)
		}
		if live == 0 {
			return nil, queue.ErrSessionClosed
		}

		var data string
		remaining := time.Until(deadline)
		if remaining <= 0 {
			data, err = q.client.LPop(ctx, q.listKey(sessionID)).Result()
		} else {
			block := remaining
			if block > blockSlice {
				block = blockSlice
			}
			var vals []string
			vals, err = q.client.BLPop(ctx, block, q.listKey(sessionID)).Result()
			if err == nil {
				// BLPOP returns [key, value].
				data = vals[1]
			}
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if time.Until(deadline) <= 0 {
					return nil, queue.ErrNoMessage
				}
				continue
			}
			return nil, fmt.Errorf("pop from %s: %w", sessionID, err)
		}

		var msg queue.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}

		// Consumption is activity; keep the session alive.
		_ = q.client.Expire(ctx, q.liveKey(sessionID), q.sessionTTL).Err()
		return &msg, nil
	}
}

func (q *Queue) Active(ctx context.Context, sessionID string) (bool, error) {
	n, err := q.client.Exists(ctx, q.liveKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check session %s: %w", sessionID, err)
	}
	return n == 1, nil
}

func (q *Queue) Close(ctx context.Context, sessionID string) error {
	c := context.WithoutCancel(ctx)
	if err := q.client.Del(c, q.liveKey(sessionID), q.listKey(sessionID), q.seqKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("close session %s: %w", sessionID, err)
	}
	return nil
}

var _ queue.ResponseQueue = (*Queue)(nil)
