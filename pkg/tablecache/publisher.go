package tablecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunResult is the fire-and-forget status record published after every
// transform or answer run. The surrounding system polls the SET key or
// subscribes to the channel; the engine never reads it back.
//
// Redis keys:
//
//	SET  datachat:run:<id>  <JSON>  EX <ttl>
//	PUB  datachat:runs      <JSON>
type RunResult struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"` // "transform" | "answer"
	Dataset    string    `json:"dataset"`
	Status     string    `json:"status"` // "success" | "failed"
	Iterations int       `json:"iterations"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	Error      *string   `json:"error,omitempty"`
}

// RunPublisher publishes run results to Redis.
type RunPublisher struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunPublisher creates a publisher over an existing Redis client.
func NewRunPublisher(client *redis.Client, ttl time.Duration) *RunPublisher {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RunPublisher{client: client, ttl: ttl}
}

// Publish stores the run state with TTL and broadcasts it. Called for
// successful and failed runs alike; execErr == nil means success.
func (p *RunPublisher) Publish(ctx context.Context, result RunResult, execErr error) error {
	result.DurationMs = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	if execErr != nil {
		result.Status = "failed"
		msg := execErr.Error()
		result.Error = &msg
	} else {
		result.Status = "success"
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("tablecache: marshal run result: %w", err)
	}

	stateKey := "datachat:run:" + result.RunID
	if err := p.client.Set(ctx, stateKey, payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("tablecache: redis SET: %w", err)
	}
	if err := p.client.Publish(ctx, "datachat:runs", payload).Err(); err != nil {
		return fmt.Errorf("tablecache: redis PUBLISH: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (p *RunPublisher) Close() error {
	return p.client.Close()
}
