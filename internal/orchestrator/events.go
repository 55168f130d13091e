package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStream is the Redis Stream outcomes are published to.
const DefaultStream = "nuka:cs:outcomes"

const defaultStreamMaxLen = 10000

// Publisher receives handled outcomes.
type Publisher interface {
	Publish(ctx context.Context, o *Outcome) error
}

// StreamPublisher writes outcomes to a Redis Stream.
type StreamPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamPublisher connects to redisURL and verifies the connection.
func NewStreamPublisher(redisURL, stream string, maxLen int64, logger *zap.Logger) (*StreamPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStreamPublisherFromClient(rdb, stream, maxLen, logger), nil
}

// NewStreamPublisherFromClient wraps an existing client. Empty stream and
// non-positive maxLen use the defaults.
func NewStreamPublisherFromClient(rdb *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &StreamPublisher{rdb: rdb, stream: stream, maxLen: maxLen, logger: logger}
}

// Stream returns the stream name.
func (p *StreamPublisher) Stream() string { return p.stream }

// Publish appends an outcome to the stream, trimming it to roughly maxLen.
func (p *StreamPublisher) Publish(ctx context.Context, o *Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"user":  o.UserID,
			"state": string(o.State),
			"data":  string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.stream, err)
	}

	p.logger.Debug("published outcome",
		zap.String("id", id),
		zap.String("request", o.RequestID),
		zap.String("state", string(o.State)))
	return nil
}

// StreamEvent is an outcome read back from the stream.
type StreamEvent struct {
	ID      string
	Outcome *Outcome
}

// Subscribe reads outcomes published after from ("" or "$" for new
// entries only, "0" for the whole stream). Cancel ctx to stop.
func (p *StreamPublisher) Subscribe(ctx context.Context, from string) <-chan StreamEvent {
	ch := make(chan StreamEvent, 16)
	lastID := from
	if lastID == "" {
		lastID = "$"
	}

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := p.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{p.stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if errors.Is(err, redis.Nil) {
					continue
				}
				p.logger.Warn("stream read failed", zap.String("stream", p.stream), zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var o Outcome
					if err := json.Unmarshal([]byte(data), &o); err != nil {
						p.logger.Debug("skipping malformed outcome", zap.String("id", msg.ID), zap.Error(err))
						continue
					}
					select {
					case ch <- StreamEvent{ID: msg.ID, Outcome: &o}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (p *StreamPublisher) Close() error {
	return p.rdb.Close()
}
