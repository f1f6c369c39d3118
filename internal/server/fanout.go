package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "studyboard:session:"

// Broadcaster delivers a message to the peers connected to this replica.
type Broadcaster interface {
	Deliver(sessionID string, data []byte)
}

// RedisFanout forwards session messages between server replicas over Redis
// pub/sub. Each replica tags what it publishes and ignores its own messages.
type RedisFanout struct {
	client *redis.Client
	origin string
	logger *slog.Logger
}

type fanoutEnvelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// NewRedisFanout connects to addr and checks the connection.
func NewRedisFanout(ctx context.Context, addr string, logger *slog.Logger) (*RedisFanout, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisFanout{
		client: client,
		origin: uuid.NewString(),
		logger: logger.With("component", "fanout"),
	}, nil
}

// Publish sends data to the other replicas serving sessionID.
func (f *RedisFanout) Publish(ctx context.Context, sessionID string, data []byte) error {
	env, err := json.Marshal(fanoutEnvelope{Origin: f.origin, Payload: data})
	if err != nil {
		return fmt.Errorf("encode fanout message: %w", err)
	}
	if err := f.client.Publish(ctx, channelPrefix+sessionID, env).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run delivers messages from other replicas to b until ctx ends.
func (f *RedisFanout) Run(ctx context.Context, b Broadcaster) error {
	pubsub := f.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			sessionID, payload, ok := f.decode(msg)
			if !ok {
				continue
			}
			b.Deliver(sessionID, payload)
		}
	}
}

func (f *RedisFanout) decode(msg *redis.Message) (string, []byte, bool) {
	var env fanoutEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		f.logger.Warn("dropping malformed fanout message", "channel", msg.Channel, "err", err)
		return "", nil, false
	}
	if env.Origin == f.origin {
		return "", nil, false
	}
	return strings.TrimPrefix(msg.Channel, channelPrefix), env.Payload, true
}

func (f *RedisFanout) Close() error {
	return f.client.Close()
}
