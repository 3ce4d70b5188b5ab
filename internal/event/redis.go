package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisChannelPrefix = "heartbeat:events:"
	redisPublishWait   = 2 * time.Second
)

// RedisPublisher forwards lifecycle events to Redis pub/sub so external
// consumers (load balancers, alerting) can react without linking against
// this process. It is registered on the bus like any other subscriber, so a
// slow or unreachable Redis never blocks the server loops.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// NewRedisClient connects to the configured endpoint and verifies it is
// reachable.
func NewRedisClient(endpoint string) (*redis.Client, error) {
	if endpoint == "" {
		return nil, errors.New("redis endpoint is not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to ping redis")
	}

	return client, nil
}

// Handle publishes a single event on its kind channel. Failures are logged
// at warning and swallowed; event delivery to Redis is best-effort.
func (p *RedisPublisher) Handle(ev Event) {
	payload := redisEventPayload{
		Kind:      string(ev.Kind),
		NodeID:    ev.Node.NodeID,
		Address:   ev.Node.Address,
		Port:      ev.Node.Port,
		Status:    ev.Node.Status.String(),
		Missed:    ev.Node.MissedHeartbeats,
		Metadata:  ev.Node.Metadata,
		Timestamp: ev.Timestamp.UnixMilli(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("Failed to marshal event for redis")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPublishWait)
	defer cancel()

	channel := redisChannelPrefix + string(ev.Kind)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		log.Warn().
			Err(err).
			Str("channel", channel).
			Str("node_id", ev.Node.NodeID).
			Msg("Failed to publish event to redis")
	}
}

type redisEventPayload struct {
	Kind      string            `json:"kind"`
	NodeID    string            `json:"node_id"`
	Address   string            `json:"address,omitempty"`
	Port      int               `json:"port,omitempty"`
	Status    string            `json:"status"`
	Missed    int               `json:"missed_heartbeats"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}
