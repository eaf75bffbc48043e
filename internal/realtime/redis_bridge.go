package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPublishTimeout = 2 * time.Second

var (
	errMissingRedisClient  = errors.New("redis bridge: client required")
	errMissingRedisChannel = errors.New("redis bridge: channel required")
	errMissingLocal        = errors.New("redis bridge: local dispatcher required")
	errMissingOrigin       = errors.New("redis bridge: origin required")
)

// RedisBridgeConfig wires a local dispatcher to a Redis pub/sub channel.
type RedisBridgeConfig struct {
	Client  redis.UniversalClient
	Channel string
	Local   *Dispatcher
	Origin  string
	Logger  *zap.Logger
}

// RedisBridge publishes events locally and to Redis, and replays events from other
// instances into the local dispatcher.
type RedisBridge struct {
	client  redis.UniversalClient
	channel string
	local   *Dispatcher
	origin  string
	logger  *zap.Logger
}

// NewRedisBridge validates cfg and constructs the bridge.
func NewRedisBridge(cfg RedisBridgeConfig) (*RedisBridge, error) {
	if cfg.Client == nil {
		return nil, errMissingRedisClient
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		return nil, errMissingRedisChannel
	}
	if cfg.Local == nil {
		return nil, errMissingLocal
	}
	origin := strings.TrimSpace(cfg.Origin)
	if origin == "" {
		return nil, errMissingOrigin
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{
		client:  cfg.Client,
		channel: channel,
		local:   cfg.Local,
		origin:  origin,
		logger:  logger,
	}, nil
}

// Publish delivers event to local subscribers and forwards it to the other instances.
func (b *RedisBridge) Publish(event Event) {
	b.local.Publish(event)
	event.Origin = b.origin
	payload, err := EncodeEvent(event)
	if err != nil {
		b.logger.Warn("realtime event encode failed", zap.String("topic", event.Topic), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("realtime redis publish failed", zap.String("topic", event.Topic), zap.Error(err))
	}
}

// Run relays events from Redis until ctx ends. Events this instance published are skipped.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	messages := pubsub.Channel()
	b.logger.Info("realtime redis bridge subscribed", zap.String("channel", b.channel))
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return nil
			}
			event, err := DecodeEvent(message.Payload)
			if err != nil {
				b.logger.Warn("realtime redis payload rejected", zap.Error(err))
				continue
			}
			if event.Origin == b.origin {
				continue
			}
			b.local.Publish(event)
		}
	}
}

// EncodeEvent serializes an event for the wire.
func EncodeEvent(event Event) (string, error) {
	encoded, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// DecodeEvent parses a wire event and rejects incomplete ones.
func DecodeEvent(payload string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, err
	}
	if event.Topic == "" || event.Type == "" {
		return Event{}, errors.New("realtime event missing topic or type")
	}
	return event, nil
}
