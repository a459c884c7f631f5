package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const userChannelPrefix = "journeys:user:"

func userChannel(userID string) string {
	return userChannelPrefix + strings.TrimSpace(userID)
}

// RedisChannel publishes to the per-user redis channel. Only instances holding
// a connection for the user subscribe to it, so zero receivers means offline.
type RedisChannel struct {
	client *redis.Client
}

func NewRedisChannel(client *redis.Client) *RedisChannel {
	return &RedisChannel{client: client}
}

func (c *RedisChannel) SendToUser(ctx context.Context, userID, method string, payload any) error {
	msg, err := encode(method, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	receivers, err := c.client.Publish(ctx, userChannel(userID), msg).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", method, err)
	}
	if receivers == 0 {
		return ErrUserOffline
	}
	return nil
}

// Bridge subscribes this instance to the channels of its locally connected
// users and hands received frames to the hub.
type Bridge struct {
	client *redis.Client
	hub    *Hub
	log    *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewBridge(client *redis.Client, hub *Hub, log *zap.Logger) *Bridge {
	return &Bridge{
		client: client,
		hub:    hub,
		log:    log.Named("realtime.bridge"),
	}
}

func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	b.pubsub = b.client.Subscribe(ctx)
	ch := b.pubsub.Channel()
	b.mu.Unlock()

	b.hub.OnPresence(b.onPresence)
	go b.run(ch)
}

func (b *Bridge) Stop() error {
	b.hub.OnPresence(nil)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	b.pubsub = nil
	return err
}

func (b *Bridge) run(ch <-chan *redis.Message) {
	for msg := range ch {
		userID := strings.TrimPrefix(msg.Channel, userChannelPrefix)
		if b.hub.deliver(userID, []byte(msg.Payload)) == 0 {
			b.log.Debug("no local connection took bridged message", zap.String("user_id", userID))
		}
	}
}

func (b *Bridge) onPresence(userID string, online bool) {
	b.mu.Lock()
	ps := b.pubsub
	b.mu.Unlock()
	if ps == nil {
		return
	}

	ctx := context.Background()
	var err error
	if online {
		err = ps.Subscribe(ctx, userChannel(userID))
	} else {
		err = ps.Unsubscribe(ctx, userChannel(userID))
	}
	if err != nil {
		b.log.Warn("redis presence update failed",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err),
		)
	}
}
