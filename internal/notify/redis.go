package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "scorekeeper.events"

// publisher is the part of *goredis.Client used for publishing.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
}

// subscription is the part of *goredis.PubSub used for forwarding.
type subscription interface {
	Receive(ctx context.Context) (any, error)
	Channel(opts ...goredis.ChannelOption) <-chan *goredis.Message
	Close() error
}

func subscriber(rdb *goredis.Client) func(context.Context, string) subscription {
	return func(ctx context.Context, channel string) subscription {
		return rdb.Subscribe(ctx, channel)
	}
}

// Redis publishes events to a Redis pub/sub channel so other replicas and
// services can observe them.
type Redis struct {
	log     *zap.Logger
	rdb     *goredis.Client
	pub     publisher
	sub     func(ctx context.Context, channel string) subscription
	channel string
	now     func() time.Time
}

// wireMessage is Message with the payload kept raw for forwarding.
type wireMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// NewRedis dials addr and checks connectivity.
func NewRedis(ctx context.Context, log *zap.Logger, addr, channel string) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{
		log:     log.With(zap.String("component", "notify.redis")),
		rdb:     rdb,
		pub:     rdb,
		sub:     subscriber(rdb),
		channel: channel,
		now:     time.Now,
	}, nil
}

// Publish implements Notifier.
func (r *Redis) Publish(ctx context.Context, event string, payload any) error {
	raw, err := encode(event, payload, r.now())
	if err != nil {
		return err
	}
	return r.pub.Publish(ctx, r.channel, raw).Err()
}

func encode(event string, payload any, at time.Time) ([]byte, error) {
	return json.Marshal(Message{Event: event, Payload: payload, At: at.UTC()})
}

func decode(raw []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return Message{}, err
	}
	if w.Event == "" {
		return Message{}, errors.New("empty event")
	}
	return Message{Event: w.Event, Payload: w.Payload, At: w.At}, nil
}

// Forward subscribes to the channel and hands every message to onMsg until
// ctx is done. It returns once the subscription is confirmed.
func (r *Redis) Forward(ctx context.Context, onMsg func(Message)) error {
	if onMsg == nil {
		return errors.New("onMsg callback required")
	}
	sub := r.sub(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				msg, err := decode([]byte(m.Payload))
				if err != nil {
					r.log.Warn("bad redis payload", zap.Error(err))
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

// Close releases the client.
func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
