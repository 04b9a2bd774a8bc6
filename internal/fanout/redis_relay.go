package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"agromind/internal/constants"
	"agromind/internal/metrics"
	"agromind/internal/models"

	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// relayMessage is the payload exchanged on the Redis channel
type relayMessage struct {
	Origin    string       `json:"origin"`
	NodeName  string       `json:"node"`
	Event     models.Event `json:"event"`
	Timestamp int64        `json:"ts"`
}

// RedisRelay shares hub events between server instances over Redis pub/sub.
// Outgoing events are buffered and dropped when the buffer is full so the
// publishing request never waits on Redis.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	node    string
	// origin identifies this process; node names may repeat across processes
	origin  string
	hub     *Hub
	logger  *logrus.Logger
	metrics *metrics.Registry

	outbox chan relayMessage
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRedisRelay connects to Redis and checks the connection
func NewRedisRelay(ctx context.Context, cfg models.RedisConfig, hub *Hub, logger *logrus.Logger) (*RedisRelay, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return newRedisRelay(rdb, cfg, hub, logger), nil
}

func newRedisRelay(rdb *redis.Client, cfg models.RedisConfig, hub *Hub, logger *logrus.Logger) *RedisRelay {
	channel := cfg.Channel
	if channel == "" {
		channel = constants.DefaultRedisChannel
	}
	node := cfg.NodeName
	if node == "" {
		node, _ = os.Hostname()
	}

	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		node:    node,
		origin:  uuid.NewString(),
		hub:     hub,
		logger:  logger,
		metrics: metrics.GetRegistry(),
		outbox:  make(chan relayMessage, constants.DefaultRelayBufferSize),
	}
}

// Start subscribes to the channel and begins publishing buffered events.
// It does not block; call it before Close.
func (r *RedisRelay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	pubsub := r.rdb.Subscribe(ctx, r.channel)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		defer pubsub.Close()
		r.receiveLoop(ctx, pubsub.Channel())
	}()
	go func() {
		defer r.wg.Done()
		r.publishLoop(ctx)
	}()

	r.logger.WithFields(logrus.Fields{
		"channel": r.channel,
		"node":    r.node,
		"origin":  r.origin,
	}).Info("Fanout relay started")
}

// Forward queues ev for other instances without blocking
func (r *RedisRelay) Forward(ev models.Event) {
	msg := relayMessage{Origin: r.origin, NodeName: r.node, Event: ev, Timestamp: time.Now().UnixNano()}
	select {
	case r.outbox <- msg:
	default:
		r.metrics.IncrementCounter(metrics.RelayDropped, nil, "Relay events dropped on full buffer")
		r.logger.WithField("group_id", ev.GroupID).Warn("Fanout relay buffer full, dropping event")
	}
}

func (r *RedisRelay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.outbox:
			payload, err := json.Marshal(msg)
			if err != nil {
				r.logger.WithError(err).Error("Failed to encode relay event")
				continue
			}
			if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
				r.logger.WithError(err).Warn("Failed to publish relay event")
				continue
			}
			r.metrics.IncrementCounter(metrics.RelayPublished, nil, "Relay events published")
		}
	}
}

func (r *RedisRelay) receiveLoop(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.handlePayload(msg.Payload)
		}
	}
}

// handlePayload delivers a remote event to local subscribers. Events this
// process published itself are skipped.
func (r *RedisRelay) handlePayload(payload string) bool {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.WithError(err).Warn("Discarding malformed relay payload")
		return false
	}
	if msg.Origin == r.origin || msg.Event.Message == nil {
		return false
	}

	r.hub.PublishLocal(msg.Event)
	return true
}

// Close stops the relay and closes the Redis client
func (r *RedisRelay) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return r.rdb.Close()
}
