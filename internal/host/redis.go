package host

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisChannel is the Pub/Sub channel events are published on.
const DefaultRedisChannel = "pearl-bridge:events"

const (
	redisQueue     = 256
	publishTimeout = 2 * time.Second
)

// RedisPublisher forwards hub events to a Redis Pub/Sub channel as JSON. Nothing is stored in
// Redis. Publishing happens on its own goroutine; when the queue is full events are dropped.
type RedisPublisher struct {
	client  *redis.Client
	log     *zap.Logger
	channel string

	queue chan Event
	once  sync.Once
	done  chan struct{}
}

var _ Sink = (*RedisPublisher)(nil)

// NewRedisPublisher connects lazily; call Ping to check the connection and Run to start publishing.
func NewRedisPublisher(log *zap.Logger, addr string, db int, channel string) *RedisPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	opts := &redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		MaxRetries:   3,
	}
	return &RedisPublisher{
		client:  redis.NewClient(opts),
		log:     log.Named("redis"),
		channel: channel,
		queue:   make(chan Event, redisQueue),
		done:    make(chan struct{}),
	}
}

// Ping checks the connection and logs diagnostics.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	opts := p.client.Options()
	log := p.log.With(
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.String("channel", p.channel),
	)

	start := time.Now()
	err := p.client.Ping(ctx).Err()
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("connection failed", zap.Error(err), zap.Duration("ping_rtt", elapsed))
		return err
	}
	log.Info("connection established", zap.Duration("ping_rtt", elapsed))
	return nil
}

// Publish queues ev. It never blocks.
func (p *RedisPublisher) Publish(ev Event) {
	select {
	case p.queue <- ev:
	default:
		p.log.Warn("publish queue full, event dropped", zap.String("type", ev.Type))
	}
}

// Run publishes queued events until ctx is cancelled, then closes the client.
func (p *RedisPublisher) Run(ctx context.Context) {
	defer p.once.Do(func() {
		close(p.done)
		if err := p.client.Close(); err != nil {
			p.log.Debug("close failed", zap.Error(err))
		}
	})
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			p.send(ctx, ev)
		}
	}
}

// Done is closed when Run has returned.
func (p *RedisPublisher) Done() <-chan struct{} { return p.done }

func (p *RedisPublisher) send(ctx context.Context, ev Event) {
	payload, err := encodeEvent(ev)
	if err != nil {
		p.log.Error("encode event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Warn("publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func encodeEvent(ev Event) ([]byte, error) { return json.Marshal(ev) }
