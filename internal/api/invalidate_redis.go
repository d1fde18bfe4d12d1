package api

import (
	"context"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const invalidationChannel = "visitnav:overrides:invalidate"

// RedisInvalidator propagates override mutations between instances. Each
// instance reloads its snapshot when any instance publishes; the payload
// carries no data, the store is the source of truth.
type RedisInvalidator struct {
	rdb *redis.Client
}

func NewRedisInvalidator() (*RedisInvalidator, error) {
	opt, err := redis.ParseURL(os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, err
	}
	return &RedisInvalidator{rdb: redis.NewClient(opt)}, nil
}

func (i *RedisInvalidator) Publish(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = i.rdb.Publish(ctx, invalidationChannel, "reload").Err()
}

// Run subscribes and invokes fn for every invalidation message.
func (i *RedisInvalidator) Run(fn func()) {
	ctx := context.Background()
	ps := i.rdb.Subscribe(ctx, invalidationChannel)
	_, _ = ps.Receive(ctx)
	go func() {
		for range ps.Channel() {
			fn()
		}
	}()
}
