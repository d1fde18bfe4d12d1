package api

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
	Subscribe(vendor string) chan SSEEvent
	Unsubscribe(vendor string, ch chan SSEEvent)
	Publish(vendor string, evt SSEEvent)
}

// In-memory broker already implemented in broker.go and satisfies EventBroker

// RedisBroker implements EventBroker over Redis Pub/Sub so streams work
// across instances. Each subscriber channel is backed by its own PubSub;
// Unsubscribe closes the PubSub and the pump goroutine is the only closer of
// the event channel, so a publish racing an unsubscribe never sends on a
// closed channel.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker() (*RedisBroker, error) {
	url := os.Getenv("REDIS_URL")
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	return &RedisBroker{rdb: rdb, subs: map[chan SSEEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(vendor string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(vendor))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go pumpEvents(ps.Channel(), ch)
	return ch
}

// pumpEvents forwards decoded events until src closes (PubSub closed or
// connection lost), then closes ch. Slow consumers drop events rather than
// block the pump.
func pumpEvents(src <-chan *redis.Message, ch chan<- SSEEvent) {
	defer close(ch)
	for msg := range src {
		var evt SSEEvent
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

func (b *RedisBroker) Unsubscribe(vendor string, ch chan SSEEvent) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		// ends the pump goroutine, which closes ch
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(vendor string, evt SSEEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(vendor), data).Err()
}

func (b *RedisBroker) chanName(vendor string) string { return "vendor:" + vendor }
