package api

import (
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func TestPumpEventsClosesChannelOnlyAfterSourceCloses(t *testing.T) {
	src := make(chan *redis.Message, 4)
	ch := make(chan SSEEvent, 16)
	go pumpEvents(src, ch)

	src <- &redis.Message{Payload: `{"Type":"route.changed","Data":{"vendor":"V1"}}`}
	select {
	case evt := <-ch:
		if evt.Type != "route.changed" {
			t.Fatalf("event type = %q, want route.changed", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("event never forwarded")
	}

	// malformed payloads are skipped, not forwarded and not fatal
	src <- &redis.Message{Payload: `not json`}
	src <- &redis.Message{Payload: `{"Type":"route.changed"}`}
	select {
	case evt := <-ch:
		if evt.Type != "route.changed" {
			t.Fatalf("event type = %q after malformed payload", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("pump stopped after malformed payload")
	}

	// tearing down the source (PubSub closed) is what closes ch
	close(src)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event after source close")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after source close")
	}
}

func TestPumpEventsDropsForSlowConsumer(t *testing.T) {
	src := make(chan *redis.Message)
	ch := make(chan SSEEvent, 1) // nobody reading
	done := make(chan struct{})
	go func() {
		pumpEvents(src, ch)
		close(done)
	}()

	for i := 0; i < 50; i++ {
		select {
		case src <- &redis.Message{Payload: `{"Type":"route.changed"}`}:
		case <-time.After(time.Second):
			t.Fatalf("pump blocked on slow consumer at message %d", i)
		}
	}
	close(src)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("pump never exited")
	}
}
