package bus

import (
	"testing"
	"time"
)

func TestRedis_PublishSubscribe(t *testing.T) {
	r, err := NewRedis("localhost:6379")
	if err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	defer r.Close()

	rec := &recorder{}
	r.Subscribe("room:1", rec)
	// 等待 redis 侧订阅生效
	time.Sleep(100 * time.Millisecond)

	r.Publish("room:1", Event{Type: EventMessage, RoomID: 1, PK: 3})

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.count() != 1 {
		t.Fatalf("received %d events, want 1", rec.count())
	}
	rec.mu.Lock()
	got := rec.events[0]
	rec.mu.Unlock()
	if got.Type != EventMessage || got.RoomID != 1 || got.PK != 3 {
		t.Errorf("event round-trip = %+v", got)
	}

	r.Unsubscribe("room:1", rec)
	time.Sleep(100 * time.Millisecond)
	r.Publish("room:1", Event{Type: EventMessage, RoomID: 1})
	time.Sleep(200 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("received %d events after Unsubscribe, want still 1", rec.count())
	}
}
