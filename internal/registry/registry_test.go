package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestSubscribe_FirstTime(t *testing.T) {
	r := New()
	if !r.Subscribe("c1", "room:1") {
		t.Error("Subscribe() first time = false, want true")
	}
	if r.Subscribe("c1", "room:1") {
		t.Error("Subscribe() second time = true, want false")
	}
}

func TestUnsubscribe(t *testing.T) {
	r := New()
	r.Subscribe("c1", "room:1")

	if !r.Unsubscribe("c1", "room:1") {
		t.Error("Unsubscribe() existing = false, want true")
	}
	if r.Unsubscribe("c1", "room:1") {
		t.Error("Unsubscribe() missing = true, want false")
	}
	if r.Unsubscribe("unknown", "room:1") {
		t.Error("Unsubscribe() unknown conn = true, want false")
	}
}

func TestGroupsOf(t *testing.T) {
	r := New()
	r.Subscribe("c1", "room:5")
	r.Subscribe("c1", "message:12")
	r.Subscribe("c2", "room:5")

	groups := r.GroupsOf("c1")
	if len(groups) != 2 {
		t.Fatalf("GroupsOf() = %v, want 2 groups", groups)
	}
	if groups[0] != "message:12" || groups[1] != "room:5" {
		t.Errorf("GroupsOf() = %v, want [message:12 room:5]", groups)
	}
	if len(r.GroupsOf("c3")) != 0 {
		t.Error("GroupsOf() unknown conn should be empty")
	}
}

func TestDrop_ExactlyOnce(t *testing.T) {
	r := New()
	r.Subscribe("c1", "room:5")
	r.Subscribe("c1", "message:12")

	first := r.Drop("c1")
	if len(first) != 2 {
		t.Fatalf("Drop() first call = %v, want 2 groups", first)
	}
	second := r.Drop("c1")
	if len(second) != 0 {
		t.Errorf("Drop() second call = %v, want empty", second)
	}
	if len(r.GroupsOf("c1")) != 0 {
		t.Error("GroupsOf() after Drop should be empty")
	}
}

func TestDrop_Concurrent(t *testing.T) {
	r := New()
	for i := 0; i < 10; i++ {
		r.Subscribe("c1", fmt.Sprintf("room:%d", i))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			groups := r.Drop("c1")
			mu.Lock()
			total += len(groups)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 10 {
		t.Errorf("concurrent Drop() returned %d groups in total, want 10", total)
	}
}
