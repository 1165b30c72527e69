package storage

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestDispatchDoesNotBlockOnSlowWatcher(t *testing.T) {
	s := &PostgresStore{watchers: make(map[int]*pgWatcher)}
	ctx := context.Background()

	block := make(chan struct{})
	cancelSlow, err := s.Watch(ctx, "member/", func(Event) { <-block })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer cancelSlow()
	defer close(block)

	received := make(chan Event, 1024)
	cancelFast, err := s.Watch(ctx, "member/", func(e Event) { received <- e })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer cancelFast()

	// Push well past the slow watcher's buffer; the listener-side dispatch
	// must keep moving and the healthy watcher must see every event in order.
	const total = 400
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			s.dispatch(Event{Path: fmt.Sprintf("member/CLUB01/%d", i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch stalled behind the slow watcher")
	}

	for i := 0; i < total; i++ {
		select {
		case e := <-received:
			want := fmt.Sprintf("member/CLUB01/%d", i)
			if e.Path != want {
				t.Fatalf("event %d: got %s, want %s", i, e.Path, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("healthy watcher missed event %d", i)
		}
	}
}
