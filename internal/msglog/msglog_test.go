package msglog

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"huddle/api/internal/membership"
	"huddle/api/internal/rbac"
	"huddle/api/internal/storage"
)

// allowAll stands in for the membership authorizer where the test is not
// about authorization.
type allowAll struct{}

func (allowAll) CanWrite(context.Context, string, string, rbac.Channel) error { return nil }

type denyAll struct{ err error }

func (d denyAll) CanWrite(context.Context, string, string, rbac.Channel) error { return d.err }

func setup(t *testing.T, authorizer Authorizer) (*Log, storage.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := storage.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, authorizer), st
}

func TestAppendAndTail(t *testing.T) {
	log, _ := setup(t, allowAll{})
	ctx := context.Background()

	first, err := log.Append(ctx, "AAA111", rbac.ChannelGeneral, "u1", "Alex", "hello")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	second, err := log.Append(ctx, "AAA111", rbac.ChannelGeneral, "u2", "Blake", "  hi there  ")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if first.Seq >= second.Seq {
		t.Errorf("sequence not increasing: %d then %d", first.Seq, second.Seq)
	}
	if second.Text != "hi there" {
		t.Errorf("text should be trimmed, got %q", second.Text)
	}

	messages, err := log.Tail(ctx, "AAA111", rbac.ChannelGeneral)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].ID != first.ID || messages[1].ID != second.ID {
		t.Errorf("tail out of order: %+v", messages)
	}
	if messages[0].Community != "AAA111" || messages[0].Channel != rbac.ChannelGeneral {
		t.Errorf("tail did not fill community/channel: %+v", messages[0])
	}
}

func TestAppendRejectsEmptyTextBeforeAuthorization(t *testing.T) {
	// the authorizer would deny; empty text must win first
	log, _ := setup(t, denyAll{err: membership.ErrWriteDenied})
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := log.Append(context.Background(), "AAA111", rbac.ChannelGeneral, "u1", "Alex", text); err != ErrEmptyMessage {
			t.Errorf("Append(%q) = %v, want ErrEmptyMessage", text, err)
		}
	}
}

func TestAppendEnforcesAuthorization(t *testing.T) {
	log, st := setup(t, denyAll{err: membership.ErrWriteDenied})
	ctx := context.Background()

	if _, err := log.Append(ctx, "AAA111", rbac.ChannelAnnouncement, "u1", "Alex", "psa"); err != membership.ErrWriteDenied {
		t.Fatalf("Append = %v, want ErrWriteDenied", err)
	}

	// nothing may reach storage on a denied append
	entries, err := st.List(ctx, "message/AAA111/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("denied append persisted a message: %+v", entries)
	}
}

func TestChannelsAreIsolated(t *testing.T) {
	log, _ := setup(t, allowAll{})
	ctx := context.Background()

	if _, err := log.Append(ctx, "AAA111", rbac.ChannelGeneral, "u1", "Alex", "general"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := log.Append(ctx, "AAA111", rbac.ChannelAnnouncement, "u1", "Alex", "announce"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := log.Append(ctx, "BBB222", rbac.ChannelGeneral, "u1", "Alex", "elsewhere"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	messages, err := log.Tail(ctx, "AAA111", rbac.ChannelGeneral)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Text != "general" {
		t.Errorf("general tail leaked other channels: %+v", messages)
	}
}

func TestConcurrentAppendsGetUniqueOrderedSeqs(t *testing.T) {
	log, _ := setup(t, allowAll{})
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	results := make(chan Message, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m, err := log.Append(ctx, "AAA111", rbac.ChannelGeneral, fmt.Sprintf("u%d", n), "User", fmt.Sprintf("msg %d", n))
			if err != nil {
				t.Errorf("Append failed: %v", err)
				return
			}
			results <- m
		}(i)
	}
	wg.Wait()
	close(results)

	seqs := map[int64]bool{}
	for m := range results {
		if seqs[m.Seq] {
			t.Errorf("duplicate seq %d", m.Seq)
		}
		seqs[m.Seq] = true
	}
	if len(seqs) != writers {
		t.Fatalf("expected %d distinct seqs, got %d", writers, len(seqs))
	}

	messages, err := log.Tail(ctx, "AAA111", rbac.ChannelGeneral)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	for i := 1; i < len(messages); i++ {
		prev, cur := messages[i-1], messages[i]
		if cur.Timestamp < prev.Timestamp {
			t.Errorf("tail not timestamp-ordered at %d", i)
		}
		if cur.Timestamp == prev.Timestamp && cur.Seq < prev.Seq {
			t.Errorf("tail tie not broken by seq at %d", i)
		}
	}
}

func TestSubscribeDeliversInAppendOrder(t *testing.T) {
	log, _ := setup(t, allowAll{})
	ctx := context.Background()

	received := make(chan Message, 16)
	cancel, err := log.Subscribe(ctx, "AAA111", rbac.ChannelGeneral, func(m Message) {
		received <- m
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	var appended []Message
	for i := 0; i < 3; i++ {
		m, err := log.Append(ctx, "AAA111", rbac.ChannelGeneral, "u1", "Alex", fmt.Sprintf("msg %d", i))
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		appended = append(appended, m)
	}
	// a different channel's append must not be delivered
	if _, err := log.Append(ctx, "AAA111", rbac.ChannelAnnouncement, "u1", "Alex", "psa"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	for i, want := range appended {
		select {
		case got := <-received:
			if got.ID != want.ID {
				t.Errorf("delivery %d = %s, want %s", i, got.ID, want.ID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
	select {
	case m := <-received:
		t.Errorf("unexpected cross-channel delivery: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	cancel() // idempotent
	if _, err := log.Append(ctx, "AAA111", rbac.ChannelGeneral, "u1", "Alex", "after cancel"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	select {
	case m := <-received:
		t.Errorf("delivery after cancel: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}
