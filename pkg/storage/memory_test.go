package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestOrigin_SharedItemsAcrossContexts(t *testing.T) {
	ctx := context.Background()
	origin := NewOrigin()
	a := origin.Open()
	b := origin.Open()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	if err := a.SetItem(ctx, "k", "v"); err != nil {
		t.Fatalf("SetItem() error: %v", err)
	}

	got, ok, err := b.GetItem(ctx, "k")
	if err != nil || !ok || got != "v" {
		t.Fatalf("GetItem() = (%q, %v, %v), want (v, true, nil)", got, ok, err)
	}

	if _, ok, _ := b.GetItem(ctx, "missing"); ok {
		t.Fatal("GetItem(missing) should report not found")
	}
}

func TestOrigin_EventsSkipWriter(t *testing.T) {
	ctx := context.Background()
	origin := NewOrigin()
	a := origin.Open()
	b := origin.Open()
	c := origin.Open()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close(); _ = c.Close() })

	if err := a.SetItem(ctx, "k", "1"); err != nil {
		t.Fatalf("SetItem() error: %v", err)
	}

	for name, m := range map[string]*Memory{"b": b, "c": c} {
		select {
		case ev := <-m.Events():
			want := Event{Key: "k", Value: "1", Source: a.ID()}
			if diff := cmp.Diff(want, ev); diff != "" {
				t.Errorf("%s event mismatch (-want +got):\n%s", name, diff)
			}
		default:
			t.Errorf("%s did not receive the event", name)
		}
	}

	select {
	case ev := <-a.Events():
		t.Fatalf("writer received its own event: %+v", ev)
	default:
	}
}

func TestOrigin_NoEventForUnchangedValueOrMissingKey(t *testing.T) {
	ctx := context.Background()
	origin := NewOrigin()
	a := origin.Open()
	b := origin.Open()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	_ = a.SetItem(ctx, "k", "same")
	<-b.Events()

	_ = a.SetItem(ctx, "k", "same")
	_ = a.RemoveItem(ctx, "never-written")

	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}

	_ = a.RemoveItem(ctx, "k")
	ev := <-b.Events()
	if !ev.Removed || ev.Key != "k" {
		t.Fatalf("expected removal event for k, got %+v", ev)
	}
}

func TestOrigin_FullQueueCoalescesEvents(t *testing.T) {
	ctx := context.Background()
	origin := NewOrigin(WithQueueSize(1))
	a := origin.Open()
	b := origin.Open()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	for _, v := range []string{"1", "2", "3", "4", "5"} {
		if err := a.SetItem(ctx, "a", v); err != nil {
			t.Fatalf("SetItem(a, %s) error: %v", v, err)
		}
	}
	_ = a.SetItem(ctx, "b", "x")

	var seen []string
	lastA, gotB := "", false
	timeout := time.After(2 * time.Second)
	for lastA != "5" || !gotB {
		select {
		case ev := <-b.Events():
			switch ev.Key {
			case "a":
				if ev.Value <= lastA {
					t.Fatalf("event for a went backwards: %q after %q", ev.Value, lastA)
				}
				lastA = ev.Value
				seen = append(seen, ev.Value)
			case "b":
				gotB = true
			}
		case <-timeout:
			t.Fatalf("timed out: a events %v, b seen %v", seen, gotB)
		}
	}
}

func TestOrigin_CloseClosesEventChannel(t *testing.T) {
	ctx := context.Background()
	origin := NewOrigin(WithQueueSize(1))
	a := origin.Open()
	b := origin.Open()
	t.Cleanup(func() { _ = a.Close() })

	_ = a.SetItem(ctx, "k", "1")
	_ = a.SetItem(ctx, "j", "1")
	_ = b.Close()
	_ = b.Close()

	for range b.Events() {
	}
	if b.queue.push(Event{Key: "k"}) {
		t.Fatal("push after Close should report false")
	}
}

func TestMemory_KeysSorted(t *testing.T) {
	ctx := context.Background()
	m := NewOrigin().Open()
	t.Cleanup(func() { _ = m.Close() })

	for _, k := range []string{"b", "a", "c"} {
		_ = m.SetItem(ctx, k, k)
	}
	keys, err := m.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() error: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, keys); diff != "" {
		t.Fatalf("Keys() mismatch (-want +got):\n%s", diff)
	}
}

func TestMemory_CloseMakesOperationsFail(t *testing.T) {
	ctx := context.Background()
	origin := NewOrigin()
	m := origin.Open()
	other := origin.Open()
	t.Cleanup(func() { _ = other.Close() })

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() second call error: %v", err)
	}
	if _, ok := <-m.Events(); ok {
		t.Fatal("Events() should be closed after Close")
	}

	if err := m.SetItem(ctx, "k", "v"); err != ErrClosed {
		t.Fatalf("SetItem() after Close = %v, want ErrClosed", err)
	}
	if _, _, err := m.GetItem(ctx, "k"); err != ErrClosed {
		t.Fatalf("GetItem() after Close = %v, want ErrClosed", err)
	}

	// Writes from other contexts must not panic on the closed channel.
	if err := other.SetItem(ctx, "k", "v"); err != nil {
		t.Fatalf("SetItem() on other context error: %v", err)
	}
	if origin.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", origin.Len())
	}
}
