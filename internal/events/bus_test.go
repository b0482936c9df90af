package events

import (
	"fmt"
	"testing"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()
	sub := bus.Subscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(New(Info, fmt.Sprintf("msg-%d", i), nil))
	}
	for i := 0; i < 5; i++ {
		e := <-sub.C()
		if want := fmt.Sprintf("msg-%d", i); e.Message != want {
			t.Fatalf("event %d: Message = %q, want %q", i, e.Message, want)
		}
	}
	if sub.Lagged() != 0 {
		t.Errorf("Lagged = %d, want 0", sub.Lagged())
	}
}

func TestBusDropsOldestOnOverflow(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()
	sub := bus.Subscribe()

	for i := 0; i < 10; i++ {
		bus.Publish(New(Info, fmt.Sprintf("msg-%d", i), nil))
	}

	// The buffer holds the newest 4 events; the first 6 were evicted.
	for i := 6; i < 10; i++ {
		e := <-sub.C()
		if want := fmt.Sprintf("msg-%d", i); e.Message != want {
			t.Fatalf("Message = %q, want %q", e.Message, want)
		}
	}
	if sub.Lagged() != 6 {
		t.Errorf("Lagged = %d, want 6", sub.Lagged())
	}
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(New(DownloadStarted, "queued", map[string]any{"hash": "abc"}))

	for _, sub := range []*Subscription{a, b} {
		e := <-sub.C()
		if e.Type != DownloadStarted {
			t.Errorf("Type = %q, want %q", e.Type, DownloadStarted)
		}
		if e.Data["hash"] != "abc" {
			t.Errorf("Data[hash] = %v, want abc", e.Data["hash"])
		}
		if e.Time.IsZero() {
			t.Error("New should stamp the event time")
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()
	sub := bus.Subscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	bus.Publish(New(Info, "after", nil))
}

func TestBusClose(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	bus.Close()
	bus.Close() // idempotent

	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed after bus Close")
	}

	late := bus.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Error("Subscribe after Close should return a closed channel")
	}
	bus.Publish(New(Info, "ignored", nil))
}

func TestEventIsProgress(t *testing.T) {
	tests := []struct {
		typ  Type
		want bool
	}{
		{DownloadProgress, true},
		{RssCheckProgress, true},
		{LibraryScanProgress, true},
		{DownloadStarted, false},
		{Error, false},
	}
	for _, tt := range tests {
		if got := (Event{Type: tt.typ}).IsProgress(); got != tt.want {
			t.Errorf("IsProgress(%q) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
