package events

import (
	"context"
	"testing"
	"time"

	"github.com/kumoarr/kumoarr/internal/store"
	"github.com/kumoarr/kumoarr/internal/testutil"
)

func TestLogSinkPersistsEvents(t *testing.T) {
	st := store.New(testutil.NewTestDB(t).Conn)
	bus := NewBus(16)
	sink := NewLogSink(bus, st, testutil.NewTestLogger(t))

	done := make(chan struct{})
	go func() {
		sink.Run(context.Background())
		close(done)
	}()

	bus.Publish(New(DownloadStarted, "queued something", map[string]any{"hash": "abc"}))
	bus.Publish(New(DownloadProgress, "45%", nil))
	bus.Publish(New(Error, "boom", nil))
	bus.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sink did not stop after bus close")
	}

	logs, err := st.GetLogs(context.Background(), "", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("persisted %d rows, want 2 (progress dropped)", len(logs))
	}

	var sawError, sawStarted bool
	for _, l := range logs {
		switch l.EventType {
		case string(Error):
			sawError = true
			if l.Level != "error" {
				t.Errorf("error event level = %q, want error", l.Level)
			}
		case string(DownloadStarted):
			sawStarted = true
			if l.Details == nil {
				t.Error("event data should be persisted as details")
			}
		}
	}
	if !sawError || !sawStarted {
		t.Errorf("missing rows: error=%v started=%v", sawError, sawStarted)
	}
}

func TestLogSinkStopsOnContextCancel(t *testing.T) {
	st := store.New(testutil.NewTestDB(t).Conn)
	bus := NewBus(16)
	defer bus.Close()
	sink := NewLogSink(bus, st, testutil.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sink did not stop after context cancel")
	}
}
