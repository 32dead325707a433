package nameserver

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
)

func TestWatcherManager_NotifyMatchesPrefixAndEvent(tt *testing.T) {
	tt.Parallel()

	m := NewWatcherManager(8, 0)

	a, b := kernel.NewChannelPair()

	id, err := m.Add(1, "svc.", WatchOnline, a)
	if err != nil {
		tt.Fatalf("Add: %v", err)
	}

	if id == uuid.Nil {
		tt.Fatalf("expected a non-nil watcher id")
	}

	m.NotifyOnline("svc.echo", 7)

	buf := make([]byte, 64)

	n, _, err := b.TryRecv(buf, 0, kernel.NewHandleTable())
	if err != nil {
		tt.Fatalf("expected a notification to be delivered: %v", err)
	}

	if NotificationType(buf[0]) != NotifyOnline {
		tt.Fatalf("got notification type %d, want NotifyOnline", buf[0])
	}

	if n < 1+8+1+len("svc.echo") {
		tt.Fatalf("got short notification payload, n=%d", n)
	}
}

func TestWatcherManager_NonMatchingPrefixIsNotDelivered(tt *testing.T) {
	tt.Parallel()

	m := NewWatcherManager(8, 0)
	a, b := kernel.NewChannelPair()

	if _, err := m.Add(1, "svc.", WatchOnline, a); err != nil {
		tt.Fatalf("Add: %v", err)
	}

	m.NotifyOnline("other.thing", 1)

	if _, _, err := b.TryRecv(make([]byte, 8), 0, kernel.NewHandleTable()); err == nil {
		tt.Fatalf("expected no notification for a non-matching prefix")
	}
}

func TestWatcherManager_EventMaskFiltersNotifications(tt *testing.T) {
	tt.Parallel()

	m := NewWatcherManager(8, 0)
	a, b := kernel.NewChannelPair()

	if _, err := m.Add(1, "", WatchOnline, a); err != nil {
		tt.Fatalf("Add: %v", err)
	}

	m.NotifyOffline("anything", 1)

	if _, _, err := b.TryRecv(make([]byte, 8), 0, kernel.NewHandleTable()); err == nil {
		tt.Fatalf("expected no delivery for an event not in the watcher's mask")
	}
}

func TestWatcherManager_RemoveStopsDelivery(tt *testing.T) {
	tt.Parallel()

	m := NewWatcherManager(8, 0)
	a, b := kernel.NewChannelPair()

	id, err := m.Add(1, "", WatchOnline, a)
	if err != nil {
		tt.Fatalf("Add: %v", err)
	}

	m.Remove(id)
	m.NotifyOnline("anything", 1)

	if _, _, err := b.TryRecv(make([]byte, 8), 0, kernel.NewHandleTable()); err == nil {
		tt.Fatalf("expected no delivery after Remove")
	}
}

func TestWatcherManager_RemoveByClient(tt *testing.T) {
	tt.Parallel()

	m := NewWatcherManager(8, 0)
	a, _ := kernel.NewChannelPair()
	c, _ := kernel.NewChannelPair()

	if _, err := m.Add(42, "", WatchOnline, a); err != nil {
		tt.Fatalf("Add: %v", err)
	}

	if _, err := m.Add(42, "", WatchOnline, c); err != nil {
		tt.Fatalf("Add: %v", err)
	}

	m.RemoveByClient(42)

	if len(m.watchers) != 0 {
		tt.Fatalf("expected RemoveByClient to drop every watcher for the client, got %d remaining", len(m.watchers))
	}
}

func TestWatcherManager_AddRejectsOverCapacity(tt *testing.T) {
	tt.Parallel()

	m := NewWatcherManager(1, 0)
	a, _ := kernel.NewChannelPair()
	b, _ := kernel.NewChannelPair()

	if _, err := m.Add(1, "", WatchOnline, a); err != nil {
		tt.Fatalf("Add: %v", err)
	}

	if _, err := m.Add(2, "", WatchOnline, b); err == nil {
		tt.Fatalf("expected Add beyond maxWatchers to fail")
	}
}
