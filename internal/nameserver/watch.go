package nameserver

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lihanrui2913/radon-os-sub001/internal/kernel"
	"github.com/lihanrui2913/radon-os-sub001/internal/log"
)

// WatchEvents is the bitmask of service lifecycle transitions a watcher
// subscribes to, mirroring original_source/nameserver/src/server/
// watcher.rs's WatchEvents flags.
type WatchEvents uint32

const (
	WatchOnline WatchEvents = 1 << iota
	WatchOffline
)

// Watcher is one registered subscription: an optional name prefix
// (empty matches everything), the event mask, and the channel endpoint
// notifications are delivered on.
type Watcher struct {
	ID       uuid.UUID
	ClientID uint64
	Pattern  string
	Events   WatchEvents
	channel  *kernel.Endpoint
}

func (w *Watcher) matches(name string, event WatchEvents) bool {
	if w.Events&event == 0 {
		return false
	}

	return strings.HasPrefix(name, w.Pattern)
}

// WatcherManager tracks every live watcher and fans service lifecycle
// events out to the ones whose pattern/event mask matches. Grounded on
// original_source/nameserver/src/server/watcher.rs's WatcherManager;
// watcher ids are minted with google/uuid (already pulled in by the
// bootstrap/driverproto request-id convention) rather than an
// AtomicU32 counter, since this registry's watchers can be added and
// removed from several goroutines concurrently and a random id needs no
// shared counter state.
type WatcherManager struct {
	maxWatchers int

	mu       sync.RWMutex
	watchers map[uuid.UUID]*Watcher

	retries int // bounded retry attempts before a notification is dropped (spec §9 open question 3)
	log     *log.Logger
}

// NewWatcherManager creates a manager accepting up to maxWatchers live
// subscriptions, retrying a failed delivery up to retries times (0 means
// try once, no retry) before dropping and logging it.
func NewWatcherManager(maxWatchers, retries int) *WatcherManager {
	return &WatcherManager{
		maxWatchers: maxWatchers,
		watchers:    make(map[uuid.UUID]*Watcher),
		retries:     retries,
		log:         log.DefaultLogger(),
	}
}

// Add registers a new watcher, failing with OutOfMemory once maxWatchers
// is reached.
func (m *WatcherManager) Add(clientID uint64, pattern string, events WatchEvents, channel *kernel.Endpoint) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.watchers) >= m.maxWatchers {
		return uuid.Nil, kernel.NewError("nameserver.watch_add", kernel.StatusOutOfMemory, nil)
	}

	id := uuid.New()
	m.watchers[id] = &Watcher{ID: id, ClientID: clientID, Pattern: pattern, Events: events, channel: channel}

	return id, nil
}

// Remove drops a watcher by id.
func (m *WatcherManager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.watchers, id)
}

// RemoveByClient drops every watcher owned by clientID, used when a
// client's bootstrap channel closes.
func (m *WatcherManager) RemoveByClient(clientID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, w := range m.watchers {
		if w.ClientID == clientID {
			delete(m.watchers, id)
		}
	}
}

// NotifyOnline fans out a service-online event.
func (m *WatcherManager) NotifyOnline(name string, serviceID uint64) {
	m.notify(name, serviceID, WatchOnline)
}

// NotifyOffline fans out a service-offline event.
func (m *WatcherManager) NotifyOffline(name string, serviceID uint64) {
	m.notify(name, serviceID, WatchOffline)
}

func (m *WatcherManager) notify(name string, serviceID uint64, event WatchEvents) {
	m.mu.RLock()
	targets := make([]*Watcher, 0, len(m.watchers))

	for _, w := range m.watchers {
		if w.matches(name, event) {
			targets = append(targets, w)
		}
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	payload := encodeNotification(name, serviceID, event)

	for _, w := range targets {
		m.deliver(w, payload)
	}
}

// deliver sends payload to w's channel, retrying up to m.retries times
// on WouldBlock before dropping the notification and logging it (spec
// §9 open question 3, resolved in favor of a bounded retry over a
// silent-only drop).
func (m *WatcherManager) deliver(w *Watcher, payload []byte) {
	attempts := m.retries + 1

	for i := 0; i < attempts; i++ {
		err := w.channel.Send(payload, nil, nil)
		if err == nil {
			return
		}

		kerr, ok := err.(*kernel.Error)
		if !ok || kerr.Status != kernel.StatusWouldBlock {
			m.log.Warn("watch notification dropped", "watcher", w.ID, "err", err)
			return
		}
	}

	m.log.Warn("watch notification dropped after retries", "watcher", w.ID, "attempts", attempts)
}

// NotificationType distinguishes the two wire-level notification
// opcodes a watcher channel receives.
type NotificationType uint32

const (
	NotifyOnline NotificationType = iota
	NotifyOffline
)

func encodeNotification(name string, serviceID uint64, event WatchEvents) []byte {
	typ := NotifyOnline
	if event == WatchOffline {
		typ = NotifyOffline
	}

	buf := make([]byte, 0, 13+len(name))
	buf = append(buf, byte(typ))
	buf = appendUint64(buf, serviceID)
	buf = append(buf, byte(len(name)))
	buf = append(buf, name...)

	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}

	return buf
}
