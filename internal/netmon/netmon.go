// Package netmon observes connectivity and exposes online status, a coarse
// quality classification, and change notifications. Platform specifics stay
// behind the Monitor interface; nothing above this boundary touches probe
// URLs or sysfs paths.
package netmon

import "sync"

type Quality string

const (
	QualityGood    Quality = "good"
	QualityPoor    Quality = "poor"
	QualityOffline Quality = "offline"
)

// Monitor reports connectivity. Implementations notify subscribers exactly
// once per online/offline flip and never on quality-only changes.
type Monitor interface {
	IsOnline() bool
	QualityClass() Quality
	// Subscribe registers a handler for online/offline transitions. The
	// handler receives the new online state.
	Subscribe(handler func(online bool)) Subscription
	Close() error
}

// Subscription is the token returned by Subscribe. Unsubscribe is
// idempotent.
type Subscription interface {
	Unsubscribe()
}

// notifier is the shared subscriber registry embedded by monitor
// implementations.
type notifier struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func(online bool)
}

type subscription struct {
	n  *notifier
	id int
}

func (s *subscription) Unsubscribe() {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	delete(s.n.handlers, s.id)
}

func (n *notifier) subscribe(handler func(online bool)) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.handlers == nil {
		n.handlers = map[int]func(online bool){}
	}
	n.nextID++
	id := n.nextID
	n.handlers[id] = handler
	return &subscription{n: n, id: id}
}

func (n *notifier) notify(online bool) {
	n.mu.Lock()
	handlers := make([]func(online bool), 0, len(n.handlers))
	for _, h := range n.handlers {
		handlers = append(handlers, h)
	}
	n.mu.Unlock()
	for _, h := range handlers {
		h(online)
	}
}

// StaticMonitor is a manually driven Monitor for composition roots without a
// platform signal and for tests.
type StaticMonitor struct {
	notifier
	mu      sync.Mutex
	online  bool
	quality Quality
}

func NewStaticMonitor(online bool) *StaticMonitor {
	quality := QualityGood
	if !online {
		quality = QualityOffline
	}
	return &StaticMonitor{online: online, quality: quality}
}

func (m *StaticMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *StaticMonitor) QualityClass() Quality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quality
}

func (m *StaticMonitor) Subscribe(handler func(online bool)) Subscription {
	return m.subscribe(handler)
}

// SetOnline flips the monitor state. Subscribers are notified only when the
// online flag actually changes.
func (m *StaticMonitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	if online {
		m.quality = QualityGood
	} else {
		m.quality = QualityOffline
	}
	m.mu.Unlock()
	if changed {
		m.notify(online)
	}
}

// SetQuality adjusts the quality class without emitting a transition.
func (m *StaticMonitor) SetQuality(q Quality) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quality = q
}

func (m *StaticMonitor) Close() error { return nil }
