package netmon

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// OperstateMonitor reads interface state from /sys/class/net and reacts to
// kernel updates via fsnotify. Quality stays good while online; the sysfs
// signal carries no latency information.
type OperstateMonitor struct {
	notifier
	iface     string
	statePath string
	logger    *log.Logger

	mu     sync.Mutex
	online bool

	watcher   *fsnotify.Watcher
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewOperstateMonitor(iface string, logger *log.Logger) (*OperstateMonitor, error) {
	return newOperstateMonitorAt("/sys/class/net", iface, logger)
}

func newOperstateMonitorAt(root, iface string, logger *log.Logger) (*OperstateMonitor, error) {
	iface = strings.TrimSpace(iface)
	if iface == "" {
		return nil, errors.New("netmon: interface name is required")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	m := &OperstateMonitor{
		iface:     iface,
		statePath: filepath.Join(root, iface, "operstate"),
		logger:    logger,
		watcher:   watcher,
		done:      make(chan struct{}),
	}
	m.online = m.readOperstate()
	if err := watcher.Add(filepath.Dir(m.statePath)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	m.wg.Add(1)
	go m.run()
	return m, nil
}

func (m *OperstateMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *OperstateMonitor) QualityClass() Quality {
	if m.IsOnline() {
		return QualityGood
	}
	return QualityOffline
}

func (m *OperstateMonitor) Subscribe(handler func(online bool)) Subscription {
	return m.subscribe(handler)
}

func (m *OperstateMonitor) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		_ = m.watcher.Close()
		m.wg.Wait()
	})
	return nil
}

func (m *OperstateMonitor) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != "operstate" {
				continue
			}
			m.apply(m.readOperstate())
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Printf("watcher error: %v", err)
		}
	}
}

func (m *OperstateMonitor) readOperstate() bool {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "up"
}

func (m *OperstateMonitor) apply(online bool) {
	m.mu.Lock()
	flipped := m.online != online
	m.online = online
	m.mu.Unlock()
	if flipped {
		m.logger.Printf("interface %s changed: online=%v", m.iface, online)
		m.notify(online)
	}
}
