package netmon

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

var errEmptyProbeURL = errors.New("netmon: probe URL is required")

type ProbeConfig struct {
	// URL receives a HEAD request every Interval. Any 2xx-5xx response
	// counts as reachable; only transport failures mean offline.
	URL string

	// Interval between probes. Default 15s.
	Interval time.Duration

	// ProbeTimeout bounds a single probe. Default 5s.
	ProbeTimeout time.Duration

	// PoorLatency is the round-trip above which quality degrades to poor.
	// Default 750ms.
	PoorLatency time.Duration

	HTTPClient *http.Client
	Logger     *log.Logger
}

// ProbeMonitor classifies connectivity by periodically probing a well-known
// endpoint and measuring the round trip.
type ProbeMonitor struct {
	notifier
	cfg ProbeConfig

	mu      sync.Mutex
	online  bool
	quality Quality

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewProbeMonitor(cfg ProbeConfig) (*ProbeMonitor, error) {
	if cfg.URL == "" {
		return nil, errEmptyProbeURL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.PoorLatency <= 0 {
		cfg.PoorLatency = 750 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &ProbeMonitor{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		// Unknown starts as online/good; the first probe corrects it.
		online:  true,
		quality: QualityGood,
	}
	m.wg.Add(1)
	go m.run()
	return m, nil
}

func (m *ProbeMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ProbeMonitor) QualityClass() Quality {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quality
}

func (m *ProbeMonitor) Subscribe(handler func(online bool)) Subscription {
	return m.subscribe(handler)
}

func (m *ProbeMonitor) Close() error {
	m.closeOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
	return nil
}

func (m *ProbeMonitor) run() {
	defer m.wg.Done()
	m.probe()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

func (m *ProbeMonitor) probe() {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.cfg.URL, nil)
	if err != nil {
		m.apply(false, 0)
		return
	}
	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		m.apply(false, 0)
		return
	}
	_ = resp.Body.Close()
	m.apply(true, time.Since(start))
}

func (m *ProbeMonitor) apply(online bool, latency time.Duration) {
	quality := QualityOffline
	if online {
		quality = QualityGood
		if latency >= m.cfg.PoorLatency {
			quality = QualityPoor
		}
	}

	m.mu.Lock()
	flipped := m.online != online
	m.online = online
	m.quality = quality
	m.mu.Unlock()

	if flipped {
		m.cfg.Logger.Printf("connectivity changed: online=%v quality=%s", online, quality)
		m.notify(online)
	}
}
