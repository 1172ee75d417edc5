package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shiftwise/clocksync/internal/clocksync"
	"github.com/shiftwise/clocksync/internal/httpapi"
	"github.com/shiftwise/clocksync/internal/netmon"
)

func main() {
	logger := log.New(os.Stderr, "[clocksyncd] ", log.LstdFlags)

	store, err := buildQueueStoreFromEnv()
	if err != nil {
		logger.Fatalf("failed to initialize queue store: %v", err)
	}
	defer store.Close()

	monitor, err := buildMonitorFromEnv(logger)
	if err != nil {
		logger.Fatalf("failed to initialize connectivity monitor: %v", err)
	}
	defer monitor.Close()

	baseURL := strings.TrimSpace(os.Getenv("CLOCKSYNC_BACKEND_URL"))
	if baseURL == "" {
		logger.Fatalf("CLOCKSYNC_BACKEND_URL is required")
	}
	gateway := clocksync.NewHTTPGateway(baseURL, os.Getenv("CLOCKSYNC_BACKEND_TOKEN"), nil)

	coord, err := clocksync.New(clocksync.Config{
		Store:         store,
		Gateway:       gateway,
		Monitor:       monitor,
		BatchSize:     intEnv("CLOCKSYNC_BATCH_SIZE", 0),
		DrainInterval: durationEnv("CLOCKSYNC_DRAIN_INTERVAL", 0),
		BaseBackoff:   durationEnv("CLOCKSYNC_BASE_BACKOFF", 0),
		MaxBackoff:    durationEnv("CLOCKSYNC_MAX_BACKOFF", 0),
		MaxRetries:    intEnv("CLOCKSYNC_MAX_RETRIES", 0),
		CallTimeout:   durationEnv("CLOCKSYNC_CALL_TIMEOUT", 0),
		Logger:        logger,
	})
	if err != nil {
		logger.Fatalf("failed to start coordinator: %v", err)
	}

	addr := os.Getenv("CLOCKSYNC_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8347"
	}
	api := httpapi.NewServer(coord, httpapi.ServerConfig{
		AuthToken:      os.Getenv("CLOCKSYNC_API_TOKEN"),
		StreamInterval: durationEnv("CLOCKSYNC_STREAM_INTERVAL", 0),
	})
	srv := &http.Server{Addr: addr, Handler: api}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("clocksyncd listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Printf("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := coord.Stop(); err != nil {
		logger.Printf("coordinator stop: %v", err)
	}
}

func buildQueueStoreFromEnv() (clocksync.QueueStore, error) {
	dsn := strings.TrimSpace(os.Getenv("CLOCKSYNC_QUEUE_DSN"))
	if dsn == "" {
		profileDSN, err := storageProfileDefaultsFromEnv()
		if err != nil {
			return nil, err
		}
		dsn = profileDSN
	}
	if dsn == "" {
		dsn = "memory://"
	}
	return clocksync.BuildQueueStoreFromDSN(dsn)
}

func storageProfileDefaultsFromEnv() (string, error) {
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("CLOCKSYNC_BACKEND_PROFILE")))
	dataDir := strings.TrimSpace(os.Getenv("CLOCKSYNC_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".clocksync"
	}
	switch profile {
	case "", "custom":
		return "", nil
	case "memory", "inmemory":
		return "memory://", nil
	case "durable-local", "local-durable":
		return "sqlite://" + filepath.Join(dataDir, "queue.db"), nil
	case "production", "prod":
		dsn := strings.TrimSpace(os.Getenv("CLOCKSYNC_POSTGRES_DSN"))
		if dsn == "" {
			return "", fmt.Errorf("CLOCKSYNC_POSTGRES_DSN is required when CLOCKSYNC_BACKEND_PROFILE=%s", profile)
		}
		return dsn, nil
	default:
		return "", fmt.Errorf("unsupported CLOCKSYNC_BACKEND_PROFILE: %s", profile)
	}
}

func buildMonitorFromEnv(logger *log.Logger) (netmon.Monitor, error) {
	iface := strings.TrimSpace(os.Getenv("CLOCKSYNC_NET_INTERFACE"))
	if iface != "" {
		m, err := netmon.NewOperstateMonitor(iface, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	probeURL := strings.TrimSpace(os.Getenv("CLOCKSYNC_PROBE_URL"))
	if probeURL != "" {
		m, err := netmon.NewProbeMonitor(netmon.ProbeConfig{
			URL:          probeURL,
			Interval:     durationEnv("CLOCKSYNC_PROBE_INTERVAL", 0),
			ProbeTimeout: durationEnv("CLOCKSYNC_PROBE_TIMEOUT", 0),
			PoorLatency:  durationEnv("CLOCKSYNC_PROBE_POOR_LATENCY", 0),
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return netmon.NewStaticMonitor(true), nil
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
