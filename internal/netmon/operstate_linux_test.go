package netmon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeOperstate(t *testing.T, path, state string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(state+"\n"), 0o644); err != nil {
		t.Fatalf("write operstate failed: %v", err)
	}
}

func TestOperstateMonitorTracksInterfaceState(t *testing.T) {
	root := t.TempDir()
	ifaceDir := filepath.Join(root, "wlan0")
	if err := os.MkdirAll(ifaceDir, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	statePath := filepath.Join(ifaceDir, "operstate")
	writeOperstate(t, statePath, "up")

	monitor, err := newOperstateMonitorAt(root, "wlan0", nil)
	if err != nil {
		t.Fatalf("operstate monitor start failed: %v", err)
	}
	defer monitor.Close()

	if !monitor.IsOnline() || monitor.QualityClass() != QualityGood {
		t.Fatalf("expected online/good for operstate up")
	}

	rec := &transitionRecorder{}
	sub := monitor.Subscribe(rec.record)
	defer sub.Unsubscribe()

	writeOperstate(t, statePath, "down")
	waitForState(t, monitor, false)
	if monitor.QualityClass() != QualityOffline {
		t.Fatalf("expected offline classification, got %s", monitor.QualityClass())
	}

	writeOperstate(t, statePath, "up")
	waitForState(t, monitor, true)

	events := rec.snapshot()
	if len(events) < 2 || events[0] != false || events[len(events)-1] != true {
		t.Fatalf("expected offline then online notifications, got %v", events)
	}
}

func TestOperstateMonitorStartsOfflineWhenInterfaceMissing(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "eth9"), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	monitor, err := newOperstateMonitorAt(root, "eth9", nil)
	if err != nil {
		t.Fatalf("operstate monitor start failed: %v", err)
	}
	defer monitor.Close()
	if monitor.IsOnline() {
		t.Fatalf("missing operstate file must read as offline")
	}
}

func TestOperstateMonitorRequiresInterfaceName(t *testing.T) {
	if _, err := newOperstateMonitorAt(t.TempDir(), "  ", nil); err == nil {
		t.Fatalf("expected error for empty interface name")
	}
}

func waitForState(t *testing.T, m *OperstateMonitor, online bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.IsOnline() == online {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("monitor never reached online=%v", online)
}
