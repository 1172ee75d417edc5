package clocksync

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newSQLiteTestStore(t *testing.T) QueueStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("new sqlite store failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newSQLiteTestStore(t)
	base := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	if err := store.Enqueue(pendingOp("op_b", base.Add(time.Second))); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := store.Enqueue(pendingOp("op_a", base)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	got, err := store.Get("op_a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	payload, ok := got.Payload.(CheckInPayload)
	if !ok || payload.EmployeeID != "emp_op_a" {
		t.Fatalf("payload lost in round trip: %+v", got.Payload)
	}

	ops, err := store.ListByStatus(StatusPending)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(ops) != 2 || ops[0].ID != "op_a" || ops[1].ID != "op_b" {
		t.Fatalf("expected enqueue-time ordering, got %+v", ops)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("new sqlite store failed: %v", err)
	}
	op := pendingOp("op_1", time.Now().UTC())
	if err := store.Enqueue(op); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	op.Status = StatusFailed
	op.LastError = "network failure"
	if err := store.Update(op); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get("op_1")
	if err != nil {
		t.Fatalf("get after reopen failed: %v", err)
	}
	if got.Status != StatusFailed || got.LastError != "network failure" {
		t.Fatalf("transition not persisted: %+v", got)
	}
}

func TestSQLiteStoreUpdateAbsentRecord(t *testing.T) {
	store := newSQLiteTestStore(t)
	if err := store.Update(pendingOp("op_ghost", time.Now().UTC())); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStoreClearByStatus(t *testing.T) {
	store := newSQLiteTestStore(t)
	keep := pendingOp("op_keep", time.Now().UTC())
	if err := store.Enqueue(keep); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	dead := pendingOp("op_dead", time.Now().UTC())
	dead.Status = StatusFailed
	if err := store.Enqueue(dead); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	cleared, err := store.ClearByStatus(StatusFailed)
	if err != nil || cleared != 1 {
		t.Fatalf("expected 1 cleared, got %d (err=%v)", cleared, err)
	}
	pending, err := store.CountByStatus(StatusPending)
	if err != nil || pending != 1 {
		t.Fatalf("expected pending record to survive, got %d (err=%v)", pending, err)
	}
	if err := store.Remove("op_keep"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := store.Get("op_keep"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}
