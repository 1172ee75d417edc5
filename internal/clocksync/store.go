package clocksync

import (
	"sort"
	"sync"
)

// QueueStore is durable storage for pending operations. Implementations must
// make Enqueue atomic (a record is fully persisted or the call fails with an
// error matching ErrStorage) and must tolerate concurrent Enqueue calls
// interleaved with a ListByStatus/Update/Remove drain cycle without losing
// or duplicating records.
type QueueStore interface {
	// Enqueue persists a new operation. The operation ID must be unused.
	Enqueue(op Operation) error
	// Get returns the operation with the given ID, or ErrNotFound.
	Get(id string) (Operation, error)
	// ListByStatus returns a snapshot of operations in the given status,
	// ordered by EnqueuedAt ascending.
	ListByStatus(status OpStatus) ([]Operation, error)
	// Update replaces the stored record with the same ID, or ErrNotFound.
	Update(op Operation) error
	// Remove deletes the operation. Removing an absent ID is not an error.
	Remove(id string) error
	// ClearByStatus deletes every operation in the given status and
	// returns how many were removed.
	ClearByStatus(status OpStatus) (int, error)
	// Clear deletes all operations.
	Clear() error
	// CountByStatus returns the number of operations in the given status.
	CountByStatus(status OpStatus) (int, error)
	Close() error
}

type memoryStore struct {
	mu     sync.Mutex
	ops    map[string]Operation
	closed bool
}

// NewMemoryStore returns a non-durable QueueStore backed by a map. It is the
// default for tests and for deployments that accept losing the queue on
// restart.
func NewMemoryStore() QueueStore {
	return &memoryStore{ops: map[string]Operation{}}
}

func (s *memoryStore) Enqueue(op Operation) error {
	if err := validateRecord(op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, exists := s.ops[op.ID]; exists {
		return ErrInvalidInput
	}
	s.ops[op.ID] = op
	return nil
}

func (s *memoryStore) Get(id string) (Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return Operation{}, ErrNotFound
	}
	return op, nil
}

func (s *memoryStore) ListByStatus(status OpStatus) ([]Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortByEnqueuedAt(filterByStatus(s.ops, status)), nil
}

func (s *memoryStore) Update(op Operation) error {
	if err := validateRecord(op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.ops[op.ID]; !ok {
		return ErrNotFound
	}
	s.ops[op.ID] = op
	return nil
}

func (s *memoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ops, id)
	return nil
}

func (s *memoryStore) ClearByStatus(status OpStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := 0
	for id, op := range s.ops {
		if op.Status == status {
			delete(s.ops, id)
			cleared++
		}
	}
	return cleared, nil
}

func (s *memoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = map[string]Operation{}
	return nil
}

func (s *memoryStore) CountByStatus(status OpStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, op := range s.ops {
		if op.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func validateRecord(op Operation) error {
	if op.ID == "" || op.Payload == nil {
		return ErrInvalidInput
	}
	return nil
}

func filterByStatus(ops map[string]Operation, status OpStatus) []Operation {
	matched := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if op.Status == status {
			matched = append(matched, op)
		}
	}
	return matched
}

func sortByEnqueuedAt(ops []Operation) []Operation {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].EnqueuedAt.Equal(ops[j].EnqueuedAt) {
			return ops[i].ID < ops[j].ID
		}
		return ops[i].EnqueuedAt.Before(ops[j].EnqueuedAt)
	})
	return ops
}
