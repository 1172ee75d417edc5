package clocksync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type fileStore struct {
	path   string
	mu     sync.Mutex
	ops    map[string]Operation
	closed bool
}

type fileStoreSnapshot struct {
	Operations []Operation `json:"operations"`
}

// NewFileStore returns a QueueStore persisted as a single JSON snapshot at
// path. Every mutation rewrites the snapshot atomically (tmp + rename), so a
// crash leaves either the old or the new state, never a partial write.
func NewFileStore(path string) (QueueStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	s := &fileStore{path: path, ops: map[string]Operation{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Enqueue(op Operation) error {
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
	if err := s.saveLocked(); err != nil {
		delete(s.ops, op.ID)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *fileStore) Get(id string) (Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return Operation{}, ErrNotFound
	}
	return op, nil
}

func (s *fileStore) ListByStatus(status OpStatus) ([]Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortByEnqueuedAt(filterByStatus(s.ops, status)), nil
}

func (s *fileStore) Update(op Operation) error {
	if err := validateRecord(op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	previous, ok := s.ops[op.ID]
	if !ok {
		return ErrNotFound
	}
	s.ops[op.ID] = op
	if err := s.saveLocked(); err != nil {
		s.ops[op.ID] = previous
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *fileStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.ops[id]
	if !ok {
		return nil
	}
	delete(s.ops, id)
	if err := s.saveLocked(); err != nil {
		s.ops[id] = previous
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *fileStore) ClearByStatus(status OpStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := map[string]Operation{}
	for id, op := range s.ops {
		if op.Status == status {
			removed[id] = op
			delete(s.ops, id)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := s.saveLocked(); err != nil {
		for id, op := range removed {
			s.ops[id] = op
		}
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return len(removed), nil
}

func (s *fileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.ops
	s.ops = map[string]Operation{}
	if err := s.saveLocked(); err != nil {
		s.ops = previous
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (s *fileStore) CountByStatus(status OpStatus) (int, error) {
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

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var snapshot fileStoreSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	for _, op := range snapshot.Operations {
		s.ops[op.ID] = op
	}
	return nil
}

func (s *fileStore) saveLocked() error {
	snapshot := fileStoreSnapshot{
		Operations: sortByEnqueuedAt(filterAll(s.ops)),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func filterAll(ops map[string]Operation) []Operation {
	all := make([]Operation, 0, len(ops))
	for _, op := range ops {
		all = append(all, op)
	}
	return all
}
